package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"photovault/internal/app"
	"photovault/internal/config"
	"photovault/internal/httpserver"
	"photovault/internal/logger"
)

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize application")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}()

	if cfg.ReconcileOnStart {
		if _, err := a.Reconcile(ctx); err != nil {
			log.Error().Err(err).Msg("startup reconciliation failed")
		}
	}

	stopSweeper := a.Sweeper.Start(ctx)
	defer stopSweeper()

	srv := httpserver.New(a.Service, httpserver.Options{
		Addr:            cfg.HTTPAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
		InternalToken:   cfg.InternalToken,
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		Health:          a.Health,
	}, log)

	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("http server stopped with error")
	}
	log.Info().Msg("shutdown complete")
}

func loadEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
