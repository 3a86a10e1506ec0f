package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"photovault/internal/app"
	"photovault/internal/config"
	"photovault/internal/logger"
)

// One-shot reconcile and retention sweep, for cron.
func main() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize application")
	}

	if err := run(ctx, a); err != nil {
		log.Error().Err(err).Msg("sweep failed")
		stop()
		os.Exit(1)
	}
}

// run reconciles, sweeps once and closes a, whatever the outcome.
func run(ctx context.Context, a *app.App) error {
	defer func() {
		if err := a.Close(); err != nil {
			a.Log.Error().Err(err).Msg("close database")
		}
	}()

	rs, rerr := a.Reconcile(ctx)
	if rerr != nil {
		a.Log.Error().Err(rerr).Msg("reconciliation failed")
	}
	ss := a.Sweeper.RunOnce(ctx)

	a.Log.Info().
		Int("adopted", rs.Adopted).
		Int("fixed_state", rs.FixedState).
		Int("purged", ss.Purged).
		Int("sweep_failed", ss.Failed).
		Msg("sweep completed")

	if rerr != nil {
		return fmt.Errorf("reconcile: %w", rerr)
	}
	if ss.Failed > 0 {
		return fmt.Errorf("%d objects failed to purge", ss.Failed)
	}
	return nil
}
