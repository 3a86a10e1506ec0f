// Package app assembles the media vault from its configuration.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"photovault/internal/config"
	"photovault/internal/database"
	"photovault/internal/domain/media"
	"photovault/internal/storage"
	"photovault/internal/thumbnail"
)

type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Store   *storage.FileStore
	Service *media.Service
	Sweeper *media.Sweeper
	Log     zerolog.Logger
}

// New connects the index, migrates it, opens the object store and builds the
// lifecycle manager and sweeper on top of them.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := media.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	store, err := storage.NewFileStore(cfg.StorageRoot, cfg.FSOpTimeout, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	svc := media.NewService(
		media.NewRepository(db),
		store,
		thumbnail.NewGenerator(cfg.ThumbnailMaxPixels, log),
		media.Options{
			MaxUploadBytes:   cfg.MaxUploadBytes,
			ThumbnailTimeout: cfg.ThumbnailTimeout,
			ThumbnailRetry: media.RetryPolicy{
				Attempts: cfg.ThumbRetryAttempts,
				Delay:    cfg.ThumbRetryDelay,
			},
		},
		log,
	)

	sweeper := media.NewSweeper(svc, media.SweeperConfig{
		Retention: cfg.Retention,
		Interval:  cfg.SweepInterval,
	}, log)

	return &App{Config: cfg, DB: db, Store: store, Service: svc, Sweeper: sweeper, Log: log}, nil
}

// Reconcile runs one reconciliation pass with the configured grace period.
func (a *App) Reconcile(ctx context.Context) (media.ReconcileStats, error) {
	return a.Service.Reconcile(ctx, a.Config.ReconcileGrace)
}

// Health checks the index and the object store.
func (a *App) Health(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return a.Store.Health(ctx)
}

func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
