// Package app wires configuration into the stores and services shared by
// the server and the admin command.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"tagbox/internal/config"
	"tagbox/internal/db"
	"tagbox/internal/gallery"
	"tagbox/internal/security"
	"tagbox/internal/storage"
)

type App struct {
	Config   *config.Config
	DB       *db.DB
	Blobs    storage.Store
	Gallery  *gallery.Gallery
	Sessions *security.SessionStore
	Auth     *security.Provider
	Logger   *slog.Logger
}

// NewLogger returns the text logger used by both binaries.
func NewLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// LoadConfig reads path, falling back to defaults plus environment when
// the file cannot be read.
func LoadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	logger.Warn("config file not found, using defaults", "path", path)
	cfg = config.Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	database, err := db.Init(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		database.Close()
		return nil, err
	}

	sessions := security.NewSessionStore()
	return &App{
		Config:   cfg,
		DB:       database,
		Blobs:    blobs,
		Gallery:  gallery.New(database, blobs, logger),
		Sessions: sessions,
		Auth: security.NewProvider(database, sessions, security.Options{
			SessionTTL: cfg.SessionTTL,
			BcryptCost: cfg.BcryptCost,
			Logger:     logger,
		}),
		Logger: logger,
	}, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Options{
			Bucket:          cfg.Storage.Bucket,
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			AccessKeySecret: cfg.Storage.AccessKeySecret,
			Prefix:          cfg.Storage.Prefix,
		})
	default:
		return storage.NewFSStore(cfg.ImageDir)
	}
}

func (a *App) Close() error {
	return a.DB.Close()
}
