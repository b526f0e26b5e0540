package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"tagbox/internal/app"
	"tagbox/internal/http/router"
	"tagbox/internal/search"
	"tagbox/internal/security"
)

func main() {
	configPath := pflag.StringP("config", "c", "config/app.yaml", "path to the YAML config file")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	logger := app.NewLogger(*debug)

	cfg, err := app.LoadConfig(*configPath, logger)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	password, err := a.Auth.EnsureAdmin(ctx)
	if err != nil {
		logger.Error("failed to bootstrap admin user", "error", err)
		os.Exit(1)
	}
	if password != "" {
		logger.Warn("admin user created with initial password, please change it", "password", password)
	}

	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		logger.Warn("no secret configured, sessions will not survive a restart")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logger.Error("failed to generate secret", "error", err)
			os.Exit(1)
		}
	}

	if cfg.SweepInterval > 0 {
		go a.Sessions.RunSweeper(ctx, cfg.SweepInterval, time.Now, logger)
	}

	r := router.Setup(router.Deps{
		DB:             a.DB,
		Gallery:        a.Gallery,
		Searcher:       search.NewSearcher(a.Gallery, cfg.PageSize),
		Auth:           a.Auth,
		Cookies:        security.NewCookieTransport(secret, a.Auth.SessionTTL(), false),
		Logger:         logger,
		LoginRateLimit: cfg.LoginRateLimit,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", "port", cfg.Port, "db_driver", cfg.DBDriver, "storage", cfg.Storage.Backend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
