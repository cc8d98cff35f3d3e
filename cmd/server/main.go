package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agjmills/drive/internal/account"
	"github.com/agjmills/drive/internal/auth"
	"github.com/agjmills/drive/internal/config"
	"github.com/agjmills/drive/internal/database"
	"github.com/agjmills/drive/internal/files"
	"github.com/agjmills/drive/internal/logger"
	"github.com/agjmills/drive/internal/mail"
	internalMiddleware "github.com/agjmills/drive/internal/middleware"
	"github.com/agjmills/drive/internal/routes"
	"github.com/agjmills/drive/internal/storage"
	"github.com/agjmills/drive/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	logger.Init(cfg.Env)

	logger.Info("configuration loaded",
		"max_upload_mb", float64(cfg.MaxUploadSize)/(1024*1024),
		"storage_backend", cfg.StorageBackend,
		"db_type", cfg.DBType,
		"registration_otp", cfg.RegistrationOTP,
		"env", cfg.Env,
	)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	provider, err := storage.NewProviderFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	sessionManager, err := auth.NewSessionManager(db, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}

	users := store.NewGormStore(db)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer)
	sender := mail.NewSenderFromConfig(cfg)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(internalMiddleware.LoggingMiddleware)
	r.Use(internalMiddleware.RecoverMiddleware)
	r.Use(internalMiddleware.SecurityHeaders(cfg.IsProduction()))

	versionInfo := fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	routes.Setup(r, routes.Dependencies{
		Config:   cfg,
		Users:    users,
		Accounts: account.NewService(cfg, users, sessionManager, issuer, sender),
		Files:    files.NewService(users, provider, cfg.StorageFolder),
		Storage:  provider,
		Sessions: sessionManager,
		Issuer:   issuer,
		Version:  versionInfo,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting drive server",
			"address", addr,
			"environment", cfg.Env,
			"version", versionInfo,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Info("server stopped")
}
