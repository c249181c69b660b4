package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadwise-backend/config"
	"leadwise-backend/controller"
	"leadwise-backend/middleware"
	"leadwise-backend/migrations"
	"leadwise-backend/platform/db"
	"leadwise-backend/platform/logger"
	"leadwise-backend/platform/rediscache"
)

// Run wires configuration, storage and the HTTP server together and blocks
// until shutdown.
func Run() error {
	cfg := config.Load()

	log := logger.New(logger.Config{
		Service:     cfg.ServiceName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		AddSource:   cfg.LogAddSource,
		Color:       cfg.LogColor,
	})

	database, err := db.Open(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	log.Info("database connected")

	if cfg.EnableAutoMigration {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err := migrations.Run(migrateCtx, database, "migrations/sql")
		cancel()
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		log.Info("migrations applied")
	}

	redisClient, err := rediscache.Open(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		// The widget config cache is an optimization, not a dependency.
		log.Warn("redis unavailable, widget config caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Info("redis connected")
	}

	ctrl := controller.New(cfg, database, redisClient, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctrl.StartBackgroundWorkers(ctx)

	handler := middleware.WithCommonHeaders(
		middleware.WithRequestLogger(log)(
			middleware.WithRecovery(log)(
				mapRoutes(ctrl, cfg))),
		cfg.CORSAllowedOrigins)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
