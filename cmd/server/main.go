// cmd/server is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/special-lecture/registration/internal/app"
	"github.com/special-lecture/registration/internal/config"
	"github.com/special-lecture/registration/internal/database"
	"github.com/special-lecture/registration/internal/handler"
	"github.com/special-lecture/registration/internal/repository"
	"github.com/special-lecture/registration/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.Environment)
	defer func() { _ = logger.Sync() }()

	// The store is assembled explicitly here rather than through any kind of
	// runtime container: Postgres in normal operation, in-memory when running
	// without a database.
	var (
		lectureStore      repository.LectureStore
		registrationStore repository.RegistrationStore
	)
	if cfg.Store == "memory" {
		mem := repository.NewMemoryStore()
		lectureStore = mem
		registrationStore = mem
		logger.Warn("using in-memory store, state will not survive a restart")
	} else {
		pool, err := database.NewPool(ctx, cfg.DB)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()

		migrator, err := database.NewMigrator(pool, "migrations")
		if err != nil {
			logger.Fatal("migrator", zap.Error(err))
		}
		if err := migrator.Run(ctx); err != nil {
			logger.Fatal("migrations", zap.Error(err))
		}
		_ = migrator.Close()
		logger.Info("connected to postgres, migrations applied")

		lectureStore = repository.NewLectureRepository(pool)
		registrationStore = repository.NewRegistrationRepository(pool, cfg.LockTimeout)
	}

	svc := service.NewLectureService(lectureStore, registrationStore, logger)
	h := handler.NewLectureHandler(svc)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.AccessLog(logger))
	r.Group(h.Routes)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
