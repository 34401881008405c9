package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rememo/rememo/internal/config"
	"github.com/rememo/rememo/internal/review"
	"github.com/rememo/rememo/internal/scheduler"
	"github.com/rememo/rememo/internal/storage"
	syncpkg "github.com/rememo/rememo/internal/sync"
	"github.com/rememo/rememo/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("configuration failed", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Error("failed to open database", "dsn", cfg.DatabaseDSN, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database ready", "dsn", cfg.DatabaseDSN)

	registry := scheduler.NewRegistry()
	params := scheduler.DefaultFSRSParams()
	params.TargetRetention = cfg.TargetRetention
	registry.Register(scheduler.NewFSRS(params))

	store := storage.NewStore(db)
	recorder := review.NewRecorder(db, registry, logger)
	resolver := syncpkg.NewResolver(db, logger)

	housekeeper := storage.NewHousekeeper(db, logger, cfg.HousekeepingInterval)
	go housekeeper.Run(ctx)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: web.NewServer(store, recorder, resolver, logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	logger.Info("listening", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
