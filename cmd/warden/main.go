package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wardenbot/warden/internal/app"
	"github.com/wardenbot/warden/internal/observability"
	"github.com/wardenbot/warden/internal/platform/cache"
	"github.com/wardenbot/warden/internal/platform/db"
	"github.com/wardenbot/warden/internal/store"
	"github.com/wardenbot/warden/internal/tenant"
	"github.com/wardenbot/warden/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	fallback, err := store.NewFileBackend(cfg.DataDir)
	if err != nil {
		logger.Error("init file backend", slog.Any("error", err))
		os.Exit(1)
	}

	// The file fallback keeps the service usable when Postgres is
	// unreachable at boot, so a failed connect degrades instead of dying.
	var primary store.Backend
	if cfg.PGDSN != "" {
		pool, perr := db.New(ctx, cfg.PGDSN)
		if perr != nil {
			logger.Warn("postgres unavailable, running on file fallback", slog.Any("error", perr))
		} else {
			defer pool.Close()
			pg := store.NewPGBackend(pool)
			if serr := pg.EnsureSchema(ctx); serr != nil {
				logger.Error("ensure schema", slog.Any("error", serr))
				os.Exit(1)
			}
			primary = pg
		}
	}

	dual := store.NewDual(primary, fallback, cfg.StoreTimeout, logger, metrics)

	var loader store.Loader = dual
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, serving uncached", slog.Any("error", err))
	} else {
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.Warn("redis close", slog.Any("error", cerr))
			}
		}()
		loader = store.NewCached(dual, redisClient, cfg.CacheTTL, logger)
	}

	service := tenant.NewService(loader, logger, metrics)
	handler := tenant.NewHandler(logger, service)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		TenantHandler: handler,
		JobsHandler:   jobsHandler,
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
