package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/wardenbot/warden/internal/app"
	jobmetrics "github.com/wardenbot/warden/internal/jobs"
	"github.com/wardenbot/warden/internal/platform/db"
	"github.com/wardenbot/warden/internal/store"
	"github.com/wardenbot/warden/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	fallback, err := store.NewFileBackend(cfg.DataDir)
	if err != nil {
		logger.Error("init file backend", slog.Any("error", err))
		os.Exit(1)
	}

	var primary store.Backend
	if cfg.PGDSN != "" {
		pool, perr := db.New(ctx, cfg.PGDSN)
		if perr != nil {
			logger.Warn("postgres unavailable, sweep will only validate fallback", slog.Any("error", perr))
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

	// The sweep reads through the dual store directly, never the cache,
	// so every visit can trigger a migration write.
	dual := store.NewDual(primary, fallback, cfg.StoreTimeout, logger, nil)
	backfillJob := jobs.NewPolicyBackfillJob(fallback, dual, logger, jobmetrics.NewMetrics(nil))

	backfillTask, err := jobs.NewPolicyBackfillTask(jobs.PolicyBackfillPayload{})
	if err != nil {
		logger.Error("build backfill task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPolicyBackfill, Handler: backfillJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.BackfillCron, Task: backfillTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
