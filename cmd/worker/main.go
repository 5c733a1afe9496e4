package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/mealflow/mealflow/internal/app"
	"github.com/mealflow/mealflow/internal/audit"
	"github.com/mealflow/mealflow/internal/platform/db"
	"github.com/mealflow/mealflow/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo, logger)

	pruneJob := jobs.NewDecisionPruneJob(auditService, logger)
	pruneTask, err := jobs.NewDecisionPruneTask(cfg.DecisionRetention)
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDecisionPrune, Handler: pruneJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 2 * * *", Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
