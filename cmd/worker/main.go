package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/saheli-shg/saheli/internal/app"
	"github.com/saheli-shg/saheli/internal/platform/cache"
	"github.com/saheli-shg/saheli/internal/platform/db"
	"github.com/saheli-shg/saheli/internal/reports"
	"github.com/saheli-shg/saheli/jobs"
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	reportRepo := reports.NewRepository(pool)
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := reports.NewService(reportRepo, reportCache, logger)

	snapshotJob := &jobs.ReportSnapshotJob{Service: reportService}
	remindersJob := jobs.NewContributionRemindersJob(
		jobs.NewRepository(pool),
		jobs.LogNotifier{Logger: logger},
		logger,
	)

	worker := jobs.NewWorker(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, logger, 0)
	worker.Handle(jobs.TaskReportSnapshot, snapshotJob.Handle)
	worker.Handle(jobs.TaskContributionReminders, remindersJob.Handle)
	if err := worker.Schedule(cfg.ReminderCron, jobs.NewContributionRemindersTask(), asynq.MaxRetry(3)); err != nil {
		logger.Error("schedule reminders", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker", slog.Any("error", err))
		os.Exit(1)
	}
}
