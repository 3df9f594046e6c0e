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

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/saheli-shg/saheli/internal/app"
	"github.com/saheli-shg/saheli/internal/groups"
	groupshttp "github.com/saheli-shg/saheli/internal/groups/http"
	"github.com/saheli-shg/saheli/internal/ledger"
	ledgerhttp "github.com/saheli-shg/saheli/internal/ledger/http"
	"github.com/saheli-shg/saheli/internal/loans"
	loanshttp "github.com/saheli-shg/saheli/internal/loans/http"
	"github.com/saheli-shg/saheli/internal/platform/cache"
	"github.com/saheli-shg/saheli/internal/platform/db"
	"github.com/saheli-shg/saheli/internal/reports"
	reportshttp "github.com/saheli-shg/saheli/internal/reports/http"
	"github.com/saheli-shg/saheli/internal/shared"
	"github.com/saheli-shg/saheli/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, continuing without close lock and report cache", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	keys := shared.NewAPIKeyStore(pool)

	groupRepo := groups.NewRepository(pool)
	groupService := groups.NewService(groupRepo)
	groupHandler := groupshttp.NewHandler(logger, groupService)

	loanRepo := loans.NewRepository(pool)
	loanService := loans.NewService(loanRepo)
	loanHandler := loanshttp.NewHandler(logger, loanService)

	reportRepo := reports.NewRepository(pool)
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := reports.NewService(reportRepo, reportCache, logger)
	reportHandler := reportshttp.NewHandler(logger, reportService)

	var jobClient *jobs.Client
	if redisClient != nil {
		jobClient = jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("asynq close", slog.Any("error", err))
			}
		}()
	}

	locker := shared.NewCloseLocker(redisClient, cfg.CloseLockTTL)
	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, locker, auditLogger, logger)
	ledgerHandler := ledgerhttp.NewHandler(logger, &app.LedgerCloseNotifier{
		Inner:   ledgerService,
		Jobs:    jobClient,
		Reports: reportService,
		Logger:  logger,
	})

	if err := reportCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	router := app.NewRouter(app.RouterParams{
		Middleware: app.MiddlewareConfig{
			Logger: logger,
			Config: cfg,
			Keys:   keys,
		},
		GroupHandler:  groupHandler,
		LoanHandler:   loanHandler,
		LedgerHandler: ledgerHandler,
		ReportHandler: reportHandler,
		HealthCheckers: []func() error{
			func() error { return pool.Ping(context.Background()) },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}
