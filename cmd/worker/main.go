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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coopledger/coopledger/internal/app"
	jobmetrics "github.com/coopledger/coopledger/internal/jobs"
	"github.com/coopledger/coopledger/internal/platform/cache"
	"github.com/coopledger/coopledger/internal/platform/db"
	"github.com/coopledger/coopledger/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("redis unavailable, running degraded", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	core, err := app.NewCore(cfg, pool, redisClient, logger)
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	moraJob := jobs.NewMoraAccrualJob(core.Credit, logger, metrics)
	savingsJob := jobs.NewSavingsBatchJob(core.Savings, logger, metrics)
	integrityJob := jobs.NewLedgerIntegrityJob(core.Journals, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(core.Idempotency, cfg.IdempotencyRetention, logger, metrics)

	moraTask, err := jobs.NewMoraAccrualTask(time.Time{})
	if err != nil {
		logger.Error("build mora task", slog.Any("error", err))
		os.Exit(1)
	}
	interestTask, err := jobs.NewSavingsInterestTask(time.Time{})
	if err != nil {
		logger.Error("build interest task", slog.Any("error", err))
		os.Exit(1)
	}
	feeTask, err := jobs.NewSavingsFeeTask(time.Time{})
	if err != nil {
		logger.Error("build fee task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewLedgerIntegrityTask()
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask()
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	retry := []asynq.Option{asynq.MaxRetry(3)}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.AsynqRedis(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskMoraAccrual, Handler: moraJob.Handle},
			{Type: jobs.TaskSavingsInterest, Handler: savingsJob.HandleInterest},
			{Type: jobs.TaskSavingsFee, Handler: savingsJob.HandleFee},
			{Type: jobs.TaskLedgerIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.MoraCron, Task: moraTask, Options: retry},
			{Spec: cfg.SavingsInterestCron, Task: interestTask, Options: retry},
			{Spec: cfg.SavingsFeeCron, Task: feeTask, Options: retry},
			{Spec: cfg.LedgerIntegrityCron, Task: integrityTask, Options: retry},
			{Spec: cfg.IdempotencyCleanupCron, Task: cleanupTask, Options: retry},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
