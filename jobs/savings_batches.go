package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/coopledger/coopledger/internal/jobs"
	"github.com/coopledger/coopledger/internal/savings"
	"github.com/coopledger/coopledger/internal/shared"
)

// SavingsBatcher exposes the monthly savings liquidations.
type SavingsBatcher interface {
	AccrueInterest(ctx context.Context, asOf time.Time) (savings.BatchResult, error)
	ChargeManagementFee(ctx context.Context, asOf time.Time) (savings.BatchResult, error)
}

// SavingsBatchJob handles both monthly savings tasks.
type SavingsBatchJob struct {
	Service SavingsBatcher
	runtime
}

// NewSavingsBatchJob wires the savings batch handlers.
func NewSavingsBatchJob(service SavingsBatcher, logger *slog.Logger, metrics *jobmetrics.Metrics) *SavingsBatchJob {
	return &SavingsBatchJob{Service: service, runtime: newRuntime(logger, metrics)}
}

// HandleInterest processes TaskSavingsInterest tasks.
func (j *SavingsBatchJob) HandleInterest(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("savings interest: handler not configured")
	}
	return j.run(ctx, t, TaskSavingsInterest, j.Service.AccrueInterest)
}

// HandleFee processes TaskSavingsFee tasks.
func (j *SavingsBatchJob) HandleFee(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("savings fee: handler not configured")
	}
	return j.run(ctx, t, TaskSavingsFee, j.Service.ChargeManagementFee)
}

func (j *SavingsBatchJob) run(ctx context.Context, t *asynq.Task, job string, batch func(context.Context, time.Time) (savings.BatchResult, error)) error {
	var payload DatedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf, err := payload.closedMonth(j.now())
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(job)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger(job).With(slog.String("as_of", asOf.Format(dateLayout)))
	result, err := batch(ctx, asOf)
	if errors.Is(err, shared.ErrConflict) {
		logger.Info("savings batch already running, skipping")
		return nil
	}
	if err != nil {
		resultErr = err
		logger.Error("savings batch failed", slog.Any("error", err))
		return resultErr
	}
	tracker.AddProcessed(result.Accounts)
	logger.Info("completed savings batch",
		slog.Int("accounts", result.Accounts),
		slog.Int("skipped", result.Skipped),
		slog.String("total", result.Total.StringFixed(2)),
	)
	return resultErr
}
