package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/coopledger/coopledger/internal/credit"
	jobmetrics "github.com/coopledger/coopledger/internal/jobs"
	"github.com/coopledger/coopledger/internal/shared"
)

// MoraAccruer is the credit capability the mora job drives.
type MoraAccruer interface {
	AccrueMora(ctx context.Context, asOf time.Time) (credit.MoraResult, error)
}

// MoraAccrualJob runs the daily delinquency pass over active loans.
type MoraAccrualJob struct {
	Service MoraAccruer
	runtime
}

// NewMoraAccrualJob wires the mora accrual handler.
func NewMoraAccrualJob(service MoraAccruer, logger *slog.Logger, metrics *jobmetrics.Metrics) *MoraAccrualJob {
	return &MoraAccrualJob{Service: service, runtime: newRuntime(logger, metrics)}
}

// Handle processes TaskMoraAccrual tasks.
func (j *MoraAccrualJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("mora accrual: handler not configured")
	}
	var payload DatedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf, err := payload.date(j.now())
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskMoraAccrual)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger(TaskMoraAccrual).With(slog.String("as_of", asOf.Format(dateLayout)))
	result, err := j.Service.AccrueMora(ctx, asOf)
	if errors.Is(err, shared.ErrConflict) {
		logger.Info("mora accrual already running, skipping")
		return nil
	}
	if err != nil {
		resultErr = err
		logger.Error("mora accrual failed", slog.Any("error", err))
		return resultErr
	}
	tracker.AddProcessed(result.Installments)
	logger.Info("completed mora accrual",
		slog.Int("loans", result.Loans),
		slog.Int("installments", result.Installments),
		slog.String("total_penalty", result.TotalPenalty.StringFixed(2)),
	)
	return resultErr
}
