package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/coopledger/coopledger/internal/jobs"
	"github.com/coopledger/coopledger/internal/ledger/journals"
)

// AnomalyFinder lists stored entries that break partida doble.
type AnomalyFinder interface {
	FindAnomalies(ctx context.Context) ([]journals.Anomaly, error)
}

// LedgerIntegrityJob reports journal anomalies through logs and metrics.
type LedgerIntegrityJob struct {
	Journals AnomalyFinder
	runtime
}

// NewLedgerIntegrityJob wires the integrity scan handler.
func NewLedgerIntegrityJob(finder AnomalyFinder, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Journals: finder, runtime: newRuntime(logger, metrics)}
}

// Severity grades an integrity check for alerting.
func Severity(check string) string {
	switch check {
	case journals.CheckImbalanced, journals.CheckMovementSides:
		return "critical"
	default:
		return "warning"
	}
}

// Handle processes TaskLedgerIntegrity tasks.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Journals == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	start := j.now()
	tracker := j.metrics().Track(TaskLedgerIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger(TaskLedgerIntegrity)
	anomalies, err := j.Journals.FindAnomalies(ctx)
	if err != nil {
		resultErr = err
		logger.Error("integrity scan failed", slog.Any("error", err))
		return resultErr
	}
	for _, a := range anomalies {
		severity := Severity(a.Check)
		logger.Warn("ledger anomaly detected",
			slog.Int64("entry_id", a.EntryID),
			slog.String("number", a.Number),
			slog.String("check", a.Check),
			slog.String("severity", severity),
			slog.String("debit", a.Debit.StringFixed(2)),
			slog.String("credit", a.Credit.StringFixed(2)),
		)
		j.metrics().AddAnomalies(severity, a.Check, 1)
	}
	logger.Info("completed integrity scan",
		slog.Int("anomalies", len(anomalies)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}
