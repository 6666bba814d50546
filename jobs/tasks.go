package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskMoraAccrual marks overdue installments and recomputes penalties.
	TaskMoraAccrual = "credit:mora_accrual"
	// TaskSavingsInterest liquidates the month's savings interest.
	TaskSavingsInterest = "savings:interest"
	// TaskSavingsFee charges the monthly management fee.
	TaskSavingsFee = "savings:fee"
	// TaskLedgerIntegrity scans posted entries for partida doble violations.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskIdempotencyCleanup purges expired payment idempotency keys.
	TaskIdempotencyCleanup = "platform:idempotency_cleanup"
)

const dateLayout = "2006-01-02"

// DatedPayload carries the business date a batch runs for. Cron registrations
// leave AsOf empty and the handler derives the date from processing time.
type DatedPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

func (p DatedPayload) date(now time.Time) (time.Time, error) {
	if p.AsOf == "" {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(dateLayout, p.AsOf)
}

// closedMonth resolves an empty AsOf to the last day of the month before now,
// so a run on the 1st liquidates the month that just ended.
func (p DatedPayload) closedMonth(now time.Time) (time.Time, error) {
	if p.AsOf == "" {
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first.AddDate(0, 0, -1), nil
	}
	return time.Parse(dateLayout, p.AsOf)
}

func newDatedTask(taskType string, asOf time.Time) (*asynq.Task, error) {
	payload := DatedPayload{}
	if !asOf.IsZero() {
		payload.AsOf = asOf.Format(dateLayout)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

// NewMoraAccrualTask builds a mora accrual task. A zero asOf defers the date
// to processing time.
func NewMoraAccrualTask(asOf time.Time) (*asynq.Task, error) {
	return newDatedTask(TaskMoraAccrual, asOf)
}

// NewSavingsInterestTask builds a monthly interest liquidation task.
func NewSavingsInterestTask(asOf time.Time) (*asynq.Task, error) {
	return newDatedTask(TaskSavingsInterest, asOf)
}

// NewSavingsFeeTask builds a monthly management fee task.
func NewSavingsFeeTask(asOf time.Time) (*asynq.Task, error) {
	return newDatedTask(TaskSavingsFee, asOf)
}

// NewLedgerIntegrityTask builds a ledger integrity scan task.
func NewLedgerIntegrityTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskLedgerIntegrity, []byte("{}"), asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask builds a key purge task.
func NewIdempotencyCleanupTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskIdempotencyCleanup, []byte("{}"), asynq.Queue(QueueDefault)), nil
}

// NewTask builds a task of one of the known types, used by manual triggers.
func NewTask(taskType string, asOf time.Time) (*asynq.Task, error) {
	switch taskType {
	case TaskMoraAccrual, TaskSavingsInterest, TaskSavingsFee:
		return newDatedTask(taskType, asOf)
	case TaskLedgerIntegrity:
		return NewLedgerIntegrityTask()
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask()
	default:
		return nil, fmt.Errorf("jobs: unknown task type %q", taskType)
	}
}
