package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/credit"
	jobmetrics "github.com/coopledger/coopledger/internal/jobs"
	"github.com/coopledger/coopledger/internal/ledger/journals"
	"github.com/coopledger/coopledger/internal/platform/httpx"
	"github.com/coopledger/coopledger/internal/rbac"
	"github.com/coopledger/coopledger/internal/savings"
	"github.com/coopledger/coopledger/internal/shared"
)

var fixedNow = time.Date(2025, 3, 31, 22, 15, 0, 0, time.UTC)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	next:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

type stubMora struct {
	calls []time.Time
	err   error
}

func (s *stubMora) AccrueMora(_ context.Context, asOf time.Time) (credit.MoraResult, error) {
	s.calls = append(s.calls, asOf)
	return credit.MoraResult{AsOf: asOf, Loans: 2, Installments: 3, TotalPenalty: decimal.NewFromInt(1500)}, s.err
}

type stubSavings struct {
	interest []time.Time
	fees     []time.Time
	err      error
}

func (s *stubSavings) AccrueInterest(_ context.Context, asOf time.Time) (savings.BatchResult, error) {
	s.interest = append(s.interest, asOf)
	return savings.BatchResult{AsOf: asOf, Accounts: 4, Total: decimal.NewFromInt(8000)}, s.err
}

func (s *stubSavings) ChargeManagementFee(_ context.Context, asOf time.Time) (savings.BatchResult, error) {
	s.fees = append(s.fees, asOf)
	return savings.BatchResult{AsOf: asOf, Accounts: 1, Skipped: 2}, s.err
}

type stubFinder struct {
	anomalies []journals.Anomaly
	err       error
}

func (s stubFinder) FindAnomalies(context.Context) ([]journals.Anomaly, error) {
	return s.anomalies, s.err
}

func TestDatedTasksCarryTheirDate(t *testing.T) {
	task, err := NewMoraAccrualTask(time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, TaskMoraAccrual, task.Type())
	assert.JSONEq(t, `{"as_of":"2025-02-10"}`, string(task.Payload()))

	cron, err := NewSavingsInterestTask(time.Time{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(cron.Payload()))

	_, err = NewTask("inventory:revaluation", time.Time{})
	assert.Error(t, err)
}

func TestMoraJobUsesProcessingDateWhenPayloadIsEmpty(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := &stubMora{}
	job := NewMoraAccrualJob(svc, nil, jobmetrics.NewMetrics(reg))
	job.clock = func() time.Time { return fixedNow }

	task, err := NewMoraAccrualTask(time.Time{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, svc.calls, 1)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), svc.calls[0])
	assert.Equal(t, 1.0, counterValue(t, reg, "coopledger_jobs_total", map[string]string{"job": TaskMoraAccrual, "status": "success"}))
	assert.Equal(t, 3.0, counterValue(t, reg, "coopledger_job_processed_total", map[string]string{"job": TaskMoraAccrual}))
}

func TestMoraJobSkipsWhenAnotherRunHoldsTheLock(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := NewMoraAccrualJob(&stubMora{err: credit.ErrMoraInProgress}, nil, jobmetrics.NewMetrics(reg))

	task, err := NewMoraAccrualTask(fixedNow)
	require.NoError(t, err)
	assert.NoError(t, job.Handle(context.Background(), task))
	assert.Zero(t, counterValue(t, reg, "coopledger_jobs_failures_total", map[string]string{"job": TaskMoraAccrual}))
}

func TestMoraJobReportsFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := NewMoraAccrualJob(&stubMora{err: errors.New("db down")}, nil, jobmetrics.NewMetrics(reg))

	task, err := NewMoraAccrualTask(fixedNow)
	require.NoError(t, err)
	assert.EqualError(t, job.Handle(context.Background(), task), "db down")
	assert.Equal(t, 1.0, counterValue(t, reg, "coopledger_jobs_failures_total", map[string]string{"job": TaskMoraAccrual}))
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	job := NewMoraAccrualJob(&stubMora{}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), asynq.NewTask(TaskMoraAccrual, []byte(`{"as_of":"31/03/2025"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskMoraAccrual, []byte(`not json`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSavingsBatchJobRoutesTasks(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := &stubSavings{}
	job := NewSavingsBatchJob(svc, nil, jobmetrics.NewMetrics(reg))
	asOf := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	interest, err := NewSavingsInterestTask(asOf)
	require.NoError(t, err)
	fee, err := NewSavingsFeeTask(asOf)
	require.NoError(t, err)

	require.NoError(t, job.HandleInterest(context.Background(), interest))
	require.NoError(t, job.HandleFee(context.Background(), fee))

	assert.Equal(t, []time.Time{asOf}, svc.interest)
	assert.Equal(t, []time.Time{asOf}, svc.fees)
	assert.Equal(t, 4.0, counterValue(t, reg, "coopledger_job_processed_total", map[string]string{"job": TaskSavingsInterest}))
	assert.Equal(t, 1.0, counterValue(t, reg, "coopledger_job_processed_total", map[string]string{"job": TaskSavingsFee}))
}

func TestSavingsCronRunLiquidatesPreviousMonth(t *testing.T) {
	svc := &stubSavings{}
	job := NewSavingsBatchJob(svc, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return time.Date(2025, 3, 1, 0, 30, 0, 0, time.UTC) }

	task, err := NewSavingsInterestTask(time.Time{})
	require.NoError(t, err)
	require.NoError(t, job.HandleInterest(context.Background(), task))

	assert.Equal(t, []time.Time{time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)}, svc.interest)
}

func TestSavingsBatchJobSkipsConcurrentRun(t *testing.T) {
	job := NewSavingsBatchJob(&stubSavings{err: savings.ErrBatchInProgress}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewSavingsInterestTask(fixedNow)
	require.NoError(t, err)
	assert.NoError(t, job.HandleInterest(context.Background(), task))
}

func TestLedgerIntegrityCountsAnomaliesBySeverity(t *testing.T) {
	reg := prometheus.NewRegistry()
	finder := stubFinder{anomalies: []journals.Anomaly{
		{EntryID: 1, Number: "AS-202501-000001", Check: journals.CheckImbalanced},
		{EntryID: 2, Number: "AS-202501-000002", Check: journals.CheckImbalanced},
		{EntryID: 3, Number: "AS-202501-000003", Check: journals.CheckTotalsMismatch},
	}}
	job := NewLedgerIntegrityJob(finder, nil, jobmetrics.NewMetrics(reg))

	task, err := NewLedgerIntegrityTask()
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, 2.0, counterValue(t, reg, "coopledger_ledger_anomalies_total", map[string]string{"severity": "critical", "check": journals.CheckImbalanced}))
	assert.Equal(t, 1.0, counterValue(t, reg, "coopledger_ledger_anomalies_total", map[string]string{"severity": "warning", "check": journals.CheckTotalsMismatch}))
}

func TestLedgerIntegrityFailure(t *testing.T) {
	job := NewLedgerIntegrityJob(stubFinder{err: errors.New("timeout")}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewLedgerIntegrityTask()
	require.NoError(t, err)
	assert.Error(t, job.Handle(context.Background(), task))
}

func TestNilJobsReportMisconfiguration(t *testing.T) {
	var mora *MoraAccrualJob
	assert.Error(t, mora.Handle(context.Background(), asynq.NewTask(TaskMoraAccrual, nil)))
	assert.Error(t, (&SavingsBatchJob{}).HandleFee(context.Background(), asynq.NewTask(TaskSavingsFee, nil)))
	assert.Error(t, (&LedgerIntegrityJob{}).Handle(context.Background(), nil))
}

type stubEnqueuer struct {
	taskType string
	asOf     time.Time
}

func (s *stubEnqueuer) Enqueue(_ context.Context, taskType string, asOf time.Time) (string, error) {
	s.taskType, s.asOf = taskType, asOf
	return "task-1", nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsQueueDepth(t *testing.T) {
	h := NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Active: 1}}, nil, httpx.NewValidator(), rbac.Middleware{}, nil)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":4,"active":1,"failed":0}`, rec.Body.String())

	down := NewHandler(stubInspector{err: errors.New("refused")}, nil, httpx.NewValidator(), rbac.Middleware{}, discardLogger())
	assert.Equal(t, http.StatusServiceUnavailable, serve(down, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestRunEnqueuesKnownTasks(t *testing.T) {
	enq := &stubEnqueuer{}
	h := NewHandler(nil, enq, httpx.NewValidator(), rbac.Middleware{}, discardLogger())
	runner := shared.Actor{ID: 9, Permissions: []string{shared.PermJobsRun}}

	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"type":"savings:interest","as_of":"2025-01-31"}`))
	req = req.WithContext(shared.ContextWithActor(req.Context(), runner))
	rec := serve(h, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, TaskSavingsInterest, enq.taskType)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), enq.asOf)

	bad := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"type":"mail:send"}`))
	bad = bad.WithContext(shared.ContextWithActor(bad.Context(), runner))
	assert.Equal(t, http.StatusBadRequest, serve(h, bad).Code)

	anonymous := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"type":"ledger:integrity"}`))
	assert.Equal(t, http.StatusUnauthorized, serve(h, anonymous).Code)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubCleaner struct {
	retention time.Duration
}

func (s *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.retention = olderThan
	return 5, nil
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := &stubCleaner{}
	job := NewIdempotencyCleanupJob(store, 0, nil, jobmetrics.NewMetrics(reg))

	task, err := NewTask(TaskIdempotencyCleanup, time.Time{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, 72*time.Hour, store.retention)
	assert.Equal(t, 5.0, counterValue(t, reg, "coopledger_job_processed_total", map[string]string{"job": TaskIdempotencyCleanup}))
}
