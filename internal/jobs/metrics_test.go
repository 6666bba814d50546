package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	_ = m.Track("mora_accrual").End(nil)
	err := m.Track("mora_accrual").End(errors.New("boom"))

	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1.0, counterValue(t, reg, "coopledger_jobs_total", map[string]string{"job": "mora_accrual", "status": "success"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "coopledger_jobs_total", map[string]string{"job": "mora_accrual", "status": "failure"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "coopledger_jobs_failures_total", map[string]string{"job": "mora_accrual"}))
}

func TestAddAnomaliesIgnoresNonPositive(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.AddAnomalies("critical", "imbalanced_entry", 0)
	m.AddAnomalies("critical", "imbalanced_entry", 2)
	m.AddAnomalies("warning", "", 1)

	assert.Equal(t, 2.0, counterValue(t, reg, "coopledger_ledger_anomalies_total", map[string]string{"severity": "critical", "check": "imbalanced_entry"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "coopledger_ledger_anomalies_total", map[string]string{"severity": "warning", "check": "unknown"}))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	tracker := m.Track("noop")
	tracker.AddProcessed(3)
	assert.NoError(t, tracker.End(nil))
	m.AddAnomalies("critical", "x", 1)
}
