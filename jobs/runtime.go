package jobs

import (
	"log/slog"
	"time"

	jobmetrics "github.com/coopledger/coopledger/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// runtime carries the logger, metrics and clock every job handler shares.
type runtime struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

func newRuntime(logger *slog.Logger, metrics *jobmetrics.Metrics) runtime {
	return runtime{
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (r runtime) logger(job string) *slog.Logger {
	if r.Logger != nil {
		return r.Logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func (r runtime) metrics() *jobmetrics.Metrics {
	if r.Metrics != nil {
		return r.Metrics
	}
	return defaultJobMetrics
}

func (r runtime) now() time.Time {
	if r.clock != nil {
		return r.clock()
	}
	return time.Now().UTC()
}
