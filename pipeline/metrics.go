package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidsafe_pipeline_runs_total",
		Help: "Finished pipeline runs by outcome",
	}, []string{"outcome"})
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vidsafe_pipeline_run_duration_seconds",
		Help:    "Wall time of a pipeline run",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidsafe_pipeline_active_runs",
		Help: "Pipeline runs currently holding a video",
	})
)

func outcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrInvalidState):
		return "rejected"
	default:
		return "failed"
	}
}

func observeRun(start time.Time, err error) {
	runsTotal.WithLabelValues(outcome(err)).Inc()
	runDuration.Observe(time.Since(start).Seconds())
}
