package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantfold/replaycore/pkg/types"
)

// runnerMetrics instruments the run lifecycle. All methods are safe on a
// nil receiver so a runner without a registry pays nothing.
type runnerMetrics struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	duration prometheus.Histogram
	active   prometheus.Gauge
}

func newRunnerMetrics(reg prometheus.Registerer) *runnerMetrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &runnerMetrics{
		started: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "replaycore",
			Subsystem: "runner",
			Name:      "runs_started_total",
			Help:      "Replay runs accepted for execution.",
		}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replaycore",
			Subsystem: "runner",
			Name:      "runs_finished_total",
			Help:      "Replay runs finished, by terminal status.",
		}, []string{"status"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "replaycore",
			Subsystem: "runner",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of finished replay runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "replaycore",
			Subsystem: "runner",
			Name:      "active_runs",
			Help:      "Replay runs currently executing.",
		}),
	}
}

func (m *runnerMetrics) runStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
	m.active.Inc()
}

func (m *runnerMetrics) runFinished(status types.RunStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.finished.WithLabelValues(string(status)).Inc()
	m.duration.Observe(elapsed.Seconds())
}
