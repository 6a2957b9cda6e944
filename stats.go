package exporters

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Self metrics of the reporter.
type Stats struct {
	Cycles         prometheus.Counter
	PointsEmitted  prometheus.Counter
	EmitFailures   prometheus.Counter
	MetricFailures *prometheus.CounterVec
	Running        prometheus.Gauge
}

// Create stats and register them to reg if not nil.
func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timeline",
			Subsystem: "reporter",
			Name:      "cycles_total",
			Help:      "Number of reporting cycles run.",
		}),
		PointsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timeline",
			Subsystem: "reporter",
			Name:      "points_emitted_total",
			Help:      "Number of points successfully emitted.",
		}),
		EmitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timeline",
			Subsystem: "reporter",
			Name:      "emit_failures_total",
			Help:      "Number of batches dropped due to emit error.",
		}),
		MetricFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timeline",
			Subsystem: "reporter",
			Name:      "metric_failures_total",
			Help:      "Number of metrics skipped due to flatten error, by kind.",
		}, []string{"kind"}),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "timeline",
			Subsystem: "reporter",
			Name:      "running",
			Help:      "1 if the reporter is scheduled, 0 otherwise.",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.Cycles, s.PointsEmitted, s.EmitFailures, s.MetricFailures, s.Running)
	}
	return s
}

func (s *Stats) metricFailed(kind MetricType) {
	if kind == "" {
		kind = "unknown"
	}
	s.MetricFailures.WithLabelValues(string(kind)).Inc()
}
