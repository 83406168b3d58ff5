package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the run counters. A run-once process exposes them through a
// node-exporter textfile rather than an HTTP endpoint.
type Metrics struct {
	Runs            *prometheus.CounterVec
	EntriesSeen     prometheus.Counter
	EntriesDropped  *prometheus.CounterVec
	Persisted       prometheus.Counter
	PersistFailures prometheus.Counter
	Alerts          prometheus.Counter
	AlertFailures   prometheus.Counter
	RenderDuration  prometheus.Histogram
	LastSuccess     prometheus.Gauge
}

// NewMetrics registers the run metrics on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "stockwatch"
	}
	f := promauto.With(reg)

	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by terminal outcome",
		}, []string{"outcome"}),
		EntriesSeen: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "entries_total",
			Help:      "Stock entries extracted from the page",
		}),
		EntriesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "entries_dropped_total",
			Help:      "Entries dropped before persistence, by reason",
		}, []string{"reason"}),
		Persisted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "sightings_persisted_total",
			Help:      "Sightings appended to the history store",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "append_failures_total",
			Help:      "Failed history appends",
		}),
		Alerts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "alerts_sent_total",
			Help:      "Alerts delivered to the chat channel",
		}),
		AlertFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "alert_failures_total",
			Help:      "Alerts that failed to deliver",
		}),
		RenderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "duration_seconds",
			Help:      "Time to render the stock page",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120},
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last succeeded run",
		}),
	}
}
