package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the transaction engine. Emission is
// best-effort and never blocks unit processing.
type Metrics struct {
	units         *prometheus.CounterVec
	duplicates    prometheus.Counter
	stageDuration *prometheus.HistogramVec
	processTime   prometheus.Histogram
}

// New creates and registers all engine metrics.
func New() *Metrics {
	return &Metrics{
		units: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_units_total",
			Help: "Transaction units by terminal outcome",
		}, []string{"outcome"}),
		duplicates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritas_duplicate_events_total",
			Help: "Inbound events suppressed by the idempotency guard",
		}),
		stageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veritas_stage_duration_seconds",
			Help:    "Time spent per processing stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		processTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veritas_process_duration_seconds",
			Help:    "End to end Process latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncUnits(outcome string) { m.units.WithLabelValues(outcome).Inc() }
func (m *Metrics) IncDuplicates()          { m.duplicates.Inc() }

func (m *Metrics) ObserveStage(stage string, seconds float64) {
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) ObserveProcess(seconds float64) { m.processTime.Observe(seconds) }
