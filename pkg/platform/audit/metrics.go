package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit pipeline.
type Metrics struct {
	appended       *prometheus.CounterVec
	appendFailures prometheus.Counter
	scrubbed       prometheus.Counter
	chainBroken    prometheus.Counter
	mirrorLag      prometheus.Gauge
}

// NewMetrics creates and registers all audit pipeline metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		appended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_audit_events_appended_total",
			Help: "Total audit events appended, by category",
		}, []string{"category"}),
		appendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritas_audit_append_failures_total",
			Help: "Audit events diverted to the fallback channel for reconciliation",
		}),
		scrubbed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritas_audit_payloads_scrubbed_total",
			Help: "Audit payloads that contained denylisted sensitive fields",
		}),
		chainBroken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritas_audit_chain_integrity_violations_total",
			Help: "Chain verification runs that found a broken link",
		}),
		mirrorLag: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "veritas_audit_mirror_outbox_pending",
			Help: "Outbox entries not yet mirrored to the stream sink",
		}),
	}
}

func (m *Metrics) IncAppended(category string) { m.appended.WithLabelValues(category).Inc() }
func (m *Metrics) IncAppendFailures()          { m.appendFailures.Inc() }
func (m *Metrics) IncScrubbed()                { m.scrubbed.Inc() }
func (m *Metrics) IncChainBroken()             { m.chainBroken.Inc() }
func (m *Metrics) SetMirrorPending(n float64)  { m.mirrorLag.Set(n) }
