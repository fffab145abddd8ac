package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"main/internal/schema"
)

// Exporter republishes decisions to Prometheus. It hangs off the decision
// observer queue, never the evaluation path.
type Exporter struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	latency   prometheus.Histogram
	drops     prometheus.Counter
}

// NewExporter builds an exporter with its own registry.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "risk_gateway_decisions_total",
				Help: "Decisions returned by the risk gateway, by reason code",
			},
			[]string{"reason"},
		),
		latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "risk_gateway_eval_seconds",
				Help:    "Risk evaluation latency",
				Buckets: prometheus.ExponentialBuckets(1e-7, 4, 12),
			},
		),
		drops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "risk_gateway_observer_drops_total",
				Help: "Decision events dropped by the observer queue",
			},
		),
	}
	e.registry.MustRegister(e.decisions)
	e.registry.MustRegister(e.latency)
	e.registry.MustRegister(e.drops)
	return e
}

// RecordDecision counts one decision.
func (e *Exporter) RecordDecision(reason schema.RiskReason, d time.Duration) {
	if e == nil {
		return
	}
	e.decisions.WithLabelValues(reason.String()).Inc()
	e.latency.Observe(d.Seconds())
}

// RecordDrop counts a dropped observer event.
func (e *Exporter) RecordDrop() {
	if e == nil {
		return
	}
	e.drops.Inc()
}

// Handler serves the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
