package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks the route gate's enforcement outcomes. Ban lookups fail open,
// so the failure counter is the only signal that enforcement is degraded.
type Metrics struct {
	gateDecisions           *prometheus.CounterVec
	banLookupFailures       prometheus.Counter
	sessionTeardownFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_gate_decisions_total",
			Help: "Route gate decisions by outcome.",
		}, []string{"decision"}),
		banLookupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_ban_lookup_failures_total",
			Help: "Ban status lookups that errored and fell open to not banned.",
		}),
		sessionTeardownFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_session_teardown_failures_total",
			Help: "Best-effort session invalidations that failed.",
		}),
	}

	reg.MustRegister(
		m.gateDecisions,
		m.banLookupFailures,
		m.sessionTeardownFailures,
	)

	return m
}

func (m *Metrics) RecordGateDecision(decision string) {
	m.gateDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) RecordBanLookupFailure() {
	m.banLookupFailures.Inc()
}

func (m *Metrics) RecordSessionTeardownFailure() {
	m.sessionTeardownFailures.Inc()
}

func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
