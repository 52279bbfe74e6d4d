package router

import (
	"github.com/casamarket/checkout/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the router-owned payment collectors. They are instance
// scoped: tests construct a fresh Metrics on a private registry instead of
// mutating package state.
type Metrics struct {
	attempts *prometheus.CounterVec
	retries  *prometheus.CounterVec
	healthy  *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "payments",
			Name:      "attempts_total",
			Help:      "Payment attempts partitioned by gateway and terminal status.",
		}, []string{"gateway", "status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "payments",
			Name:      "gateway_retries_total",
			Help:      "Create calls retried after a network-classified failure.",
		}, []string{"gateway"}),
		healthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: "payments",
			Name:      "gateway_healthy",
			Help:      "1 when the last health probe of the gateway succeeded.",
		}, []string{"gateway"}),
	}
	reg.MustRegister(m.attempts, m.retries, m.healthy)
	return m
}

func (m *Metrics) ObserveAttempt(gw types.PaymentGateway, status types.PaymentStatus) {
	m.attempts.WithLabelValues(string(gw), string(status)).Inc()
}

func (m *Metrics) ObserveRetry(gw types.PaymentGateway) {
	m.retries.WithLabelValues(string(gw)).Inc()
}

func (m *Metrics) ObserveHealth(gw types.PaymentGateway, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.healthy.WithLabelValues(string(gw)).Set(v)
}

// Reset clears all series, used between test cases.
func (m *Metrics) Reset() {
	m.attempts.Reset()
	m.retries.Reset()
	m.healthy.Reset()
}
