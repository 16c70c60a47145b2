package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	tokenExchanges  *prometheus.CounterVec
	callbacks       *prometheus.CounterVec
	paymentStatus   *prometheus.CounterVec
	refundStatus    *prometheus.CounterVec
	reconciliation  *prometheus.CounterVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mpesa",
			Name:      "gateway_requests_total",
			Help:      "Gateway requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mpesa",
			Name:      "gateway_request_duration_seconds",
			Help:      "Gateway request latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		tokenExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mpesa",
			Name:      "token_exchanges_total",
			Help:      "OAuth credential exchanges by outcome.",
		}, []string{"outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mpesa",
			Name:      "callbacks_total",
			Help:      "Inbound gateway callbacks by kind and outcome.",
		}, []string{"kind", "outcome"}),
		paymentStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mpesa",
			Name:      "payment_transitions_total",
			Help:      "Payment state transitions by resulting status.",
		}, []string{"status"}),
		refundStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mpesa",
			Name:      "refund_transitions_total",
			Help:      "Refund state transitions by resulting status.",
		}, []string{"status"}),
		reconciliation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mpesa",
			Name:      "reconciliation_results_total",
			Help:      "Reconciliation outcomes (matched, discrepant, error).",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.gatewayRequests,
		m.gatewayLatency,
		m.tokenExchanges,
		m.callbacks,
		m.paymentStatus,
		m.refundStatus,
		m.reconciliation,
	)
	return m
}

func (m *Metrics) ObserveGatewayRequest(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(operation, outcome).Inc()
	m.gatewayLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) TokenExchange(outcome string) {
	if m == nil {
		return
	}
	m.tokenExchanges.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Callback(kind, outcome string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) PaymentTransition(status string) {
	if m == nil {
		return
	}
	m.paymentStatus.WithLabelValues(status).Inc()
}

func (m *Metrics) RefundTransition(status string) {
	if m == nil {
		return
	}
	m.refundStatus.WithLabelValues(status).Inc()
}

func (m *Metrics) ReconciliationResult(outcome string) {
	if m == nil {
		return
	}
	m.reconciliation.WithLabelValues(outcome).Inc()
}
