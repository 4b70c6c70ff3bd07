package application

import (
	"errors"
	"github.com/prometheus/client_golang/prometheus"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/adapter"
)

const metricsNamespace = "metering"

// Metrics holds the Prometheus collectors updated by the billing service.
type Metrics struct {
	// GatewayRequests counts gateway calls by operation and result.
	GatewayRequests *prometheus.CounterVec

	// BusinessFailures counts expected failures returned to callers as structured values.
	BusinessFailures *prometheus.CounterVec

	// StaleCustomers counts stored customer ids that had to be replaced, by reason.
	StaleCustomers *prometheus.CounterVec

	// CustomersCreated counts customers created in the gateway.
	CustomersCreated prometheus.Counter
}

// NewMetrics creates the billing service metrics and registers them in reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "gateway_requests_total",
				Help:      "Total number of payment gateway requests",
			},
			[]string{"operation", "result"},
		),
		BusinessFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "business_failures_total",
				Help:      "Total number of expected billing failures returned to callers",
			},
			[]string{"operation", "reason"},
		),
		StaleCustomers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "stale_customers_total",
				Help:      "Total number of stored customer ids replaced by a new customer",
			},
			[]string{"reason"},
		),
		CustomersCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "customers_created_total",
				Help:      "Total number of customers created in the payment gateway",
			},
		),
	}
	reg.MustRegister(m.GatewayRequests, m.BusinessFailures, m.StaleCustomers, m.CustomersCreated)
	return m
}

// gateway records the result of a gateway call and returns err unchanged.
func (m *Metrics) gateway(operation string, err error) error {
	m.GatewayRequests.WithLabelValues(operation, resultLabel(err)).Inc()
	return err
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, adapter.ErrCustomerNotFound) || errors.Is(err, adapter.ErrCustomerDeleted) {
		return "stale"
	}
	var gwErr *adapter.Error
	if errors.As(err, &gwErr) {
		return "gateway_error"
	}
	return "error"
}
