// Package metrics owns the server's Prometheus collectors. Collectors are
// registered on an injected registry so tests and multiple servers in one
// process do not collide.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestDuration *prometheus.HistogramVec
	authEvents          *prometheus.CounterVec
	webhookDeliveries   *prometheus.CounterVec
	payments            *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paygate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		authEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paygate_auth_events_total",
				Help: "Authentication decisions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		webhookDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paygate_webhook_deliveries_total",
				Help: "Outbound webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
		payments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paygate_payments_total",
				Help: "Processed checkout payments by transaction status",
			},
			[]string{"status"},
		),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// AuthEvent counts one authentication decision, e.g. ("hmac", "replay").
func (m *Metrics) AuthEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) WebhookDelivery(outcome string) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Payment(status string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status).Inc()
}
