package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
// All recording methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	ordersCreated     *prometheus.CounterVec
	ordersReleased    prometheus.Counter
	webhookEvents     *prometheus.CounterVec
	gatewayAttempts   *prometheus.CounterVec
	notificationsSent *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers every collector under namespace
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_created_total",
			Help: "Order creation attempts by result.",
		}, []string{"result"}),
		ordersReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_released_total",
			Help: "Unpaid orders cancelled with their stock returned.",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "webhook_events_total",
			Help: "Payment webhook deliveries by event and outcome.",
		}, []string{"event", "outcome"}),
		gatewayAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "gateway_attempts_total",
			Help: "Payment gateway initialize attempts by result.",
		}, []string{"result"}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Customer notifications by kind and result.",
		}, []string{"kind", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ordersCreated,
		m.ordersReleased,
		m.webhookEvents,
		m.gatewayAttempts,
		m.notificationsSent,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OrderCreated(result string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(result).Inc()
}

func (m *Metrics) OrdersReleased(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ordersReleased.Add(float64(n))
}

func (m *Metrics) WebhookEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) GatewayAttempt(result string) {
	if m == nil {
		return
	}
	m.gatewayAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) Notification(kind, result string) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(kind, result).Inc()
}

// ObserveHTTP records one finished request. route must be a low-cardinality pattern.
func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}
