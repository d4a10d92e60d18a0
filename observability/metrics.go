package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics records booking-gateway request activity.
type GatewayMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	bookings *prometheus.CounterVec
}

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *GatewayMetrics
)

// Gateway returns the lazily-initialised gateway metrics registry.
func Gateway() *GatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tripvault",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by route and outcome.",
			}, []string{"route", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tripvault",
				Subsystem: "gateway",
				Name:      "request_seconds",
				Help:      "Request latency in seconds segmented by route.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tripvault",
				Subsystem: "booking",
				Name:      "transitions_total",
				Help:      "Booking state transitions segmented by operation.",
			}, []string{"operation"}),
		}
		prometheus.MustRegister(gatewayRegistry.requests, gatewayRegistry.latency, gatewayRegistry.bookings)
	})
	return gatewayRegistry
}

// ObserveRequest records one handled request.
func (m *GatewayMetrics) ObserveRequest(route, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	route = normalizeLabel(route)
	m.requests.WithLabelValues(route, normalizeLabel(outcome)).Inc()
	m.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// CountTransition records one successful booking operation.
func (m *GatewayMetrics) CountTransition(operation string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(normalizeLabel(operation)).Inc()
}

func normalizeLabel(v string) string {
	trimmed := strings.TrimSpace(strings.ToLower(v))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
