package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"routeeta/internal/model"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, route pattern, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// RateLimited counts requests rejected by the per-client limiter
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected by the rate limiter."},
	)

	// EngineDuration records engine operation latency in seconds
	EngineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "engine_operation_duration_seconds", Help: "Route engine operation duration in seconds.", Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1}},
		[]string{"operation"},
	)
	// EngineErrors counts failed engine operations by error code
	EngineErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_errors_total", Help: "Route engine errors by operation and code."},
		[]string{"operation", "code"},
	)
	// RouteStops tracks how many stops each computed route holds
	RouteStops = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "route_stops", Help: "Stops per computed route.", Buckets: []float64{1, 2, 4, 6, 8, 10, 15, 20, 30}},
		[]string{"algorithm"},
	)
	// RouteSavings tracks the distance saved against the input order, in percent
	RouteSavings = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "route_savings_percent", Help: "Distance saved versus the input order, percent.", Buckets: []float64{0, 1, 5, 10, 20, 30, 50}},
		[]string{"algorithm"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers all collectors on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration, RateLimited)
		Registry.MustRegister(EngineDuration, EngineErrors, RouteStops, RouteSavings)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// ObserveEngine records the latency of one engine call and, on failure, its error code.
func ObserveEngine(op string, start time.Time, err error) {
	EngineDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	code := "Internal"
	var me *model.Error
	if errors.As(err, &me) {
		code = string(me.Code)
	}
	EngineErrors.WithLabelValues(op, code).Inc()
}

// ObserveRoute records the shape of a computed route.
func ObserveRoute(rd model.RouteData) {
	if len(rd.Stops) == 0 {
		return
	}
	RouteStops.WithLabelValues(rd.Algorithm).Observe(float64(len(rd.Stops)))
	RouteSavings.WithLabelValues(rd.Algorithm).Observe(rd.Savings.PercentageSaved)
}
