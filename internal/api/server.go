// Package api implements the HTTP surface of the route engine: the driver
// route, optimization and estimate operations, driver assignment updates,
// live route streams and webhook administration.
package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"routeeta/internal/auth"
	"routeeta/internal/engine"
	"routeeta/internal/metrics"
	"routeeta/internal/store"
	"routeeta/internal/webhooks"
)

// Deps are the collaborators a Server is built from.
type Deps struct {
	Store     store.Store
	Engine    *engine.Engine
	Broker    EventBroker
	Auth      *auth.Verifier
	Publisher *webhooks.Publisher
	// Limiter nil disables rate limiting.
	Limiter     *RateLimiter
	OpenAPIPath string
	// Settings is the redacted process configuration shown by /debug/info.
	Settings map[string]any
}

type Server struct {
	Store     store.Store
	Engine    *engine.Engine
	Broker    EventBroker
	Auth      *auth.Verifier
	Pub       *webhooks.Publisher
	Limiter   *RateLimiter

	openAPIPath string
	settings    map[string]any
	validate    *validator.Validate
	now         func() time.Time
}

// NewServer wires a Server. Missing optional collaborators get in-process defaults.
func NewServer(d Deps) *Server {
	s := &Server{
		Store:       d.Store,
		Engine:      d.Engine,
		Broker:      d.Broker,
		Auth:        d.Auth,
		Pub:         d.Publisher,
		Limiter:     d.Limiter,
		openAPIPath: d.OpenAPIPath,
		settings:    d.Settings,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         time.Now,
	}
	if s.Broker == nil {
		s.Broker = NewBroker()
	}
	if s.Auth == nil {
		s.Auth = auth.NewVerifier(auth.Config{})
	}
	if s.Pub == nil && s.Store != nil {
		s.Pub = webhooks.NewPublisher(s.Store)
	}
	if s.openAPIPath == "" {
		s.openAPIPath = "openapi/openapi.yaml"
	}
	return s
}

// Routes returns the full handler tree with middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Engine operations
	s.handle(mux, "GET /v1/driver/route", s.authed(s.MyRouteHandler))
	s.handle(mux, "POST /v1/routes/optimize", s.authed(s.OptimizeHandler))
	s.handle(mux, "POST /v1/eta", s.authed(s.ETAHandler))
	s.handle(mux, "POST /v1/delivery-estimate", s.authed(s.DeliveryEstimateHandler))
	s.handle(mux, "GET /v1/engine/config", s.authed(s.EngineConfigHandler))

	// Drivers and assignments
	s.handle(mux, "PUT /v1/driver/location", s.authed(s.DriverLocationHandler))
	s.handle(mux, "PUT /v1/drivers/{id}", s.authed(s.UpsertDriverHandler))
	s.handle(mux, "POST /v1/drivers/{id}/orders", s.authed(s.AssignOrderHandler))
	s.handle(mux, "GET /v1/drivers/{id}/orders", s.authed(s.ListOrdersHandler))
	s.handle(mux, "PATCH /v1/drivers/{id}/orders/{orderId}", s.authed(s.OrderStatusHandler))
	s.handle(mux, "GET /v1/drivers/{id}/route/stream", s.authed(s.RouteStreamHandler))
	s.handle(mux, "GET /graphql/ws", s.GraphQLWSHandler)

	// Webhooks
	s.handle(mux, "POST /v1/subscriptions", s.authed(s.CreateSubscriptionHandler))
	s.handle(mux, "GET /v1/subscriptions", s.authed(s.ListSubscriptionsHandler))
	s.handle(mux, "DELETE /v1/subscriptions/{id}", s.authed(s.DeleteSubscriptionHandler))
	s.handle(mux, "GET /v1/admin/webhook-deliveries", s.authed(s.WebhookDeliveriesHandler))
	s.handle(mux, "POST /v1/admin/webhook-deliveries/{id}/retry", s.authed(s.WebhookDeliveryRetryHandler))

	// Ops
	s.handle(mux, "GET /healthz", s.HealthHandler)
	s.handle(mux, "GET /readyz", s.ReadyHandler)
	s.handle(mux, "GET /debug/info", s.authed(s.DebugJSON))
	s.handle(mux, "GET /openapi.yaml", s.OpenAPIHandler)
	s.handle(mux, "GET /openapi.json", s.OpenAPIJSONHandler)
	s.handle(mux, "GET /docs", s.DocsHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "NotFound", "Not Found", "no route for "+r.Method+" "+r.URL.Path)
	})

	return s.accessLog(s.rateLimit(mux))
}

// handle registers h under pattern and records request metrics labelled by the pattern.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, instrument(pattern, h))
}
