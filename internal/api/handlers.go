package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"routeeta/internal/engine"
	"routeeta/internal/metrics"
	"routeeta/internal/model"
	"routeeta/internal/store"
	"routeeta/internal/webhooks"
)

type optimizeRequest struct {
	// Locations is capped at 100 stops per request.
	Locations                  []model.Location  `json:"locations" validate:"max=100,dive"`
	VehicleType                string            `json:"vehicleType"`
	RespectPickupDeliveryOrder *bool             `json:"respectPickupDeliveryOrder"`
	Origin                     *model.Coordinate `json:"origin"`
	Algorithm                  string            `json:"algorithm"`
	DepartAt                   *time.Time        `json:"departAt"`
}

type optimizeResponse struct {
	OptimizedRoute []model.OptimizedStop `json:"optimizedRoute"`
	TotalDistance  float64               `json:"totalDistance"`
	TotalDuration  float64               `json:"totalDuration"`
	Savings        model.Savings         `json:"savings"`
	OrderCount     int                   `json:"orderCount"`
	Algorithm      string                `json:"algorithm"`
	VehicleType    model.VehicleType     `json:"vehicleType"`
	DriverLocation model.Coordinate      `json:"driverLocation"`
	ComputedAt     time.Time             `json:"computedAt"`
}

type etaRequest struct {
	From        *model.Coordinate `json:"from" validate:"required"`
	To          *model.Coordinate `json:"to" validate:"required"`
	VehicleType string            `json:"vehicleType"`
	DepartAt    *time.Time        `json:"departAt"`
}

type estimateRequest struct {
	Pickup   *model.Coordinate `json:"pickup" validate:"required"`
	Delivery *model.Coordinate `json:"delivery" validate:"required"`
	// PrepTime is the merchant preparation time in minutes.
	PrepTime    *float64   `json:"prepTime" validate:"omitempty,gte=0,lte=1440"`
	VehicleType string     `json:"vehicleType"`
	At          *time.Time `json:"at"`
}

// routeUpdate is the payload of route.updated stream events and webhooks.
type routeUpdate struct {
	DriverID string          `json:"driverId"`
	Route    model.RouteData `json:"route"`
}

// MyRouteHandler handles GET /v1/driver/route. Drivers get their own route;
// admins and dispatchers pick a driver with ?driverId=.
func (s *Server) MyRouteHandler(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	driverID := p.DriverID
	if q := r.URL.Query().Get("driverId"); q != "" && q != driverID {
		if !isStaff(p) {
			forbidden(w, r, "drivers can only read their own route")
			return
		}
		driverID = q
	}
	if driverID == "" {
		writeError(w, r, model.Errorf(model.CodeInvalidRequest, "driverId is required"))
		return
	}
	rd, err := s.driverRoute(r.Context(), p.Tenant, driverID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

// OptimizeHandler handles POST /v1/routes/optimize.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	start := time.Now()
	rd, err := s.Engine.OptimizeRoute(engine.OptimizeInput{
		Origin:                     req.Origin,
		Locations:                  req.Locations,
		VehicleType:                req.VehicleType,
		RespectPickupDeliveryOrder: req.RespectPickupDeliveryOrder,
		Algorithm:                  req.Algorithm,
		DepartAt:                   req.DepartAt,
	})
	metrics.ObserveEngine("optimize_route", start, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	metrics.ObserveRoute(rd)
	resp := optimizeResponse{
		OptimizedRoute: rd.Stops,
		TotalDistance:  rd.TotalDistance,
		TotalDuration:  rd.TotalDuration,
		Savings:        rd.Savings,
		OrderCount:     rd.OrderCount,
		Algorithm:      rd.Algorithm,
		VehicleType:    rd.VehicleType,
		DriverLocation: rd.DriverLocation,
		ComputedAt:     rd.ComputedAt,
	}
	s.emit(r.Context(), principal(r).Tenant, webhooks.EventRouteOptimized, resp)
	writeJSON(w, http.StatusOK, resp)
}

// ETAHandler handles POST /v1/eta.
func (s *Server) ETAHandler(w http.ResponseWriter, r *http.Request) {
	var req etaRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	start := time.Now()
	eta, err := s.Engine.CalculateETA(engine.ETAInput{From: *req.From, To: *req.To, VehicleType: req.VehicleType, DepartAt: req.DepartAt})
	metrics.ObserveEngine("calculate_eta", start, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eta)
}

// DeliveryEstimateHandler handles POST /v1/delivery-estimate.
func (s *Server) DeliveryEstimateHandler(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	start := time.Now()
	est, err := s.Engine.DeliveryEstimate(engine.EstimateInput{
		Pickup:      *req.Pickup,
		Delivery:    *req.Delivery,
		PrepTimeMin: req.PrepTime,
		VehicleType: req.VehicleType,
		At:          req.At,
	})
	metrics.ObserveEngine("delivery_estimate", start, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// EngineConfigHandler returns the effective engine tuning.
func (s *Server) EngineConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Options())
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, r, http.StatusServiceUnavailable, "NotReady", "Not Ready", "store: "+err.Error())
		return
	}
	type pinger interface{ Ping(ctx context.Context) error }
	if pb, ok := s.Broker.(pinger); ok {
		if err := pb.Ping(ctx); err != nil {
			writeProblem(w, r, http.StatusServiceUnavailable, "NotReady", "Not Ready", "broker: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// driverRoute computes the current route of a driver from the stored driver
// record and active assignments. The driver is read from the store on every
// call so all replicas route from the latest reported position. A driver the
// store has never seen has no position, so the engine reports DriverLocationUnknown.
func (s *Server) driverRoute(ctx context.Context, tenant, driverID string) (model.RouteData, error) {
	d, err := s.Store.GetDriver(ctx, tenant, driverID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		d = model.Driver{ID: driverID, TenantID: tenant}
	case err != nil:
		return model.RouteData{}, err
	}
	as, err := s.Store.ListActiveAssignments(ctx, tenant, driverID)
	if err != nil {
		return model.RouteData{}, err
	}
	start := time.Now()
	rd, err := s.Engine.DriverRoute(engine.DriverSnapshot{Driver: d, Assignments: as}, nil)
	metrics.ObserveEngine("driver_route", start, err)
	if err != nil {
		return model.RouteData{}, err
	}
	metrics.ObserveRoute(rd)
	return rd, nil
}

// routeChanged recomputes a driver's route after a position, vehicle or
// assignment change and pushes it to stream subscribers and webhooks.
func (s *Server) routeChanged(ctx context.Context, tenant, driverID string) {
	logger := log.Ctx(ctx).With().Str("tenant", tenant).Str("driver_id", driverID).Logger()
	rd, err := s.driverRoute(ctx, tenant, driverID)
	if err != nil {
		if errors.Is(err, model.ErrDriverLocationUnknown) {
			logger.Debug().Msg("route not published: driver position unknown")
			return
		}
		logger.Warn().Err(err).Msg("recompute route")
		return
	}
	upd := routeUpdate{DriverID: driverID, Route: rd}
	if data, err := jsonRaw(upd); err == nil {
		s.Broker.Publish(driverTopic(tenant, driverID), StreamEvent{Type: EventRouteUpdated, Data: data})
	}
	s.emit(ctx, tenant, webhooks.EventRouteUpdated, upd)
}

// emit queues a webhook event. Failures are logged and do not fail the request.
func (s *Server) emit(ctx context.Context, tenant, eventType string, data any) {
	if s.Pub == nil {
		return
	}
	if _, err := s.Pub.Emit(ctx, tenant, eventType, data); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("event_type", eventType).Msg("enqueue webhook")
	}
}
