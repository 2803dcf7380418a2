package api

import (
	"net/http"
	"time"

	"routeeta/internal/geo"
	"routeeta/internal/model"
)

type locationUpdate struct {
	// DriverID lets staff report on behalf of a driver; drivers omit it.
	DriverID   string     `json:"driverId"`
	Latitude   *float64   `json:"latitude" validate:"required"`
	Longitude  *float64   `json:"longitude" validate:"required"`
	RecordedAt *time.Time `json:"recordedAt"`
}

type driverIn struct {
	Name        string            `json:"name" validate:"max=200"`
	VehicleType string            `json:"vehicleType"`
	Position    *model.Coordinate `json:"position"`
}

type statusChange struct {
	Status string `json:"status" validate:"required,oneof=driver_assigned picked_up in_transit arrived delivered cancelled"`
}

// DriverLocationHandler handles PUT /v1/driver/location.
func (s *Server) DriverLocationHandler(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var req locationUpdate
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	driverID := p.DriverID
	if req.DriverID != "" {
		driverID = req.DriverID
	}
	if driverID == "" {
		writeError(w, r, model.Errorf(model.CodeInvalidRequest, "driverId is required"))
		return
	}
	if !p.CanActFor(driverID) {
		forbidden(w, r, "cannot report position for another driver")
		return
	}
	pos := model.Coordinate{Lat: *req.Latitude, Lng: *req.Longitude}
	if err := geo.Validate(pos); err != nil {
		writeError(w, r, err)
		return
	}
	at := s.now()
	if req.RecordedAt != nil && !req.RecordedAt.IsZero() {
		at = *req.RecordedAt
	}
	d, err := s.Store.UpdateDriverPosition(r.Context(), p.Tenant, driverID, pos, at)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.routeChanged(r.Context(), p.Tenant, driverID)
	writeJSON(w, http.StatusOK, d)
}

// UpsertDriverHandler handles PUT /v1/drivers/{id}.
func (s *Server) UpsertDriverHandler(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	id := r.PathValue("id")
	if !p.CanActFor(id) {
		forbidden(w, r, "cannot modify another driver")
		return
	}
	var req driverIn
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	vehicle, err := geo.ParseVehicle(req.VehicleType, s.Engine.Options().DefaultVehicle)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d := model.Driver{ID: id, TenantID: p.Tenant, Name: req.Name, VehicleType: vehicle}
	if req.Position != nil {
		if err := geo.Validate(*req.Position); err != nil {
			writeError(w, r, err)
			return
		}
		at := s.now().UTC()
		d.Position, d.PositionAt = req.Position, &at
	}
	d, err = s.Store.UpsertDriver(r.Context(), d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.routeChanged(r.Context(), p.Tenant, id)
	writeJSON(w, http.StatusOK, d)
}

// AssignOrderHandler handles POST /v1/drivers/{id}/orders. Only staff assign orders.
func (s *Server) AssignOrderHandler(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !isStaff(p) {
		forbidden(w, r, "dispatcher or admin required")
		return
	}
	id := r.PathValue("id")
	var req model.AssignmentIn
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	for _, c := range []model.Coordinate{{Lat: req.PickupLat, Lng: req.PickupLng}, {Lat: req.DeliveryLat, Lng: req.DeliveryLng}} {
		if err := geo.Validate(c); err != nil {
			writeError(w, r, err)
			return
		}
	}
	a, err := s.Store.AssignOrder(r.Context(), p.Tenant, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.routeChanged(r.Context(), p.Tenant, id)
	writeJSON(w, http.StatusCreated, a)
}

// ListOrdersHandler handles GET /v1/drivers/{id}/orders.
func (s *Server) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	id := r.PathValue("id")
	if !p.CanActFor(id) {
		forbidden(w, r, "cannot read another driver's orders")
		return
	}
	items, err := s.Store.ListActiveAssignments(r.Context(), p.Tenant, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// OrderStatusHandler handles PATCH /v1/drivers/{id}/orders/{orderId}.
func (s *Server) OrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	id := r.PathValue("id")
	if !p.CanActFor(id) {
		forbidden(w, r, "cannot update another driver's orders")
		return
	}
	var req statusChange
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.Store.UpdateAssignmentStatus(r.Context(), p.Tenant, id, r.PathValue("orderId"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.routeChanged(r.Context(), p.Tenant, id)
	writeJSON(w, http.StatusOK, a)
}
