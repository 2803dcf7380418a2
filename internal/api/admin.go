package api

import (
	"net/http"
	"strconv"

	"routeeta/internal/model"
	"routeeta/internal/store"
)

// pageLimit reads ?limit= clamped to [1, 500]; default 100.
func pageLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return 100
	}
	return min(limit, 500)
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !principal(r).IsAdmin() {
		forbidden(w, r, "admin required")
		return false
	}
	return true
}

// CreateSubscriptionHandler handles POST /v1/subscriptions
func (s *Server) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	var req model.SubscriptionRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.TenantID = principal(r).Tenant
	sub, err := s.Store.CreateSubscription(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	items, next, err := s.Store.ListSubscriptions(r.Context(), principal(r).Tenant, r.URL.Query().Get("cursor"), pageLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), principal(r).Tenant, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	status := r.URL.Query().Get("status")
	switch status {
	case "", store.DeliveryPending, store.DeliveryRetry, store.DeliveryDelivered, store.DeliveryFailed:
	default:
		writeError(w, r, model.Errorf(model.CodeInvalidRequest, "unknown status %q", status))
		return
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), principal(r).Tenant, status, r.URL.Query().Get("cursor"), pageLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	if err := s.Store.RetryWebhookDelivery(r.Context(), principal(r).Tenant, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}
