package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeeta/internal/engine"
	"routeeta/internal/metrics"
	"routeeta/internal/model"
	"routeeta/internal/store"
)

// 16:00 IST, outside every default traffic window.
var offPeak = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type who struct{ tenant, role, driver string }

var (
	admin      = who{"t1", "admin", ""}
	dispatcher = who{"t1", "dispatcher", ""}
	driverD1   = who{"t1", "driver", "d1"}
	driverD2   = who{"t1", "driver", "d2"}
)

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	eng, err := engine.New(engine.DefaultOptions(), engine.WithClock(func() time.Time { return offPeak }))
	require.NoError(t, err)
	return NewServer(Deps{Store: mem, Engine: eng}), mem
}

func call(t *testing.T, h http.Handler, as *who, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("X-Tenant-Id", as.tenant)
		req.Header.Set("X-Role", as.role)
		req.Header.Set("X-Driver-Id", as.driver)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func problemCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var p Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p), rr.Body.String())
	assert.Equal(t, rr.Code, p.Status)
	return p.Code
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthReady(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	assert.Equal(t, http.StatusOK, call(t, h, nil, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, call(t, h, nil, http.MethodGet, "/readyz", nil).Code)
}

func TestUnknownRouteIsProblem(t *testing.T) {
	s, _ := newTestServer(t)
	rr := call(t, s.Routes(), &admin, http.MethodGet, "/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NotFound", problemCode(t, rr))
}

func TestAuthRequired(t *testing.T) {
	s, _ := newTestServer(t)
	rr := call(t, s.Routes(), nil, http.MethodPost, "/v1/eta", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Unauthorized", problemCode(t, rr))

	req := httptest.NewRequest(http.MethodPost, "/v1/eta", nil)
	req.Header.Set("Authorization", "Bearer nocolon")
	rr = httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestETAHandler(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	rr := call(t, h, &driverD1, http.MethodPost, "/v1/eta", map[string]any{
		"from": map[string]float64{"latitude": 19.0760, "longitude": 72.8777},
		"to":   map[string]float64{"latitude": 19.0822, "longitude": 72.8416},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	eta := decodeBody[model.ETAData](t, rr)
	assert.InDelta(t, 3.856, eta.Distance, 0.01)
	assert.Greater(t, eta.Duration, 0.0)
	assert.Contains(t, []string{"light", "moderate", "heavy"}, eta.TrafficStatus)
	assert.True(t, eta.ETA.After(offPeak))
}

func TestETAHandlerErrors(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	cases := []struct {
		name string
		body any
		code string
	}{
		{"malformed", `{"from":`, "InvalidRequest"},
		{"missing to", map[string]any{"from": map[string]float64{"latitude": 1, "longitude": 1}}, "InvalidRequest"},
		{"bad latitude", map[string]any{
			"from": map[string]float64{"latitude": 91, "longitude": 1},
			"to":   map[string]float64{"latitude": 1, "longitude": 1},
		}, "InvalidCoordinate"},
		{"bad vehicle", map[string]any{
			"from":        map[string]float64{"latitude": 1, "longitude": 1},
			"to":          map[string]float64{"latitude": 1.01, "longitude": 1},
			"vehicleType": "rocket",
		}, "InvalidVehicleType"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := call(t, h, &driverD1, http.MethodPost, "/v1/eta", tc.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tc.code, problemCode(t, rr))
		})
	}
}

func twoOrderLocations() []map[string]any {
	return []map[string]any{
		{"id": "p1", "kind": "pickup", "orderId": "A", "latitude": 19.0700, "longitude": 72.8800},
		{"id": "d1", "kind": "delivery", "orderId": "A", "latitude": 19.1100, "longitude": 72.8400},
		{"id": "p2", "kind": "pickup", "orderId": "B", "latitude": 19.0900, "longitude": 72.8700},
		{"id": "d2", "kind": "delivery", "orderId": "B", "latitude": 19.0650, "longitude": 72.8300},
	}
}

func TestOptimizeHandler(t *testing.T) {
	s, _ := newTestServer(t)
	rr := call(t, s.Routes(), &dispatcher, http.MethodPost, "/v1/routes/optimize", map[string]any{
		"locations": twoOrderLocations(),
		"origin":    map[string]float64{"latitude": 19.0760, "longitude": 72.8777},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeBody[optimizeResponse](t, rr)
	require.Len(t, resp.OptimizedRoute, 4)
	assert.Equal(t, 2, resp.OrderCount)
	assert.Equal(t, "greedy", resp.Algorithm)
	assert.GreaterOrEqual(t, resp.Savings.DistanceSaved, 0.0)

	seen := map[string]int{}
	for i, st := range resp.OptimizedRoute {
		assert.Equal(t, i+1, st.Sequence)
		seen[st.Location.ID] = i
	}
	assert.Less(t, seen["p1"], seen["d1"])
	assert.Less(t, seen["p2"], seen["d2"])
	assert.InDelta(t, resp.TotalDistance, resp.OptimizedRoute[3].CumulativeDistance, 1e-9)
}

func TestOptimizeHandlerErrors(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()

	rr := call(t, h, &dispatcher, http.MethodPost, "/v1/routes/optimize", map[string]any{"locations": []any{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "EmptyRouteRequest", problemCode(t, rr))

	rr = call(t, h, &dispatcher, http.MethodPost, "/v1/routes/optimize", map[string]any{"locations": []map[string]any{
		{"id": "d9", "kind": "delivery", "orderId": "Z", "latitude": 19.07, "longitude": 72.88},
	}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "UnpairedDelivery", problemCode(t, rr))

	rr = call(t, h, &dispatcher, http.MethodPost, "/v1/routes/optimize", map[string]any{"locations": []map[string]any{
		{"kind": "pickup", "orderId": "Z", "latitude": 19.07, "longitude": 72.88},
	}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "InvalidRequest", problemCode(t, rr))
}

func TestOptimizeEmitsWebhook(t *testing.T) {
	s, mem := newTestServer(t)
	h := s.Routes()
	rr := call(t, h, &admin, http.MethodPost, "/v1/subscriptions", map[string]any{
		"url": "https://example.com/hook", "events": []string{"route.optimized"}, "secret": "s",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = call(t, h, &dispatcher, http.MethodPost, "/v1/routes/optimize", map[string]any{"locations": twoOrderLocations()})
	require.Equal(t, http.StatusOK, rr.Code)

	items, _, err := mem.ListWebhookDeliveries(t.Context(), "t1", "", "", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "route.optimized", items[0].EventType)
}

func TestDeliveryEstimateHandler(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	body := map[string]any{
		"pickup":   map[string]float64{"latitude": 19.0760, "longitude": 72.8777},
		"delivery": map[string]float64{"latitude": 19.0822, "longitude": 72.8416},
		"prepTime": 10,
	}
	rr := call(t, h, &driverD1, http.MethodPost, "/v1/delivery-estimate", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	est := decodeBody[model.DeliveryEstimate](t, rr)
	assert.Equal(t, 10.0, est.PickupTime)
	assert.Equal(t, 5.0, est.DeliveryTime)
	assert.InDelta(t, est.PickupTime+est.TransitTime+est.DeliveryTime, est.TotalTime, 1e-9)

	for _, prep := range []float64{-1, 1441, 1e15} {
		body["prepTime"] = prep
		rr = call(t, h, &driverD1, http.MethodPost, "/v1/delivery-estimate", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, prep)
		assert.Equal(t, "InvalidRequest", problemCode(t, rr))
	}
}

func assignment(order string) model.AssignmentIn {
	return model.AssignmentIn{
		OrderID: order, OrderNumber: "#" + order, MerchantName: "Cafe", CustomerName: "Asha",
		PickupLat: 19.0700, PickupLng: 72.8800, DeliveryLat: 19.1100, DeliveryLng: 72.8400,
	}
}

func TestDriverRouteLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()

	rr := call(t, h, &dispatcher, http.MethodPut, "/v1/drivers/d1", map[string]any{"name": "Ravi", "vehicleType": "car"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = call(t, h, &driverD1, http.MethodGet, "/v1/driver/route", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "DriverLocationUnknown", problemCode(t, rr))

	rr = call(t, h, &driverD1, http.MethodPut, "/v1/driver/location", map[string]any{"latitude": 19.0760, "longitude": 72.8777})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	d := decodeBody[model.Driver](t, rr)
	assert.Equal(t, model.VehicleCar, d.VehicleType)

	rr = call(t, h, &driverD1, http.MethodGet, "/v1/driver/route", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rd := decodeBody[model.RouteData](t, rr)
	assert.Empty(t, rd.Stops)
	assert.NotNil(t, rd.Stops)

	rr = call(t, h, &dispatcher, http.MethodPost, "/v1/drivers/d1/orders", assignment("A"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = call(t, h, &driverD1, http.MethodGet, "/v1/driver/route", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rd = decodeBody[model.RouteData](t, rr)
	require.Len(t, rd.Stops, 2)
	assert.Equal(t, model.KindPickup, rd.Stops[0].Location.Kind)
	assert.Equal(t, "#A", rd.Stops[0].OrderNumber)
	assert.Equal(t, model.VehicleCar, rd.VehicleType)
	assert.Equal(t, 1, rd.OrderCount)

	rr = call(t, h, &driverD1, http.MethodPatch, "/v1/drivers/d1/orders/A", map[string]string{"status": "picked_up"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = call(t, h, &driverD1, http.MethodGet, "/v1/driver/route", nil)
	rd = decodeBody[model.RouteData](t, rr)
	require.Len(t, rd.Stops, 1)
	assert.Equal(t, model.KindDelivery, rd.Stops[0].Location.Kind)

	rr = call(t, h, &driverD1, http.MethodPatch, "/v1/drivers/d1/orders/A", map[string]string{"status": "delivered"})
	require.Equal(t, http.StatusOK, rr.Code)
	rr = call(t, h, &driverD1, http.MethodGet, "/v1/driver/route", nil)
	rd = decodeBody[model.RouteData](t, rr)
	assert.Empty(t, rd.Stops)

	rr = call(t, h, &driverD1, http.MethodPatch, "/v1/drivers/d1/orders/A", map[string]string{"status": "in_transit"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "Conflict", problemCode(t, rr))

	rr = call(t, h, &driverD1, http.MethodPatch, "/v1/drivers/d1/orders/B", map[string]string{"status": "picked_up"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = call(t, h, &driverD1, http.MethodPatch, "/v1/drivers/d1/orders/A", map[string]string{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDriverRouteSeesPositionFromOtherReplica(t *testing.T) {
	mem := store.NewMemory()
	eng, err := engine.New(engine.DefaultOptions(), engine.WithClock(func() time.Time { return offPeak }))
	require.NoError(t, err)
	a := NewServer(Deps{Store: mem, Engine: eng}).Routes()
	b := NewServer(Deps{Store: mem, Engine: eng}).Routes()

	rr := call(t, a, &driverD1, http.MethodPut, "/v1/driver/location", map[string]any{"latitude": 19.0, "longitude": 72.8})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = call(t, b, &driverD1, http.MethodGet, "/v1/driver/route", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, model.Coordinate{Lat: 19.0, Lng: 72.8}, decodeBody[model.RouteData](t, rr).DriverLocation)

	rr = call(t, a, &driverD1, http.MethodPut, "/v1/driver/location", map[string]any{"latitude": 19.2, "longitude": 72.9})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	for name, h := range map[string]http.Handler{"a": a, "b": b} {
		rr = call(t, h, &driverD1, http.MethodGet, "/v1/driver/route", nil)
		require.Equal(t, http.StatusOK, rr.Code, name)
		assert.Equal(t, model.Coordinate{Lat: 19.2, Lng: 72.9}, decodeBody[model.RouteData](t, rr).DriverLocation, name)
	}
}

func TestDriverAuthorization(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	require.Equal(t, http.StatusOK, call(t, h, &driverD1, http.MethodPut, "/v1/driver/location", map[string]any{"latitude": 19.07, "longitude": 72.87}).Code)

	rr := call(t, h, &driverD2, http.MethodGet, "/v1/driver/route?driverId=d1", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Forbidden", problemCode(t, rr))

	assert.Equal(t, http.StatusForbidden, call(t, h, &driverD1, http.MethodPost, "/v1/drivers/d1/orders", assignment("A")).Code)
	assert.Equal(t, http.StatusForbidden, call(t, h, &driverD2, http.MethodGet, "/v1/drivers/d1/orders", nil).Code)
	assert.Equal(t, http.StatusForbidden, call(t, h, &driverD2, http.MethodPut, "/v1/driver/location", map[string]any{"driverId": "d1", "latitude": 1, "longitude": 1}).Code)

	rr = call(t, h, &dispatcher, http.MethodGet, "/v1/driver/route?driverId=d1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = call(t, h, &dispatcher, http.MethodGet, "/v1/driver/route", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAssignOrderUnknownDriver(t *testing.T) {
	s, _ := newTestServer(t)
	rr := call(t, s.Routes(), &dispatcher, http.MethodPost, "/v1/drivers/ghost/orders", assignment("A"))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	bad := assignment("B")
	bad.DeliveryLat = 200
	rr = call(t, s.Routes(), &dispatcher, http.MethodPost, "/v1/drivers/ghost/orders", bad)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "InvalidCoordinate", problemCode(t, rr))
}

func TestPositionUpdatePublishesRoute(t *testing.T) {
	s, mem := newTestServer(t)
	h := s.Routes()
	rr := call(t, h, &admin, http.MethodPost, "/v1/subscriptions", map[string]any{
		"url": "https://example.com/hook", "events": []string{"route.updated"},
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	ch := s.Broker.Subscribe(driverTopic("t1", "d1"))
	defer s.Broker.Unsubscribe(driverTopic("t1", "d1"), ch)

	require.Equal(t, http.StatusOK, call(t, h, &driverD1, http.MethodPut, "/v1/driver/location", map[string]any{"latitude": 19.07, "longitude": 72.87}).Code)
	evt := recv(t, ch)
	assert.Equal(t, EventRouteUpdated, evt.Type)
	var upd routeUpdate
	require.NoError(t, json.Unmarshal(evt.Data, &upd))
	assert.Equal(t, "d1", upd.DriverID)
	assert.InDelta(t, 19.07, upd.Route.DriverLocation.Lat, 1e-9)

	items, _, err := mem.ListWebhookDeliveries(t.Context(), "t1", store.DeliveryPending, "", 10)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSubscriptionsAdmin(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()

	assert.Equal(t, http.StatusForbidden, call(t, h, &dispatcher, http.MethodGet, "/v1/subscriptions", nil).Code)

	rr := call(t, h, &admin, http.MethodPost, "/v1/subscriptions", map[string]any{"url": "not a url", "events": []string{"route.updated"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = call(t, h, &admin, http.MethodPost, "/v1/subscriptions", map[string]any{"url": "https://x.test/h", "events": []string{"order.created"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(t, h, &admin, http.MethodPost, "/v1/subscriptions", map[string]any{"url": "https://x.test/h", "events": []string{"route.updated"}})
	require.Equal(t, http.StatusCreated, rr.Code)
	sub := decodeBody[model.Subscription](t, rr)
	assert.Equal(t, "t1", sub.TenantID)

	rr = call(t, h, &admin, http.MethodGet, "/v1/subscriptions?limit=10", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody[struct {
		Items []model.Subscription `json:"items"`
	}](t, rr)
	assert.Len(t, list.Items, 1)

	assert.Equal(t, http.StatusNoContent, call(t, h, &admin, http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, call(t, h, &admin, http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil).Code)
}

func TestWebhookDeliveriesAdmin(t *testing.T) {
	s, mem := newTestServer(t)
	h := s.Routes()
	id, err := mem.EnqueueWebhook(t.Context(), "t1", "sub", "route.updated", "https://x.test", "", []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, mem.FailWebhookDelivery(t.Context(), id, "boom", 500, 3))

	rr := call(t, h, &admin, http.MethodGet, "/v1/admin/webhook-deliveries?status=failed", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody[struct {
		Items []store.DeliveryView `json:"items"`
	}](t, rr)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "boom", list.Items[0].LastError)

	assert.Equal(t, http.StatusBadRequest, call(t, h, &admin, http.MethodGet, "/v1/admin/webhook-deliveries?status=weird", nil).Code)
	assert.Equal(t, http.StatusAccepted, call(t, h, &admin, http.MethodPost, "/v1/admin/webhook-deliveries/"+id+"/retry", nil).Code)
	assert.Equal(t, http.StatusNotFound, call(t, h, &admin, http.MethodPost, "/v1/admin/webhook-deliveries/missing/retry", nil).Code)

	due, err := mem.FetchDueWebhookDeliveries(t.Context(), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestRateLimited(t *testing.T) {
	s, _ := newTestServer(t)
	s.Limiter = NewRateLimiter(1, 1)
	h := s.Routes()
	assert.Equal(t, http.StatusOK, call(t, h, &driverD1, http.MethodGet, "/v1/engine/config", nil).Code)
	rr := call(t, h, &driverD1, http.MethodGet, "/v1/engine/config", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "RateLimited", problemCode(t, rr))
	// health checks are exempt
	assert.Equal(t, http.StatusOK, call(t, h, nil, http.MethodGet, "/healthz", nil).Code)
}

func TestEngineConfigHandler(t *testing.T) {
	s, _ := newTestServer(t)
	rr := call(t, s.Routes(), &driverD1, http.MethodGet, "/v1/engine/config", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Contains(t, got, "speeds")
	assert.Contains(t, got, "traffic")
	assert.Equal(t, "motorcycle", got["defaultVehicle"])
}

func TestOpenAPIAndDebug(t *testing.T) {
	s, _ := newTestServer(t)
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openapi: 3.0.3\ninfo:\n  title: t\n  version: '1'\npaths: {}\n"), 0o644))
	s.openAPIPath = path
	h := s.Routes()

	rr := call(t, h, nil, http.MethodGet, "/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "openapi: 3.0.3")

	rr = call(t, h, nil, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	doc := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "3.0.3", doc["openapi"])

	assert.Equal(t, http.StatusForbidden, call(t, h, &driverD1, http.MethodGet, "/debug/info", nil).Code)
	rr = call(t, h, &admin, http.MethodGet, "/debug/info", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"authMode":"dev"`)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.RegisterDefault()
	s, _ := newTestServer(t)
	h := s.Routes()
	call(t, h, &driverD1, http.MethodGet, "/v1/engine/config", nil)
	rr := call(t, h, nil, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `http_requests_total{method="GET",path="/v1/engine/config",status="200"}`)
}
