package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devHeader(as who) http.Header {
	h := http.Header{}
	h.Set("X-Tenant-Id", as.tenant)
	h.Set("X-Role", as.role)
	h.Set("X-Driver-Id", as.driver)
	return h
}

// readSSE forwards parsed events from an SSE body until it closes.
func readSSE(body *bufio.Scanner, out chan<- StreamEvent) {
	defer close(out)
	var evt StreamEvent
	for body.Scan() {
		line := body.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			evt.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			evt.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		case line == "":
			out <- evt
			evt = StreamEvent{}
		}
	}
}

func nextRoute(t *testing.T, ch <-chan StreamEvent) routeUpdate {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt, ok := <-ch:
			require.True(t, ok, "stream closed")
			if evt.Type != EventRouteUpdated {
				continue
			}
			var upd routeUpdate
			require.NoError(t, json.Unmarshal(evt.Data, &upd))
			return upd
		case <-deadline:
			t.Fatal("timeout waiting for route.updated")
		}
	}
}

func TestRouteStreamSSE(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	require.Equal(t, http.StatusOK, call(t, h, &driverD1, http.MethodPut, "/v1/driver/location", map[string]any{"latitude": 19.0760, "longitude": 72.8777}).Code)
	require.Equal(t, http.StatusCreated, call(t, h, &dispatcher, http.MethodPost, "/v1/drivers/d1/orders", assignment("A")).Code)

	srv := httptest.NewServer(h)
	defer srv.Close()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/v1/drivers/d1/route/stream", nil)
	require.NoError(t, err)
	req.Header = devHeader(driverD1)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan StreamEvent, 16)
	go readSSE(bufio.NewScanner(resp.Body), events)

	first := <-events
	assert.Equal(t, EventHeartbeat, first.Type)
	upd := nextRoute(t, events)
	assert.Len(t, upd.Route.Stops, 2)

	require.Equal(t, http.StatusOK, call(t, h, &driverD1, http.MethodPatch, "/v1/drivers/d1/orders/A", map[string]string{"status": "picked_up"}).Code)
	upd = nextRoute(t, events)
	assert.Equal(t, "d1", upd.DriverID)
	assert.Len(t, upd.Route.Stops, 1)
}

func TestRouteStreamForbidden(t *testing.T) {
	s, _ := newTestServer(t)
	rr := call(t, s.Routes(), &driverD2, http.MethodGet, "/v1/drivers/d1/route/stream", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/graphql/ws"
}

func readWS(t *testing.T, c *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var m wsMessage
		require.NoError(t, c.ReadJSON(&m))
		if m.Type != "ping" {
			return m
		}
	}
}

func TestGraphQLWSDriverRoute(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	require.Equal(t, http.StatusOK, call(t, h, &driverD1, http.MethodPut, "/v1/driver/location", map[string]any{"latitude": 19.0760, "longitude": 72.8777}).Code)

	srv := httptest.NewServer(h)
	defer srv.Close()

	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv), devHeader(driverD1))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.WriteJSON(wsMessage{Type: "connection_init"}))
	assert.Equal(t, "connection_ack", readWS(t, c).Type)

	pl, _ := json.Marshal(subscribePayload{Query: "subscription { driverRoute }"})
	require.NoError(t, c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}))

	var next struct {
		Data struct {
			DriverRoute routeUpdate `json:"driverRoute"`
		} `json:"data"`
	}
	m := readWS(t, c)
	require.Equal(t, "next", m.Type)
	assert.Equal(t, "1", m.ID)
	require.NoError(t, json.Unmarshal(m.Payload, &next))
	assert.Equal(t, "d1", next.Data.DriverRoute.DriverID)
	assert.Empty(t, next.Data.DriverRoute.Route.Stops)

	require.Equal(t, http.StatusCreated, call(t, h, &dispatcher, http.MethodPost, "/v1/drivers/d1/orders", assignment("A")).Code)
	m = readWS(t, c)
	require.Equal(t, "next", m.Type)
	require.NoError(t, json.Unmarshal(m.Payload, &next))
	assert.Len(t, next.Data.DriverRoute.Route.Stops, 2)

	require.NoError(t, c.WriteJSON(wsMessage{Type: "ping"}))
	assert.Equal(t, "pong", readWS(t, c).Type)
}

func TestGraphQLWSAuthAndForbidden(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	// credentials in the connection_init payload
	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	require.NoError(t, c.WriteJSON(wsMessage{Type: "connection_init", Payload: json.RawMessage(`{"authorization":"Bearer t1:driver:d2"}`)}))
	assert.Equal(t, "connection_ack", readWS(t, c).Type)

	pl, _ := json.Marshal(subscribePayload{Query: "subscription($driverId: ID) { driverRoute(driverId: $driverId) }", Variables: map[string]any{"driverId": "d1"}})
	require.NoError(t, c.WriteJSON(wsMessage{Type: "subscribe", ID: "x", Payload: pl}))
	m := readWS(t, c)
	assert.Equal(t, "error", m.Type)
	assert.Contains(t, string(m.Payload), "forbidden")

	// no credentials at all
	c2, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer func() { _ = c2.Close() }()
	require.NoError(t, c2.WriteJSON(wsMessage{Type: "connection_init"}))
	require.NoError(t, c2.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = c2.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, closeForbidden, ce.Code)
}
