package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// heartbeatInterval is how often idle route streams get a heartbeat event.
var heartbeatInterval = 15 * time.Second

func jsonRaw(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	return json.RawMessage(b), err
}

func writeSSE(w http.ResponseWriter, evt StreamEvent) {
	fmt.Fprintf(w, "event: %s\n", evt.Type)
	fmt.Fprintf(w, "data: %s\n\n", evt.Data)
}

func (s *Server) heartbeat(driverID string) StreamEvent {
	data, _ := jsonRaw(map[string]string{"driverId": driverID, "ts": s.now().UTC().Format(time.RFC3339)})
	return StreamEvent{Type: EventHeartbeat, Data: data}
}

// RouteStreamHandler handles GET /v1/drivers/{id}/route/stream: an SSE stream
// that starts with the current route and then carries every route.updated event.
func (s *Server) RouteStreamHandler(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	id := r.PathValue("id")
	if !p.CanActFor(id) {
		forbidden(w, r, "not authorized for this driver's route")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, r, http.StatusInternalServerError, "Internal", "Streaming unsupported", "")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	topic := driverTopic(p.Tenant, id)
	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	writeSSE(w, s.heartbeat(id))
	if rd, err := s.driverRoute(r.Context(), p.Tenant, id); err == nil {
		if data, err := jsonRaw(routeUpdate{DriverID: id, Route: rd}); err == nil {
			writeSSE(w, StreamEvent{Type: EventRouteUpdated, Data: data})
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, evt)
			flusher.Flush()
		case <-ticker.C:
			writeSSE(w, s.heartbeat(id))
			flusher.Flush()
		}
	}
}
