package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"routeeta/internal/auth"
)

// GraphQL over WebSocket (graphql-transport-ws framing) carrying a single
// subscription:
//
//	subscription($driverId: ID) { driverRoute(driverId: $driverId) }
//
// Credentials come from the upgrade request headers or, for browser clients,
// from the connection_init payload {"authorization": "Bearer ..."}.

var upgrader = websocket.Upgrader{
	CheckOrigin:  func(_ *http.Request) bool { return true },
	Subprotocols: []string{"graphql-transport-ws"},
}

// Close codes defined by graphql-transport-ws.
const (
	closeUnauthorized      = 4401
	closeForbidden         = 4403
	closeSubscriberExists  = 4409
	closeInvalidMessage    = 4400
	wsWriteTimeout         = 10 * time.Second
	wsReadTimeout          = 60 * time.Second
	wsKeepaliveInterval    = 20 * time.Second
	subscriptionFieldRoute = "driverRoute"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type wsError struct {
	Message string `json:"message"`
}

// GraphQLWSHandler handles /graphql/ws
func (s *Server) GraphQLWSHandler(w http.ResponseWriter, r *http.Request) {
	p, authErr := s.principalFrom(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	logger := log.Ctx(r.Context())

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(v)
	}
	closeWith := func(code int, reason string) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	}
	writeErr := func(id, msg string) {
		payload, _ := json.Marshal([]wsError{{Message: msg}})
		_ = write(wsMessage{Type: "error", ID: id, Payload: payload})
	}

	type sub struct {
		topic string
		ch    chan StreamEvent
	}
	subs := map[string]sub{}
	done := make(chan struct{})
	defer func() {
		close(done)
		for _, s0 := range subs {
			s.Broker.Unsubscribe(s0.topic, s0.ch)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) })

	initialized := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		switch msg.Type {
		case "connection_init":
			if initialized {
				closeWith(closeInvalidMessage, "Too many initialisation requests")
				return
			}
			if authErr != nil {
				p, authErr = s.principalFromInit(r, msg.Payload)
				if authErr != nil {
					closeWith(closeForbidden, "Forbidden")
					return
				}
			}
			initialized = true
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(wsKeepaliveInterval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "pong":
		case "subscribe":
			if !initialized {
				closeWith(closeUnauthorized, "Unauthorized")
				return
			}
			if _, dup := subs[msg.ID]; dup {
				closeWith(closeSubscriberExists, "Subscriber for "+msg.ID+" already exists")
				return
			}
			var pl subscribePayload
			if err := json.Unmarshal(msg.Payload, &pl); err != nil || !strings.Contains(pl.Query, subscriptionFieldRoute) {
				writeErr(msg.ID, "only the driverRoute subscription is supported")
				continue
			}
			driverID := p.DriverID
			if v, ok := pl.Variables["driverId"].(string); ok && v != "" {
				driverID = v
			}
			if driverID == "" {
				writeErr(msg.ID, "driverId required")
				continue
			}
			if !p.CanActFor(driverID) {
				writeErr(msg.ID, "forbidden")
				continue
			}
			topic := driverTopic(p.Tenant, driverID)
			ch := s.Broker.Subscribe(topic)
			subs[msg.ID] = sub{topic: topic, ch: ch}

			var initial json.RawMessage
			if rd, err := s.driverRoute(r.Context(), p.Tenant, driverID); err == nil {
				initial, _ = jsonRaw(routeUpdate{DriverID: driverID, Route: rd})
			}
			go func(id string, c chan StreamEvent, initial json.RawMessage) {
				next := func(data json.RawMessage) error {
					payload, _ := json.Marshal(map[string]any{"data": map[string]json.RawMessage{subscriptionFieldRoute: data}})
					return write(wsMessage{Type: "next", ID: id, Payload: payload})
				}
				if initial != nil {
					if err := next(initial); err != nil {
						return
					}
				}
				for evt := range c {
					if evt.Type != EventRouteUpdated {
						continue
					}
					if err := next(evt.Data); err != nil {
						logger.Debug().Err(err).Str("subscription", id).Msg("websocket write")
						return
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch, initial)
		case "complete":
			if s0, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(s0.topic, s0.ch)
				delete(subs, msg.ID)
			}
		default:
			closeWith(closeInvalidMessage, "Invalid message received")
			return
		}
	}
}

// principalFromInit verifies the bearer token carried in a connection_init payload.
func (s *Server) principalFromInit(r *http.Request, payload json.RawMessage) (auth.Principal, error) {
	var body map[string]any
	_ = json.Unmarshal(payload, &body)
	for _, k := range []string{"authorization", "Authorization"} {
		if v, ok := body[k].(string); ok && v != "" {
			tok := strings.TrimSpace(v)
			if len(tok) > 7 && strings.EqualFold(tok[:7], "bearer ") {
				tok = strings.TrimSpace(tok[7:])
			}
			return s.Auth.Verify(r.Context(), tok)
		}
	}
	return auth.Principal{}, errNoCredentials
}
