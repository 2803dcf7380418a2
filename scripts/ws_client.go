// Package main runs a demo WebSocket client that follows a driver's route.
//
// It reports a driver position, assigns a demo order through the HTTP API and
// prints every driverRoute update received over /graphql/ws. The server must
// run with AUTH_MODE=dev.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	host := env("API_HOST", "localhost:8080")
	tenant := env("TENANT", "t_demo")
	driver := env("DRIVER_ID", "d_demo")
	base := "http://" + host

	send := func(method, path, role string, body any) {
		b, _ := json.Marshal(body)
		req, _ := http.NewRequest(method, base+path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s:%s:%s", tenant, role, driver))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("request failed")
		}
		_ = resp.Body.Close()
		log.Info().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("HTTP")
	}

	send(http.MethodPut, "/v1/driver/location", "driver", map[string]float64{"latitude": 19.0760, "longitude": 72.8777})

	u := url.URL{Scheme: "ws", Host: host, Path: "/graphql/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("dial")
	}
	defer func() { _ = c.Close() }()

	initPayload, _ := json.Marshal(map[string]string{"authorization": fmt.Sprintf("Bearer %s:driver:%s", tenant, driver)})
	if err := c.WriteJSON(wsMessage{Type: "connection_init", Payload: initPayload}); err != nil {
		log.Fatal().Err(err).Msg("connection_init")
	}
	sub, _ := json.Marshal(map[string]any{
		"query":     "subscription($driverId: ID) { driverRoute(driverId: $driverId) }",
		"variables": map[string]any{"driverId": driver},
	})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: sub}); err != nil {
		log.Fatal().Err(err).Msg("subscribe")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Info().Err(err).Msg("read")
				return
			}
			log.Info().Str("type", m.Type).RawJSON("payload", orEmpty(m.Payload)).Msg("WS <-")
		}
	}()

	// Assigning an order changes the route and triggers an update.
	time.Sleep(500 * time.Millisecond)
	send(http.MethodPost, "/v1/drivers/"+driver+"/orders", "dispatcher", map[string]any{
		"orderId": "demo-1", "orderNumber": "#1001", "merchantName": "Demo Kitchen", "customerName": "Demo Customer",
		"pickupLatitude": 19.0700, "pickupLongitude": 72.8800,
		"deliveryLatitude": 19.1100, "deliveryLongitude": 72.8400,
	})

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}

func orEmpty(b json.RawMessage) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
