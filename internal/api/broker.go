package api

import (
	"encoding/json"
	"sync"
)

// Stream event types.
const (
	EventHeartbeat    = "heartbeat"
	EventRouteUpdated = "route.updated"
)

// StreamEvent is one message on a driver's live route stream.
type StreamEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventBroker fans route events out to stream subscribers by topic.
type EventBroker interface {
	Subscribe(topic string) chan StreamEvent
	Unsubscribe(topic string, ch chan StreamEvent)
	Publish(topic string, evt StreamEvent)
}

// driverTopic scopes a driver's stream to its tenant.
func driverTopic(tenant, driverID string) string { return tenant + ":" + driverID }

// Broker is the in-process EventBroker.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan StreamEvent]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan StreamEvent]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan StreamEvent {
	ch := make(chan StreamEvent, 8)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan StreamEvent]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[topic]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

// Publish delivers evt to every subscriber of topic. Slow subscribers drop events.
func (b *Broker) Publish(topic string, evt StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
}
