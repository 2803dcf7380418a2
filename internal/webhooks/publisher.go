package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"routeeta/internal/store"
)

// Event types delivered to subscribers.
const (
	EventRouteUpdated   = "route.updated"
	EventRouteOptimized = "route.optimized"
)

// Event is the envelope posted to subscriber URLs.
type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	TenantID string    `json:"tenantId"`
	TS       time.Time `json:"ts"`
	Data     any       `json:"data"`
}

type Publisher struct {
	Store store.Store
	now   func() time.Time
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s, now: time.Now}
}

// Emit enqueues an event for every subscription of the tenant to eventType and
// returns how many deliveries were queued.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) (int, error) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		return 0, fmt.Errorf("load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}
	body, err := json.Marshal(Event{
		ID:       "evt_" + uuid.NewString(),
		Type:     eventType,
		TenantID: tenantID,
		TS:       p.now().UTC(),
		Data:     data,
	})
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}
	n := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			return n, fmt.Errorf("enqueue for subscription %s: %w", s.ID, err)
		}
		n++
	}
	return n, nil
}
