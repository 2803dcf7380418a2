package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"routeeta/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu          sync.Mutex
	now         func() time.Time
	drivers     map[string]model.Driver     // tenant|driver -> driver
	assignments map[string]model.Assignment // tenant|order -> assignment
	subs        map[string][]model.Subscription
	// Webhooks queue state
	deliveries         map[string]*memDelivery
	deliveriesByTenant map[string][]string
	order              []string          // delivery ids in enqueue order
	dedup              map[string]string // tenant|event|url|dedup key -> delivery id
	// maxDeliveries bounds the queue; past it the oldest delivered and
	// failed entries are dropped.
	maxDeliveries int
}

// maxMemoryDeliveries is the default webhook queue bound of a Memory store.
const maxMemoryDeliveries = 10000

func NewMemory() *Memory {
	return &Memory{
		now:                time.Now,
		drivers:            map[string]model.Driver{},
		assignments:        map[string]model.Assignment{},
		subs:               map[string][]model.Subscription{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
		dedup:              map[string]string{},
		maxDeliveries:      maxMemoryDeliveries,
	}
}

// memDelivery augments WebhookDelivery with scheduling state
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
	dedupKey      string
}

func key(tenantID, id string) string { return tenantID + "|" + id }

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) UpsertDriver(ctx context.Context, d model.Driver) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(d.TenantID, d.ID)
	if cur, ok := m.drivers[k]; ok && d.Position == nil {
		d.Position, d.PositionAt = cur.Position, cur.PositionAt
	}
	m.drivers[k] = d
	return d, nil
}

func (m *Memory) GetDriver(ctx context.Context, tenantID, driverID string) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[key(tenantID, driverID)]
	if !ok {
		return model.Driver{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) UpdateDriverPosition(ctx context.Context, tenantID, driverID string, pos model.Coordinate, at time.Time) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(tenantID, driverID)
	d, ok := m.drivers[k]
	if !ok {
		d = model.Driver{ID: driverID, TenantID: tenantID}
	}
	p := pos
	t := at.UTC()
	d.Position, d.PositionAt = &p, &t
	m.drivers[k] = d
	return d, nil
}

func (m *Memory) AssignOrder(ctx context.Context, tenantID, driverID string, in model.AssignmentIn) (model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[key(tenantID, driverID)]; !ok {
		return model.Assignment{}, ErrNotFound
	}
	if in.Status == "" {
		in.Status = model.StatusDriverAssigned
	}
	now := m.now().UTC()
	a := model.Assignment{AssignmentIn: in, TenantID: tenantID, DriverID: driverID, AssignedAt: now, UpdatedAt: now}
	if cur, ok := m.assignments[key(tenantID, in.OrderID)]; ok && cur.DriverID == driverID {
		a.AssignedAt = cur.AssignedAt
	}
	m.assignments[key(tenantID, in.OrderID)] = a
	return a, nil
}

func (m *Memory) ListActiveAssignments(ctx context.Context, tenantID, driverID string) ([]model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Assignment{}
	for _, a := range m.assignments {
		if a.TenantID == tenantID && a.DriverID == driverID && model.IsActiveStatus(a.Status) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].AssignedAt.Before(out[j].AssignedAt)
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out, nil
}

func (m *Memory) UpdateAssignmentStatus(ctx context.Context, tenantID, driverID, orderID, status string) (model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(tenantID, orderID)
	a, ok := m.assignments[k]
	if !ok || a.DriverID != driverID {
		return model.Assignment{}, ErrNotFound
	}
	if err := checkTransition(a.Status, status); err != nil {
		return a, err
	}
	a.Status = status
	a.UpdatedAt = m.now().UTC()
	m.assignments[k] = a
	return a, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := min(start+limit, len(list))
	items := append([]model.Subscription{}, list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	if len(out) == len(arr) {
		return ErrNotFound
	}
	m.subs[tenantID] = out
	return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dk := dedupIndex(tenantID, eventType, url, computeDedupKey(payload))
	if id, ok := m.dedup[dk]; ok {
		return id, nil
	}
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending},
		NextAttemptAt:   m.now(),
		dedupKey:        dk,
	}
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	m.order = append(m.order, id)
	m.dedup[dk] = id
	m.pruneDeliveries()
	return id, nil
}

func dedupIndex(tenantID, eventType, url, dedupKey string) string {
	return tenantID + "|" + eventType + "|" + url + "|" + dedupKey
}

// pruneDeliveries drops the oldest delivered and failed entries while the
// queue is over maxDeliveries. Pending and retrying deliveries are kept.
// Callers hold m.mu.
func (m *Memory) pruneDeliveries() {
	excess := len(m.order) - m.maxDeliveries
	if m.maxDeliveries <= 0 || excess <= 0 {
		return
	}
	dropped := map[string]struct{}{}
	kept := m.order[:0]
	for _, id := range m.order {
		d := m.deliveries[id]
		if len(dropped) < excess && (d.Status == DeliveryDelivered || d.Status == DeliveryFailed) {
			dropped[id] = struct{}{}
			delete(m.deliveries, id)
			delete(m.dedup, d.dedupKey)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	if len(dropped) == 0 {
		return
	}
	for tenant, ids := range m.deliveriesByTenant {
		live := ids[:0]
		for _, id := range ids {
			if _, gone := dropped[id]; !gone {
				live = append(live, id)
			}
		}
		if len(live) == 0 {
			delete(m.deliveriesByTenant, tenant)
			continue
		}
		m.deliveriesByTenant[tenant] = live
	}
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := m.now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = m.now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]DeliveryView, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	ids := m.deliveriesByTenant[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []DeliveryView{}
	next := ""
	for i := start; i < len(ids); i++ {
		d := m.deliveries[ids[i]]
		if status != "" && d.Status != status {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1].ID
			break
		}
		v := DeliveryView{ID: d.ID, EventType: d.EventType, Status: d.Status, Attempts: d.Attempts, URL: d.URL, LastError: d.LastError, ResponseCode: d.ResponseCode}
		if d.Status == DeliveryPending || d.Status == DeliveryRetry {
			at := d.NextAttemptAt
			v.NextAttemptAt = &at
		}
		out = append(out, v)
	}
	return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.Status = DeliveryPending
	d.NextAttemptAt = m.now()
	return nil
}
