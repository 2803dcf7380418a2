package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeeta/internal/model"
	"routeeta/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []failRec
}

type markRec struct {
	ID      string
	Success bool
	Code    int
	LastErr string
}

type failRec struct {
	ID      string
	Code    int
	LastErr string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}

func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, failRec{ID: id, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnceSuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 3)
	w.HTTP = srv.Client()
	id, err := rs.EnqueueWebhook(t.Context(), "t1", "", EventRouteUpdated, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	w.processOnce(t.Context())

	assert.Equal(t, EventRouteUpdated, gotType)
	assert.True(t, VerifyHMAC("secret", gotBody, gotSig))
	require.Len(t, rs.marks, 1)
	assert.True(t, rs.marks[0].Success)
}

func TestWorkerProcessOnceRetryThenDeadLetter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 2)
	w.HTTP = srv.Client()
	id, err := rs.EnqueueWebhook(t.Context(), "t1", "", EventRouteUpdated, srv.URL, "", []byte(`{}`))
	require.NoError(t, err)

	w.processOnce(t.Context())
	require.Len(t, rs.marks, 1)
	assert.False(t, rs.marks[0].Success)
	assert.Equal(t, 500, rs.marks[0].Code)
	assert.Contains(t, rs.marks[0].LastErr, "500")

	require.NoError(t, rs.RetryWebhookDelivery(t.Context(), "t1", id))
	w.processOnce(t.Context())
	require.Len(t, rs.fails, 1)
	assert.Equal(t, id, rs.fails[0].ID)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	w := NewWorker(store.NewMemory(), 1)
	w.Interval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestPublisherEmit(t *testing.T) {
	mem := store.NewMemory()
	ctx := t.Context()
	p := NewPublisher(mem)

	n, err := p.Emit(ctx, "t1", EventRouteUpdated, map[string]any{"driverId": "d1"})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = mem.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://a", Events: []string{EventRouteUpdated}, Secret: "s"})
	require.NoError(t, err)
	_, err = mem.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://b", Events: []string{EventRouteOptimized}})
	require.NoError(t, err)

	n, err = p.Emit(ctx, "t1", EventRouteUpdated, map[string]any{"driverId": "d1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	due, err := mem.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "https://a", due[0].URL)
	assert.Equal(t, "s", due[0].Secret)

	var ev Event
	require.NoError(t, json.Unmarshal(due[0].Payload, &ev))
	assert.Equal(t, EventRouteUpdated, ev.Type)
	assert.Equal(t, "t1", ev.TenantID)
	assert.Contains(t, ev.ID, "evt_")
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, time.Second, nextBackoff(-1))
	assert.Equal(t, 8*time.Second, nextBackoff(3))
	assert.Equal(t, 1024*time.Second, nextBackoff(50))
}

func TestSignVerify(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := SignHMAC("k", body)
	assert.True(t, VerifyHMAC("k", body, sig))
	assert.False(t, VerifyHMAC("other", body, sig))
	assert.False(t, VerifyHMAC("k", body, "zz"))
}
