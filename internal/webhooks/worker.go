package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"routeeta/internal/metrics"
	"routeeta/internal/store"
)

type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	MaxAttempts int
	Interval    time.Duration
	BatchSize   int
}

func NewWorker(s store.Store, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Worker{
		Store:       s,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		MaxAttempts: maxAttempts,
		Interval:    time.Second,
		BatchSize:   50,
	}
}

// Run polls for due deliveries until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	log.Info().Int("max_attempts", w.MaxAttempts).Msg("webhook worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("webhook worker stopped")
			return nil
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) processOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()
	batch := w.BatchSize
	if batch <= 0 {
		batch = 50
	}
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, batch)
	if err != nil {
		log.Error().Err(err).Msg("fetch due webhook deliveries")
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	success := false
	code := 0
	lastErr := ""
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err == nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-Type", it.EventType)
		req.Header.Set("X-Delivery-Id", it.ID)
		req.Header.Set("X-Delivery-Attempt", strconv.Itoa(it.Attempts+1))
		if it.Secret != "" {
			req.Header.Set("X-Signature", SignHMAC(it.Secret, it.Payload))
		}
		var resp *http.Response
		resp, err = w.HTTP.Do(req)
		if err == nil {
			code = resp.StatusCode
			_ = resp.Body.Close()
			success = code >= 200 && code < 300
			if !success {
				lastErr = fmt.Sprintf("unexpected status %d", code)
			}
		}
	}
	if err != nil {
		lastErr = err.Error()
	}
	latency := int(time.Since(start).Milliseconds())

	status := store.DeliveryDelivered
	switch {
	case success:
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
	case it.Attempts+1 >= w.MaxAttempts:
		status = store.DeliveryFailed
		err = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
		log.Warn().Str("delivery_id", it.ID).Str("event_type", it.EventType).Int("attempts", it.Attempts+1).Str("error", lastErr).Msg("webhook delivery dead-lettered")
	default:
		status = store.DeliveryRetry
		next := time.Now().Add(nextBackoff(it.Attempts))
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
	}
	if err != nil {
		log.Error().Err(err).Str("delivery_id", it.ID).Msg("record webhook delivery outcome")
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
