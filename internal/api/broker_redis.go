package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so every API replica
// sees route updates made on any other.
type RedisBroker struct {
	rdb *redis.Client
	mu  sync.Mutex
	ps  map[chan StreamEvent]*redis.PubSub
}

// NewRedisBroker connects to url (redis://...) and checks the connection.
func NewRedisBroker(ctx context.Context, url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisBroker{rdb: rdb, ps: map[chan StreamEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(topic string) chan StreamEvent {
	ch := make(chan StreamEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(topic))
	// wait for the subscription confirmation so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("redis subscribe")
	}
	b.mu.Lock()
	b.ps[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt StreamEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

// Unsubscribe closes the Redis subscription; the forwarding goroutine then closes ch.
func (b *RedisBroker) Unsubscribe(topic string, ch chan StreamEvent) {
	b.mu.Lock()
	ps := b.ps[ch]
	delete(b.ps, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(topic string, evt StreamEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, b.chanName(topic), data).Err(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("redis publish")
	}
}

// Ping reports whether Redis is reachable.
func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) chanName(topic string) string { return "driver:" + topic }
