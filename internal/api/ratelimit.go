package api

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	// CleanupInterval is how often idle visitors are swept; a visitor idle
	// for three intervals is forgotten.
	CleanupInterval time.Duration
	// TrustedProxies lists the peers whose X-Forwarded-For header is believed.
	TrustedProxies []netip.Prefix
	now            func() time.Time
}

// NewRateLimiter returns a limiter allowing rps requests per second with the
// given burst per client. rps <= 0 returns nil, which disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		visitors:        map[string]*visitor{},
		limit:           rate.Limit(rps),
		burst:           burst,
		CleanupInterval: time.Minute,
		now:             time.Now,
	}
}

// Allow reports whether the client identified by key may proceed now.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	now := l.now()
	v.lastSeen = now
	l.mu.Unlock()
	return v.limiter.AllowN(now, 1)
}

// Run sweeps idle visitors until ctx is done.
func (l *RateLimiter) Run(ctx context.Context) error {
	t := time.NewTicker(l.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			l.sweep()
		}
	}
}

func (l *RateLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-3 * l.CleanupInterval)
	for k, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, k)
		}
	}
}

func (l *RateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Key identifies the caller of r. X-Forwarded-For is only read when the
// direct peer is a trusted proxy; hops are walked right to left and the first
// address that is not itself a trusted proxy is the client.
func (l *RateLimiter) Key(r *http.Request) string {
	remote := remoteIP(r)
	addr, err := netip.ParseAddr(remote)
	if err != nil || !l.trusted(addr) {
		return remote
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		if !l.trusted(hop) {
			return hop.String()
		}
	}
	return remote
}

func (l *RateLimiter) trusted(a netip.Addr) bool {
	a = a.Unmap()
	for _, p := range l.TrustedProxies {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
