package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = time.Minute
	clientExpiration       = 5 * time.Minute
)

type clientState struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter keeps one token bucket per client address. A zero QPS
// disables limiting.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientState
	qps     rate.Limit
	burst   int
}

func NewClientLimiter(qps float64, burst int) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		clients: make(map[string]*clientState),
		qps:     rate.Limit(qps),
		burst:   burst,
	}
}

func (l *ClientLimiter) Enabled() bool {
	return l != nil && l.qps > 0
}

func (l *ClientLimiter) Allow(client string) bool {
	if !l.Enabled() {
		return true
	}
	l.mu.Lock()
	state, exists := l.clients[client]
	if !exists {
		state = &clientState{limiter: rate.NewLimiter(l.qps, l.burst)}
		l.clients[client] = state
	}
	state.lastSeen = time.Now()
	l.mu.Unlock()
	return state.limiter.Allow()
}

// StartCleanupRoutine removes idle client buckets until ctx is done.
func (l *ClientLimiter) StartCleanupRoutine(ctx context.Context) {
	if !l.Enabled() {
		return
	}
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := l.cleanup(time.Now()); removed > 0 {
				slog.Debug("Cleaned up idle client limiters", "count", removed)
			}
		}
	}
}

func (l *ClientLimiter) cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for client, state := range l.clients {
		if now.Sub(state.lastSeen) > clientExpiration {
			delete(l.clients, client)
			removed++
		}
	}
	return removed
}
