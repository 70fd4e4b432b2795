package httpclient

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxTrackedHosts = 256

type hostLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// HostLimiter throttles outgoing requests per destination host.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*hostLimiter
	rate     rate.Limit
	burst    int
}

// NewHostLimiter creates a limiter allowing perSecond requests per host.
// A non-positive rate disables limiting.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*hostLimiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || l.rate <= 0 {
		return nil
	}
	return l.get(host).Wait(ctx)
}

func (l *HostLimiter) get(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if hl, ok := l.limiters[host]; ok {
		hl.lastSeen = now
		return hl.limiter
	}

	// Stale hosts are pruned lazily; there is no background sweeper.
	if len(l.limiters) >= maxTrackedHosts {
		for h, hl := range l.limiters {
			if now.Sub(hl.lastSeen) > 5*time.Minute {
				delete(l.limiters, h)
			}
		}
	}

	limiter := rate.NewLimiter(l.rate, l.burst)
	l.limiters[host] = &hostLimiter{limiter: limiter, lastSeen: now}
	return limiter
}
