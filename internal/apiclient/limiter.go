package apiclient

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum spacing between requests to each upstream host.
// One Limiter is shared by every Client in the process, so the spacing holds
// no matter which endpoint or stage issues the request.
type Limiter struct {
	mu        sync.Mutex
	hosts     map[string]*rate.Limiter
	interval  time.Duration
	overrides map[string]time.Duration
}

// NewLimiter creates a limiter allowing one request per interval per host.
// An interval of zero disables limiting.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{
		hosts:     make(map[string]*rate.Limiter),
		interval:  interval,
		overrides: make(map[string]time.Duration),
	}
}

// SetInterval configures a different spacing for one host. It must be called
// before the first request to that host.
func (l *Limiter) SetInterval(host string, interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[host] = interval
	delete(l.hosts, host)
}

// Interval returns the spacing applied to host.
func (l *Limiter) Interval(host string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := l.overrides[host]; ok {
		return d
	}
	return l.interval
}

// getHost returns the limiter for host, creating it if necessary.
func (l *Limiter) getHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.hosts[host]; ok {
		return lim
	}
	interval := l.interval
	if d, ok := l.overrides[host]; ok {
		interval = d
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	lim := rate.NewLimiter(limit, 1)
	l.hosts[host] = lim
	return lim
}

// Wait blocks until a request to host may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if l == nil {
		return ctx.Err()
	}
	return l.getHost(host).Wait(ctx)
}
