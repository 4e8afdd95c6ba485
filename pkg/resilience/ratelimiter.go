package resilience

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter hands out one token bucket per host so that every task hitting
// the same origin shares a request budget.
type HostLimiter struct {
	mu     sync.Mutex
	rate   rate.Limit
	burst  int
	byHost map[string]*rate.Limiter
}

// NewHostLimiter allows perSecond requests per host with the given burst.
// A non-positive perSecond disables limiting.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{rate: limitOf(perSecond), burst: burst, byHost: make(map[string]*rate.Limiter)}
}

// SetRate gives host its own budget of perSecond requests, replacing the
// default rate. A non-positive perSecond lifts the limit for host.
func (h *HostLimiter) SetRate(host string, perSecond float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byHost[strings.ToLower(host)] = rate.NewLimiter(limitOf(perSecond), h.burst)
}

func limitOf(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

// Wait blocks until a request to rawURL's host may proceed.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if h == nil {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return h.limiter(strings.ToLower(u.Host)).Wait(ctx)
}

// Allow reports whether a request to host may proceed now, consuming a token
// if so.
func (h *HostLimiter) Allow(host string) bool {
	if h == nil {
		return true
	}
	return h.limiter(strings.ToLower(host)).Allow()
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.byHost[host]
	if !ok {
		l = rate.NewLimiter(h.rate, h.burst)
		h.byHost[host] = l
	}
	return l
}
