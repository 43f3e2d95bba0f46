// Package ratelimit throttles requests per upstream host.
package ratelimit

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter hands out one token bucket per source, created on first use.
type MultiLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// New returns a limiter allowing rps requests per second per source. A
// non-positive rps disables limiting.
func New(rps float64, burst int) *MultiLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      limit,
		burst:    burst,
	}
}

// Get returns the bucket for source.
func (m *MultiLimiter) Get(source string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[source]
	if !ok {
		l = rate.NewLimiter(m.rps, m.burst)
		m.limiters[source] = l
	}
	return l
}

// Wait blocks until source may send another request or ctx is done.
func (m *MultiLimiter) Wait(ctx context.Context, source string) error {
	if m == nil {
		return nil
	}
	return m.Get(source).Wait(ctx)
}

// Host extracts the host of rawURL to use as a source key. Unparseable
// input is returned unchanged.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
