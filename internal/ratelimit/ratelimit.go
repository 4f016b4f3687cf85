// Package ratelimit throttles outbound feed fetches per host so that a
// source hosting several feeds is not hammered in one pass.
package ratelimit

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

type Limiter struct {
	mu      sync.Mutex
	perHost map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func New(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		perHost: make(map[string]*rate.Limiter),
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
	}
}

// Wait blocks until the host of rawURL may be contacted again, or ctx
// is done. Unparseable URLs share a single bucket.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return l.limiterFor(host).Wait(ctx)
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.perHost[host]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.perHost[host] = lim
	}
	return lim
}
