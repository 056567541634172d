package worker

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter rate-limits calls per remote host, so that a batch fanning out over
// many images does not exceed a model provider's request budget.
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter allowing requestsPerSecond per host. A rate of
// zero or less disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Wait blocks until a call to target is allowed. target is a URL or a bare host.
func (l *Limiter) Wait(ctx context.Context, target string) error {
	if l == nil {
		return ctx.Err()
	}
	host, err := hostOf(target)
	if err != nil {
		return err
	}
	return l.get(host).Wait(ctx)
}

func (l *Limiter) get(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[host]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[host] = limiter
	return limiter
}

// hostOf returns the host of a URL, or target itself when it has no scheme
func hostOf(target string) (string, error) {
	if !strings.Contains(target, "://") {
		return strings.ToLower(strings.TrimSpace(target)), nil
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	return strings.ToLower(parsed.Host), nil
}
