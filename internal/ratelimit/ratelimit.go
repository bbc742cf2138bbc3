// Package ratelimit bounds outbound calls to each backend endpoint so a
// single overloaded replica cannot starve the primary's retry budget
// (SPEC_FULL.md §4.13). One golang.org/x/time/rate.Limiter is kept per
// distinct key; the resolvers key it by protocol plus the S3 endpoint URL
// or the Swift auth URL.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiters is a keyed registry of per-backend token buckets.
type Limiters struct {
	mu       sync.Mutex
	byKey    map[string]*rate.Limiter
}

// New builds an empty limiter registry.
func New() *Limiters {
	return &Limiters{byKey: make(map[string]*rate.Limiter)}
}

// Wait blocks until a request may proceed against the backend identified
// by key, honoring ctx cancellation. ratePerSecond<=0 means unlimited.
func (l *Limiters) Wait(ctx context.Context, key string, ratePerSecond float64) error {
	if ratePerSecond <= 0 {
		return nil
	}

	l.mu.Lock()
	lim, ok := l.byKey[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(ratePerSecond), burstFor(ratePerSecond))
		l.byKey[key] = lim
	}
	l.mu.Unlock()

	return lim.Wait(ctx)
}

func burstFor(ratePerSecond float64) int {
	b := int(ratePerSecond)
	if b < 1 {
		return 1
	}
	return b
}
