// Package ratelimit implements fixed-window request counting with pluggable
// storage. The in-process store only approximates the limit per instance;
// deployments that need a hard limit across instances use the Redis store.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Store is a fixed-window counter backend. Increment must be atomic: two
// concurrent calls for the same key may never observe the same count.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// RetryAfterSeconds rounds the retry hint up to whole seconds for the
// Retry-After response header.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

type Limiter struct {
	store  Store
	max    int
	window time.Duration
}

func New(store Store, max int, window time.Duration) *Limiter {
	return &Limiter{store: store, max: max, window: window}
}

// Check counts one request against key. A store error is returned alongside
// an allowing decision so callers can fail open; a blocked decision carries
// the time until the window resets.
func (l *Limiter) Check(ctx context.Context, key string) (Decision, error) {
	count, resetAt, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		return Decision{Allowed: true, Limit: l.max}, fmt.Errorf("ratelimit.Check: %w", err)
	}

	d := Decision{Limit: l.max, ResetAt: resetAt}
	if remaining := int64(l.max) - count; remaining > 0 {
		d.Remaining = int(remaining)
	}

	if count > int64(l.max) {
		d.RetryAfter = time.Until(resetAt)
		return d, nil
	}

	d.Allowed = true
	return d, nil
}
