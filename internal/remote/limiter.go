package remote

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter caps the number of remote calls in flight across all conversations.
type Limiter struct {
	sem  *semaphore.Weighted
	size int
}

// NewLimiter returns a limiter with n slots. n below 1 is treated as 1.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release returns a slot.
func (l *Limiter) Release() {
	l.sem.Release(1)
}

// Size returns the number of slots.
func (l *Limiter) Size() int { return l.size }
