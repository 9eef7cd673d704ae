package rembg

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds the number of in-flight removals. Callers that cannot get
// a slot within the queue timeout fail with ErrBusy.
type Limiter struct {
	sem          *semaphore.Weighted
	queueTimeout time.Duration
}

func NewLimiter(maxConcurrent int, queueTimeout time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
		queueTimeout: queueTimeout,
	}
}

// Acquire takes a slot. A zero queue timeout means fail fast.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.queueTimeout <= 0 {
		if !l.sem.TryAcquire(1) {
			return ErrBusy
		}
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.queueTimeout)
	defer cancel()
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrBusy
		}
		return err
	}
	return nil
}

func (l *Limiter) Release() {
	l.sem.Release(1)
}
