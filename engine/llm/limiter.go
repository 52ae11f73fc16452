package llm

import (
	"context"
	"math"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter throttles model calls shared by every role.
type Limiter struct {
	sem  *semaphore.Weighted
	rate *rate.Limiter
}

// NewLimiter returns nil when both limits are disabled.
func NewLimiter(maxConcurrency int, requestsPerSecond float64) *Limiter {
	if maxConcurrency <= 0 && requestsPerSecond <= 0 {
		return nil
	}
	l := &Limiter{}
	if maxConcurrency > 0 {
		l.sem = semaphore.NewWeighted(int64(maxConcurrency))
	}
	if requestsPerSecond > 0 {
		burst := int(math.Ceil(requestsPerSecond))
		l.rate = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return l
}

// Acquire blocks until a slot is available. The returned func releases it.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	release := func() {
		if l.sem != nil {
			l.sem.Release(1)
		}
	}
	if l.rate != nil {
		if err := l.rate.Wait(ctx); err != nil {
			release()
			return nil, err
		}
	}
	return release, nil
}
