// Package throttle paces outbound probing. Two independent brakes: a
// global cap on concurrent SMTP dialogs, and a per-domain minimum
// interval so one batch cannot hammer a single MX. Both are soft
// anti-abuse posture, not delivery guarantees.
package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// maxTrackedDomains bounds the limiter map. Crossing it resets the map:
// losing pacing state briefly is cheaper than unbounded growth.
const maxTrackedDomains = 4096

// Throttle gates probe starts. The zero value is unusable; call New.
type Throttle struct {
	sem      *semaphore.Weighted
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds a Throttle. maxConcurrent <= 0 means unbounded concurrency;
// perDomainInterval <= 0 means no per-domain pacing.
func New(maxConcurrent int, perDomainInterval time.Duration) *Throttle {
	t := &Throttle{
		interval: perDomainInterval,
		limiters: make(map[string]*rate.Limiter),
	}
	if maxConcurrent > 0 {
		t.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return t
}

// Acquire blocks until the domain's pacing slot and a global concurrency
// slot are both available. The returned release func must be called when
// the probe finishes; it is safe to call exactly once.
func (t *Throttle) Acquire(ctx context.Context, domain string) (func(), error) {
	if t.interval > 0 {
		if err := t.limiter(domain).Wait(ctx); err != nil {
			return nil, err
		}
	}
	if t.sem != nil {
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		return func() { t.sem.Release(1) }, nil
	}
	return func() {}, nil
}

func (t *Throttle) limiter(domain string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.limiters) > maxTrackedDomains {
		t.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := t.limiters[domain]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters[domain] = l
	}
	return l
}
