package fetch

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a source's published request contract ("no more than 120
// requests per 60 seconds") with a sliding-window log.
//
// Unlike a token bucket, the sliding window gives a hard guarantee: after any
// call to Wait returns, the count of recorded requests inside the trailing
// window never exceeds the limit. Sources publish their contracts in exactly
// these terms, so the limiter enforces them in the same terms.
//
// A Limiter is safe for concurrent use. The window state is guarded by a
// mutex; blocked waiters release it while sleeping and re-check on wakeup.
type Limiter struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	stamps []time.Time

	// Injection points for tests. Production limiters use the real clock.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a sliding-window limiter allowing at most limit
// requests per window. A limit of zero or less disables limiting.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, max(limit, 0)),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Wait blocks until issuing one more request keeps the trailing window under
// the limit, then records the request. It returns early with the context's
// error if ctx is cancelled while blocked.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.limit <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()

	for {
		now := l.now()
		l.prune(now)

		if len(l.stamps) < l.limit {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()

			return nil
		}

		// At capacity: the oldest in-window request exits the window at
		// stamp+window. Sleep without holding the lock, then re-check.
		wait := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}

		l.mu.Lock()
	}
}

// Size reports how many requests are currently inside the trailing window.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())

	return len(l.stamps)
}

// prune drops timestamps that have exited the trailing window.
// Callers must hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)

	expired := 0
	for expired < len(l.stamps) && !l.stamps[expired].After(cutoff) {
		expired++
	}

	if expired > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[expired:]...)
	}
}

// sleepContext sleeps for d or until ctx is cancelled, whichever comes
// first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
