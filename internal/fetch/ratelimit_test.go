package fetch

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock drives a Limiter deterministically: Sleep advances the clock
// instead of blocking.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)

	if d > 0 {
		c.now = c.now.Add(d)
	}

	return ctx.Err()
}

func newFakeLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}

	l := NewLimiter(limit, window)
	l.now = clock.Now
	l.sleep = clock.Sleep

	return l, clock
}

func TestLimiterWait_UnderCapacityNeverBlocks(t *testing.T) {
	l, clock := newFakeLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait() #%d failed: %v", i+1, err)
		}
	}

	if len(clock.sleeps) != 0 {
		t.Errorf("Wait() slept %v while under capacity", clock.sleeps)
	}

	if got := l.Size(); got != 3 {
		t.Errorf("Size() = %d, want 3", got)
	}
}

func TestLimiterWait_BlocksUntilOldestExitsWindow(t *testing.T) {
	l, clock := newFakeLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait() failed: %v", err)
		}
	}

	// Fourth request at capacity: the limiter must sleep exactly until the
	// oldest timestamp exits the trailing window.
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait() at capacity failed: %v", err)
	}

	if len(clock.sleeps) != 1 || clock.sleeps[0] != time.Minute {
		t.Errorf("sleeps = %v, want exactly [1m]", clock.sleeps)
	}
}

func TestLimiterWait_SlidingWindowContract(t *testing.T) {
	const (
		limit  = 3
		window = 10 * time.Second
	)

	l, clock := newFakeLimiter(limit, window)
	ctx := context.Background()

	// Requests arriving every second, three times the sustainable rate.
	var acquired []time.Time

	for i := 0; i < 12; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait() #%d failed: %v", i+1, err)
		}

		acquired = append(acquired, clock.now)
		clock.now = clock.now.Add(time.Second)
	}

	// No trailing window may hold more than limit acquisitions.
	for i, ti := range acquired {
		inWindow := 0

		for _, tj := range acquired {
			if tj.After(ti.Add(-window)) && !tj.After(ti) {
				inWindow++
			}
		}

		if inWindow > limit {
			t.Fatalf("trailing window ending at acquisition %d holds %d requests, limit %d", i, inWindow, limit)
		}
	}
}

func TestLimiterWait_ContextCancelled(t *testing.T) {
	l, _ := newFakeLimiter(1, time.Minute)

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Wait(ctx); err == nil {
		t.Error("Wait() = nil error with cancelled context while at capacity")
	}
}

func TestLimiterWait_DisabledLimit(t *testing.T) {
	l, clock := newFakeLimiter(0, time.Minute)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait() failed with disabled limit: %v", err)
		}
	}

	if len(clock.sleeps) != 0 {
		t.Errorf("disabled limiter slept %v", clock.sleeps)
	}
}

func TestLimiterWait_Concurrent(t *testing.T) {
	// Real clock, small window: 12 goroutines through a 4-per-50ms limiter.
	const (
		limit   = 4
		window  = 50 * time.Millisecond
		callers = 12
	)

	l := NewLimiter(limit, window)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		acquired []time.Time
		wg       sync.WaitGroup
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := l.Wait(ctx); err != nil {
				t.Errorf("Wait() failed: %v", err)
				return
			}

			mu.Lock()
			acquired = append(acquired, time.Now())
			mu.Unlock()
		}()
	}

	wg.Wait()

	if len(acquired) != callers {
		t.Fatalf("acquired %d slots, want %d", len(acquired), callers)
	}

	// Allow a little scheduling slack between Wait returning and the
	// timestamp being recorded.
	const slack = 5 * time.Millisecond

	for _, ti := range acquired {
		inWindow := 0

		for _, tj := range acquired {
			if tj.After(ti.Add(-window+slack)) && !tj.After(ti) {
				inWindow++
			}
		}

		if inWindow > limit {
			t.Fatalf("trailing window holds %d concurrent acquisitions, limit %d", inWindow, limit)
		}
	}
}
