package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/macrosync-io/macrosync/internal/catalog"
)

const (
	// defaultMaxAttempts is the total attempt budget, first try included.
	defaultMaxAttempts = 3

	// defaultBaseWait seeds the exponential backoff schedule.
	defaultBaseWait = 2 * time.Second
)

type (
	// Op is one fetch attempt. Implementations return an empty batch, not an
	// error, when the upstream simply has no new data; errors are reserved
	// for real failures and should carry a structured category.
	Op func(ctx context.Context) (catalog.Batch, error)

	// Executor runs a fetch op under the source's rate limiter and a
	// category-driven retry policy.
	//
	// Policy: up to maxAttempts total attempts. A failure with a retryable
	// category (rate-limited, transient server) waits baseWait * 2^k before
	// attempt k+2 (k counts failures from zero), so with the default budget
	// of 3 the waits are baseWait and 2*baseWait. Client errors and
	// unclassified failures abort immediately. The rate limiter gates every
	// attempt, retries included, independently of the backoff waits.
	Executor struct {
		limiter     *Limiter
		maxAttempts int
		baseWait    time.Duration
		logger      *slog.Logger

		// timer overrides the backoff wait timer in tests. Nil selects the
		// real timer.
		timer backoff.Timer
	}
)

// NewExecutor creates an Executor. A nil limiter disables rate limiting.
// Non-positive maxAttempts or baseWait select the defaults (3 attempts,
// 2s base wait).
func NewExecutor(limiter *Limiter, maxAttempts int, baseWait time.Duration, logger *slog.Logger) *Executor {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}

	if baseWait <= 0 {
		baseWait = defaultBaseWait
	}

	return &Executor{
		limiter:     limiter,
		maxAttempts: maxAttempts,
		baseWait:    baseWait,
		logger:      logger,
	}
}

// Do runs op until it succeeds, exhausts the attempt budget, or fails with a
// non-retryable category. The returned error keeps the structured fetch
// error in its chain so callers can still classify it.
func (e *Executor) Do(ctx context.Context, source string, op Op) (catalog.Batch, error) {
	var (
		result   catalog.Batch
		attempts int
	)

	operation := func() error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		attempts++

		e.logger.Debug("issuing fetch request",
			slog.String("source", source),
			slog.String("state", StateRequesting.String()),
			slog.Int("attempt", attempts),
		)

		batch, err := op(ctx)
		if err == nil {
			result = batch

			return nil
		}

		if !CategoryOf(err).Retryable() {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, wait time.Duration) {
		e.logger.Warn("fetch attempt failed, backing off",
			slog.String("source", source),
			slog.String("state", StateWaiting.String()),
			slog.String("category", CategoryOf(err).String()),
			slog.Int("attempt", attempts),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	schedule := &exponentialSchedule{base: e.baseWait, maxAttempts: e.maxAttempts}

	err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(schedule, ctx), notify, e.timer)
	if err != nil {
		e.logger.Error("fetch aborted",
			slog.String("source", source),
			slog.String("state", StateAborted.String()),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)

		return catalog.Batch{}, fmt.Errorf("after %d attempt(s): %w", attempts, err)
	}

	e.logger.Debug("fetch succeeded",
		slog.String("source", source),
		slog.String("state", StateSucceeded.String()),
		slog.Int("attempts", attempts),
		slog.Int("rows", result.Len()),
	)

	return result, nil
}

// exponentialSchedule emits baseWait * 2^k after the k-th failure (k from
// zero) and stops once the total attempt budget is spent. It implements
// backoff.BackOff.
type exponentialSchedule struct {
	base        time.Duration
	maxAttempts int
	failures    int
}

// NextBackOff returns the wait before the next attempt, or backoff.Stop when
// the budget is exhausted.
func (s *exponentialSchedule) NextBackOff() time.Duration {
	s.failures++

	if s.failures >= s.maxAttempts {
		return backoff.Stop
	}

	return s.base * time.Duration(1<<(s.failures-1))
}

// Reset restarts the schedule for a fresh fetch.
func (s *exponentialSchedule) Reset() {
	s.failures = 0
}
