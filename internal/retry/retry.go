// Package retry provides bounded exponential backoff for calls to external
// collaborators. Each collaborator class carries its own delay window; only
// transient failures are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storyreel/internal/logging"
	"storyreel/internal/services"
)

// Sleeper performs retry waits. Tests substitute one that records delays.
type Sleeper func(ctx context.Context, delay time.Duration) error

// Policy bounds retries for one collaborator class.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Sleep overrides how waits happen. Nil means a context-aware timer.
	Sleep Sleeper
}

// Delay windows per collaborator class. Content sources rate limit hard, so
// they wait the longest before the first retry.
var (
	SourcePolicy  = Policy{MaxAttempts: 5, BaseDelay: 30 * time.Second, MaxDelay: 60 * time.Second}
	RewritePolicy = Policy{MaxAttempts: 5, BaseDelay: 5 * time.Second, MaxDelay: 30 * time.Second}
	SpeechPolicy  = Policy{MaxAttempts: 5, BaseDelay: 5 * time.Second, MaxDelay: 30 * time.Second}
	StoragePolicy = Policy{MaxAttempts: 5, BaseDelay: 10 * time.Second, MaxDelay: 60 * time.Second}
	PublishPolicy = Policy{MaxAttempts: 5, BaseDelay: 10 * time.Second, MaxDelay: 60 * time.Second}
)

// Do invokes fn until it succeeds, the error is not transient, or attempts
// run out. Non-transient errors come back unchanged so callers can classify
// them; an exhausted transient error is wrapped with the attempt count.
func Do(ctx context.Context, policy Policy, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	attempts := policy.attempts()
	if logger == nil {
		logger = logging.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(ctx, err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := policy.backoff(attempt)
		logger.Warn("retrying after transient failure",
			logging.String("operation", op),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if sleepErr := policy.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return services.Classify(err) == services.KindTransient
}

// backoff doubles the base delay per attempt, capped at MaxDelay.
func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		return 0
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = base
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, delay)
	}
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
