package retry_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"storyreel/internal/retry"
	"storyreel/internal/services"
)

func recordingPolicy(base retry.Policy, delays *[]time.Duration) retry.Policy {
	base.Sleep = func(_ context.Context, delay time.Duration) error {
		*delays = append(*delays, delay)
		return nil
	}
	return base
}

func TestDoRetriesTransientFailures(t *testing.T) {
	var delays []time.Duration
	policy := recordingPolicy(retry.Policy{
		MaxAttempts: 4,
		BaseDelay:   5 * time.Second,
		MaxDelay:    30 * time.Second,
	}, &delays)

	calls := 0
	err := retry.Do(context.Background(), policy, nil, "rewrite", func(context.Context) error {
		calls++
		if calls < 3 {
			return services.Wrap(services.ErrTransient, "rewrite", "chat", "rate limited", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}

	want := []time.Duration{5 * time.Second, 10 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), delays)
	}
	for i, delay := range delays {
		if delay != want[i] {
			t.Fatalf("delay %d: got %v want %v", i, delay, want[i])
		}
	}
}

func TestDoCapsBackoffAtMaxDelay(t *testing.T) {
	var delays []time.Duration
	policy := recordingPolicy(retry.Policy{
		MaxAttempts: 6,
		BaseDelay:   10 * time.Second,
		MaxDelay:    60 * time.Second,
	}, &delays)

	err := retry.Do(context.Background(), policy, nil, "upload", func(context.Context) error {
		return services.Wrap(services.ErrTransient, "publish", "upload", "server error", nil)
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if !strings.Contains(err.Error(), "failed after 6 attempts") {
		t.Fatalf("unexpected error: %v", err)
	}
	if services.Classify(err) != services.KindTransient {
		t.Fatalf("exhaustion must preserve classification, got %v", err)
	}

	want := []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), delays)
	}
	for i, delay := range delays {
		if delay != want[i] {
			t.Fatalf("delay %d: got %v want %v", i, delay, want[i])
		}
	}
}

func TestDoDoesNotRetryNonTransientErrors(t *testing.T) {
	var delays []time.Duration
	policy := recordingPolicy(retry.RewritePolicy, &delays)

	wrapped := services.Wrap(services.ErrValidation, "source", "fetch", "too short", nil)
	calls := 0
	err := retry.Do(context.Background(), policy, nil, "fetch", func(context.Context) error {
		calls++
		return wrapped
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error back, got %v", err)
	}
	if calls != 1 || len(delays) != 0 {
		t.Fatalf("expected single attempt with no sleeps, got calls=%d delays=%v", calls, delays)
	}
}

func TestDoStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry.Do(ctx, retry.RewritePolicy, nil, "fetch", func(context.Context) error {
		calls++
		cancel()
		return services.Wrap(services.ErrTransient, "source", "fetch", "timeout", nil)
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoQuotaErrorsAreTerminal(t *testing.T) {
	var delays []time.Duration
	policy := recordingPolicy(retry.PublishPolicy, &delays)

	err := retry.Do(context.Background(), policy, nil, "upload", func(context.Context) error {
		return services.Wrap(services.ErrQuotaExhausted, "publish", "upload", "daily quota reached", nil)
	})
	if !errors.Is(err, services.ErrQuotaExhausted) {
		t.Fatalf("expected quota error back, got %v", err)
	}
	if len(delays) != 0 {
		t.Fatalf("quota errors must not be retried, slept %v", delays)
	}
}
