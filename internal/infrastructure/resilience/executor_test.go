package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/codesearch/internal/core/domain"
)

func fastPolicy() Policy {
	return Policy{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Multiplier:     2,
		},
	}
}

func TestDoRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(fastPolicy())

	attempts := 0
	err := exec.Do(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return domain.WrapError(domain.ErrTemporary, "call", errors.New("503"))
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastPolicy())

	attempts := 0
	errPermanent := errors.New("bad request")
	err := exec.Do(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, nil)
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoReturnsLastErrorWhenAttemptsExhausted(t *testing.T) {
	exec := NewExecutor(fastPolicy())

	attempts := 0
	err := exec.Do(context.Background(), "op", func(context.Context) error {
		attempts++
		return domain.WrapError(domain.ErrTemporary, "call", errors.New("timeout"))
	}, nil)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoStopsOnCanceledContext(t *testing.T) {
	exec := NewExecutor(fastPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Do(ctx, "op", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatalf("operation must not run after cancellation")
	}
}

func TestDoOpensCircuitAfterFailures(t *testing.T) {
	policy := fastPolicy()
	policy.Retry.MaxAttempts = 1
	policy.Breaker = BreakerPolicy{
		Enabled:       true,
		MinRequests:   2,
		FailureRatio:  0.5,
		OpenTimeout:   time.Minute,
		HalfOpenCalls: 1,
	}
	exec := NewExecutor(policy)

	errDown := domain.WrapError(domain.ErrTemporary, "call", errors.New("503"))
	for i := 0; i < 2; i++ {
		err := exec.Do(context.Background(), "op", func(context.Context) error {
			return errDown
		}, nil)
		if !errors.Is(err, errDown) {
			t.Fatalf("expected backend error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Do(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}

	if err := exec.Do(context.Background(), "other", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("breakers must be per operation, got %v", err)
	}
}

func TestCanceledCallsDoNotTripBreaker(t *testing.T) {
	policy := fastPolicy()
	policy.Retry.MaxAttempts = 1
	policy.Breaker = BreakerPolicy{Enabled: true, MinRequests: 1, FailureRatio: 0.1, OpenTimeout: time.Minute, HalfOpenCalls: 1}
	exec := NewExecutor(policy)

	for i := 0; i < 3; i++ {
		_ = exec.Do(context.Background(), "op", func(context.Context) error {
			return context.Canceled
		}, nil)
	}
	if err := exec.Do(context.Background(), "op", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("expected closed breaker, got %v", err)
	}
}

func TestPermanentFailuresDoNotTripBreaker(t *testing.T) {
	policy := fastPolicy()
	policy.Retry.MaxAttempts = 1
	policy.Breaker = BreakerPolicy{Enabled: true, MinRequests: 1, FailureRatio: 0.1, OpenTimeout: time.Minute, HalfOpenCalls: 1}
	exec := NewExecutor(policy)

	errRejected := errors.New("400 context length exceeded")
	for i := 0; i < 5; i++ {
		err := exec.Do(context.Background(), "op", func(context.Context) error {
			return errRejected
		}, nil)
		if !errors.Is(err, errRejected) {
			t.Fatalf("call %d: expected backend error, got %v", i, err)
		}
	}
	if err := exec.Do(context.Background(), "op", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("expected closed breaker, got %v", err)
	}
}

func TestClassifyTemporary(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Outcome
	}{
		{name: "temporary", err: domain.WrapError(domain.ErrTemporary, "call", errors.New("429")), want: Outcome{Retry: true, Trip: true}},
		{name: "deadline", err: context.DeadlineExceeded, want: Outcome{Trip: true}},
		{name: "canceled", err: context.Canceled, want: Outcome{}},
		{name: "permanent", err: errors.New("400 bad request"), want: Outcome{}},
	}
	for _, tc := range cases {
		if got := ClassifyTemporary(tc.err); got != tc.want {
			t.Fatalf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestRateLimiterSpacesAttempts(t *testing.T) {
	policy := fastPolicy()
	policy.RequestsPerSecond = 50
	policy.Burst = 1
	exec := NewExecutor(policy)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := exec.Do(context.Background(), "op", func(context.Context) error { return nil }, nil); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("expected limiter to space calls, took %s", elapsed)
	}
}

func TestPolicyDefaults(t *testing.T) {
	p := Policy{RequestsPerSecond: 2}.withDefaults()
	if p.Retry.MaxAttempts != DefaultPolicy().Retry.MaxAttempts {
		t.Fatalf("expected default attempts, got %d", p.Retry.MaxAttempts)
	}
	if p.Burst != 1 {
		t.Fatalf("expected burst 1 when limiter enabled, got %d", p.Burst)
	}
	if p.Retry.MaxBackoff < p.Retry.InitialBackoff {
		t.Fatalf("max backoff below initial backoff")
	}
}
