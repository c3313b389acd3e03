// Package resilience wraps outbound calls with rate limiting, retries and circuit breakers.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/kirillkom/codesearch/internal/core/domain"
)

// Outcome tells the executor how to treat a failed attempt.
type Outcome struct {
	Retry bool
	// Trip counts the failure against the circuit breaker.
	Trip bool
}

type Classifier func(err error) Outcome

// ClassifyTemporary retries errors wrapped with domain.ErrTemporary. Only
// temporary failures and deadlines count against a breaker; a rejected request
// says nothing about backend health.
func ClassifyTemporary(err error) Outcome {
	switch {
	case errors.Is(err, context.Canceled):
		return Outcome{}
	case errors.Is(err, context.DeadlineExceeded):
		return Outcome{Trip: true}
	case domain.IsKind(err, domain.ErrTemporary):
		return Outcome{Retry: true, Trip: true}
	default:
		return Outcome{}
	}
}

type Executor struct {
	policy  Policy
	limiter *rate.Limiter

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(policy Policy) *Executor {
	policy = policy.withDefaults()
	e := &Executor{
		policy:   policy,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	if policy.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(policy.RequestsPerSecond), policy.Burst)
	}
	return e
}

// Do runs fn under the breaker for op, retrying per the classifier. Every attempt
// waits for the rate limiter first.
func (e *Executor) Do(ctx context.Context, op string, fn func(context.Context) error, classify Classifier) error {
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = ClassifyTemporary
	}

	if !e.policy.Breaker.Enabled {
		return e.retry(ctx, op, fn, classify)
	}
	_, err := e.breaker(op, classify).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, fn, classify)
	})
	return err
}

func (e *Executor) retry(ctx context.Context, op string, fn func(context.Context) error, classify Classifier) error {
	policy := e.policy.Retry
	backoff := policy.InitialBackoff

	var err error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if e.limiter != nil {
			if waitErr := e.limiter.Wait(ctx); waitErr != nil {
				if err != nil {
					return err
				}
				return waitErr
			}
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == policy.MaxAttempts || !classify(err).Retry {
			return err
		}

		slog.Warn("retry_attempt",
			"operation", op,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"backoff_ms", float64(backoff.Microseconds())/1000.0,
			"error", err,
		)
		if !sleep(ctx, backoff) {
			return err
		}
		backoff = min(time.Duration(float64(backoff)*policy.Multiplier), policy.MaxBackoff)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Executor) breaker(op string, classify Classifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[op]; ok {
		return cb
	}
	policy := e.policy.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: policy.HalfOpenCalls,
		Timeout:     policy.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < policy.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= policy.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).Trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[op] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
