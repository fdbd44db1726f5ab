package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/flowstate/types"
	"golang.org/x/time/rate"
)

// Middleware wraps a stage with a boundary policy. Policies live on the stage
// side of the contract; the engine only ever sees the wrapped function.
type Middleware[S, P any] func(next Stage[S, P]) Stage[S, P]

// Chain applies middlewares so that the first one is the outermost.
func Chain[S, P any](stage Stage[S, P], mws ...Middleware[S, P]) Stage[S, P] {
	for i := len(mws) - 1; i >= 0; i-- {
		stage = mws[i](stage)
	}
	return stage
}

// WithTimeout bounds one stage call. Expiry becomes a retryable
// STAGE_TIMEOUT error.
func WithTimeout[S, P any](d time.Duration) Middleware[S, P] {
	return func(next Stage[S, P]) Stage[S, P] {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, state S) (P, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			update, err := next(ctx, state)
			if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
				return update, types.NewError(types.ErrStageTimeout, fmt.Sprintf("stage exceeded %v", d)).
					WithCause(err).
					WithRetryable(true)
			}
			return update, err
		}
	}
}

// WithRetry re-runs a stage after retryable failures, doubling delay between
// attempts. Non-retryable errors return immediately.
func WithRetry[S, P any](maxRetries int, delay time.Duration) Middleware[S, P] {
	return func(next Stage[S, P]) Stage[S, P] {
		if maxRetries <= 0 {
			return next
		}
		return func(ctx context.Context, state S) (P, error) {
			var (
				update P
				err    error
			)
			wait := delay
			for attempt := 0; attempt <= maxRetries; attempt++ {
				if attempt > 0 {
					select {
					case <-ctx.Done():
						return update, fmt.Errorf("retry aborted after %d attempts: %w", attempt, err)
					case <-time.After(wait):
					}
					wait *= 2
				}
				update, err = next(ctx, state)
				if err == nil || !types.IsRetryable(err) {
					return update, err
				}
			}
			return update, fmt.Errorf("giving up after %d attempts: %w", maxRetries+1, err)
		}
	}
}

// WithRateLimit waits on limiter before each call, so stages sharing one
// limiter share one budget of external calls.
func WithRateLimit[S, P any](limiter *rate.Limiter) Middleware[S, P] {
	return func(next Stage[S, P]) Stage[S, P] {
		if limiter == nil {
			return next
		}
		return func(ctx context.Context, state S) (P, error) {
			if err := limiter.Wait(ctx); err != nil {
				var zero P
				return zero, types.NewError(types.ErrRateLimited, "rate limiter wait failed").WithCause(err)
			}
			return next(ctx, state)
		}
	}
}

// WithCircuitBreaker rejects calls while cb is open and feeds it every
// outcome. cb lives as long as the middleware, so its state spans runs.
func WithCircuitBreaker[S, P any](cb *CircuitBreaker) Middleware[S, P] {
	return func(next Stage[S, P]) Stage[S, P] {
		if cb == nil {
			return next
		}
		return func(ctx context.Context, state S) (P, error) {
			return guard(ctx, cb, next, state)
		}
	}
}

// WithRunCircuitBreaker guards the stage with the breaker registered for it
// in the run's registry (see Builder.WithCircuitBreakers). Without a registry
// in ctx the stage runs unguarded.
func WithRunCircuitBreaker[S, P any](stage string) Middleware[S, P] {
	return func(next Stage[S, P]) Stage[S, P] {
		return func(ctx context.Context, state S) (P, error) {
			registry := CircuitBreakersFromContext(ctx)
			if registry == nil {
				return next(ctx, state)
			}
			return guard(ctx, registry.Get(stage), next, state)
		}
	}
}

func guard[S, P any](ctx context.Context, cb *CircuitBreaker, next Stage[S, P], state S) (P, error) {
	if ok, err := cb.AllowRequest(); !ok {
		var zero P
		return zero, err
	}
	update, err := next(ctx, state)
	if err != nil {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
	return update, err
}

// FallbackFunc produces a best-effort update for a failed stage call.
type FallbackFunc[S, P any] func(state S, err error) P

// WithFallback turns a failure into fallback's update. This is the lenient
// strategy for stages whose structured result could not be produced; without
// it the failure reaches the engine and is recorded as a stage error.
func WithFallback[S, P any](fallback FallbackFunc[S, P]) Middleware[S, P] {
	return func(next Stage[S, P]) Stage[S, P] {
		if fallback == nil {
			return next
		}
		return func(ctx context.Context, state S) (P, error) {
			update, err := next(ctx, state)
			if err != nil {
				return fallback(state, err), nil
			}
			return update, nil
		}
	}
}
