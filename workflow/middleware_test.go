package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/flowstate/testutil"
	"github.com/BaSui01/flowstate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type countingStage struct {
	calls int
	errs  []error
}

func (c *countingStage) stage(ctx context.Context, _ Values) (Values, error) {
	c.calls++
	if len(c.errs) >= c.calls {
		if err := c.errs[c.calls-1]; err != nil {
			return nil, err
		}
	}
	return Values{"x": c.calls}, nil
}

func retryable(msg string) error {
	return types.NewError(types.ErrCompletionFailed, msg).WithRetryable(true)
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) Middleware[Values, Values] {
		return func(next Stage[Values, Values]) Stage[Values, Values] {
			return func(ctx context.Context, s Values) (Values, error) {
				order = append(order, name)
				return next(ctx, s)
			}
		}
	}

	stage := Chain(mark("inner"), tag("outer"), tag("middle"))
	_, err := stage(context.Background(), Values{})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "middle"}, order)
}

func TestWithTimeout(t *testing.T) {
	slow := func(ctx context.Context, _ Values) (Values, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := WithTimeout[Values, Values](10 * time.Millisecond)(slow)(context.Background(), Values{})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrStageTimeout))
	assert.True(t, types.IsRetryable(err))

	out, err := WithTimeout[Values, Values](time.Second)(mark("fast"))(context.Background(), Values{})
	require.NoError(t, err)
	assert.Equal(t, []any{"fast"}, out["trace"])
}

func TestWithRetry(t *testing.T) {
	t.Run("recovers from retryable errors", func(t *testing.T) {
		c := &countingStage{errs: []error{retryable("flaky"), retryable("flaky")}}
		out, err := WithRetry[Values, Values](3, time.Millisecond)(c.stage)(context.Background(), Values{})
		require.NoError(t, err)
		assert.Equal(t, 3, c.calls)
		assert.Equal(t, 3, out["x"])
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		c := &countingStage{errs: []error{errors.New("permanent")}}
		_, err := WithRetry[Values, Values](3, time.Millisecond)(c.stage)(context.Background(), Values{})
		require.Error(t, err)
		assert.Equal(t, 1, c.calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		c := &countingStage{errs: []error{retryable("1"), retryable("2"), retryable("3")}}
		_, err := WithRetry[Values, Values](2, time.Millisecond)(c.stage)(context.Background(), Values{})
		require.Error(t, err)
		assert.Equal(t, 3, c.calls)
		assert.Contains(t, err.Error(), "giving up after 3 attempts")
		assert.True(t, types.IsErrorCode(err, types.ErrCompletionFailed))
	})
}

func TestWithRateLimit(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	stage := WithRateLimit[Values, Values](limiter)(mark("limited"))

	_, err := stage(context.Background(), Values{})
	require.NoError(t, err)

	_, err = stage(testutil.TestContextWithTimeout(t, 10*time.Millisecond), Values{})
	testutil.AssertErrorCode(t, err, types.ErrRateLimited)
}

func TestWithCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("writer", CircuitBreakerConfig{
		FailureThreshold:  2,
		RecoveryTimeout:   time.Hour,
		HalfOpenMaxProbes: 1,
		SuccessThreshold:  1,
	}, nil, nil)
	c := &countingStage{errs: []error{errors.New("1"), errors.New("2")}}
	stage := WithCircuitBreaker[Values, Values](cb)(c.stage)

	for i := 0; i < 2; i++ {
		_, err := stage(context.Background(), Values{})
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := stage(context.Background(), Values{})
	testutil.AssertErrorCode(t, err, types.ErrCircuitOpen)
	assert.Equal(t, 2, c.calls)
}

func TestWithRunCircuitBreaker(t *testing.T) {
	config := CircuitBreakerConfig{
		FailureThreshold:  1,
		RecoveryTimeout:   time.Hour,
		HalfOpenMaxProbes: 1,
		SuccessThreshold:  1,
	}

	t.Run("passes through without registry", func(t *testing.T) {
		c := &countingStage{errs: []error{errors.New("1"), errors.New("2")}}
		stage := WithRunCircuitBreaker[Values, Values]("writer")(c.stage)
		for i := 0; i < 3; i++ {
			_, _ = stage(context.Background(), Values{})
		}
		assert.Equal(t, 3, c.calls)
	})

	t.Run("uses the registry in context", func(t *testing.T) {
		registry := NewCircuitBreakerRegistry(config, nil, nil)
		ctx := ContextWithCircuitBreakers(context.Background(), registry)
		c := &countingStage{errs: []error{errors.New("1")}}
		stage := WithRunCircuitBreaker[Values, Values]("writer")(c.stage)

		_, err := stage(ctx, Values{})
		require.Error(t, err)
		assert.Equal(t, CircuitOpen, registry.Get("writer").State())

		_, err = stage(ctx, Values{})
		testutil.AssertErrorCode(t, err, types.ErrCircuitOpen)
		assert.Equal(t, 1, c.calls)

		// A fresh registry starts closed for the same stage.
		fresh := ContextWithCircuitBreakers(context.Background(), NewCircuitBreakerRegistry(config, nil, nil))
		out, err := stage(fresh, Values{})
		require.NoError(t, err)
		assert.Equal(t, 2, out["x"])
	})
}

func TestWithFallback(t *testing.T) {
	fallback := func(_ Values, err error) Values {
		return Values{"x": "fallback: " + err.Error()}
	}

	out, err := WithFallback(FallbackFunc[Values, Values](fallback))(failing(errors.New("bad json")))(context.Background(), Values{})
	require.NoError(t, err)
	assert.Equal(t, "fallback: bad json", out["x"])

	out, err = WithFallback(FallbackFunc[Values, Values](fallback))(mark("ok"))(context.Background(), Values{})
	require.NoError(t, err)
	assert.Equal(t, []any{"ok"}, out["trace"])
}

func TestMiddleware_InsideGraph(t *testing.T) {
	c := &countingStage{errs: []error{retryable("transient")}}
	g := NewBuilder("wrapped", testSchema()).
		AddStage("a", Chain[Values, Values](c.stage,
			WithTimeout[Values, Values](time.Second),
			WithRetry[Values, Values](1, time.Millisecond),
		)).
		SetEntry("a").
		MustCompile()

	out, err := g.Invoke(context.Background(), Values{})
	require.NoError(t, err)
	assert.Equal(t, 2, out["x"])
	assert.Empty(t, out.Errors(DefaultErrorsKey))
}
