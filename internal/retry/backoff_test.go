package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/types"
)

func newFastRetryer(maxRetries int) *Retryer {
	r := New(&Policy{MaxRetries: maxRetries, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, zap.NewNop())
	r.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return r
}

func TestRetryer_SucceedsAfterRetryableErrors(t *testing.T) {
	r := newFastRetryer(3)

	calls := 0
	got, err := Do(context.Background(), r, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, types.NewError(types.ErrProvider, "busy").WithRetryable(true)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetryer_NonRetryableStopsImmediately(t *testing.T) {
	r := newFastRetryer(3)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return types.NewValidationError("bad code")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
}

func TestRetryer_Exhausted(t *testing.T) {
	r := newFastRetryer(2)

	var retries []int
	r.policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
	}

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return types.NewProviderError("tushare", errors.New("502"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	// 包装后仍可识别错误码
	assert.True(t, types.IsErrorCode(err, types.ErrProvider))
}

func TestRetryer_ContextCancelled(t *testing.T) {
	r := New(&Policy{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return types.NewProviderError("tushare", errors.New("timeout"))
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryer_DelayBounds(t *testing.T) {
	r := New(&Policy{MaxRetries: 10, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: true}, nil)

	for attempt := 1; attempt <= 10; attempt++ {
		d := r.delay(attempt)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}

	noJitter := New(&Policy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}, nil)
	assert.Equal(t, 100*time.Millisecond, noJitter.delay(1))
	assert.Equal(t, 400*time.Millisecond, noJitter.delay(3))
	assert.Equal(t, time.Second, noJitter.delay(8))
}

func TestNew_Defaults(t *testing.T) {
	r := New(&Policy{MaxRetries: -1, Multiplier: 0.5}, nil)
	p := r.Policy()
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.NotNil(t, p.ShouldRetry)
}
