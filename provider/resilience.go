package provider

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/stockrag/internal/circuitbreaker"
	"github.com/BaSui01/stockrag/internal/retry"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/types"
)

// =============================================================================
// 🛡️ 弹性装饰器
// =============================================================================

// WithTimeout 为每次调用设置独立超时
func WithTimeout(next Provider, timeout time.Duration) Provider {
	if timeout <= 0 {
		return next
	}
	return Func(func(ctx context.Context, dataType market.DataType, code string, params map[string]string) (market.Record, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		rec, err := next.Fetch(callCtx, dataType, code, params)
		if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			if !types.IsErrorCode(err, types.ErrTimeout) {
				err = types.NewError(types.ErrTimeout, "provider call timed out").
					WithRetryable(true).
					WithCause(err)
			}
		}
		return rec, err
	})
}

// WithRetry 对可重试错误做指数退避重试
func WithRetry(next Provider, r *retry.Retryer) Provider {
	if r == nil {
		return next
	}
	return Func(func(ctx context.Context, dataType market.DataType, code string, params map[string]string) (market.Record, error) {
		return retry.Do(ctx, r, func(ctx context.Context) (market.Record, error) {
			return next.Fetch(ctx, dataType, code, params)
		})
	})
}

// WithBreaker 熔断打开时快速失败
func WithBreaker(next Provider, b *circuitbreaker.Breaker) Provider {
	if b == nil {
		return next
	}
	return Func(func(ctx context.Context, dataType market.DataType, code string, params map[string]string) (market.Record, error) {
		return circuitbreaker.Execute(ctx, b, func(ctx context.Context) (market.Record, error) {
			return next.Fetch(ctx, dataType, code, params)
		})
	})
}
