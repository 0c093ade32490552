package provider

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/types"
)

// RateLimited 进程级令牌桶，超出额度时等待而不是失败
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRateLimited 按每分钟调用上限创建限流装饰器
func NewRateLimited(next Provider, callsPerMinute, burst int, logger *zap.Logger) *RateLimited {
	if logger == nil {
		logger = zap.NewNop()
	}
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if callsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(callsPerMinute))
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(zap.String("component", "provider_ratelimit")),
	}
}

// Limiter 共享的令牌桶
func (r *RateLimited) Limiter() *rate.Limiter { return r.limiter }

// Fetch 实现 Provider
func (r *RateLimited) Fetch(ctx context.Context, dataType market.DataType, code string, params map[string]string) (market.Record, error) {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, types.NewError(types.ErrRateLimited, "rate limiter wait aborted").
			WithRetryable(false).
			WithCause(err)
	}
	if waited := time.Since(start); waited > time.Second {
		r.logger.Debug("throttled provider call",
			zap.String("data_type", string(dataType)),
			zap.Duration("waited", waited),
		)
	}
	return r.next.Fetch(ctx, dataType, code, params)
}
