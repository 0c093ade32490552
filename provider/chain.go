package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/config"
	"github.com/BaSui01/stockrag/internal/circuitbreaker"
	"github.com/BaSui01/stockrag/internal/retry"
)

// ChainOptions 装配选项
type ChainOptions struct {
	Observer       CallObserver
	OnBreakerState func(name string, from, to circuitbreaker.State)
}

// Chain 装配完成的数据源调用链
type Chain struct {
	Provider
	Limiter *RateLimited
	Breaker *circuitbreaker.Breaker
}

// NewChain 从配置装配调用链：
// breaker → retry → rate limit → timeout → observe → base。
// 令牌桶放在重试之内，每次实际调用（包括重试）都消耗额度；
// 超时只约束实际调用，排队等待令牌不计入超时。
func NewChain(base Provider, cfg config.ProviderConfig, logger *zap.Logger, opts ChainOptions) (*Chain, error) {
	if base == nil {
		return nil, fmt.Errorf("base provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.Name
	if name == "" {
		name = "provider"
	}

	p := NewObserved(base, name, opts.Observer)
	limited := NewRateLimited(WithTimeout(p, cfg.Timeout), cfg.CallsPerMinute, cfg.Burst, logger)
	p = limited

	if cfg.MaxRetries > 0 {
		policy := retry.DefaultPolicy()
		policy.MaxRetries = cfg.MaxRetries
		p = WithRetry(p, retry.New(policy, logger))
	}

	var breaker *circuitbreaker.Breaker
	if cfg.BreakerThreshold > 0 {
		bc := &circuitbreaker.Config{
			Threshold:    cfg.BreakerThreshold,
			ResetTimeout: cfg.BreakerResetTimeout,
		}
		if opts.OnBreakerState != nil {
			bc.OnStateChange = func(from, to circuitbreaker.State) { opts.OnBreakerState(name, from, to) }
		}
		breaker = circuitbreaker.New(name, bc, logger)
		p = WithBreaker(p, breaker)
	}

	return &Chain{Provider: p, Limiter: limited, Breaker: breaker}, nil
}

// NewFromConfig 创建 Tushare 客户端并装配调用链
func NewFromConfig(cfg config.ProviderConfig, logger *zap.Logger, opts ChainOptions) (*Chain, error) {
	client := NewTushareClient(TushareConfig{
		Name:    cfg.Name,
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Timeout: cfg.Timeout,
	}, logger)
	return NewChain(client, cfg, logger, opts)
}
