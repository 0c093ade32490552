package provider

import (
	"context"
	"time"

	"github.com/BaSui01/stockrag/market"
)

// Provider 外部行情数据源。记录不存在时返回 (nil, nil)。
type Provider interface {
	Fetch(ctx context.Context, dataType market.DataType, code string, params map[string]string) (market.Record, error)
}

// Func 函数适配器
type Func func(ctx context.Context, dataType market.DataType, code string, params map[string]string) (market.Record, error)

// Fetch 实现 Provider
func (f Func) Fetch(ctx context.Context, dataType market.DataType, code string, params map[string]string) (market.Record, error) {
	return f(ctx, dataType, code, params)
}

// 调用结果标签
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

// CallObserver 观察每次实际发往数据源的调用（指标埋点）
type CallObserver interface {
	ObserveProviderCall(provider string, dataType market.DataType, outcome string, duration time.Duration)
}

// Observed 为 Provider 增加调用观察
type Observed struct {
	next     Provider
	name     string
	observer CallObserver
}

// NewObserved 创建带观察的 Provider，observer 为 nil 时直接返回 next
func NewObserved(next Provider, name string, observer CallObserver) Provider {
	if observer == nil {
		return next
	}
	return &Observed{next: next, name: name, observer: observer}
}

// Fetch 实现 Provider
func (o *Observed) Fetch(ctx context.Context, dataType market.DataType, code string, params map[string]string) (market.Record, error) {
	start := time.Now()
	rec, err := o.next.Fetch(ctx, dataType, code, params)

	outcome := OutcomeSuccess
	switch {
	case err != nil:
		outcome = OutcomeError
	case rec.IsEmpty():
		outcome = OutcomeEmpty
	}
	o.observer.ObserveProviderCall(o.name, dataType, outcome, time.Since(start))
	return rec, err
}
