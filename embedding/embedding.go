// Package embedding 提供统一的文本向量化接口和实现.
package embedding

import (
	"context"
	"time"
)

// Provider 文本 → 向量。返回的切片与输入一一对应。
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Name() string
	Dimensions() int
}

// Observer 向量化调用埋点
type Observer interface {
	ObserveEmbedding(provider string, err error)
}

// Observed 为 Provider 增加调用观察
type Observed struct {
	Provider
	observer Observer
}

// NewObserved observer 为 nil 时直接返回 p
func NewObserved(p Provider, observer Observer) Provider {
	if observer == nil {
		return p
	}
	return &Observed{Provider: p, observer: observer}
}

// Embed 实现 Provider
func (o *Observed) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out, err := o.Provider.Embed(ctx, texts)
	o.observer.ObserveEmbedding(o.Provider.Name(), err)
	return out, err
}

// EmbedOne 向量化单条文本，timeout > 0 时单独设置超时
func EmbedOne(ctx context.Context, p Provider, text string, timeout time.Duration) ([]float64, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, errCountMismatch(1, len(vecs))
	}
	return vecs[0], nil
}
