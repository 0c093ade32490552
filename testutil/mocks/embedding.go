// MockEmbedder 向量化服务的测试模拟实现。
package mocks

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrMockEmbedding 注入的向量化错误
var ErrMockEmbedding = errors.New("mock embedding failure")

// MockEmbedder 确定性向量：同一文本总是得到同一向量
type MockEmbedder struct {
	dims int

	mu       sync.RWMutex
	failWhen func(text string) bool
	failAll  bool

	calls atomic.Int64
	texts atomic.Int64
}

// NewMockEmbedder 创建指定维度的 MockEmbedder
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 8
	}
	return &MockEmbedder{dims: dims}
}

// FailWhen 文本满足条件时该批次返回错误
func (m *MockEmbedder) FailWhen(fn func(text string) bool) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWhen = fn
	return m
}

// FailContaining 文本包含子串时失败
func (m *MockEmbedder) FailContaining(substr string) *MockEmbedder {
	return m.FailWhen(func(text string) bool { return strings.Contains(text, substr) })
}

// FailAll 所有调用均失败
func (m *MockEmbedder) FailAll() *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = true
	return m
}

// Embed 实现 embedding.Provider
func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	failAll, failWhen := m.failAll, m.failWhen
	m.mu.RUnlock()

	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		if failAll || (failWhen != nil && failWhen(text)) {
			return nil, ErrMockEmbedding
		}
		out = append(out, m.vector(text))
	}
	m.texts.Add(int64(len(texts)))
	return out, nil
}

func (m *MockEmbedder) vector(text string) []float64 {
	vec := make([]float64, m.dims)
	for i := range vec {
		h := fnv.New64a()
		_, _ = h.Write([]byte{byte(i)})
		_, _ = h.Write([]byte(text))
		vec[i] = float64(h.Sum64()%1000)/1000 + 0.001
	}
	return vec
}

func (m *MockEmbedder) Name() string    { return "mock" }
func (m *MockEmbedder) Dimensions() int { return m.dims }

// Calls 调用次数
func (m *MockEmbedder) Calls() int64 { return m.calls.Load() }

// EmbeddedTexts 成功向量化的文本数
func (m *MockEmbedder) EmbeddedTexts() int64 { return m.texts.Load() }
