// MockProvider 行情数据源的测试模拟实现。
//
// 支持按 (data_type, code) 预置响应、错误注入与调用计数。
package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/stockrag/market"
)

// MockProvider 行情数据源模拟
type MockProvider struct {
	mu        sync.RWMutex
	records   map[string]market.Record
	errs      map[string]error
	fallback  func(dataType market.DataType, code string) market.Record
	defaultEr error
	delay     time.Duration

	calls atomic.Int64
}

// NewMockProvider 创建空的 MockProvider（默认返回 nil 记录）
func NewMockProvider() *MockProvider {
	return &MockProvider{
		records: make(map[string]market.Record),
		errs:    make(map[string]error),
	}
}

func mockKey(dataType market.DataType, code string) string {
	return string(dataType) + "/" + code
}

// WithRecord 预置 (data_type, code) 的返回记录
func (m *MockProvider) WithRecord(dataType market.DataType, code string, rec market.Record) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[mockKey(dataType, code)] = rec
	return m
}

// WithErrorFor 预置 (data_type, code) 的错误
func (m *MockProvider) WithErrorFor(dataType market.DataType, code string, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[mockKey(dataType, code)] = err
	return m
}

// WithError 所有调用均返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultEr = err
	return m
}

// WithFallback 未预置时用函数生成记录
func (m *MockProvider) WithFallback(fn func(dataType market.DataType, code string) market.Record) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = fn
	return m
}

// WithDelay 每次调用前等待
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Fetch 实现 provider.Provider
func (m *MockProvider) Fetch(ctx context.Context, dataType market.DataType, code string, _ map[string]string) (market.Record, error) {
	m.calls.Add(1)

	m.mu.RLock()
	delay := m.delay
	key := mockKey(dataType, code)
	rec, hasRec := m.records[key]
	err, hasErr := m.errs[key]
	defaultErr := m.defaultEr
	fallback := m.fallback
	m.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	switch {
	case hasErr:
		return nil, err
	case defaultErr != nil:
		return nil, defaultErr
	case hasRec:
		return rec.Clone(), nil
	case fallback != nil:
		return fallback(dataType, code), nil
	default:
		return nil, nil
	}
}

// Name 数据源名称
func (m *MockProvider) Name() string { return "mock" }

// Calls 已发生的调用次数
func (m *MockProvider) Calls() int64 { return m.calls.Load() }

// ResetCalls 清零调用计数
func (m *MockProvider) ResetCalls() { m.calls.Store(0) }
