package rag

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter 统计分块 token 数，写入版本元数据
type TokenCounter interface {
	CountTokens(text string) int
}

// EstimatorCounter 按字符估算：中文约 1.5 字/token，其余约 4 字符/token
type EstimatorCounter struct{}

// CountTokens 实现 TokenCounter
func (EstimatorCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	n := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	if n == 0 {
		n = 1
	}
	return n
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF)
}

// TiktokenCounter 基于 tiktoken 编码计数。编码数据首次使用时加载，
// 加载失败后回退到 EstimatorCounter。
type TiktokenCounter struct {
	encoding string
	logger   *zap.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktokenCounter encoding 为空时使用 cl100k_base
func NewTiktokenCounter(encoding string, logger *zap.Logger) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TiktokenCounter{encoding: encoding, logger: logger.With(zap.String("component", "tokenizer"))}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			t.logger.Warn("tiktoken unavailable, falling back to estimate", zap.Error(t.initErr))
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens 实现 TokenCounter
func (t *TiktokenCounter) CountTokens(text string) int {
	if err := t.init(); err != nil {
		return EstimatorCounter{}.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}
