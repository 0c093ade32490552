package rag

import (
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/market"
)

// 占位策略
const (
	// PlaceholderKeep 未识别字段时输出占位叙述
	PlaceholderKeep = "placeholder"
	// PlaceholderSkip 未识别字段时不产生分块
	PlaceholderSkip = "skip"
)

// VectorizerConfig 向量化文本生成配置
type VectorizerConfig struct {
	Chunking          ChunkingConfig
	PlaceholderPolicy string
}

// Chunks 文本分块及其 token 统计
type Chunks struct {
	Texts       []string `json:"texts"`
	TokenCounts []int    `json:"token_counts"`
	TotalTokens int      `json:"total_tokens"`
	Placeholder bool     `json:"placeholder"`
}

// Len 分块数量
func (c Chunks) Len() int { return len(c.Texts) }

// Vectorizer 把结构化记录转成可向量化的中文文本分块。
// 纯函数：同一输入总是得到同一输出。
type Vectorizer struct {
	cfg     VectorizerConfig
	counter TokenCounter
	logger  *zap.Logger
}

// NewVectorizer counter 为 nil 时使用字符估算
func NewVectorizer(cfg VectorizerConfig, counter TokenCounter, logger *zap.Logger) *Vectorizer {
	cfg.Chunking = cfg.Chunking.normalized()
	if cfg.PlaceholderPolicy != PlaceholderSkip {
		cfg.PlaceholderPolicy = PlaceholderKeep
	}
	if counter == nil {
		counter = EstimatorCounter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vectorizer{
		cfg:     cfg,
		counter: counter,
		logger:  logger.With(zap.String("component", "vectorizer")),
	}
}

// Config 返回生效配置
func (v *Vectorizer) Config() VectorizerConfig { return v.cfg }

// ToTextChunks 生成文本分块
func (v *Vectorizer) ToTextChunks(code string, dataType market.DataType, source market.Record) []string {
	return v.Vectorize(code, dataType, source).Texts
}

// Vectorize 生成文本分块并统计 token
func (v *Vectorizer) Vectorize(code string, dataType market.DataType, source market.Record) Chunks {
	paras, placeholder := v.narrate(code, dataType, source)
	if len(paras) == 0 {
		v.logger.Debug("no recognized fields, skipping",
			zap.String("code", code), zap.String("data_type", string(dataType)))
		return Chunks{Placeholder: placeholder}
	}

	texts := PackParagraphs(paras, v.cfg.Chunking)
	out := Chunks{Texts: texts, TokenCounts: make([]int, len(texts)), Placeholder: placeholder}
	for i, t := range texts {
		n := v.counter.CountTokens(t)
		out.TokenCounts[i] = n
		out.TotalTokens += n
	}
	return out
}

func (v *Vectorizer) narrate(code string, dataType market.DataType, source market.Record) ([]string, bool) {
	record := market.Canonicalize(dataType, source)

	var body []string
	recognized := false
	if build, ok := narrativeBuilders[dataType]; ok && len(record) > 0 {
		body, recognized = build(record)
	}
	if !recognized {
		if v.cfg.PlaceholderPolicy == PlaceholderSkip {
			return nil, true
		}
		body = []string{placeholderParagraph(code, dataType)}
	}
	return append([]string{headerParagraph(code, dataType)}, body...), !recognized
}
