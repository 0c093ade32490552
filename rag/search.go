package rag

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/embedding"
	"github.com/BaSui01/stockrag/internal/telemetry"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/types"
)

// SearchResult 语义检索结果
type SearchResult struct {
	VersionID string      `json:"version_id,omitempty"`
	Hits      []SearchHit `json:"hits"`
}

// Searcher 只在激活版本的向量中检索
type Searcher struct {
	versions    *VersionManager
	embedder    embedding.Provider
	index       VectorIndex
	defaultTopK int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewSearcher 创建检索器
func NewSearcher(versions *VersionManager, embedder embedding.Provider, index VectorIndex, defaultTopK int, embedTimeout time.Duration, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Searcher{
		versions:    versions,
		embedder:    embedder,
		index:       index,
		defaultTopK: defaultTopK,
		timeout:     embedTimeout,
		logger:      logger.With(zap.String("component", "rag_search")),
	}
}

// Search 检索 (code, data_type) 当前激活版本；没有激活版本时返回空结果
func (s *Searcher) Search(ctx context.Context, code string, dataType market.DataType, query string, topK int) (result SearchResult, err error) {
	if err := validatePartition(code, dataType); err != nil {
		return SearchResult{}, err
	}
	if query == "" {
		return SearchResult{}, types.NewValidationError("query must not be empty")
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	ctx, span := telemetry.StartSpan(ctx, "rag.Search",
		attribute.String("code", code),
		attribute.String("data_type", string(dataType)),
		attribute.Int("top_k", topK),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	active, err := s.versions.GetActiveVersion(ctx, code, dataType)
	if err != nil {
		return SearchResult{}, err
	}
	if active == nil {
		return SearchResult{Hits: []SearchHit{}}, nil
	}

	vec, err := embedding.EmbedOne(ctx, s.embedder, query, s.timeout)
	if err != nil {
		return SearchResult{}, err
	}

	hits, err := s.index.Search(ctx, CollectionName(code, dataType), vec, topK, SearchFilter{VersionID: active.VersionID})
	if err != nil {
		return SearchResult{}, err
	}
	if hits == nil {
		hits = []SearchHit{}
	}
	s.logger.Debug("search completed",
		zap.String("code", code), zap.String("version_id", active.VersionID), zap.Int("hits", len(hits)))
	return SearchResult{VersionID: active.VersionID, Hits: hits}, nil
}
