package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/market"
)

// VectorRecord 一个分块的向量及其元数据
type VectorRecord struct {
	ID         string         `json:"id"`
	Vector     []float64      `json:"-"`
	Text       string         `json:"text"`
	EntityCode string         `json:"entity_code"`
	DataType   string         `json:"data_type"`
	VersionID  string         `json:"version_id"`
	ChunkIndex int            `json:"chunk_index"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// VectorID 向量 ID：version_id#chunk_index
func VectorID(versionID string, chunkIndex int) string {
	return fmt.Sprintf("%s#%d", versionID, chunkIndex)
}

// SearchFilter 检索过滤条件，空字段不过滤
type SearchFilter struct {
	VersionID string
}

// SearchHit 检索结果
type SearchHit struct {
	Record VectorRecord `json:"record"`
	Score  float64      `json:"score"`
}

// VectorIndex 向量索引
type VectorIndex interface {
	Upsert(ctx context.Context, collection string, records []VectorRecord) error
	DeleteVersion(ctx context.Context, collection, versionID string) error
	Search(ctx context.Context, collection string, vector []float64, topK int, filter SearchFilter) ([]SearchHit, error)
}

// CollectionName 按 (code, data_type) 划分的集合名
func CollectionName(code string, dataType market.DataType) string {
	return "stockrag_" + code + "_" + string(dataType)
}

// =============================================================================
// 💾 内存索引（开发与测试）
// =============================================================================

// MemoryIndex 进程内向量索引
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]map[string]VectorRecord
	logger      *zap.Logger
}

// NewMemoryIndex 创建内存索引
func NewMemoryIndex(logger *zap.Logger) *MemoryIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryIndex{
		collections: make(map[string]map[string]VectorRecord),
		logger:      logger.With(zap.String("component", "memory_index")),
	}
}

// Upsert 按 ID 覆盖写入
func (m *MemoryIndex) Upsert(ctx context.Context, collection string, records []VectorRecord) error {
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record[%d] has empty id", i)
		}
		if len(r.Vector) == 0 {
			return fmt.Errorf("record %s has no vector", r.ID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.collections[collection]
	if !ok {
		col = make(map[string]VectorRecord)
		m.collections[collection] = col
	}
	for _, r := range records {
		col[r.ID] = r
	}
	m.logger.Debug("vectors upserted", zap.String("collection", collection), zap.Int("count", len(records)))
	return nil
}

// DeleteVersion 删除某版本的全部向量
func (m *MemoryIndex) DeleteVersion(ctx context.Context, collection, versionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.collections[collection]
	for id, r := range col {
		if r.VersionID == versionID {
			delete(col, id)
		}
	}
	if len(col) == 0 {
		delete(m.collections, collection)
	}
	return nil
}

// Search 余弦相似度 Top-K
func (m *MemoryIndex) Search(ctx context.Context, collection string, vector []float64, topK int, filter SearchFilter) ([]SearchHit, error) {
	if topK <= 0 {
		return []SearchHit{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]SearchHit, 0)
	for _, r := range m.collections[collection] {
		if filter.VersionID != "" && r.VersionID != filter.VersionID {
			continue
		}
		hits = append(hits, SearchHit{Record: r, Score: cosineSimilarity(vector, r.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return strings.Compare(hits[i].Record.ID, hits[j].Record.ID) < 0
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Count 集合内向量数
func (m *MemoryIndex) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
