package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/config"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/types"
)

func TestMemoryIndex_UpsertSearchDelete(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(zap.NewNop())
	col := CollectionName("600519", market.Financial)
	assert.Equal(t, "stockrag_600519_financial", col)

	require.NoError(t, idx.Upsert(ctx, col, []VectorRecord{
		{ID: VectorID("v1", 0), VersionID: "v1", Vector: []float64{1, 0}, Text: "a"},
		{ID: VectorID("v1", 1), VersionID: "v1", Vector: []float64{0, 1}, Text: "b"},
		{ID: VectorID("v2", 0), VersionID: "v2", Vector: []float64{1, 1}, Text: "c"},
	}))
	assert.Equal(t, 3, idx.Count(col))

	hits, err := idx.Search(ctx, col, []float64{1, 0}, 2, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "v1#0", hits[0].Record.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)

	hits, err = idx.Search(ctx, col, []float64{1, 0}, 10, SearchFilter{VersionID: "v2"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c", hits[0].Record.Text)

	require.NoError(t, idx.DeleteVersion(ctx, col, "v1"))
	assert.Equal(t, 1, idx.Count(col))
	require.NoError(t, idx.DeleteVersion(ctx, col, "v2"))
	assert.Zero(t, idx.Count(col))

	hits, err = idx.Search(ctx, col, []float64{1, 0}, 0, SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndex_RejectsInvalidRecords(t *testing.T) {
	idx := NewMemoryIndex(nil)
	assert.Error(t, idx.Upsert(context.Background(), "c", []VectorRecord{{Vector: []float64{1}}}))
	assert.Error(t, idx.Upsert(context.Background(), "c", []VectorRecord{{ID: "x"}}))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{2, 0}, []float64{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float64{1}, []float64{1, 2}))
	assert.Zero(t, cosineSimilarity([]float64{0, 0}, []float64{1, 2}))
}

// qdrantServer 记录请求的最小 Qdrant REST 模拟
type qdrantServer struct {
	mu          sync.Mutex
	collections map[string]bool
	points      map[string][]map[string]any
	requests    []string
	apiKeys     []string
}

func newQdrantServer(t *testing.T) (*qdrantServer, *httptest.Server) {
	qs := &qdrantServer{collections: map[string]bool{}, points: map[string][]map[string]any{}}
	srv := httptest.NewServer(http.HandlerFunc(qs.handle))
	t.Cleanup(srv.Close)
	return qs, srv
}

func (s *qdrantServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	s.apiKeys = append(s.apiKeys, r.Header.Get("api-key"))

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "collections" {
		http.NotFound(w, r)
		return
	}
	name := parts[1]
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch {
	case len(parts) == 2 && r.Method == http.MethodPut:
		if s.collections[name] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		s.collections[name] = true
		_, _ = w.Write([]byte(`{"result":true}`))
	case !s.collections[name]:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":{"error":"Not found"}}`))
	case len(parts) == 3 && parts[2] == "points" && r.Method == http.MethodPut:
		for _, p := range body["points"].([]any) {
			s.points[name] = append(s.points[name], p.(map[string]any))
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case len(parts) == 4 && parts[3] == "delete":
		version := versionFromFilter(body["filter"])
		kept := s.points[name][:0]
		for _, p := range s.points[name] {
			if p["payload"].(map[string]any)["version_id"] != version {
				kept = append(kept, p)
			}
		}
		s.points[name] = kept
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case len(parts) == 4 && parts[3] == "search":
		version := versionFromFilter(body["filter"])
		result := []map[string]any{}
		for _, p := range s.points[name] {
			payload := p["payload"].(map[string]any)
			if version != "" && payload["version_id"] != version {
				continue
			}
			result = append(result, map[string]any{"id": p["id"], "score": 0.9, "payload": payload})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func versionFromFilter(f any) string {
	m, ok := f.(map[string]any)
	if !ok {
		return ""
	}
	must := m["must"].([]any)
	cond := must[0].(map[string]any)
	return cond["match"].(map[string]any)["value"].(string)
}

func TestQdrantIndex_RoundTrip(t *testing.T) {
	qs, srv := newQdrantServer(t)
	idx := NewQdrantIndex(QdrantConfig{BaseURL: srv.URL, APIKey: "secret"}, zap.NewNop())
	ctx := context.Background()
	col := CollectionName("600519", market.Financial)

	records := []VectorRecord{
		{ID: VectorID("v1", 0), VersionID: "v1", EntityCode: "600519", DataType: "financial", Vector: []float64{1, 0}, Text: "一", ChunkIndex: 0},
		{ID: VectorID("v1", 1), VersionID: "v1", EntityCode: "600519", DataType: "financial", Vector: []float64{0, 1}, Text: "二", ChunkIndex: 1, Metadata: map[string]any{"token_count": 3}},
	}
	require.NoError(t, idx.Upsert(ctx, col, records))
	require.NoError(t, idx.Upsert(ctx, col, []VectorRecord{
		{ID: VectorID("v2", 0), VersionID: "v2", Vector: []float64{1, 1}, Text: "三"},
	}))

	qs.mu.Lock()
	assert.Len(t, qs.points[col], 3)
	// 集合只创建一次
	creates := 0
	for _, r := range qs.requests {
		if r == "PUT /collections/"+col {
			creates++
		}
	}
	assert.Equal(t, 1, creates)
	assert.Equal(t, "secret", qs.apiKeys[0])
	pointID := qs.points[col][0]["id"].(string)
	qs.mu.Unlock()
	assert.Equal(t, qdrantPointID("v1#0"), pointID)
	assert.Len(t, pointID, 36)

	hits, err := idx.Search(ctx, col, []float64{1, 0}, 5, SearchFilter{VersionID: "v1"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "v1#1", hits[1].Record.ID)
	assert.Equal(t, 1, hits[1].Record.ChunkIndex)
	assert.Equal(t, "600519", hits[0].Record.EntityCode)
	assert.InDelta(t, 3, hits[1].Record.Metadata["token_count"], 1e-9)

	require.NoError(t, idx.DeleteVersion(ctx, col, "v1"))
	hits, err = idx.Search(ctx, col, []float64{1, 0}, 5, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "v2", hits[0].Record.VersionID)
}

func TestQdrantIndex_MissingCollection(t *testing.T) {
	_, srv := newQdrantServer(t)
	idx := NewQdrantIndex(QdrantConfig{BaseURL: srv.URL}, nil)
	ctx := context.Background()

	hits, err := idx.Search(ctx, "stockrag_000001_financial", []float64{1}, 3, SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.NoError(t, idx.DeleteVersion(ctx, "stockrag_000001_financial", "v1"))
}

func TestQdrantIndex_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	idx := NewQdrantIndex(QdrantConfig{BaseURL: srv.URL}, nil)
	ctx := context.Background()

	err := idx.Upsert(ctx, "c", []VectorRecord{{ID: "a", Vector: []float64{1}}})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrVectorStore))
	assert.True(t, types.IsRetryable(err))

	err = idx.Upsert(ctx, "c", []VectorRecord{{ID: "a", Vector: []float64{1}}, {ID: "b", Vector: []float64{1, 2}}})
	assert.ErrorContains(t, err, "dimension mismatch")

	_, err = idx.Search(ctx, "c", nil, 1, SearchFilter{})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
}

func TestNewVectorIndexFromConfig(t *testing.T) {
	idx, err := NewVectorIndexFromConfig(config.VectorConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryIndex{}, idx)

	idx, err = NewVectorIndexFromConfig(config.VectorConfig{Backend: "qdrant", QdrantHost: "qdrant", QdrantPort: 6334}, nil)
	require.NoError(t, err)
	q := idx.(*QdrantIndex)
	assert.Equal(t, "http://qdrant:6334", q.baseURL)

	_, err = NewVectorIndexFromConfig(config.VectorConfig{Backend: "milvus"}, nil)
	assert.Error(t, err)
}
