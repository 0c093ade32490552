package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/internal/tlsutil"
	"github.com/BaSui01/stockrag/types"
)

// QdrantConfig Qdrant REST 接口配置
type QdrantConfig struct {
	Host     string
	Port     int
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Distance string // Cosine（默认）, Dot, Euclid
}

// QdrantIndex 基于 Qdrant REST API 的 VectorIndex。
// 点 ID 由 version_id#chunk_index 派生稳定 UUID，元数据存于 payload。
type QdrantIndex struct {
	cfg     QdrantConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

// NewQdrantIndex 创建 Qdrant 索引
func NewQdrantIndex(cfg QdrantConfig, logger *zap.Logger) *QdrantIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}

	return &QdrantIndex{
		cfg:     cfg,
		baseURL: baseURL,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:  logger.With(zap.String("component", "qdrant_index")),
		ensured: make(map[string]bool),
	}
}

var qdrantNamespace = uuid.MustParse("6f1c7a52-3d0e-4b8e-9a57-2c4d8e1f9b30")

func qdrantPointID(vectorID string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(vectorID)).String()
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Upsert 写入向量，集合不存在时按首个向量维度创建
func (q *QdrantIndex) Upsert(ctx context.Context, collection string, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	size := len(records[0].Vector)
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record[%d] has empty id", i)
		}
		if len(r.Vector) != size || size == 0 {
			return fmt.Errorf("record %s vector dimension mismatch: got=%d want=%d", r.ID, len(r.Vector), size)
		}
	}
	if err := q.ensureCollection(ctx, collection, size); err != nil {
		return err
	}

	points := make([]qdrantPoint, 0, len(records))
	for _, r := range records {
		points = append(points, qdrantPoint{
			ID:     qdrantPointID(r.ID),
			Vector: r.Vector,
			Payload: map[string]any{
				"vector_id":   r.ID,
				"text":        r.Text,
				"entity_code": r.EntityCode,
				"data_type":   r.DataType,
				"version_id":  r.VersionID,
				"chunk_index": r.ChunkIndex,
				"metadata":    r.Metadata,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(collection))
	if err := q.doJSON(ctx, http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
		return err
	}
	q.logger.Debug("qdrant upsert completed", zap.String("collection", collection), zap.Int("count", len(records)))
	return nil
}

// DeleteVersion 按 payload.version_id 过滤删除；集合不存在视为已删除
func (q *QdrantIndex) DeleteVersion(ctx context.Context, collection, versionID string) error {
	body := map[string]any{"filter": versionFilter(versionID)}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", url.PathEscape(collection))
	err := q.doJSON(ctx, http.MethodPost, path, body, nil)
	if isQdrantNotFound(err) {
		return nil
	}
	return err
}

// Search 相似度检索
func (q *QdrantIndex) Search(ctx context.Context, collection string, vector []float64, topK int, filter SearchFilter) ([]SearchHit, error) {
	if topK <= 0 {
		return []SearchHit{}, nil
	}
	if len(vector) == 0 {
		return nil, types.NewValidationError("query vector is required")
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if filter.VersionID != "" {
		body["filter"] = versionFilter(filter.VersionID)
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(collection))
	if err := q.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		if isQdrantNotFound(err) {
			return []SearchHit{}, nil
		}
		return nil, err
	}

	hits := make([]SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, SearchHit{Record: recordFromPayload(r.Payload), Score: r.Score})
	}
	return hits, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, collection string, size int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ensured[collection] {
		return nil
	}

	body := map[string]any{"vectors": map[string]any{"size": size, "distance": q.cfg.Distance}}
	err := q.doJSON(ctx, http.MethodPut, "/collections/"+url.PathEscape(collection), body, nil)
	// 集合已存在时 Qdrant 返回 409
	if err != nil && !isQdrantStatus(err, http.StatusConflict) {
		return err
	}
	q.ensured[collection] = true
	return nil
}

type qdrantError struct {
	status int
	method string
	path   string
	body   string
}

func (e *qdrantError) Error() string {
	return fmt.Sprintf("qdrant request failed: method=%s path=%s status=%d body=%s", e.method, e.path, e.status, e.body)
}

func isQdrantStatus(err error, status int) bool {
	var qe *qdrantError
	return errors.As(err, &qe) && qe.status == status
}

func isQdrantNotFound(err error) bool { return isQdrantStatus(err, http.StatusNotFound) }

func (q *QdrantIndex) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(q.cfg.APIKey) != "" {
		req.Header.Set("api-key", q.cfg.APIKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrVectorStore, "qdrant request failed").WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		qe := &qdrantError{status: resp.StatusCode, method: method, path: path, body: string(raw)}
		return types.NewError(types.ErrVectorStore, "qdrant request failed").
			WithRetryable(resp.StatusCode >= 500).
			WithCause(qe)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func versionFilter(versionID string) map[string]any {
	return map[string]any{
		"must": []any{
			map[string]any{"key": "version_id", "match": map[string]any{"value": versionID}},
		},
	}
}

func recordFromPayload(p map[string]any) VectorRecord {
	str := func(k string) string {
		s, _ := p[k].(string)
		return s
	}
	r := VectorRecord{
		ID:         str("vector_id"),
		Text:       str("text"),
		EntityCode: str("entity_code"),
		DataType:   str("data_type"),
		VersionID:  str("version_id"),
	}
	if idx, ok := p["chunk_index"].(float64); ok {
		r.ChunkIndex = int(idx)
	}
	if md, ok := p["metadata"].(map[string]any); ok {
		r.Metadata = md
	}
	return r
}
