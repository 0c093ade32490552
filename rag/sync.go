package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/embedding"
	"github.com/BaSui01/stockrag/internal/ctxkeys"
	"github.com/BaSui01/stockrag/internal/events"
	"github.com/BaSui01/stockrag/internal/telemetry"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/resolver"
	"github.com/BaSui01/stockrag/types"
)

// =============================================================================
// 🔄 RAG 同步
// =============================================================================
// 单个 (code, data_type) 的同步严格按顺序执行：
// 解析 → 建版本 → 生成文本 → 向量化入库 → 激活 → 发布事件
// =============================================================================

// 同步结果
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// SourceResolver 同步数据来源
type SourceResolver interface {
	Resolve(ctx context.Context, dataType market.DataType, code string, params map[string]string) (resolver.Result, error)
}

// SyncObserver 同步埋点
type SyncObserver interface {
	ObserveSync(dataType market.DataType, outcome string, duration time.Duration, chunks, vectors int)
}

// SyncConfig 同步参数
type SyncConfig struct {
	// 单次向量化请求超时
	EmbedTimeout time.Duration
	// 每次向量化请求的分块数
	EmbedBatchSize int
	// 批量同步条目间隔
	InterItemDelay time.Duration
}

// SyncResult 单次同步结果
type SyncResult struct {
	Code      string          `json:"code"`
	DataType  market.DataType `json:"data_type"`
	Success   bool            `json:"success"`
	VersionID string          `json:"version_id,omitempty"`
	Chunks    int             `json:"chunks"`
	Vectors   int             `json:"vectors"`
	Skipped   bool            `json:"skipped"`
	Error     *types.Error    `json:"error,omitempty"`
}

// Outcome 结果分类
func (r SyncResult) Outcome() string {
	switch {
	case r.Skipped:
		return OutcomeSkipped
	case r.Success:
		return OutcomeSuccess
	default:
		return OutcomeFailed
	}
}

// SyncOption 同步处理器选项
type SyncOption func(*SyncProcessor)

// WithSyncObserver 设置埋点
func WithSyncObserver(o SyncObserver) SyncOption {
	return func(p *SyncProcessor) { p.observer = o }
}

// WithPublisher 设置事件发布者
func WithPublisher(pub events.Publisher) SyncOption {
	return func(p *SyncProcessor) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// SyncProcessor 把结构化数据同步为可检索的向量版本
type SyncProcessor struct {
	source     SourceResolver
	versions   *VersionManager
	vectorizer *Vectorizer
	embedder   embedding.Provider
	index      VectorIndex
	publisher  events.Publisher
	observer   SyncObserver
	cfg        SyncConfig
	logger     *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewSyncProcessor 创建同步处理器
func NewSyncProcessor(
	source SourceResolver,
	versions *VersionManager,
	vectorizer *Vectorizer,
	embedder embedding.Provider,
	index VectorIndex,
	cfg SyncConfig,
	logger *zap.Logger,
	opts ...SyncOption,
) *SyncProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 16
	}
	p := &SyncProcessor{
		source:     source,
		versions:   versions,
		vectorizer: vectorizer,
		embedder:   embedder,
		index:      index,
		publisher:  events.NopPublisher{},
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "rag_sync")),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SyncEntity 解析并同步一个 (code, data_type)
func (p *SyncProcessor) SyncEntity(ctx context.Context, code string, dataType market.DataType) SyncResult {
	start := time.Now()
	if err := validatePartition(code, dataType); err != nil {
		return p.finish(ctx, failed(code, dataType, "", err), start)
	}
	res, err := p.source.Resolve(ctx, dataType, code, nil)
	if err != nil {
		return p.finish(ctx, failed(code, dataType, "", err), start)
	}
	if !res.Found() {
		r := failed(code, dataType, "", types.Errorf(types.ErrVectorizationFailure, "no source data for %s/%s", code, dataType))
		return p.finish(ctx, r, start)
	}
	return p.SyncRecord(ctx, code, dataType, res.Value)
}

// SyncRecord 同步已取得的数据
func (p *SyncProcessor) SyncRecord(ctx context.Context, code string, dataType market.DataType, source market.Record) (result SyncResult) {
	start := time.Now()
	if err := validatePartition(code, dataType); err != nil {
		return p.finish(ctx, failed(code, dataType, "", err), start)
	}

	ctx, span := telemetry.StartSpan(ctx, "rag.Sync",
		attribute.String("code", code),
		attribute.String("data_type", string(dataType)),
	)
	defer func() {
		span.SetAttributes(
			attribute.String("outcome", result.Outcome()),
			attribute.Int("vectors", result.Vectors),
		)
		var err error
		if result.Error != nil {
			err = result.Error
		}
		telemetry.EndSpan(span, err)
	}()

	return p.finish(ctx, p.sync(ctx, code, dataType, source), start)
}

func (p *SyncProcessor) sync(ctx context.Context, code string, dataType market.DataType, source market.Record) SyncResult {
	log := p.logger.With(zap.String("code", code), zap.String("data_type", string(dataType)))

	if source.IsEmpty() {
		return failed(code, dataType, "", types.Errorf(types.ErrVectorizationFailure, "no source data for %s/%s", code, dataType))
	}

	// 1. 版本
	ref, err := p.versions.CreateVersion(ctx, code, dataType, source)
	if err != nil {
		return failed(code, dataType, "", err)
	}
	log = log.With(zap.String("version_id", ref.ID))
	if !ref.Created && ref.Status == StatusActive {
		log.Debug("content unchanged, version already active")
		return SyncResult{Code: code, DataType: dataType, Success: true, Skipped: true, VersionID: ref.ID}
	}
	if !ref.Created && ref.Status == StatusVectorized {
		// 上次向量化完成但未激活，直接重试激活
		v, err := p.versions.GetVersion(ctx, ref.ID)
		if err != nil {
			return failed(code, dataType, ref.ID, err)
		}
		return p.activate(ctx, log, SyncResult{
			Code: code, DataType: dataType, VersionID: ref.ID,
			Chunks: v.ChunkCount, Vectors: v.ChunkCount,
		})
	}

	// 2. 文本
	chunks := p.vectorizer.Vectorize(code, dataType, source)
	if chunks.Len() == 0 {
		cause := types.NewError(types.ErrVectorizationFailure, "no text chunks generated")
		return p.fail(ctx, code, dataType, ref.ID, cause)
	}

	// 3. 向量化
	vectors := p.embedChunks(ctx, chunks.Texts, log)
	if len(vectors) == 0 {
		cause := types.Errorf(types.ErrVectorizationFailure, "all %d chunks failed to embed", chunks.Len())
		return p.fail(ctx, code, dataType, ref.ID, cause)
	}

	records := make([]VectorRecord, 0, len(vectors))
	for i, text := range chunks.Texts {
		vec, ok := vectors[i]
		if !ok {
			continue
		}
		records = append(records, VectorRecord{
			ID:         VectorID(ref.ID, i),
			Vector:     vec,
			Text:       text,
			EntityCode: code,
			DataType:   string(dataType),
			VersionID:  ref.ID,
			ChunkIndex: i,
			Metadata:   map[string]any{"token_count": chunks.TokenCounts[i]},
		})
	}

	collection := CollectionName(code, dataType)
	if err := p.index.Upsert(ctx, collection, records); err != nil {
		return p.fail(ctx, code, dataType, ref.ID, err)
	}

	chunkCount := len(records)
	meta := map[string]any{
		"collection":      collection,
		"chunks_total":    chunks.Len(),
		"chunks_embedded": chunkCount,
		"token_counts":    chunks.TokenCounts,
		"total_tokens":    chunks.TotalTokens,
		"placeholder":     chunks.Placeholder,
		"embedding_model": p.embedder.Name(),
	}
	if err := p.versions.UpdateVectorStatus(ctx, ref.ID, StatusVectorized, &chunkCount, meta); err != nil {
		return failed(code, dataType, ref.ID, err)
	}

	return p.activate(ctx, log, SyncResult{
		Code:      code,
		DataType:  dataType,
		VersionID: ref.ID,
		Chunks:    chunks.Len(),
		Vectors:   chunkCount,
	})
}

// activate 激活版本；旧版本向量保留到清理任务
func (p *SyncProcessor) activate(ctx context.Context, log *zap.Logger, r SyncResult) SyncResult {
	if _, err := p.versions.ActivateVersion(ctx, r.VersionID); err != nil {
		log.Warn("activation failed", zap.Error(err))
		r.Error = toTypesError(err)
		p.publish(ctx, r)
		return r
	}
	log.Info("version activated", zap.Int("chunks", r.Chunks), zap.Int("vectors", r.Vectors))
	r.Success = true
	p.publish(ctx, r)
	return r
}

// embedChunks 分批向量化；批次失败时逐条重试，单条失败跳过
func (p *SyncProcessor) embedChunks(ctx context.Context, texts []string, log *zap.Logger) map[int][]float64 {
	out := make(map[int][]float64, len(texts))
	for start := 0; start < len(texts); start += p.cfg.EmbedBatchSize {
		end := min(start+p.cfg.EmbedBatchSize, len(texts))
		batch := texts[start:end]

		vecs, err := p.embedBatch(ctx, batch)
		if err == nil && len(vecs) == len(batch) {
			for i, v := range vecs {
				out[start+i] = v
			}
			continue
		}
		if err == nil {
			err = fmt.Errorf("embedding count mismatch: want %d, got %d", len(batch), len(vecs))
		}
		if len(batch) > 1 {
			log.Debug("batch embedding failed, falling back to single chunks", zap.Error(err))
		}

		for i, text := range batch {
			if ctx.Err() != nil {
				return out
			}
			if len(batch) == 1 {
				log.Warn("chunk embedding failed, skipping", zap.Int("chunk_index", start), zap.Error(err))
				break
			}
			vec, err := embedding.EmbedOne(ctx, p.embedder, text, p.cfg.EmbedTimeout)
			if err != nil {
				log.Warn("chunk embedding failed, skipping", zap.Int("chunk_index", start+i), zap.Error(err))
				continue
			}
			out[start+i] = vec
		}
	}
	return out
}

func (p *SyncProcessor) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if p.cfg.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.EmbedTimeout)
		defer cancel()
	}
	return p.embedder.Embed(ctx, texts)
}

// fail 把版本标记为 failed 并返回失败结果
func (p *SyncProcessor) fail(ctx context.Context, code string, dataType market.DataType, versionID string, cause error) SyncResult {
	meta := map[string]any{"error": cause.Error()}
	if err := p.versions.UpdateVectorStatus(ctx, versionID, StatusFailed, nil, meta); err != nil {
		p.logger.Warn("failed to mark version failed",
			zap.String("version_id", versionID), zap.Error(err))
	}
	r := failed(code, dataType, versionID, cause)
	p.publish(ctx, r)
	return r
}

func (p *SyncProcessor) finish(ctx context.Context, r SyncResult, start time.Time) SyncResult {
	if p.observer != nil {
		p.observer.ObserveSync(r.DataType, r.Outcome(), time.Since(start), r.Chunks, r.Vectors)
	}
	if r.Error != nil {
		p.logger.Warn("sync failed",
			zap.String("code", r.Code),
			zap.String("data_type", string(r.DataType)),
			zap.String("error_code", string(r.Error.Code)),
			zap.Error(r.Error))
	}
	return r
}

// publish 发布失败只记录日志
func (p *SyncProcessor) publish(ctx context.Context, r SyncResult) {
	if r.VersionID == "" {
		return
	}
	evt := events.Event{
		VersionID:  r.VersionID,
		EntityCode: r.Code,
		DataType:   string(r.DataType),
		ChunkCount: r.Vectors,
		OccurredAt: time.Now().UTC(),
		Metadata:   eventMetadata(ctx),
	}
	if r.Success {
		evt.Type = events.TypeVersionActivated
	} else {
		evt.Type = events.TypeVersionFailed
		if r.Error != nil {
			evt.Error = r.Error.Error()
		}
	}
	if err := p.publisher.Publish(ctx, evt); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("type", evt.Type), zap.String("version_id", r.VersionID), zap.Error(err))
	}
}

// eventMetadata 携带触发来源与请求 ID，便于下游关联
func eventMetadata(ctx context.Context) map[string]any {
	meta := map[string]any{}
	if t, ok := ctxkeys.Trigger(ctx); ok {
		meta["trigger"] = t
	}
	if id, ok := ctxkeys.RequestID(ctx); ok {
		meta["request_id"] = id
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// failed 统一把错误转成 *types.Error
func failed(code string, dataType market.DataType, versionID string, err error) SyncResult {
	return SyncResult{
		Code:      code,
		DataType:  dataType,
		VersionID: versionID,
		Error:     toTypesError(err),
	}
}

func toTypesError(err error) *types.Error {
	if err == nil {
		return nil
	}
	if te, ok := types.AsError(err); ok {
		return te
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, "sync interrupted").WithCause(err)
	}
	return types.NewError(types.ErrInternalError, "sync failed").WithCause(err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
