package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/internal/ctxkeys"
	"github.com/BaSui01/stockrag/internal/events"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/resolver"
	"github.com/BaSui01/stockrag/testutil"
	"github.com/BaSui01/stockrag/testutil/fixtures"
	"github.com/BaSui01/stockrag/testutil/mocks"
	"github.com/BaSui01/stockrag/types"
)

// staticSource 按 (code, type) 返回固定数据，缺失即 unavailable
type staticSource struct {
	mu      sync.Mutex
	records map[string]market.Record
	err     error
}

func newStaticSource() *staticSource {
	return &staticSource{records: map[string]market.Record{}}
}

func (s *staticSource) set(code string, dt market.DataType, r market.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[code+"/"+string(dt)] = r
}

func (s *staticSource) Resolve(_ context.Context, dt market.DataType, code string, _ map[string]string) (resolver.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return resolver.Result{}, s.err
	}
	r, ok := s.records[code+"/"+string(dt)]
	if !ok {
		return resolver.Result{Tier: resolver.TierUnavailable}, nil
	}
	return resolver.Result{Value: r.Clone(), Tier: resolver.TierPersistent}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type syncObservation struct {
	outcome string
	vectors int
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []syncObservation
}

func (o *recordingObserver) ObserveSync(_ market.DataType, outcome string, _ time.Duration, _, vectors int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs = append(o.obs, syncObservation{outcome: outcome, vectors: vectors})
}

type syncHarness struct {
	proc     *SyncProcessor
	vm       *VersionManager
	index    *MemoryIndex
	source   *staticSource
	embedder *mocks.MockEmbedder
	pub      *recordingPublisher
	observer *recordingObserver
	slept    []time.Duration
}

func newSyncHarness(t testing.TB, cfg SyncConfig) *syncHarness {
	t.Helper()
	vm, index, _ := newTestManager(t)
	h := &syncHarness{
		vm:       vm,
		index:    index,
		source:   newStaticSource(),
		embedder: mocks.NewMockEmbedder(8),
		pub:      &recordingPublisher{},
		observer: &recordingObserver{},
	}
	vz := NewVectorizer(VectorizerConfig{Chunking: DefaultChunkingConfig()}, EstimatorCounter{}, zap.NewNop())
	h.proc = NewSyncProcessor(h.source, vm, vz, h.embedder, index, cfg, zap.NewNop(),
		WithPublisher(h.pub), WithSyncObserver(h.observer))
	h.proc.sleep = func(ctx context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return ctx.Err()
	}
	return h
}

func TestSyncEntity_FullPipeline(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{EmbedBatchSize: 2})
	ctx := context.Background()
	h.source.set(fixtures.CodeMoutai, market.Announcements, fixtures.Canonical(market.Announcements, fixtures.CodeMoutai))

	res := h.proc.SyncEntity(ctx, fixtures.CodeMoutai, market.Announcements)
	require.True(t, res.Success, "%+v", res.Error)
	assert.False(t, res.Skipped)
	assert.NotEmpty(t, res.VersionID)
	assert.Positive(t, res.Chunks)
	assert.Equal(t, res.Chunks, res.Vectors)

	active, err := h.vm.GetActiveVersion(ctx, fixtures.CodeMoutai, market.Announcements)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, res.VersionID, active.VersionID)
	assert.Equal(t, res.Vectors, active.ChunkCount)
	assert.Contains(t, string(active.Metadata), `"embedding_model":"mock"`)
	assert.Contains(t, string(active.Metadata), `"total_tokens"`)

	assert.Equal(t, res.Vectors, h.index.Count(CollectionName(fixtures.CodeMoutai, market.Announcements)))
	assert.Equal(t, []string{events.TypeVersionActivated}, h.pub.eventTypes())
	require.Len(t, h.observer.obs, 1)
	assert.Equal(t, OutcomeSuccess, h.observer.obs[0].outcome)
}

// 内容不变时再次同步直接跳过（场景 B）
func TestSyncRecord_UnchangedContentSkips(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	ctx := context.Background()
	rec := market.Canonicalize(market.Announcements, map[string]any{"title": "X"})

	first := h.proc.SyncRecord(ctx, fixtures.CodePingAn, market.Announcements, rec)
	require.True(t, first.Success)
	calls := h.embedder.Calls()

	second := h.proc.SyncRecord(ctx, fixtures.CodePingAn, market.Announcements, rec)
	assert.True(t, second.Success)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.VersionID, second.VersionID)
	assert.Equal(t, calls, h.embedder.Calls())
	assert.Equal(t, OutcomeSkipped, second.Outcome())

	list, err := h.vm.ListVersions(ctx, fixtures.CodePingAn, market.Announcements)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// 内容变化后新版本替换旧版本，旧向量保留到清理（场景 C）
func TestSyncRecord_ChangedContentReplacesVersion(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	ctx := context.Background()
	collection := CollectionName(fixtures.CodeMoutai, market.Financial)

	v1 := h.proc.SyncRecord(ctx, fixtures.CodeMoutai, market.Financial, financialRecord(100))
	require.True(t, v1.Success)
	v2 := h.proc.SyncRecord(ctx, fixtures.CodeMoutai, market.Financial, financialRecord(200))
	require.True(t, v2.Success)
	assert.NotEqual(t, v1.VersionID, v2.VersionID)

	active, err := h.vm.GetActiveVersion(ctx, fixtures.CodeMoutai, market.Financial)
	require.NoError(t, err)
	assert.Equal(t, v2.VersionID, active.VersionID)

	old, err := h.vm.GetVersion(ctx, v1.VersionID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeprecated, old.Status)
	assert.Equal(t, v1.Vectors+v2.Vectors, h.index.Count(collection))
}

func TestSyncEntity_NoSourceCreatesNoVersion(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	ctx := context.Background()

	res := h.proc.SyncEntity(ctx, fixtures.CodeMoutai, market.Financial)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrVectorizationFailure, res.Error.Code)
	assert.Empty(t, res.VersionID)

	list, err := h.vm.ListVersions(ctx, fixtures.CodeMoutai, market.Financial)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, h.pub.eventTypes())
	assert.Equal(t, OutcomeFailed, h.observer.obs[0].outcome)
}

func TestSyncEntity_InvalidInputAndResolverError(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	ctx := context.Background()

	res := h.proc.SyncEntity(ctx, "bad", market.Financial)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrValidation, res.Error.Code)

	h.source.err = types.NewError(types.ErrStorage, "db down")
	res = h.proc.SyncEntity(ctx, fixtures.CodeMoutai, market.Financial)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrStorage, res.Error.Code)

	require.Len(t, h.observer.obs, 2)
	for _, o := range h.observer.obs {
		assert.Equal(t, OutcomeFailed, o.outcome)
	}
}

func TestSyncRecord_ValidationFailureIsObserved(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	ctx := context.Background()

	res := h.proc.SyncRecord(ctx, fixtures.CodeMoutai, "weather", financialRecord(1))
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrValidation, res.Error.Code)

	res = h.proc.SyncRecord(ctx, "12345", market.Financial, financialRecord(1))
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrValidation, res.Error.Code)

	require.Len(t, h.observer.obs, 2)
	assert.Equal(t, OutcomeFailed, h.observer.obs[0].outcome)
	assert.Equal(t, OutcomeFailed, h.observer.obs[1].outcome)
	assert.Empty(t, h.pub.eventTypes())
	assert.Zero(t, h.embedder.Calls())
}

func TestSyncRecord_SkipPolicyFailsVersion(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	h.proc.vectorizer = NewVectorizer(VectorizerConfig{PlaceholderPolicy: PlaceholderSkip}, nil, nil)
	ctx := context.Background()

	res := h.proc.SyncRecord(ctx, fixtures.CodeMoutai, market.Financial, market.Record{"unknown": 1})
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrVectorizationFailure, res.Error.Code)

	v, err := h.vm.GetVersion(ctx, res.VersionID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, v.Status)
	assert.Equal(t, []string{events.TypeVersionFailed}, h.pub.eventTypes())
}

func TestSyncRecord_AllEmbeddingsFail(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	h.embedder.FailAll()
	ctx := context.Background()

	res := h.proc.SyncRecord(ctx, fixtures.CodeMoutai, market.Financial, financialRecord(1))
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrVectorizationFailure, res.Error.Code)

	v, err := h.vm.GetVersion(ctx, res.VersionID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, v.Status)
	assert.Contains(t, v.ErrorMessage, "failed to embed")

	active, err := h.vm.GetActiveVersion(ctx, fixtures.CodeMoutai, market.Financial)
	require.NoError(t, err)
	assert.Nil(t, active)

	// 失败版本不阻塞下一次同步
	h.embedder = mocks.NewMockEmbedder(8)
	h.proc.embedder = h.embedder
	retry := h.proc.SyncRecord(ctx, fixtures.CodeMoutai, market.Financial, financialRecord(1))
	require.True(t, retry.Success)
	assert.NotEqual(t, res.VersionID, retry.VersionID)
}

func TestSyncRecord_PartialEmbeddingFailureSkipsChunk(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{EmbedBatchSize: 8})
	h.proc.vectorizer = NewVectorizer(VectorizerConfig{Chunking: ChunkingConfig{MaxChunkChars: 80, MinChunkChars: 10}}, nil, nil)
	h.embedder.FailContaining("第2大股东")
	ctx := context.Background()

	res := h.proc.SyncRecord(ctx, fixtures.CodeMoutai, market.Shareholders, fixtures.Canonical(market.Shareholders, fixtures.CodeMoutai))
	require.True(t, res.Success, "%+v", res.Error)
	assert.Equal(t, res.Chunks-1, res.Vectors)

	hits, err := h.index.Search(ctx, CollectionName(fixtures.CodeMoutai, market.Shareholders), make([]float64, 8), 100, SearchFilter{})
	require.NoError(t, err)
	for _, hit := range hits {
		assert.NotContains(t, hit.Record.Text, "第2大股东")
	}
}

type brokenIndex struct{ *MemoryIndex }

func (brokenIndex) Upsert(context.Context, string, []VectorRecord) error {
	return types.NewError(types.ErrVectorStore, "index unavailable")
}

func TestSyncRecord_UpsertFailureMarksFailed(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	h.proc.index = brokenIndex{h.index}
	ctx := context.Background()

	res := h.proc.SyncRecord(ctx, fixtures.CodeMoutai, market.Financial, financialRecord(1))
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrVectorStore, res.Error.Code)

	v, err := h.vm.GetVersion(ctx, res.VersionID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, v.Status)
}

func TestSyncRecord_PublishErrorIsIgnored(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	h.pub.err = errors.New("kafka down")

	res := h.proc.SyncRecord(context.Background(), fixtures.CodeMoutai, market.Financial, financialRecord(1))
	assert.True(t, res.Success)
}

func TestSyncRecord_EventCarriesTrigger(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	ctx := ctxkeys.WithTrigger(context.Background(), ctxkeys.TriggerAPI)
	ctx = ctxkeys.WithRequestID(ctx, "req-42")

	res := h.proc.SyncRecord(ctx, fixtures.CodeMoutai, market.Financial, financialRecord(1))
	require.True(t, res.Success)

	h.pub.mu.Lock()
	defer h.pub.mu.Unlock()
	require.Len(t, h.pub.events, 1)
	assert.Equal(t, map[string]any{"trigger": "api", "request_id": "req-42"}, h.pub.events[0].Metadata)
}

func TestSyncRecord_RetriesActivationOfVectorizedVersion(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	ctx := context.Background()
	rec := financialRecord(7)

	ref, err := h.vm.CreateVersion(ctx, fixtures.CodeMoutai, market.Financial, rec)
	require.NoError(t, err)
	n := 2
	require.NoError(t, h.vm.UpdateVectorStatus(ctx, ref.ID, StatusVectorized, &n, nil))

	res := h.proc.SyncRecord(ctx, fixtures.CodeMoutai, market.Financial, rec)
	require.True(t, res.Success)
	assert.Equal(t, ref.ID, res.VersionID)
	assert.Equal(t, 2, res.Vectors)
	assert.Zero(t, h.embedder.Calls())
}

// K 个空数据源全部失败且不产生版本
func TestSyncBatch_EmptySourcesAllFail(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{InterItemDelay: 10 * time.Millisecond})
	ctx := context.Background()

	codes := []string{"600000", "600001", "600002", "600003", "600004"}
	items := make([]BatchItem, 0, len(codes))
	for _, c := range codes {
		items = append(items, BatchItem{Code: c, DataType: market.Financial})
	}

	out := h.proc.SyncBatch(ctx, items)
	assert.Equal(t, len(codes), out.Total)
	assert.Zero(t, out.SuccessCount)
	assert.Equal(t, len(codes), out.FailedCount)
	assert.Zero(t, out.SuccessRate)
	require.Len(t, out.Errors, len(codes))
	for i, e := range out.Errors {
		assert.Equal(t, codes[i], e.Code)
		assert.Equal(t, types.ErrVectorizationFailure, e.ErrorCode)
	}
	assert.Len(t, h.slept, len(codes)-1)

	for _, c := range codes {
		list, err := h.vm.ListVersions(ctx, c, market.Financial)
		require.NoError(t, err)
		assert.Empty(t, list)
	}
}

func TestSyncBatch_MixedOutcomes(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	ctx := context.Background()
	h.source.set(fixtures.CodeMoutai, market.Financial, financialRecord(1))

	skipRec := financialRecord(9)
	require.True(t, h.proc.SyncRecord(ctx, fixtures.CodePingAn, market.Financial, skipRec).Success)

	out := h.proc.SyncBatch(ctx, []BatchItem{
		{Code: fixtures.CodeMoutai, DataType: market.Financial},
		{Code: fixtures.CodePingAn, DataType: market.Financial, Source: skipRec},
		{Code: fixtures.CodeCATL, DataType: market.Financial},
		{Code: "bad", DataType: market.Financial},
	})
	assert.Equal(t, 4, out.Total)
	assert.Equal(t, 2, out.SuccessCount)
	assert.Equal(t, 1, out.SkippedCount)
	assert.Equal(t, 2, out.FailedCount)
	assert.InDelta(t, 0.5, out.SuccessRate, 1e-9)
	assert.Equal(t, types.ErrValidation, out.Errors[1].ErrorCode)
}

func TestSyncBatch_EmptyAndCancelled(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	out := h.proc.SyncBatch(context.Background(), nil)
	assert.Zero(t, out.Total)
	assert.Zero(t, out.SuccessRate)
	assert.NotNil(t, out.Errors)

	out = h.proc.SyncBatch(testutil.CancelledContext(), []BatchItem{
		{Code: fixtures.CodeMoutai, DataType: market.Financial},
		{Code: fixtures.CodePingAn, DataType: market.Financial},
	})
	assert.Equal(t, 2, out.FailedCount)
	for _, e := range out.Errors {
		assert.Equal(t, types.ErrTimeout, e.ErrorCode)
	}
}

func TestSearcher_OnlyActiveVersion(t *testing.T) {
	h := newSyncHarness(t, SyncConfig{})
	ctx := context.Background()
	searcher := NewSearcher(h.vm, h.embedder, h.index, 3, time.Second, zap.NewNop())

	empty, err := searcher.Search(ctx, fixtures.CodeMoutai, market.CompanyProfile, "主营业务", 0)
	require.NoError(t, err)
	assert.Empty(t, empty.Hits)
	assert.Empty(t, empty.VersionID)

	old := market.Record{"name": "旧公司", "main_business": "旧业务描述"}
	require.True(t, h.proc.SyncRecord(ctx, fixtures.CodeMoutai, market.CompanyProfile, old).Success)
	current := fixtures.Canonical(market.CompanyProfile, fixtures.CodeMoutai)
	latest := h.proc.SyncRecord(ctx, fixtures.CodeMoutai, market.CompanyProfile, current)
	require.True(t, latest.Success)

	res, err := searcher.Search(ctx, fixtures.CodeMoutai, market.CompanyProfile, "主营业务", 10)
	require.NoError(t, err)
	assert.Equal(t, latest.VersionID, res.VersionID)
	require.NotEmpty(t, res.Hits)
	for _, hit := range res.Hits {
		assert.Equal(t, latest.VersionID, hit.Record.VersionID)
		assert.False(t, strings.Contains(hit.Record.Text, "旧业务描述"))
	}

	_, err = searcher.Search(ctx, fixtures.CodeMoutai, market.CompanyProfile, "", 1)
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
}
