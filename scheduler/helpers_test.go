package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/rag"
	"github.com/BaSui01/stockrag/resolver"
	"github.com/BaSui01/stockrag/testutil"
	"github.com/BaSui01/stockrag/types"
)

// fakeSource 按 code/type 返回固定结果，并统计最大并发
type fakeSource struct {
	mu       sync.Mutex
	records  map[string]resolver.Result
	errs     map[string]error
	calls    []string
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func newFakeSource() *fakeSource {
	return &fakeSource{records: map[string]resolver.Result{}, errs: map[string]error{}}
}

func (s *fakeSource) set(code string, dt market.DataType, tier resolver.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[code+"/"+string(dt)] = resolver.Result{
		Value: market.Record{"code": code, "name": "测试" + code},
		Tier:  tier,
	}
}

func (s *fakeSource) fail(code string, dt market.DataType, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[code+"/"+string(dt)] = err
}

func (s *fakeSource) Resolve(_ context.Context, dt market.DataType, code string, _ map[string]string) (resolver.Result, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	key := code + "/" + string(dt)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, key)
	if err, ok := s.errs[key]; ok {
		return resolver.Result{}, err
	}
	if r, ok := s.records[key]; ok {
		return r, nil
	}
	return resolver.Result{Tier: resolver.TierUnavailable}, nil
}

// fakeSyncer 记录每次 SyncBatch 的条目，按 failCodes 决定失败
type fakeSyncer struct {
	mu        sync.Mutex
	batches   [][]rag.BatchItem
	failCodes map[string]bool
	skipCodes map[string]bool
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{failCodes: map[string]bool{}, skipCodes: map[string]bool{}}
}

func (f *fakeSyncer) SyncBatch(_ context.Context, items []rag.BatchItem) rag.BatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, items)

	out := rag.BatchResult{Total: len(items), Errors: []rag.ItemError{}}
	for _, it := range items {
		switch {
		case f.failCodes[it.Code]:
			out.FailedCount++
			out.Errors = append(out.Errors, rag.ItemError{
				Code: it.Code, DataType: it.DataType,
				ErrorCode: types.ErrActivationConflict, Message: "conflict",
			})
		case f.skipCodes[it.Code]:
			out.SuccessCount++
			out.SkippedCount++
		default:
			out.SuccessCount++
		}
	}
	return out
}

func (f *fakeSyncer) codes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, b := range f.batches {
		for _, it := range b {
			out = append(out, it.Code+"/"+string(it.DataType))
		}
	}
	return out
}

type pairsObserver struct {
	succeeded, failed int
}

func (o *pairsObserver) ObserveWatchlistPairs(succeeded, failed int) {
	o.succeeded += succeeded
	o.failed += failed
}

func newTestRepo(t *testing.T) *WatchlistRepository {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	require.NoError(t, AutoMigrate(db))
	return NewWatchlistRepository(db, zap.NewNop())
}

// newTestProcessor 暂停被替换为只计数
func newTestProcessor(t *testing.T, repo *WatchlistRepository, src *fakeSource, syncer *fakeSyncer, cfg Config) (*Processor, *int) {
	t.Helper()
	pauses := 0
	p := NewProcessor(repo, src, syncer, cfg, zap.NewNop())
	p.sleep = func(ctx context.Context, _ time.Duration) error {
		pauses++
		return ctx.Err()
	}
	return p, &pauses
}

func newWatchlist(name string, priority int, codes []string, dts ...market.DataType) *Watchlist {
	names := make([]string, 0, len(dts))
	for _, dt := range dts {
		names = append(names, string(dt))
	}
	return &Watchlist{
		Name:        name,
		Priority:    priority,
		EntityCodes: codes,
		DataTypes:   names,
		Enabled:     true,
	}
}
