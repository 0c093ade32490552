package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/stockrag/config"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/rag"
	"github.com/BaSui01/stockrag/resolver"
	"github.com/BaSui01/stockrag/types"
)

// =============================================================================
// 📋 自选列表处理
// =============================================================================

// BatchSyncer 批量同步
type BatchSyncer interface {
	SyncBatch(ctx context.Context, items []rag.BatchItem) rag.BatchResult
}

// Observer 处理埋点
type Observer interface {
	ObserveWatchlistPairs(succeeded, failed int)
}

// Config 处理参数
type Config struct {
	// 每个子批次的数据对数量
	BatchSize int
	// 子批次之间的间隔
	BatchPause time.Duration
	// 预取并发度
	Concurrency int
}

// ConfigFrom 从应用配置转换
func ConfigFrom(cfg config.SchedulerConfig) Config {
	return Config{
		BatchSize:   cfg.BatchSize,
		BatchPause:  cfg.BatchPause,
		Concurrency: cfg.Concurrency,
	}
}

func (c Config) normalized() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// Report 一次处理的汇总
type Report struct {
	Watchlists []uint          `json:"watchlists,omitempty"`
	Pairs      int             `json:"pairs"`
	SubBatches int             `json:"sub_batches"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	Failures   []rag.ItemError `json:"failures"`
	Duration   string          `json:"duration"`
}

// pairStat 单个数据对的预取统计
type pairStat struct {
	latency  time.Duration
	cacheHit bool
	resolved bool
}

// Processor 把自选列表展开为数据对，分批预取并同步
type Processor struct {
	repo     *WatchlistRepository
	source   rag.SourceResolver
	syncer   BatchSyncer
	cfg      Config
	observer Observer
	logger   *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// ProcessorOption 处理器选项
type ProcessorOption func(*Processor)

// WithObserver 设置埋点
func WithObserver(o Observer) ProcessorOption {
	return func(p *Processor) { p.observer = o }
}

// NewProcessor 创建处理器。repo 为 nil 时 ProcessEntities 只做 codes × dataTypes 的临时处理。
func NewProcessor(repo *WatchlistRepository, source rag.SourceResolver, syncer BatchSyncer, cfg Config, logger *zap.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		repo:   repo,
		source: source,
		syncer: syncer,
		cfg:    cfg.normalized(),
		logger: logger.With(zap.String("component", "watchlist_processor")),
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  pause,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessPriority 处理某个优先级下所有启用的自选列表
func (p *Processor) ProcessPriority(ctx context.Context, priority int) (*Report, error) {
	if p.repo == nil {
		return nil, types.NewValidationError("watchlist repository not configured")
	}
	lists, err := p.repo.ListByPriority(ctx, priority)
	if err != nil {
		return nil, err
	}
	return p.ProcessWatchlists(ctx, lists)
}

// ProcessWatchlists 合并多个列表的数据对后统一处理，并回写使用统计与运行时间
func (p *Processor) ProcessWatchlists(ctx context.Context, lists []Watchlist) (*Report, error) {
	listPairs := make([][]Pair, len(lists))
	for i := range lists {
		listPairs[i] = lists[i].Pairs()
	}
	return p.processLists(ctx, lists, listPairs, nil), nil
}

// ProcessEntities 处理包含给定代码的自选列表。
// 每个列表只处理其中属于 codes 的数据对；dataTypes 非空时再按数据类型过滤。
// 不在任何启用列表中的代码按 codes × dataTypes 临时处理，不计入使用统计。
func (p *Processor) ProcessEntities(ctx context.Context, codes []string, dataTypes []string) (*Report, error) {
	if len(codes) == 0 {
		return nil, types.NewValidationError("codes are required")
	}
	for _, c := range codes {
		if err := market.ValidateCode(c); err != nil {
			return nil, err
		}
	}
	typeFilter := make(map[market.DataType]bool, len(dataTypes))
	for _, dt := range dataTypes {
		parsed, err := market.ParseDataType(dt)
		if err != nil {
			return nil, err
		}
		typeFilter[parsed] = true
	}

	var lists []Watchlist
	if p.repo != nil {
		var err error
		if lists, err = p.repo.ListContainingCodes(ctx, codes); err != nil {
			return nil, err
		}
	}

	wanted := make(map[string]bool, len(codes))
	for _, c := range codes {
		wanted[c] = true
	}
	covered := make(map[string]bool, len(codes))
	matched := make([]Watchlist, 0, len(lists))
	listPairs := make([][]Pair, 0, len(lists))
	for _, w := range lists {
		var pairs []Pair
		for _, pair := range w.Pairs() {
			if !wanted[pair.Code] {
				continue
			}
			covered[pair.Code] = true
			if len(typeFilter) > 0 && !typeFilter[pair.DataType] {
				continue
			}
			pairs = append(pairs, pair)
		}
		if len(pairs) > 0 {
			matched = append(matched, w)
			listPairs = append(listPairs, pairs)
		}
	}

	var uncovered []string
	for _, c := range codes {
		if !covered[c] {
			uncovered = append(uncovered, c)
		}
	}
	var extra []Pair
	if len(uncovered) > 0 && len(dataTypes) > 0 {
		extra = CrossPairs(uncovered, dataTypes)
	}

	if len(listPairs) == 0 && len(extra) == 0 {
		return nil, types.NewValidationError("no watchlist pairs match codes %v; data types are required for codes outside watchlists", codes)
	}
	return p.processLists(ctx, matched, listPairs, extra), nil
}

// processLists listPairs[i] 是 lists[i] 本次参与处理的数据对
func (p *Processor) processLists(ctx context.Context, lists []Watchlist, listPairs [][]Pair, extra []Pair) *Report {
	all := append(append([][]Pair{}, listPairs...), extra)
	report, stats := p.run(ctx, UnionPairs(all...))

	ids := make([]uint, 0, len(lists))
	for i := range lists {
		ids = append(ids, lists[i].ID)
	}
	report.Watchlists = ids

	if p.repo != nil {
		finished := p.now()
		for i := range lists {
			p.recordUsage(ctx, &lists[i], listPairs[i], stats, finished)
			if err := p.repo.MarkRun(ctx, lists[i].ID, finished); err != nil {
				p.logger.Warn("mark watchlist run failed", zap.Uint("watchlist_id", lists[i].ID), zap.Error(err))
			}
		}
	}
	return report
}

func (p *Processor) run(ctx context.Context, pairs []Pair) (*Report, map[string]pairStat) {
	start := time.Now()
	report := &Report{Pairs: len(pairs), Failures: []rag.ItemError{}}
	stats := make(map[string]pairStat, len(pairs))

	for i := 0; i < len(pairs); i += p.cfg.BatchSize {
		if i > 0 {
			if err := p.sleep(ctx, p.cfg.BatchPause); err != nil {
				p.abort(report, pairs[i:], err)
				break
			}
		}
		end := min(i+p.cfg.BatchSize, len(pairs))
		report.SubBatches++
		p.runSubBatch(ctx, pairs[i:end], report, stats)
	}

	report.Duration = time.Since(start).String()
	if p.observer != nil {
		p.observer.ObserveWatchlistPairs(report.Succeeded, report.Failed)
	}
	p.logger.Info("watchlist pass completed",
		zap.Int("pairs", report.Pairs),
		zap.Int("sub_batches", report.SubBatches),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report, stats
}

func (p *Processor) runSubBatch(ctx context.Context, batch []Pair, report *Report, stats map[string]pairStat) {
	sources := make([]market.Record, len(batch))
	errs := make([]error, len(batch))
	local := make([]pairStat, len(batch))

	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Concurrency)
	for i, pair := range batch {
		g.Go(func() error {
			began := time.Now()
			res, err := p.source.Resolve(ctx, pair.DataType, pair.Code, nil)
			local[i] = pairStat{
				latency:  time.Since(began),
				cacheHit: err == nil && res.Tier == resolver.TierCache,
				resolved: err == nil,
			}
			switch {
			case err != nil:
				errs[i] = err
			case !res.Found():
				errs[i] = types.NewError(types.ErrVectorizationFailure, "no source data available")
			default:
				sources[i] = res.Value
			}
			return nil
		})
	}
	_ = g.Wait()

	items := make([]rag.BatchItem, 0, len(batch))
	for i, pair := range batch {
		stats[pair.key()] = local[i]
		if errs[i] != nil {
			report.Failed++
			report.Failures = append(report.Failures, itemError(pair, errs[i]))
			continue
		}
		items = append(items, rag.BatchItem{Code: pair.Code, DataType: pair.DataType, Source: sources[i]})
	}
	if len(items) == 0 {
		return
	}

	res := p.syncer.SyncBatch(ctx, items)
	report.Succeeded += res.SuccessCount
	report.Failed += res.FailedCount
	report.Skipped += res.SkippedCount
	report.Failures = append(report.Failures, res.Errors...)
}

func (p *Processor) abort(report *Report, rest []Pair, cause error) {
	p.logger.Warn("watchlist pass interrupted", zap.Int("remaining", len(rest)), zap.Error(cause))
	for _, pair := range rest {
		report.Failed++
		report.Failures = append(report.Failures, itemError(pair, cause))
	}
}

func (p *Processor) recordUsage(ctx context.Context, w *Watchlist, pairs []Pair, stats map[string]pairStat, day time.Time) {
	var accesses, hits int64
	var total time.Duration
	for _, pair := range pairs {
		s, ok := stats[pair.key()]
		if !ok || !s.resolved {
			continue
		}
		accesses++
		total += s.latency
		if s.cacheHit {
			hits++
		}
	}
	if accesses == 0 {
		return
	}
	avg := total / time.Duration(accesses)
	if err := p.repo.RecordUsage(ctx, w.ID, day, accesses, hits, avg); err != nil {
		p.logger.Warn("record watchlist usage failed", zap.Uint("watchlist_id", w.ID), zap.Error(err))
	}
}

func itemError(pair Pair, err error) rag.ItemError {
	ie := rag.ItemError{Code: pair.Code, DataType: pair.DataType, ErrorCode: types.ErrInternalError, Message: err.Error()}
	if te, ok := types.AsError(err); ok {
		ie.ErrorCode = te.Code
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		ie.ErrorCode = types.ErrTimeout
	}
	return ie
}

func pause(ctx context.Context, d time.Duration) error {
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
