package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/config"
	"github.com/BaSui01/stockrag/types"
)

// =============================================================================
// ⏰ 定时调度
// =============================================================================

// Sweeper 过期版本清理
type Sweeper interface {
	CleanupDeprecatedVersions(ctx context.Context, daysOld int) (int, error)
}

// SweepObserver 清理埋点
type SweepObserver interface {
	ObserveCleanup(purged int)
}

// Scheduler 周期性处理到期的自选列表并执行保留期清理。
// 所有工作在 Run 的单个 goroutine 内串行执行。
type Scheduler struct {
	repo      *WatchlistRepository
	processor *Processor
	sweeper   Sweeper
	cfg       config.SchedulerConfig
	observer  SweepObserver
	logger    *zap.Logger

	triggers chan int
	now      func() time.Time
}

// NewScheduler 创建调度器
func NewScheduler(repo *WatchlistRepository, processor *Processor, sweeper Sweeper, cfg config.SchedulerConfig, observer SweepObserver, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		repo:      repo,
		processor: processor,
		sweeper:   sweeper,
		cfg:       cfg,
		observer:  observer,
		logger:    logger.With(zap.String("component", "scheduler")),
		triggers:  make(chan int, 16),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Trigger 请求立即处理某个优先级，由 Run 异步执行
func (s *Scheduler) Trigger(priority int) error {
	if priority < PriorityHighest || priority > PriorityLowest {
		return types.NewValidationError("priority must be between %d and %d, got %d", PriorityHighest, PriorityLowest, priority)
	}
	select {
	case s.triggers <- priority:
		return nil
	default:
		return types.NewError(types.ErrUnavailable, "scheduler trigger queue is full")
	}
}

// Run 阻塞运行直到 ctx 取消
func (s *Scheduler) Run(ctx context.Context) error {
	tick := s.cfg.TickInterval
	if tick <= 0 {
		tick = time.Minute
	}
	sweep := s.cfg.SweepInterval
	if sweep <= 0 {
		sweep = 24 * time.Hour
	}

	tickTicker := time.NewTicker(tick)
	defer tickTicker.Stop()
	sweepTicker := time.NewTicker(sweep)
	defer sweepTicker.Stop()

	s.logger.Info("scheduler started", zap.Duration("tick", tick), zap.Duration("sweep", sweep))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-tickTicker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", zap.Error(err))
			}
		case p := <-s.triggers:
			report, err := s.processor.ProcessPriority(ctx, p)
			if err != nil {
				s.logger.Error("triggered pass failed", zap.Int("priority", p), zap.Error(err))
				continue
			}
			s.logger.Info("triggered pass completed", zap.Int("priority", p), zap.Int("pairs", report.Pairs))
		case <-sweepTicker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}

// Tick 处理所有到期的自选列表，按优先级出队；返回处理的列表数
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	lists, err := s.repo.List(ctx, true)
	if err != nil {
		return 0, err
	}
	now := s.now()
	q := NewQueue()
	for i := range lists {
		if lists[i].Due(now) {
			q.Push(lists[i])
		}
	}

	processed := 0
	for q.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		w, _ := q.Pop()
		if _, err := s.processor.ProcessWatchlists(ctx, []Watchlist{w}); err != nil {
			s.logger.Warn("watchlist pass failed", zap.Uint("watchlist_id", w.ID), zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}

// Sweep 执行一次保留期清理
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	if s.sweeper == nil {
		return 0, nil
	}
	days := s.cfg.RetentionDays
	if days <= 0 {
		days = 7
	}
	purged, err := s.sweeper.CleanupDeprecatedVersions(ctx, days)
	if err != nil {
		return purged, err
	}
	if s.observer != nil {
		s.observer.ObserveCleanup(purged)
	}
	s.logger.Info("retention sweep completed", zap.Int("purged", purged), zap.Int("retention_days", days))
	return purged, nil
}
