package scheduler

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/BaSui01/stockrag/market"
)

// 优先级范围，1 最高
const (
	PriorityHighest = 1
	PriorityLowest  = 5
)

// Watchlist 定期同步的一组证券与数据类型
type Watchlist struct {
	ID          uint                        `gorm:"primaryKey" json:"id"`
	Name        string                      `gorm:"size:128;not null;uniqueIndex:uk_watchlists_name" json:"name" validate:"required,max=128"`
	Description string                      `gorm:"type:text" json:"description,omitempty"`
	Priority    int                         `gorm:"not null;default:5" json:"priority" validate:"min=1,max=5"`
	EntityCodes datatypes.JSONSlice[string] `gorm:"not null" json:"entity_codes" validate:"required,min=1,dive,entitycode"`
	DataTypes   datatypes.JSONSlice[string] `gorm:"not null" json:"data_types" validate:"required,min=1,dive,datatype"`
	// Schedule 同步间隔，如 "@every 15m"、"@hourly"、"30m"；为空时按优先级取默认值
	Schedule  string     `gorm:"size:64" json:"schedule,omitempty" validate:"omitempty,schedule"`
	Enabled   bool       `gorm:"not null" json:"enabled"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName 表名
func (Watchlist) TableName() string { return "watchlists" }

// Pairs 展开为 (code, data_type) 对，顺序稳定且去重
func (w *Watchlist) Pairs() []Pair {
	return CrossPairs(w.EntityCodes, w.DataTypes)
}

var defaultIntervals = map[int]time.Duration{
	1: 5 * time.Minute,
	2: 15 * time.Minute,
	3: time.Hour,
	4: 6 * time.Hour,
	5: 24 * time.Hour,
}

// Interval 同步间隔
func (w *Watchlist) Interval() time.Duration {
	if w.Schedule != "" {
		if d, err := ParseSchedule(w.Schedule); err == nil {
			return d
		}
	}
	if d, ok := defaultIntervals[w.Priority]; ok {
		return d
	}
	return 24 * time.Hour
}

// ParseSchedule 解析间隔表达式
func ParseSchedule(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "@hourly":
		return time.Hour, nil
	case "@daily", "@midnight":
		return 24 * time.Hour, nil
	case "@weekly":
		return 7 * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(s, "@every")))
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid schedule %q: interval must be positive", s)
	}
	return d, nil
}

// Due 是否到期
func (w *Watchlist) Due(now time.Time) bool {
	if !w.Enabled {
		return false
	}
	return w.LastRunAt == nil || !now.Before(w.LastRunAt.Add(w.Interval()))
}

// WatchlistUsage 每日访问统计
type WatchlistUsage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	WatchlistID  uint      `gorm:"not null;uniqueIndex:uk_watchlist_usage_day,priority:1" json:"watchlist_id"`
	UsageDate    string    `gorm:"size:10;not null;uniqueIndex:uk_watchlist_usage_day,priority:2" json:"usage_date"`
	AccessCount  int64     `gorm:"not null;default:0" json:"access_count"`
	CacheHits    int64     `gorm:"not null;default:0" json:"cache_hits"`
	AvgLatencyMs float64   `gorm:"column:avg_latency_ms;not null;default:0" json:"avg_latency_ms"`
	CacheHitRate float64   `gorm:"not null;default:0" json:"cache_hit_rate"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName 表名
func (WatchlistUsage) TableName() string { return "watchlist_usage" }

// Pair 一个 (code, data_type) 同步单元
type Pair struct {
	Code     string          `json:"code"`
	DataType market.DataType `json:"data_type"`
}

func (p Pair) key() string { return p.Code + "/" + string(p.DataType) }

// CrossPairs codes × dataTypes，保持输入顺序并去重
func CrossPairs(codes, dataTypes []string) []Pair {
	seen := make(map[string]bool, len(codes)*len(dataTypes))
	out := make([]Pair, 0, len(codes)*len(dataTypes))
	for _, c := range codes {
		for _, dt := range dataTypes {
			p := Pair{Code: c, DataType: market.DataType(dt)}
			if seen[p.key()] {
				continue
			}
			seen[p.key()] = true
			out = append(out, p)
		}
	}
	return out
}

// UnionPairs 合并多个列表的数据对，先出现的优先
func UnionPairs(lists ...[]Pair) []Pair {
	seen := map[string]bool{}
	var out []Pair
	for _, l := range lists {
		for _, p := range l {
			if seen[p.key()] {
				continue
			}
			seen[p.key()] = true
			out = append(out, p)
		}
	}
	return out
}
