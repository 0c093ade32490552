package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/testutil/fixtures"
	"github.com/BaSui01/stockrag/types"
)

func TestWatchlistRepository_CRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	w := newWatchlist("白酒", 2, []string{fixtures.CodeMoutai}, market.Financial, market.RealtimeQuote)
	w.Schedule = "@every 15m"
	require.NoError(t, repo.Create(ctx, w))
	require.NotZero(t, w.ID)

	got, err := repo.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "白酒", got.Name)
	assert.Equal(t, []string{fixtures.CodeMoutai}, []string(got.EntityCodes))
	assert.Equal(t, []string{"financial", "realtime_quote"}, []string(got.DataTypes))
	assert.True(t, got.Enabled)
	assert.Equal(t, 15*time.Minute, got.Interval())

	byName, err := repo.GetByName(ctx, "白酒")
	require.NoError(t, err)
	assert.Equal(t, w.ID, byName.ID)

	got.EntityCodes = append(got.EntityCodes, fixtures.CodePingAn)
	got.Priority = 1
	require.NoError(t, repo.Update(ctx, got))

	updated, err := repo.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Priority)
	assert.Len(t, updated.EntityCodes, 2)

	require.NoError(t, repo.Delete(ctx, w.ID))
	_, err = repo.Get(ctx, w.ID)
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
	assert.True(t, types.IsErrorCode(repo.Delete(ctx, w.ID), types.ErrNotFound))
}

func TestWatchlistRepository_Validation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(w *Watchlist)
	}{
		{"missing name", func(w *Watchlist) { w.Name = "" }},
		{"priority too low", func(w *Watchlist) { w.Priority = 0 }},
		{"priority too high", func(w *Watchlist) { w.Priority = 6 }},
		{"no codes", func(w *Watchlist) { w.EntityCodes = nil }},
		{"bad code", func(w *Watchlist) { w.EntityCodes = []string{fixtures.CodeNotValid} }},
		{"no data types", func(w *Watchlist) { w.DataTypes = nil }},
		{"unknown data type", func(w *Watchlist) { w.DataTypes = []string{"kline"} }},
		{"bad schedule", func(w *Watchlist) { w.Schedule = "@every soon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWatchlist("list-"+tt.name, 3, []string{fixtures.CodeCATL}, market.FundFlow)
			tt.mutate(w)
			err := repo.Create(ctx, w)
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrValidation), err)
		})
	}

	// 名称唯一
	require.NoError(t, repo.Create(ctx, newWatchlist("dup", 3, []string{fixtures.CodeCATL}, market.FundFlow)))
	err := repo.Create(ctx, newWatchlist("dup", 4, []string{fixtures.CodeSTAR}, market.FundFlow))
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	err = repo.Update(ctx, &Watchlist{Name: "x"})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
}

func TestWatchlistRepository_ListByPriority(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := newWatchlist("a", 1, []string{fixtures.CodeMoutai}, market.Financial)
	b := newWatchlist("b", 1, []string{fixtures.CodePingAn}, market.Financial)
	c := newWatchlist("c", 3, []string{fixtures.CodeCATL}, market.Financial)
	for _, w := range []*Watchlist{a, b, c} {
		require.NoError(t, repo.Create(ctx, w))
	}
	b.Enabled = false
	require.NoError(t, repo.Update(ctx, b))

	p1, err := repo.ListByPriority(ctx, 1)
	require.NoError(t, err)
	require.Len(t, p1, 1)
	assert.Equal(t, "a", p1[0].Name)

	all, err := repo.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	enabled, err := repo.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, enabled, 2)

	_, err = repo.ListByPriority(ctx, 9)
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
}

func TestWatchlistRepository_ListContainingCodes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := newWatchlist("a", 2, []string{fixtures.CodeMoutai, fixtures.CodePingAn}, market.Financial)
	b := newWatchlist("b", 1, []string{fixtures.CodePingAn}, market.FundFlow)
	c := newWatchlist("c", 1, []string{fixtures.CodeCATL}, market.Financial)
	d := newWatchlist("d", 1, []string{fixtures.CodeMoutai}, market.Financial)
	for _, w := range []*Watchlist{a, b, c, d} {
		require.NoError(t, repo.Create(ctx, w))
	}
	d.Enabled = false
	require.NoError(t, repo.Update(ctx, d))

	got, err := repo.ListContainingCodes(ctx, []string{fixtures.CodePingAn, fixtures.CodeMoutai})
	require.NoError(t, err)
	names := make([]string, 0, len(got))
	for _, w := range got {
		names = append(names, w.Name)
	}
	assert.Equal(t, []string{"b", "a"}, names, "enabled only, by priority")

	none, err := repo.ListContainingCodes(ctx, []string{fixtures.CodeSTAR})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWatchlistRepository_MarkRun(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	w := newWatchlist("run", 2, []string{fixtures.CodeMoutai}, market.Financial)
	require.NoError(t, repo.Create(ctx, w))

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkRun(ctx, w.ID, at))

	got, err := repo.Get(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, at.Equal(got.LastRunAt.UTC()))
	assert.False(t, got.Due(at.Add(time.Minute)))
	assert.True(t, got.Due(at.Add(got.Interval())))
}

func TestWatchlistRepository_RecordUsage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	w := newWatchlist("usage", 2, []string{fixtures.CodeMoutai}, market.Financial)
	require.NoError(t, repo.Create(ctx, w))
	day := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	none, err := repo.GetUsage(ctx, w.ID, day)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, repo.RecordUsage(ctx, w.ID, day, 2, 1, 100*time.Millisecond))
	require.NoError(t, repo.RecordUsage(ctx, w.ID, day.Add(time.Hour), 2, 2, 300*time.Millisecond))

	u, err := repo.GetUsage(ctx, w.ID, day)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "2026-03-02", u.UsageDate)
	assert.EqualValues(t, 4, u.AccessCount)
	assert.EqualValues(t, 3, u.CacheHits)
	assert.InDelta(t, 200.0, u.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 0.75, u.CacheHitRate, 1e-9)

	// 次日独立一行
	require.NoError(t, repo.RecordUsage(ctx, w.ID, day.Add(24*time.Hour), 1, 0, 50*time.Millisecond))
	next, err := repo.GetUsage(ctx, w.ID, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, next.AccessCount)
	assert.Zero(t, next.CacheHitRate)

	// 无访问不写入
	require.NoError(t, repo.RecordUsage(ctx, w.ID, day.Add(48*time.Hour), 0, 0, 0))
	empty, err := repo.GetUsage(ctx, w.ID, day.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, empty)

	err = repo.RecordUsage(ctx, w.ID, day, 1, 2, 0)
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	// 删除列表时一并删除统计
	require.NoError(t, repo.Delete(ctx, w.ID))
	gone, err := repo.GetUsage(ctx, w.ID, day)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
