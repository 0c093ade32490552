package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueue_Order(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	q := NewQueue(
		Watchlist{ID: 1, Priority: 3},
		Watchlist{ID: 2, Priority: 1, LastRunAt: &t1},
		Watchlist{ID: 3, Priority: 1, LastRunAt: &t0},
	)
	q.Push(Watchlist{ID: 4, Priority: 1})
	q.Push(Watchlist{ID: 5, Priority: 2, LastRunAt: &t0})
	assert.Equal(t, 5, q.Len())

	var order []uint
	for q.Len() > 0 {
		w, ok := q.Pop()
		assert.True(t, ok)
		order = append(order, w.ID)
	}
	// 同优先级：从未运行 → 最早运行
	assert.Equal(t, []uint{4, 3, 2, 5, 1}, order)

	_, ok := q.Pop()
	assert.False(t, ok)
}
