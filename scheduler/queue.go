package scheduler

import "container/heap"

// watchlistHeap 小顶堆：优先级数值小的先出，同优先级 last_run_at 更早（或从未运行）的先出
type watchlistHeap []*Watchlist

func (h watchlistHeap) Len() int { return len(h) }

func (h watchlistHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	switch {
	case a.LastRunAt == nil && b.LastRunAt == nil:
		return a.ID < b.ID
	case a.LastRunAt == nil:
		return true
	case b.LastRunAt == nil:
		return false
	case !a.LastRunAt.Equal(*b.LastRunAt):
		return a.LastRunAt.Before(*b.LastRunAt)
	default:
		return a.ID < b.ID
	}
}

func (h watchlistHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *watchlistHeap) Push(x any) { *h = append(*h, x.(*Watchlist)) }

func (h *watchlistHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue 待处理自选列表的优先队列，非并发安全
type Queue struct {
	h watchlistHeap
}

// NewQueue 创建队列
func NewQueue(items ...Watchlist) *Queue {
	q := &Queue{h: make(watchlistHeap, 0, len(items))}
	for i := range items {
		w := items[i]
		q.h = append(q.h, &w)
	}
	heap.Init(&q.h)
	return q
}

// Push 入队
func (q *Queue) Push(w Watchlist) { heap.Push(&q.h, &w) }

// Pop 出队，空队列返回 false
func (q *Queue) Pop() (Watchlist, bool) {
	if q.h.Len() == 0 {
		return Watchlist{}, false
	}
	return *heap.Pop(&q.h).(*Watchlist), true
}

// Len 长度
func (q *Queue) Len() int { return q.h.Len() }
