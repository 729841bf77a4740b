package sequence

import "container/heap"

// DelayItem is an element of a DelayQueue ordered by its due time.
type DelayItem[T any] struct {
	Value T
	Due   int64
	index int
}

type delayHeap[T any] struct {
	items []*DelayItem[T]
}

func (h *delayHeap[T]) Len() int {
	return len(h.items)
}

func (h *delayHeap[T]) Less(i, j int) bool {
	return h.items[i].Due < h.items[j].Due
}

func (h *delayHeap[T]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *delayHeap[T]) Push(x any) {
	item := x.(*DelayItem[T])
	item.index = len(h.items)
	h.items = append(h.items, item)
}

func (h *delayHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	h.items = old[0 : n-1]
	return item
}

// DelayQueue is a min-heap of values keyed by a monotonic due timestamp.
// The earliest due value dequeues first. It is not safe for concurrent use;
// callers synchronize externally.
type DelayQueue[T any] struct {
	h delayHeap[T]
}

func NewDelayQueue[T any]() *DelayQueue[T] {
	q := &DelayQueue[T]{}
	heap.Init(&q.h)
	return q
}

func (q *DelayQueue[T]) Enqueue(value T, due int64) *DelayItem[T] {
	item := &DelayItem[T]{
		Value: value,
		Due:   due,
	}
	heap.Push(&q.h, item)
	return item
}

func (q *DelayQueue[T]) Dequeue() (T, bool) {
	if q.h.Len() == 0 {
		var zero T
		return zero, false
	}
	item := heap.Pop(&q.h).(*DelayItem[T])
	return item.Value, true
}

// Peek returns the earliest due timestamp without removing its value.
func (q *DelayQueue[T]) Peek() (int64, bool) {
	if q.h.Len() == 0 {
		return 0, false
	}
	return q.h.items[0].Due, true
}

// DequeueDue removes and returns the earliest value if its due timestamp is
// not after now.
func (q *DelayQueue[T]) DequeueDue(now int64) (T, bool) {
	if q.h.Len() == 0 || q.h.items[0].Due > now {
		var zero T
		return zero, false
	}
	item := heap.Pop(&q.h).(*DelayItem[T])
	return item.Value, true
}

func (q *DelayQueue[T]) Len() int {
	return q.h.Len()
}

func (q *DelayQueue[T]) IsEmpty() bool {
	return q.h.Len() == 0
}
