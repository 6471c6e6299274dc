package listing

import (
	"context"
	"sync"
)

// Queue 是流水线阶段之间的有序交接缓冲，支持阻塞弹出与生产结束标记。
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	done    bool
	changed chan struct{}
}

// NewQueue 创建空队列。
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{changed: make(chan struct{})}
}

// Push 追加到队尾。
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	q.broadcastLocked()
}

// MarkDone 标记生产者结束，可重复调用。
func (q *Queue[T]) MarkDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done {
		return
	}
	q.done = true
	q.broadcastLocked()
}

// Pop 返回队首元素；队列为空时等待，生产者结束且队列为空时返回 ok=false。
func (q *Queue[T]) Pop(ctx context.Context) (item T, ok bool, err error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item = q.takeLocked(1)[0]
			q.mu.Unlock()
			return item, true, nil
		}
		if q.done {
			q.mu.Unlock()
			return item, false, nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return item, false, ctx.Err()
		case <-wait:
		}
	}
}

// PopBatch 等待凑满 n 个元素，或生产者结束时取走剩余元素；返回空切片表示已耗尽。
func (q *Queue[T]) PopBatch(ctx context.Context, n int) ([]T, error) {
	if n <= 0 {
		n = 1
	}
	for {
		q.mu.Lock()
		if len(q.items) >= n || (q.done && len(q.items) > 0) {
			batch := q.takeLocked(n)
			q.mu.Unlock()
			return batch, nil
		}
		if q.done {
			q.mu.Unlock()
			return nil, nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Len 返回当前缓冲数量。
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drained 表示生产者已结束且缓冲为空。
func (q *Queue[T]) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.done && len(q.items) == 0
}

func (q *Queue[T]) takeLocked(n int) []T {
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]T, n)
	copy(batch, q.items[:n])

	var zero T
	for i := 0; i < n; i++ {
		q.items[i] = zero
	}
	q.items = q.items[n:]
	return batch
}

func (q *Queue[T]) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
