package listing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueuePopFIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := 1; i <= 3; i++ {
		q.Push(i)
	}
	q.MarkDone()

	ctx := context.Background()
	for want := 1; want <= 3; want++ {
		got, ok, err := q.Pop(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	_, ok, err := q.Pop(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, q.Drained())
}

func TestQueuePopWaitsForPush(t *testing.T) {
	q := NewQueue[string]()
	got := make(chan string, 1)

	go func() {
		item, ok, err := q.Pop(context.Background())
		if err == nil && ok {
			got <- item
		}
		close(got)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push("a")

	select {
	case item := <-got:
		require.Equal(t, "a", item)
	case <-time.After(time.Second):
		t.Fatal("Pop 未被 Push 唤醒")
	}
}

func TestQueuePopRespectsContext(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := q.Pop(ctx)
	require.False(t, ok)
	require.ErrorIs(t, err, context.Canceled)

	_, err = q.PopBatch(ctx, 3)
	require.ErrorIs(t, err, context.Canceled)
}

func TestQueueMarkDoneIdempotent(t *testing.T) {
	q := NewQueue[int]()
	q.MarkDone()
	q.MarkDone()
	require.True(t, q.Drained())
}

func TestQueuePopBatch(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 7; i++ {
		q.Push(i)
	}

	ctx := context.Background()
	batch, err := q.PopBatch(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3, 4}, batch)

	// 未结束时剩余不足一批，需要等待生产者结束。
	ready := make(chan []int, 1)
	go func() {
		b, _ := q.PopBatch(ctx, 5)
		ready <- b
	}()

	select {
	case <-ready:
		t.Fatal("不足一批时不应提前返回")
	case <-time.After(20 * time.Millisecond):
	}

	q.MarkDone()
	require.Equal(t, []int{5, 6}, <-ready)

	batch, err = q.PopBatch(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, batch)
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	const n = 1000
	q := NewQueue[int]()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(i)
		}
		q.MarkDone()
	}()

	seen := make([]int, 0, n)
	for {
		item, ok, err := q.Pop(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, item)
	}
	wg.Wait()

	require.Len(t, seen, n)
	for i, v := range seen {
		require.Equal(t, i, v)
	}
}
