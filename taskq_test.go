package batchring

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type task struct {
	in  int
	out int
}

// Basic sanity: sequential dispatch/work/collect with a single worker.
func TestTaskQSequential(t *testing.T) {
	const (
		capacity = 1024
		N        = 100_000
	)

	q := NewTaskQ[task](capacity, 1, nil)

	// Dispatch N tasks
	for i := 0; i < N; i++ {
		err := q.Dispatch(func(t *task) { t.in = i })
		if i < capacity {
			if err != nil {
				t.Fatalf("dispatch failed at %d (queue unexpectedly full): %v", i, err)
			}
		} else if err != ErrQueueIsFull {
			t.Fatalf("dispatch at %d: expected ErrQueueIsFull, got %v", i, err)
		}
	}
	q.Flush(false)

	if n := q.Work(0, func(t *task) { t.out = t.in * 2 }); n != capacity {
		t.Fatalf("expected %d tasks handled, got %d", capacity, n)
	}

	next := 0
	q.Collect(func(tk *task) {
		if tk.in != next || tk.out != next*2 {
			t.Fatalf("expected task %d, got %+v (FIFO violated)", next, *tk)
		}
		next++
	})
	if next != capacity {
		t.Fatalf("expected %d tasks collected, got %d", capacity, next)
	}

	// Now queue must be empty
	if n := q.Collect(func(*task) {}); n != 0 {
		t.Fatalf("expected empty queue at the end, got %d", n)
	}

	assert.Equal(t, TaskQStats{
		DispatchAttempts:      N,
		DispatchFailedQIsFull: N - capacity,
		Dispatched:            capacity,
		Done:                  capacity,
		Collected:             capacity,
	}, q.Stats())
}

func TestTaskQDispatchTo(t *testing.T) {
	q := NewTaskQ[task](2, 3, nil)
	require.Equal(t, 3, q.Workers())

	for i := 0; i < 2; i++ {
		require.NoError(t, q.DispatchTo(1, func(t *task) { t.in = i }))
	}
	assert.ErrorIs(t, q.DispatchTo(1, func(*task) {}), ErrQueueIsFull)
	q.Flush(true)

	assert.Zero(t, q.Work(0, func(*task) {}))
	assert.Zero(t, q.Work(2, func(*task) {}))
	assert.Equal(t, 2, q.Work(1, func(*task) {}))
	assert.Panics(t, func() { q.Work(3, func(*task) {}) })
}

// A full reply channel stops the worker without running the remaining tasks.
func TestTaskQReplyFull(t *testing.T) {
	q := NewTaskQ[task](2, 1, nil)
	for i := 0; i < 2; i++ {
		require.NoError(t, q.Dispatch(func(t *task) { t.in = i }))
	}
	q.Flush(false)

	var ran []int
	exec := func(t *task) { ran = append(ran, t.in) }
	require.Equal(t, 2, q.Work(0, exec))

	for i := 2; i < 4; i++ {
		require.NoError(t, q.Dispatch(func(t *task) { t.in = i }))
	}
	q.Flush(false)
	assert.Zero(t, q.Work(0, exec), "reply channel is full")
	assert.Equal(t, uint64(1), q.Stats().WorkFailedReplyIsFull)
	assert.Equal(t, []int{0, 1}, ran)

	assert.Equal(t, 2, q.Collect(func(*task) {}))
	assert.Equal(t, 2, q.Work(0, exec))
	assert.Equal(t, []int{0, 1, 2, 3}, ran, "no task runs twice")

	var collected []int
	q.Collect(func(t *task) { collected = append(collected, t.in) })
	assert.Equal(t, []int{2, 3}, collected)
}

// A reply channel filling up in the middle of a batch keeps the rest of
// the batch pending for the next Work call.
func TestTaskQReplyFullMidBatch(t *testing.T) {
	q := NewTaskQ[task](4, 1, nil)
	dispatch := func(from, to int) {
		for i := from; i < to; i++ {
			require.NoError(t, q.Dispatch(func(t *task) { t.in = i }))
		}
		q.Flush(false)
	}

	var ran []int
	exec := func(t *task) { ran = append(ran, t.in) }

	dispatch(0, 3)
	require.Equal(t, 3, q.Work(0, exec))
	dispatch(3, 5)
	assert.Equal(t, 1, q.Work(0, exec), "one reply slot left")
	assert.Equal(t, uint64(1), q.Stats().WorkFailedReplyIsFull)

	var collected []int
	q.Collect(func(t *task) { collected = append(collected, t.in) })
	assert.Equal(t, []int{0, 1, 2, 3}, collected)

	assert.Equal(t, 1, q.Work(0, exec))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, ran, "no task runs twice")
	q.Collect(func(t *task) { collected = append(collected, t.in) })
	assert.Equal(t, []int{0, 1, 2, 3, 4}, collected)
}

// Tasks move between the queues by pointer: the object a worker sees is
// the one the dispatcher collects.
func TestTaskQSwapKeepsIdentity(t *testing.T) {
	q := NewTaskQ[task](4, 1, nil)
	var filled *task
	require.NoError(t, q.Dispatch(func(t *task) { filled = t }))
	q.Flush(false)

	var worked *task
	q.Work(0, func(t *task) { worked = t })
	var collected *task
	q.Collect(func(t *task) { collected = t })

	assert.Same(t, filled, worked)
	assert.Same(t, filled, collected)

	// the slot freed in the task ring holds a different object
	var refilled *task
	require.NoError(t, q.Dispatch(func(t *task) { refilled = t }))
	assert.NotSame(t, filled, refilled)
}

// Concurrent test: one dispatcher, many workers.
// Checks that every task is executed and collected exactly once.
func TestTaskQConcurrent(t *testing.T) {
	const (
		capacity = 1 << 6
		workers  = 4
		N        = 100_000
	)

	q := NewTaskQ[task](capacity, workers, nil)
	seen := make([]int32, N)
	var stop atomic.Bool

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for !stop.Load() {
				if q.Work(w, func(t *task) { t.out = t.in + 1 }) == 0 {
					runtime.Gosched()
				}
			}
		}(w)
	}

	collect := func(tk *task) {
		if tk.out != tk.in+1 {
			t.Errorf("task %d not executed", tk.in)
		}
		seen[tk.in]++
	}

	sent, collected := 0, 0
	for collected < N {
		for sent < N {
			if err := q.Dispatch(func(t *task) { t.in = sent }); err != nil {
				break
			}
			sent++
		}
		q.Flush(false)
		if n := q.Collect(collect); n > 0 {
			collected += n
		} else {
			runtime.Gosched()
		}
	}
	stop.Store(true)
	wg.Wait()

	for i := 0; i < N; i++ {
		if seen[i] != 1 {
			t.Fatalf("task %d collected %d times (expected 1)", i, seen[i])
		}
	}
	s := q.Stats()
	assert.Equal(t, uint64(N), s.Dispatched)
	assert.Equal(t, uint64(N), s.Done)
	assert.Equal(t, uint64(N), s.Collected)
}

func BenchmarkTaskQ(b *testing.B) {
	const (
		capacity = 1 << 10
		workers  = 4
	)

	q := NewTaskQ[task](capacity, workers, nil)
	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for !stop.Load() {
				if q.Work(w, func(t *task) { t.out = t.in }) == 0 {
					runtime.Gosched()
				}
			}
		}(w)
	}

	b.ResetTimer()
	sent, collected := 0, 0
	for collected < b.N {
		for sent < b.N && q.Dispatch(func(t *task) { t.in = sent }) == nil {
			sent++
		}
		q.Flush(true)
		collected += q.Collect(func(*task) {})
	}
	b.StopTimer()

	stop.Store(true)
	wg.Wait()
}
