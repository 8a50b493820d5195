package batchring

import (
	"sync/atomic"
)

// TaskQ dispatches tasks from one dispatcher goroutine to a fixed pool of
// workers and hands the finished tasks back to the dispatcher. Tasks flow
// through a Demultiplexer to the workers and return through a Multiplexer;
// a finished task is moved between the two by swapping slots, so its
// fields are never copied.
//
// Dispatch, DispatchTo, Flush and Collect must be called from the dispatcher
// goroutine; Work(i) from the goroutine of worker i.
type TaskQ[T any] struct {
	tasks   *Demultiplexer[T]
	replies *Multiplexer[T]

	dispatchAttempts      uint64
	dispatchFailedQIsFull uint64
	dispatched            uint64
	workFailedReplyIsFull uint64
	done                  uint64
	collected             uint64
}

type TaskQStats struct {
	DispatchAttempts      uint64
	DispatchFailedQIsFull uint64
	Dispatched            uint64
	WorkFailedReplyIsFull uint64
	Done                  uint64
	Collected             uint64
}

// NewTaskQ creates a task queue for workers workers with capacity tasks
// in flight per worker. Capacity must be a power of two (1<<k).
func NewTaskQ[T any](capacity uint64, workers int, builder func() *T) *TaskQ[T] {
	return &TaskQ[T]{
		tasks:   NewDemultiplexer(capacity, workers, builder),
		replies: NewMultiplexer(capacity, workers, builder),
	}
}

// Stats retrieves the current statistics of the TaskQ
func (q *TaskQ[T]) Stats() TaskQStats {
	return TaskQStats{
		DispatchAttempts:      atomic.LoadUint64(&q.dispatchAttempts),
		DispatchFailedQIsFull: atomic.LoadUint64(&q.dispatchFailedQIsFull),
		Dispatched:            atomic.LoadUint64(&q.dispatched),
		WorkFailedReplyIsFull: atomic.LoadUint64(&q.workFailedReplyIsFull),
		Done:                  atomic.LoadUint64(&q.done),
		Collected:             atomic.LoadUint64(&q.collected),
	}
}

// Dispatch fills a task for the next worker in rotation.
// Returns ErrQueueIsFull if every worker is saturated.
// The task becomes visible to the worker on the next Flush.
func (q *TaskQ[T]) Dispatch(fill func(t *T)) error {
	atomic.AddUint64(&q.dispatchAttempts, 1)
	t := q.tasks.NextToDispatch()
	if t == nil {
		atomic.AddUint64(&q.dispatchFailedQIsFull, 1)
		return ErrQueueIsFull
	}
	fill(t)
	atomic.AddUint64(&q.dispatched, 1)
	return nil
}

// DispatchTo fills a task for the given worker.
// Returns ErrQueueIsFull if that worker is saturated.
func (q *TaskQ[T]) DispatchTo(worker int, fill func(t *T)) error {
	atomic.AddUint64(&q.dispatchAttempts, 1)
	t := q.tasks.NextToDispatchTo(worker)
	if t == nil {
		atomic.AddUint64(&q.dispatchFailedQIsFull, 1)
		return ErrQueueIsFull
	}
	fill(t)
	atomic.AddUint64(&q.dispatched, 1)
	return nil
}

// Flush publishes the dispatched tasks to their workers.
func (q *TaskQ[T]) Flush(lazy bool) {
	q.tasks.Flush(lazy)
}

// Work runs exec on every task pending for the given worker and hands the
// tasks back to the dispatcher. Returns the number of tasks handled.
// Stops early, leaving the rest pending, if the reply channel is full.
func (q *TaskQ[T]) Work(worker int, exec func(t *T)) int {
	in := q.tasks.channel(worker)
	out := q.replies.channel(worker)

	handled := 0
	for n := in.AvailableToFetch(); n > 0; n-- {
		t := in.Fetch()
		spare := out.NextToDispatchSwap(t)
		if spare == nil {
			atomic.AddUint64(&q.workFailedReplyIsFull, 1)
			in.c.unfetch()
			break
		}
		// t now lives in the reply slot, spare takes its place
		in.Replace(spare)
		exec(t)
		handled++
	}
	if handled == 0 {
		return 0
	}

	in.DoneFetching(false)
	out.Flush(false)
	atomic.AddUint64(&q.done, uint64(handled))
	return handled
}

// Collect calls fn for every finished task and releases them.
// Returns the number of tasks collected.
func (q *TaskQ[T]) Collect(fn func(t *T)) int {
	n := q.replies.AvailableToPoll()
	if n == 0 {
		return 0
	}
	for i := uint64(0); i < n; i++ {
		fn(q.replies.Poll())
	}
	q.replies.DonePolling(false)
	atomic.AddUint64(&q.collected, n)
	return int(n)
}

// Workers returns the number of workers.
func (q *TaskQ[T]) Workers() int {
	return q.tasks.Consumers()
}
