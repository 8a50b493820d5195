package batchring

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainConsumer(c *Consumer[int]) []int {
	n := c.AvailableToPoll()
	out := make([]int, 0, n)
	for i := uint64(0); i < n; i++ {
		out = append(out, *c.Poll())
	}
	c.DonePolling(false)
	return out
}

// Basic sanity: sequential dispatch/poll with ints (single P, single C).
func TestMPMCSequential(t *testing.T) {
	const (
		capacity = 1024
		N        = 100_000
	)

	q := NewMPMC[int](capacity, 1, 1, nil)
	p, c := q.Producer(0), q.Consumer(0)

	// Dispatch N items
	for i := 0; i < N; i++ {
		s := p.NextToDispatch()
		if i < capacity {
			if s == nil {
				t.Fatalf("dispatch failed at %d (queue unexpectedly full)", i)
			}
			*s = i
		} else if s != nil {
			t.Fatalf("dispatch succeeded at %d (queue unexpectedly not full)", i)
		}
	}
	p.Flush(false)

	// Poll N items
	got := drainConsumer(c)
	if len(got) != capacity {
		t.Fatalf("expected %d items, got %d", capacity, len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("expected %d, got %d (FIFO violated)", i, v)
		}
	}

	// Now queue must be empty
	if n := c.AvailableToPoll(); n != 0 {
		t.Fatalf("expected empty queue at the end, got %d available", n)
	}
}

func TestMPMCRouting(t *testing.T) {
	q := NewMPMC[int](8, 2, 3, nil)
	assert.Equal(t, 2, q.Producers())
	assert.Equal(t, 3, q.Consumers())

	*q.Producer(0).NextToDispatchTo(2) = 1
	*q.Producer(1).NextToDispatchTo(2) = 2
	*q.Producer(1).NextToDispatchTo(0) = 3
	q.Producer(0).Flush(false)
	q.Producer(1).Flush(false)

	assert.ElementsMatch(t, []int{1, 2}, drainConsumer(q.Consumer(2)))
	assert.Equal(t, []int{3}, drainConsumer(q.Consumer(0)))
	assert.Empty(t, drainConsumer(q.Consumer(1)))

	assert.Panics(t, func() { q.Producer(2) })
	assert.Panics(t, func() { q.Consumer(-1) })
}

func TestMPMCConsumerRollback(t *testing.T) {
	q := NewMPMC[int](8, 2, 1, nil)
	*q.Producer(0).NextToDispatch() = 1
	*q.Producer(1).NextToDispatch() = 2
	q.Producer(0).Flush(false)
	q.Producer(1).Flush(false)

	c := q.Consumer(0)
	require.Equal(t, uint64(2), c.AvailableToPoll())
	require.NotNil(t, c.Poll())
	c.Rollback()
	assert.ElementsMatch(t, []int{1, 2}, []int{*c.Poll(), *c.Poll()})
	assert.Nil(t, c.Poll())
	c.DonePolling(false)
	assert.Zero(t, c.AvailableToPoll())

	q.Clear()
	assert.NotNil(t, q.Producer(0).NextToDispatch())
}

// Concurrent test: many producers, many consumers.
// Checks that all values [0..N) appear exactly once.
func TestMPMCConcurrent(t *testing.T) {
	const (
		capacity    = 1 << 8
		N           = 200_000
		producers   = 8
		consumers   = 4
		perProducer = N / producers
	)

	q := NewMPMC[int](capacity, producers, consumers, nil)
	seen := make([]int32, N)
	var received atomic.Int64

	var wg sync.WaitGroup

	// Consumers
	wg.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func(h *Consumer[int]) {
			defer wg.Done()
			for received.Load() < N {
				n := h.AvailableToPoll()
				if n == 0 {
					runtime.Gosched()
					continue
				}
				for i := uint64(0); i < n; i++ {
					v := *h.Poll()
					if v < 0 || v >= N {
						t.Errorf("consumer: out-of-range value %d", v)
						continue
					}
					atomic.AddInt32(&seen[v], 1)
				}
				h.DonePolling(false)
				received.Add(int64(n))
			}
		}(q.Consumer(c))
	}

	// Producers
	var pg sync.WaitGroup
	pg.Add(producers)
	for p := 0; p < producers; p++ {
		start := p * perProducer
		end := start + perProducer

		go func(h *MPMCProducer[int], from, to int) {
			defer pg.Done()
			for i := from; i < to; {
				s := h.NextToDispatch()
				if s == nil {
					// Keep retrying on overflow (bounded queue)
					h.Flush(false)
					runtime.Gosched()
					continue
				}
				*s = i
				i++
				if i%8 == 0 || i == to {
					h.Flush(i%16 == 0)
				}
			}
		}(q.Producer(p), start, end)
	}

	pg.Wait()
	wg.Wait()

	// Verify that each value is seen exactly once.
	for i := 0; i < N; i++ {
		if seen[i] != 1 {
			t.Fatalf("value %d seen %d times (expected 1)", i, seen[i])
		}
	}
}

// Concurrent test: every consumer of an MPMCBroadcaster gets all P*N values.
func TestMPMCBroadcasterConcurrent(t *testing.T) {
	const (
		capacity  = 1 << 8
		N         = 20_000
		producers = 4
		consumers = 3
	)

	q := NewMPMCBroadcaster[[2]int](capacity, producers, consumers, nil)
	assert.Equal(t, producers, q.Producers())
	assert.Equal(t, consumers, q.Consumers())

	counts := make([][]int, consumers)
	var wg sync.WaitGroup
	wg.Add(consumers)
	for c := 0; c < consumers; c++ {
		counts[c] = make([]int, producers)
		go func(c int, h *Consumer[[2]int]) {
			defer wg.Done()
			last := counts[c]
			for total := 0; total < producers*N; {
				n := h.AvailableToPoll()
				if n == 0 {
					runtime.Gosched()
					continue
				}
				for i := uint64(0); i < n; i++ {
					v := h.Poll()
					p, seq := v[0], v[1]
					if seq != last[p] {
						t.Errorf("consumer %d: producer %d sent %d, expected %d", c, p, seq, last[p])
					}
					last[p] = seq + 1
				}
				h.DonePolling(false)
				total += int(n)
			}
		}(c, q.Consumer(c))
	}

	var pg sync.WaitGroup
	pg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int, h *BroadcastProducer[[2]int]) {
			defer pg.Done()
			for i := 0; i < N; {
				s := h.NextToDispatch()
				if s == nil {
					runtime.Gosched()
					continue
				}
				*s = [2]int{p, i}
				i++
				h.Flush(false)
			}
		}(p, q.Producer(p))
	}

	pg.Wait()
	wg.Wait()

	for c := range counts {
		for p, n := range counts[c] {
			assert.Equal(t, N, n, "consumer %d, producer %d", c, p)
		}
	}
}

func TestMPMCBroadcasterDisableConsumer(t *testing.T) {
	q := NewMPMCBroadcaster[int](2, 2, 2, nil)
	q.DisableConsumer(1)

	for p := 0; p < 2; p++ {
		h := q.Producer(p)
		for i := 0; i < 2; i++ {
			*h.NextToDispatch() = p*10 + i
		}
		h.Flush(false)
	}
	assert.ElementsMatch(t, []int{0, 1, 10, 11}, drainConsumer(q.Consumer(0)))
	for p := 0; p < 2; p++ {
		assert.NotNil(t, q.Producer(p).NextToDispatch(), "producer %d gated by a disabled consumer", p)
	}

	q.Clear()
	assert.Zero(t, q.Consumer(1).AvailableToPoll())
}

// Benchmark: many producers, many consumers.
func BenchmarkMPMC_MPMC(b *testing.B) {
	const (
		capacity  = 1 << 12
		producers = 4
		consumers = 4
	)

	q := NewMPMC[int](capacity, producers, consumers, nil)
	perProducer := b.N / producers
	total := int64(perProducer * producers)
	var received atomic.Int64

	var wg sync.WaitGroup
	wg.Add(producers + consumers)

	// Consumers
	for c := 0; c < consumers; c++ {
		go func(h *Consumer[int]) {
			defer wg.Done()
			for received.Load() < total {
				n := h.AvailableToPoll()
				if n == 0 {
					runtime.Gosched()
					continue
				}
				for i := uint64(0); i < n; i++ {
					_ = *h.Poll()
				}
				h.DonePolling(true)
				received.Add(int64(n))
			}
		}(q.Consumer(c))
	}

	// Producers
	for p := 0; p < producers; p++ {
		go func(h *MPMCProducer[int]) {
			defer wg.Done()
			for i := 0; i < perProducer; {
				s := h.NextToDispatch()
				if s == nil {
					h.Flush(true)
					runtime.Gosched()
					continue
				}
				*s = i
				i++
				if i%64 == 0 || i == perProducer {
					h.Flush(true)
				}
			}
		}(q.Producer(p))
	}

	b.ResetTimer()
	wg.Wait()
	b.StopTimer()
}
