package batchring

import (
	"math"
	"math/bits"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Free list algorithm by Dmitry Vyukov
// https://www.1024cores.net/home/lock-free-algorithms/queues/bounded-mpmc-queue

const goschedEvery = 64 // reduce runtime.Gosched() frequency in hot loops

type poolSlot[T any] struct {
	seq atomic.Uint64 // controls visibility and slot ownership
	val *T
}

// objectPool keeps pre-built objects in a bounded lock-free free list so
// that growing a dynamic queue does not allocate once its population has
// stabilized. Get allocates only when the list is exhausted; Put drops the
// object when the list is full.
type objectPool[T any] struct {
	_        cpu.CacheLinePad
	mask     uint64
	capacity uint64
	slots    []poolSlot[T]
	build    func() *T
	_        cpu.CacheLinePad
	enqueue  atomic.Uint64 // logical tail index
	_        cpu.CacheLinePad
	dequeue  atomic.Uint64 // logical head index
	_        cpu.CacheLinePad
}

// newObjectPool sizes the free list to expected*growth rounded up to a
// power of two and fills it with expected objects.
func newObjectPool[T any](expected int, growth float64, build func() *T) *objectPool[T] {
	if expected < 1 {
		expected = 1
	}
	if growth < 1 {
		growth = 1
	}
	capacity := nextPowerOfTwo(uint64(math.Ceil(float64(expected) * growth)))

	p := &objectPool[T]{
		mask:     capacity - 1,
		capacity: capacity,
		slots:    make([]poolSlot[T], capacity),
		build:    build,
	}
	for i := uint64(0); i < capacity; i++ {
		// initial sequence for each slot matches its index
		p.slots[i].seq.Store(i)
	}
	for i := 0; i < expected; i++ {
		if !p.Put(build()) {
			panic("unreached")
		}
	}
	return p
}

// Get takes an object from the free list, building a new one if it is empty.
func (p *objectPool[T]) Get() *T {
	var spins uint32
	for {
		pos := p.dequeue.Load()
		s := &p.slots[pos&p.mask]

		seq := s.seq.Load()
		diff := int64(seq) - int64(pos+1)

		if diff == 0 {
			if !p.dequeue.CompareAndSwap(pos, pos+1) {
				// another taker won this slot, retry
				spins++
				if spins%goschedEvery == 0 {
					runtime.Gosched()
				}
				continue
			}
			v := s.val
			s.val = nil
			// free the slot for the next cycle
			s.seq.Store(pos + p.capacity)
			return v
		}

		if diff < 0 {
			// free list is empty
			return p.build()
		}

		// diff > 0 => another taker already consumed this position, pos is stale.
		// Reload and retry.
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

// Put returns v to the free list. Returns false if the list is full and v was dropped.
func (p *objectPool[T]) Put(v *T) bool {
	var spins uint32
	for {
		pos := p.enqueue.Load()
		s := &p.slots[pos&p.mask]

		seq := s.seq.Load()
		diff := int64(seq) - int64(pos)

		if diff == 0 {
			if p.enqueue.CompareAndSwap(pos, pos+1) {
				s.val = v
				// publish the value: seq = pos+1
				s.seq.Store(pos + 1)
				return true
			}
		} else if diff < 0 {
			// taker has not freed this slot yet => list is full
			return false
		}
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

// Capacity returns the free list capacity.
func (p *objectPool[T]) Capacity() uint64 {
	return p.capacity
}

func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(n-1)
}
