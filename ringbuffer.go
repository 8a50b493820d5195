package batchring

import (
	"math"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Sequences are 1-based: 0 means nothing offered (or fetched) yet.
// The slot guarded by sequence s lives at index (s-1) & mask.

// gate reports the lowest fetch sequence published by the readers
// a producer must not overrun.
type gate interface {
	minFetched() uint64
}

// ring is the producer half shared by Channel and Broadcaster.
type ring[T any] struct {
	_        cpu.CacheLinePad
	mask     uint64
	capacity uint64
	data     []*T
	gate     gate
	_        cpu.CacheLinePad
	offer    uint64 // last claimed sequence, owned by the producer
	maxOffer uint64 // cached wrap bound
	_        cpu.CacheLinePad
	offered  atomic.Uint64 // published offer sequence
	_        cpu.CacheLinePad
}

func newSlot[T any]() *T { return new(T) }

func (r *ring[T]) init(capacity uint64, builder func() *T, g gate) {
	checkCapacity(capacity)
	if builder == nil {
		builder = newSlot[T]
	}

	r.mask = capacity - 1
	r.capacity = capacity
	r.gate = g
	r.data = make([]*T, capacity)
	for i := range r.data {
		r.data[i] = builder()
	}
	r.maxOffer = capacity
}

// claim advances the private offer sequence and returns its slot index.
// The wrap bound is only recomputed when the optimistic advance crosses
// the cached one, so the readers' sequences stay off the hot path.
func (r *ring[T]) claim() (uint64, bool) {
	seq := r.offer + 1
	if seq > r.maxOffer {
		r.maxOffer = wrapBound(r.gate.minFetched(), r.capacity)
		if seq > r.maxOffer {
			return 0, false
		}
	}
	r.offer = seq
	return (seq - 1) & r.mask, true
}

// publish makes every claimed slot visible to readers. Go only offers
// sequentially consistent atomics, so a lazy publish is the same store;
// in both modes the slot writes happen before the sequence is visible.
func (r *ring[T]) publish(bool) {
	r.offered.Store(r.offer)
}

func (r *ring[T]) reset() {
	r.offer = 0
	r.maxOffer = r.capacity
	r.offered.Store(0)
}

func wrapBound(fetched, capacity uint64) uint64 {
	if fetched > math.MaxUint64-capacity {
		return math.MaxUint64
	}
	return fetched + capacity
}

// cursor is the consumer half: a private progress marker plus the
// published fetch sequence the producer gates on.
// A disabled cursor publishes math.MaxUint64 and sees nothing until reset.
type cursor struct {
	_        cpu.CacheLinePad
	fetch    uint64 // last fetched sequence, owned by the consumer
	pending  uint64 // fetches not yet published
	_        cpu.CacheLinePad
	fetched  atomic.Uint64
	disabled atomic.Bool
	_        cpu.CacheLinePad
}

func (c *cursor) available(offered uint64) uint64 {
	if offered <= c.fetch || c.disabled.Load() {
		return 0
	}
	return offered - c.fetch
}

func (c *cursor) next() uint64 {
	c.fetch++
	c.pending++
	return c.fetch
}

func (c *cursor) done(bool) {
	c.fetched.Store(c.fetch)
	// disable may have raced with the store above
	if c.disabled.Load() {
		c.fetched.Store(math.MaxUint64)
	}
	c.pending = 0
}

func (c *cursor) rollback() {
	c.fetch -= c.pending
	c.pending = 0
}

// unfetch undoes the last fetch. At least one fetch must be pending.
func (c *cursor) unfetch() {
	c.fetch--
	c.pending--
}

func (c *cursor) rollbackN(n int) error {
	if n < 0 || uint64(n) > c.pending {
		return ErrInvalidRollback
	}
	c.fetch -= uint64(n)
	c.pending -= uint64(n)
	return nil
}

// disable may be called from any goroutine.
func (c *cursor) disable() {
	c.disabled.Store(true)
	c.fetched.Store(math.MaxUint64)
}

func (c *cursor) reset() {
	c.fetch = 0
	c.pending = 0
	c.disabled.Store(false)
	c.fetched.Store(0)
}
