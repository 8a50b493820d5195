package batchring

// Channel is a bounded single-producer, single-consumer ring of
// pre-allocated slots. The producer claims slots in place and publishes
// them in batches with Flush; the consumer fetches in batches and
// releases them with DoneFetching. Full and empty are reported, never
// waited on.
//
// IMPORTANT: producer methods must be called from a single goroutine,
// consumer methods from another single goroutine.
type Channel[T any] struct {
	ring[T]
	c cursor
}

// NewChannel creates a channel with capacity slots built by builder
// (new(T) when nil). Capacity must be a power of two (1<<k).
func NewChannel[T any](capacity uint64, builder func() *T) *Channel[T] {
	ch := &Channel[T]{}
	ch.init(capacity, builder, ch)
	return ch
}

func (ch *Channel[T]) minFetched() uint64 {
	return ch.c.fetched.Load()
}

// NextToDispatch returns the next slot to fill, or nil if the channel is full.
func (ch *Channel[T]) NextToDispatch() *T {
	idx, ok := ch.claim()
	if !ok {
		return nil
	}
	return ch.data[idx]
}

// NextToDispatchSwap claims the next slot like NextToDispatch but stores
// slot in it and returns the previous occupant, which now belongs to the
// caller. Returns nil and keeps slot if the channel is full.
func (ch *Channel[T]) NextToDispatchSwap(slot *T) *T {
	idx, ok := ch.claim()
	if !ok {
		return nil
	}
	old := ch.data[idx]
	ch.data[idx] = slot
	return old
}

// Flush publishes every slot claimed since the last flush.
func (ch *Channel[T]) Flush(lazy bool) {
	ch.publish(lazy)
}

// AvailableToFetch returns how many published slots the consumer has not fetched.
func (ch *Channel[T]) AvailableToFetch() uint64 {
	return ch.c.available(ch.offered.Load())
}

// Fetch returns the next slot and advances the consumer.
// Call it at most AvailableToFetch times per batch.
func (ch *Channel[T]) Fetch() *T {
	return ch.data[(ch.c.next()-1)&ch.mask]
}

// Peek returns the slot the next Fetch would return without advancing.
func (ch *Channel[T]) Peek() *T {
	return ch.data[ch.c.fetch&ch.mask]
}

// Replace stores slot at the last fetched position and returns the
// previous occupant, which now belongs to the caller.
func (ch *Channel[T]) Replace(slot *T) *T {
	idx := (ch.c.fetch - 1) & ch.mask
	old := ch.data[idx]
	ch.data[idx] = slot
	return old
}

// DoneFetching releases every slot fetched since the last call back to the producer.
func (ch *Channel[T]) DoneFetching(lazy bool) {
	ch.c.done(lazy)
}

// Rollback undoes all fetches made since the last DoneFetching.
func (ch *Channel[T]) Rollback() {
	ch.c.rollback()
}

// RollbackN undoes the last n unreleased fetches.
func (ch *Channel[T]) RollbackN(n int) error {
	return ch.c.rollbackN(n)
}

// Clear resets the channel to its initial state.
// Only safe when neither side is in use.
func (ch *Channel[T]) Clear() {
	ch.reset()
	ch.c.reset()
}

// Capacity returns the fixed channel capacity.
func (ch *Channel[T]) Capacity() uint64 {
	return ch.capacity
}
