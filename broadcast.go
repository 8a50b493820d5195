package batchring

import (
	"math"
)

// Broadcaster delivers every record of one producer to a fixed set of
// consumers. All consumers read the same slots through their own cursor,
// so the producer may only run capacity slots ahead of the slowest one.
// Polled records are shared: consumers must treat them as read-only.
type Broadcaster[T any] struct {
	ring[T]
	cursors []cursor
}

// NewBroadcaster creates a broadcaster of the given capacity for consumers cursors.
// Capacity must be a power of two (1<<k).
func NewBroadcaster[T any](capacity uint64, consumers int, builder func() *T) *Broadcaster[T] {
	checkCount("consumers", consumers)

	b := &Broadcaster[T]{
		cursors: make([]cursor, consumers),
	}
	b.init(capacity, builder, b)
	return b
}

func (b *Broadcaster[T]) minFetched() uint64 {
	lowest := uint64(math.MaxUint64)
	for i := range b.cursors {
		if seq := b.cursors[i].fetched.Load(); seq < lowest {
			lowest = seq
		}
	}
	return lowest
}

// NextToDispatch returns the next slot to fill, or nil if the slowest
// enabled consumer has not released it yet.
func (b *Broadcaster[T]) NextToDispatch() *T {
	idx, ok := b.claim()
	if !ok {
		return nil
	}
	return b.data[idx]
}

// Flush publishes every slot claimed since the last flush to all consumers.
func (b *Broadcaster[T]) Flush(lazy bool) {
	b.publish(lazy)
}

func (b *Broadcaster[T]) cursorOf(consumer int) *cursor {
	checkIndex("consumer", consumer, len(b.cursors))
	return &b.cursors[consumer]
}

// AvailableToPoll returns how many published records the given consumer has not polled.
func (b *Broadcaster[T]) AvailableToPoll(consumer int) uint64 {
	return b.cursorOf(consumer).available(b.offered.Load())
}

// Poll returns the next record for the given consumer.
func (b *Broadcaster[T]) Poll(consumer int) *T {
	return b.data[(b.cursorOf(consumer).next()-1)&b.mask]
}

// Peek returns the record the next Poll of the given consumer would return.
func (b *Broadcaster[T]) Peek(consumer int) *T {
	return b.data[b.cursorOf(consumer).fetch&b.mask]
}

// DonePolling releases the records polled by the given consumer.
func (b *Broadcaster[T]) DonePolling(consumer int, lazy bool) {
	b.cursorOf(consumer).done(lazy)
}

// Rollback undoes every unreleased poll of the given consumer.
func (b *Broadcaster[T]) Rollback(consumer int) {
	b.cursorOf(consumer).rollback()
}

// RollbackN undoes the last n unreleased polls of the given consumer.
func (b *Broadcaster[T]) RollbackN(consumer int, n int) error {
	return b.cursorOf(consumer).rollbackN(n)
}

// DisableConsumer stops the given consumer from gating the producer,
// e.g. after it died or must be ignored. Until Clear, the consumer sees no
// backlog and its DonePolling does not gate the producer again.
// May be called from any goroutine.
func (b *Broadcaster[T]) DisableConsumer(consumer int) {
	b.cursorOf(consumer).disable()
}

// Consumers returns the number of consumer cursors.
func (b *Broadcaster[T]) Consumers() int {
	return len(b.cursors)
}

// Clear resets the producer and every cursor. Only safe when nothing is in use.
func (b *Broadcaster[T]) Clear() {
	b.reset()
	for i := range b.cursors {
		b.cursors[i].reset()
	}
}

// Capacity returns the fixed ring capacity.
func (b *Broadcaster[T]) Capacity() uint64 {
	return b.capacity
}

// broadcastSource adapts one consumer of a Broadcaster to a snapshot.
type broadcastSource[T any] struct {
	b        *Broadcaster[T]
	consumer int
}

func (s broadcastSource[T]) available() uint64 { return s.b.AvailableToPoll(s.consumer) }
func (s broadcastSource[T]) poll() *T          { return s.b.Poll(s.consumer) }
func (s broadcastSource[T]) done(lazy bool)    { s.b.DonePolling(s.consumer, lazy) }

func (s broadcastSource[T]) rollback() uint64 {
	c := &s.b.cursors[s.consumer]
	n := c.pending
	c.rollback()
	return n
}
