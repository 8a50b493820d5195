package batchring

// Multiplexer fans a fixed set of producers, each owning its own Channel,
// into one consumer. AvailableToPoll reads every producer's sequence once
// and caches the backlogs; Poll drains from that cache one producer at a
// time, without reading the shared sequences again.
//
// Records of one producer stay in order; there is no ordering between producers.
type Multiplexer[T any] struct {
	channels []*Channel[T]
	batch    *snapshot[T]
}

// NewMultiplexer creates producers channels of the given capacity.
// Capacity must be a power of two (1<<k).
func NewMultiplexer[T any](capacity uint64, producers int, builder func() *T) *Multiplexer[T] {
	checkCapacity(capacity)
	checkCount("producers", producers)

	m := &Multiplexer[T]{
		channels: make([]*Channel[T], producers),
	}
	sources := make([]source[T], producers)
	for i := range m.channels {
		m.channels[i] = NewChannel(capacity, builder)
		sources[i] = channelSource[T]{m.channels[i]}
	}
	m.batch = newSnapshot(sources)
	return m
}

func (m *Multiplexer[T]) channel(producer int) *Channel[T] {
	checkIndex("producer", producer, len(m.channels))
	return m.channels[producer]
}

// NextToDispatch returns the next slot of the given producer, or nil if its channel is full.
// Must only be called from that producer's goroutine.
func (m *Multiplexer[T]) NextToDispatch(producer int) *T {
	return m.channel(producer).NextToDispatch()
}

// Flush publishes the records of the given producer.
func (m *Multiplexer[T]) Flush(producer int, lazy bool) {
	m.channel(producer).Flush(lazy)
}

// AvailableToPoll returns the total backlog across all producers and starts a batch.
func (m *Multiplexer[T]) AvailableToPoll() uint64 {
	return m.batch.available()
}

// Poll returns the next record of the current batch, or nil once it is drained.
func (m *Multiplexer[T]) Poll() *T {
	return m.batch.poll()
}

// DonePolling releases the current batch to every producer that contributed to it.
func (m *Multiplexer[T]) DonePolling(lazy bool) {
	m.batch.done(lazy)
}

// Rollback undoes every unreleased poll of the current batch.
func (m *Multiplexer[T]) Rollback() {
	m.batch.rollback()
}

// Producers returns the number of producers.
func (m *Multiplexer[T]) Producers() int {
	return len(m.channels)
}

// Clear resets every channel. Only safe when nothing is in use.
func (m *Multiplexer[T]) Clear() {
	for _, ch := range m.channels {
		ch.Clear()
	}
	m.batch.reset()
}
