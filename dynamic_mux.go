package batchring

// DynamicMultiplexer is a Multiplexer whose producers are not known
// upfront. A producer is identified by a caller supplied key and gets its
// own Channel, taken from a pre-sized pool, the first time it dispatches.
//
// The consumer sees a new producer from its next AvailableToPoll on.
type DynamicMultiplexer[T any, K comparable] struct {
	pool      *objectPool[Channel[T]]
	producers registry[K, *Channel[T]]

	// consumer side
	sources []source[T]
	batch   *snapshot[T]
}

// NewDynamicMultiplexer creates a multiplexer whose channel pool holds
// expected channels and has room for expected*growth.
// Capacity must be a power of two (1<<k).
func NewDynamicMultiplexer[T any, K comparable](capacity uint64, expected int, growth float64, builder func() *T) *DynamicMultiplexer[T, K] {
	checkCapacity(capacity)

	return &DynamicMultiplexer[T, K]{
		pool: newObjectPool(expected, growth, func() *Channel[T] {
			return NewChannel(capacity, builder)
		}),
		batch: newSnapshot[T](nil),
	}
}

func (m *DynamicMultiplexer[T, K]) register(key K) *Channel[T] {
	ch, _ := m.producers.getOrCreate(key, m.pool.Get)
	return ch
}

// NextToDispatch returns the next slot of the producer of key, registering
// it if needed. Returns nil if its channel is full.
// Must only be called from that producer's goroutine.
func (m *DynamicMultiplexer[T, K]) NextToDispatch(key K) *T {
	return m.register(key).NextToDispatch()
}

// Flush publishes the records of the producer of key.
func (m *DynamicMultiplexer[T, K]) Flush(key K, lazy bool) {
	m.register(key).Flush(lazy)
}

// AvailableToPoll returns the total backlog across the producers
// registered so far and starts a batch.
func (m *DynamicMultiplexer[T, K]) AvailableToPoll() uint64 {
	if channels := m.producers.values(); len(channels) > len(m.sources) {
		for _, ch := range channels[len(m.sources):] {
			m.sources = append(m.sources, channelSource[T]{ch})
		}
		m.batch.resize(m.sources)
	}
	return m.batch.available()
}

// Poll returns the next record of the current batch, or nil once it is drained.
func (m *DynamicMultiplexer[T, K]) Poll() *T {
	return m.batch.poll()
}

// DonePolling releases the current batch to every producer that contributed to it.
func (m *DynamicMultiplexer[T, K]) DonePolling(lazy bool) {
	m.batch.done(lazy)
}

// Rollback undoes every unreleased poll of the current batch.
func (m *DynamicMultiplexer[T, K]) Rollback() {
	m.batch.rollback()
}

// Producers returns the number of registered producers.
func (m *DynamicMultiplexer[T, K]) Producers() int {
	return m.producers.len()
}

// Clear unregisters every producer and returns its channel to the pool.
// Only safe when nothing is in use.
func (m *DynamicMultiplexer[T, K]) Clear() {
	for _, ch := range m.producers.reset() {
		ch.Clear()
		m.pool.Put(ch)
	}
	m.sources = m.sources[:0]
	m.batch = newSnapshot[T](nil)
}
