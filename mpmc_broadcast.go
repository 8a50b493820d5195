package batchring

// MPMCBroadcaster delivers the records of every producer to every consumer.
// Each producer owns a Broadcaster with one cursor per consumer; a consumer
// aggregates its cursor across all producers' Broadcasters.
type MPMCBroadcaster[T any] struct {
	broadcasters []*Broadcaster[T]
	producers    []*BroadcastProducer[T]
	consumers    []*Consumer[T]
}

// BroadcastProducer is the producer side of one MPMCBroadcaster producer.
// Must only be used from that producer's goroutine.
type BroadcastProducer[T any] struct {
	b *Broadcaster[T]
}

// NewMPMCBroadcaster creates one Broadcaster of the given capacity per producer.
// Capacity must be a power of two (1<<k).
func NewMPMCBroadcaster[T any](capacity uint64, producers, consumers int, builder func() *T) *MPMCBroadcaster[T] {
	checkCapacity(capacity)
	checkCount("producers", producers)
	checkCount("consumers", consumers)

	q := &MPMCBroadcaster[T]{
		broadcasters: make([]*Broadcaster[T], producers),
		producers:    make([]*BroadcastProducer[T], producers),
		consumers:    make([]*Consumer[T], consumers),
	}
	for p := range q.broadcasters {
		q.broadcasters[p] = NewBroadcaster(capacity, consumers, builder)
		q.producers[p] = &BroadcastProducer[T]{b: q.broadcasters[p]}
	}
	for c := range q.consumers {
		sources := make([]source[T], producers)
		for p, b := range q.broadcasters {
			sources[p] = broadcastSource[T]{b: b, consumer: c}
		}
		q.consumers[c] = newConsumer(sources)
	}
	return q
}

// Producer returns the handle of the given producer.
func (q *MPMCBroadcaster[T]) Producer(producer int) *BroadcastProducer[T] {
	checkIndex("producer", producer, len(q.producers))
	return q.producers[producer]
}

// Consumer returns the handle of the given consumer.
func (q *MPMCBroadcaster[T]) Consumer(consumer int) *Consumer[T] {
	checkIndex("consumer", consumer, len(q.consumers))
	return q.consumers[consumer]
}

// DisableConsumer stops the given consumer from gating any producer.
func (q *MPMCBroadcaster[T]) DisableConsumer(consumer int) {
	checkIndex("consumer", consumer, len(q.consumers))
	for _, b := range q.broadcasters {
		b.DisableConsumer(consumer)
	}
}

// Producers returns the number of producers.
func (q *MPMCBroadcaster[T]) Producers() int {
	return len(q.producers)
}

// Consumers returns the number of consumers.
func (q *MPMCBroadcaster[T]) Consumers() int {
	return len(q.consumers)
}

// Clear resets every Broadcaster. Only safe when nothing is in use.
func (q *MPMCBroadcaster[T]) Clear() {
	for _, b := range q.broadcasters {
		b.Clear()
	}
	for _, c := range q.consumers {
		c.batch.reset()
	}
}

// NextToDispatch returns the next slot to fill, or nil if the slowest consumer gates it.
func (p *BroadcastProducer[T]) NextToDispatch() *T {
	return p.b.NextToDispatch()
}

// Flush publishes the records sent since the last flush to every consumer.
func (p *BroadcastProducer[T]) Flush(lazy bool) {
	p.b.Flush(lazy)
}
