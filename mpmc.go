package batchring

// MPMC connects a fixed set of producers to a fixed set of consumers.
// Each producer owns a Demultiplexer fanning out to every consumer; each
// consumer drains its own channel of every producer's Demultiplexer.
// Records of one producer to one consumer stay in order.
type MPMC[T any] struct {
	demuxes   []*Demultiplexer[T]
	producers []*MPMCProducer[T]
	consumers []*Consumer[T]
}

// MPMCProducer is the producer side of one MPMC producer.
// Must only be used from that producer's goroutine.
type MPMCProducer[T any] struct {
	demux *Demultiplexer[T]
}

// NewMPMC creates producers x consumers channels of the given capacity.
// Capacity must be a power of two (1<<k).
func NewMPMC[T any](capacity uint64, producers, consumers int, builder func() *T) *MPMC[T] {
	checkCapacity(capacity)
	checkCount("producers", producers)
	checkCount("consumers", consumers)

	q := &MPMC[T]{
		demuxes:   make([]*Demultiplexer[T], producers),
		producers: make([]*MPMCProducer[T], producers),
		consumers: make([]*Consumer[T], consumers),
	}
	for p := range q.demuxes {
		q.demuxes[p] = NewDemultiplexer(capacity, consumers, builder)
		q.producers[p] = &MPMCProducer[T]{demux: q.demuxes[p]}
	}
	for c := range q.consumers {
		sources := make([]source[T], producers)
		for p, d := range q.demuxes {
			sources[p] = demuxSource[T]{d: d, consumer: c}
		}
		q.consumers[c] = newConsumer(sources)
	}
	return q
}

// Producer returns the handle of the given producer.
func (q *MPMC[T]) Producer(producer int) *MPMCProducer[T] {
	checkIndex("producer", producer, len(q.producers))
	return q.producers[producer]
}

// Consumer returns the handle of the given consumer.
func (q *MPMC[T]) Consumer(consumer int) *Consumer[T] {
	checkIndex("consumer", consumer, len(q.consumers))
	return q.consumers[consumer]
}

// Producers returns the number of producers.
func (q *MPMC[T]) Producers() int {
	return len(q.producers)
}

// Consumers returns the number of consumers.
func (q *MPMC[T]) Consumers() int {
	return len(q.consumers)
}

// Clear resets every channel. Only safe when nothing is in use.
func (q *MPMC[T]) Clear() {
	for _, d := range q.demuxes {
		d.Clear()
	}
	for _, c := range q.consumers {
		c.batch.reset()
	}
}

// NextToDispatch returns a slot for the next consumer in rotation, or nil if all are full.
func (p *MPMCProducer[T]) NextToDispatch() *T {
	return p.demux.NextToDispatch()
}

// NextToDispatchTo returns a slot for the given consumer, or nil if its channel is full.
func (p *MPMCProducer[T]) NextToDispatchTo(consumer int) *T {
	return p.demux.NextToDispatchTo(consumer)
}

// Flush publishes the records sent since the last flush.
func (p *MPMCProducer[T]) Flush(lazy bool) {
	p.demux.Flush(lazy)
}

// Consumer is the read side of one consumer fed by several producers.
// It aggregates the consumer's stream of every producer in batches:
// AvailableToPoll sums the backlogs once, Poll drains them one producer at a time
// and DonePolling releases every stream that contributed.
// Must only be used from that consumer's goroutine.
type Consumer[T any] struct {
	batch *snapshot[T]
}

func newConsumer[T any](sources []source[T]) *Consumer[T] {
	return &Consumer[T]{batch: newSnapshot(sources)}
}

// AvailableToPoll returns the total backlog across all producers and starts a batch.
func (c *Consumer[T]) AvailableToPoll() uint64 {
	return c.batch.available()
}

// Poll returns the next record of the current batch, or nil once it is drained.
func (c *Consumer[T]) Poll() *T {
	return c.batch.poll()
}

// DonePolling releases the current batch.
func (c *Consumer[T]) DonePolling(lazy bool) {
	c.batch.done(lazy)
}

// Rollback undoes every unreleased poll of the current batch.
func (c *Consumer[T]) Rollback() {
	c.batch.rollback()
}
