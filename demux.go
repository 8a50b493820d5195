package batchring

// Demultiplexer fans one producer out to a fixed set of consumers, each
// owning its own Channel. Records are spread round-robin unless the
// producer targets a consumer explicitly; records sent to the same
// consumer keep their order.
type Demultiplexer[T any] struct {
	channels []*Channel[T]
	dirty    []bool
	next     int
}

// NewDemultiplexer creates consumers channels of the given capacity.
// Capacity must be a power of two (1<<k).
func NewDemultiplexer[T any](capacity uint64, consumers int, builder func() *T) *Demultiplexer[T] {
	checkCapacity(capacity)
	checkCount("consumers", consumers)

	d := &Demultiplexer[T]{
		channels: make([]*Channel[T], consumers),
		dirty:    make([]bool, consumers),
	}
	for i := range d.channels {
		d.channels[i] = NewChannel(capacity, builder)
	}
	return d
}

// NextToDispatch returns a slot on the next consumer in rotation, skipping
// full ones. Returns nil if every consumer is full.
func (d *Demultiplexer[T]) NextToDispatch() *T {
	n := len(d.channels)
	for k := 0; k < n; k++ {
		i := d.next
		if d.next++; d.next == n {
			d.next = 0
		}
		if s := d.channels[i].NextToDispatch(); s != nil {
			d.dirty[i] = true
			return s
		}
	}
	return nil
}

// NextToDispatchTo returns a slot on the given consumer, or nil if it is full.
func (d *Demultiplexer[T]) NextToDispatchTo(consumer int) *T {
	checkIndex("consumer", consumer, len(d.channels))
	s := d.channels[consumer].NextToDispatch()
	if s != nil {
		d.dirty[consumer] = true
	}
	return s
}

// Flush publishes only the consumers that received records since the last flush.
func (d *Demultiplexer[T]) Flush(lazy bool) {
	for i, dirty := range d.dirty {
		if dirty {
			d.channels[i].Flush(lazy)
			d.dirty[i] = false
		}
	}
}

func (d *Demultiplexer[T]) channel(consumer int) *Channel[T] {
	checkIndex("consumer", consumer, len(d.channels))
	return d.channels[consumer]
}

// AvailableToPoll returns the backlog of the given consumer.
func (d *Demultiplexer[T]) AvailableToPoll(consumer int) uint64 {
	return d.channel(consumer).AvailableToFetch()
}

// Poll returns the next record for the given consumer.
func (d *Demultiplexer[T]) Poll(consumer int) *T {
	return d.channel(consumer).Fetch()
}

// Peek returns the record the next Poll would return.
func (d *Demultiplexer[T]) Peek(consumer int) *T {
	return d.channel(consumer).Peek()
}

// DonePolling releases the records polled by the given consumer.
func (d *Demultiplexer[T]) DonePolling(consumer int, lazy bool) {
	d.channel(consumer).DoneFetching(lazy)
}

// Rollback undoes every unreleased poll of the given consumer.
func (d *Demultiplexer[T]) Rollback(consumer int) {
	d.channel(consumer).Rollback()
}

// RollbackN undoes the last n unreleased polls of the given consumer.
func (d *Demultiplexer[T]) RollbackN(consumer int, n int) error {
	return d.channel(consumer).RollbackN(n)
}

// Consumers returns the number of consumers.
func (d *Demultiplexer[T]) Consumers() int {
	return len(d.channels)
}

// Clear resets every channel. Only safe when nothing is in use.
func (d *Demultiplexer[T]) Clear() {
	for i, ch := range d.channels {
		ch.Clear()
		d.dirty[i] = false
	}
	d.next = 0
}

// demuxSource adapts one consumer of a Demultiplexer to a snapshot.
type demuxSource[T any] struct {
	d        *Demultiplexer[T]
	consumer int
}

func (s demuxSource[T]) available() uint64 { return s.d.channels[s.consumer].AvailableToFetch() }
func (s demuxSource[T]) poll() *T          { return s.d.channels[s.consumer].Fetch() }
func (s demuxSource[T]) done(lazy bool)    { s.d.channels[s.consumer].DoneFetching(lazy) }

func (s demuxSource[T]) rollback() uint64 {
	return channelSource[T]{s.d.channels[s.consumer]}.rollback()
}
