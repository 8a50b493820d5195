package batchring

// DynamicDemultiplexer is a Demultiplexer whose consumers are not known
// upfront. A consumer is identified by a caller supplied key (a worker id,
// for instance) and gets its own Channel, taken from a pre-sized pool, the
// first time the key is seen.
//
// A consumer registered while records are in flight starts empty: it only
// receives records dispatched after the producer has observed it.
type DynamicDemultiplexer[T any, K comparable] struct {
	pool      *objectPool[Channel[T]]
	consumers registry[K, *Channel[T]]

	// producer side
	view  []*Channel[T]
	dirty []bool
	next  int
}

// NewDynamicDemultiplexer creates a demultiplexer whose channel pool holds
// expected channels and has room for expected*growth.
// Capacity must be a power of two (1<<k).
func NewDynamicDemultiplexer[T any, K comparable](capacity uint64, expected int, growth float64, builder func() *T) *DynamicDemultiplexer[T, K] {
	checkCapacity(capacity)

	return &DynamicDemultiplexer[T, K]{
		pool: newObjectPool(expected, growth, func() *Channel[T] {
			return NewChannel(capacity, builder)
		}),
	}
}

func (d *DynamicDemultiplexer[T, K]) register(key K) (*Channel[T], int) {
	return d.consumers.getOrCreate(key, d.pool.Get)
}

// refresh picks up consumers registered since the last dispatch.
func (d *DynamicDemultiplexer[T, K]) refresh() {
	view := d.consumers.values()
	if len(view) == len(d.view) {
		return
	}
	d.view = view
	for len(d.dirty) < len(view) {
		d.dirty = append(d.dirty, false)
	}
}

// NextToDispatch returns a slot on the next registered consumer in
// rotation, skipping full ones. Returns nil if there is no consumer or all are full.
func (d *DynamicDemultiplexer[T, K]) NextToDispatch() *T {
	d.refresh()

	n := len(d.view)
	for k := 0; k < n; k++ {
		i := d.next
		if d.next++; d.next >= n {
			d.next = 0
		}
		if s := d.view[i].NextToDispatch(); s != nil {
			d.dirty[i] = true
			return s
		}
	}
	return nil
}

// NextToDispatchTo returns a slot on the consumer of key, registering it
// if needed. Returns nil if its channel is full.
func (d *DynamicDemultiplexer[T, K]) NextToDispatchTo(key K) *T {
	ch, i := d.register(key)
	d.refresh()

	s := ch.NextToDispatch()
	if s != nil {
		d.dirty[i] = true
	}
	return s
}

// Flush publishes the consumers that received records since the last flush.
func (d *DynamicDemultiplexer[T, K]) Flush(lazy bool) {
	for i, dirty := range d.dirty {
		if dirty {
			d.view[i].Flush(lazy)
			d.dirty[i] = false
		}
	}
}

// AvailableToPoll returns the backlog of the consumer of key, registering it if needed.
func (d *DynamicDemultiplexer[T, K]) AvailableToPoll(key K) uint64 {
	ch, _ := d.register(key)
	return ch.AvailableToFetch()
}

// Poll returns the next record of the consumer of key.
func (d *DynamicDemultiplexer[T, K]) Poll(key K) *T {
	ch, _ := d.register(key)
	return ch.Fetch()
}

// DonePolling releases the records polled by the consumer of key.
func (d *DynamicDemultiplexer[T, K]) DonePolling(key K, lazy bool) {
	ch, _ := d.register(key)
	ch.DoneFetching(lazy)
}

// Rollback undoes every unreleased poll of the consumer of key.
func (d *DynamicDemultiplexer[T, K]) Rollback(key K) {
	ch, _ := d.register(key)
	ch.Rollback()
}

// RollbackN undoes the last n unreleased polls of the consumer of key.
func (d *DynamicDemultiplexer[T, K]) RollbackN(key K, n int) error {
	ch, _ := d.register(key)
	return ch.RollbackN(n)
}

// Consumers returns the number of registered consumers.
func (d *DynamicDemultiplexer[T, K]) Consumers() int {
	return d.consumers.len()
}

// Clear unregisters every consumer and returns its channel to the pool.
// Only safe when nothing is in use.
func (d *DynamicDemultiplexer[T, K]) Clear() {
	for _, ch := range d.consumers.reset() {
		ch.Clear()
		d.pool.Put(ch)
	}
	d.view = nil
	d.dirty = d.dirty[:0]
	d.next = 0
}
