package batchring

import (
	"github.com/valyala/fastrand"
)

// source is one single-reader stream drained by a snapshot.
type source[T any] interface {
	available() uint64
	poll() *T
	done(lazy bool)
	rollback() uint64 // returns the number of fetches undone
}

const skip = -1

// snapshot drains many sources on behalf of one reader. available takes a
// single pass over every source and caches each backlog; poll then draws
// from that cache only, so a batch never touches the producers' sequences
// again until it is released with done.
type snapshot[T any] struct {
	sources []source[T]
	counts  []int64 // remaining per source in the current batch, skip if untouched
	start   int
}

func newSnapshot[T any](sources []source[T]) *snapshot[T] {
	s := &snapshot[T]{}
	s.resize(sources)
	if len(sources) > 1 {
		// spread readers that share producers
		s.start = int(fastrand.Uint32n(uint32(len(sources))))
	}
	return s
}

// resize adopts a grown source list, keeping the batch state of known sources.
func (s *snapshot[T]) resize(sources []source[T]) {
	for len(s.counts) < len(sources) {
		s.counts = append(s.counts, skip)
	}
	s.sources = sources
}

func (s *snapshot[T]) available() uint64 {
	var total uint64
	for i, src := range s.sources {
		if n := src.available(); n > 0 {
			s.counts[i] = int64(n)
			total += n
		}
	}
	return total
}

// poll drains one source at a time and moves on to the next source only
// once the current one is exhausted, so the next batch starts where this one left off.
func (s *snapshot[T]) poll() *T {
	n := len(s.sources)
	for k := 0; k < n; k++ {
		i := s.start
		if s.counts[i] > 0 {
			if s.counts[i]--; s.counts[i] == 0 {
				s.advance()
			}
			return s.sources[i].poll()
		}
		s.advance()
	}
	return nil
}

func (s *snapshot[T]) advance() {
	if s.start++; s.start >= len(s.sources) {
		s.start = 0
	}
}

func (s *snapshot[T]) done(lazy bool) {
	for i, n := range s.counts[:len(s.sources)] {
		if n != skip {
			s.sources[i].done(lazy)
			s.counts[i] = skip
		}
	}
}

func (s *snapshot[T]) rollback() {
	for i, n := range s.counts[:len(s.sources)] {
		if n != skip {
			s.counts[i] += int64(s.sources[i].rollback())
		}
	}
}

func (s *snapshot[T]) reset() {
	for i := range s.counts {
		s.counts[i] = skip
	}
	if s.start >= len(s.sources) {
		s.start = 0
	}
}

// channelSource adapts a Channel consumer to a snapshot.
type channelSource[T any] struct {
	ch *Channel[T]
}

func (s channelSource[T]) available() uint64 { return s.ch.AvailableToFetch() }
func (s channelSource[T]) poll() *T          { return s.ch.Fetch() }
func (s channelSource[T]) done(lazy bool)    { s.ch.DoneFetching(lazy) }

func (s channelSource[T]) rollback() uint64 {
	n := s.ch.c.pending
	s.ch.Rollback()
	return n
}
