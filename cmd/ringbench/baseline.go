package main

import (
	"sync"

	"github.com/eapache/queue"
)

// lockedQueue is the comparison baseline: a mutex around a growable
// queue, bounded to the same capacity as the lock-free modes. Consumers
// compete for records instead of owning a stream.
type lockedQueue struct {
	mu       sync.Mutex
	q        *queue.Queue
	capacity int
}

func newLockedQueue(capacity int) *lockedQueue {
	return &lockedQueue{q: queue.New(), capacity: capacity}
}

type lockedSender struct {
	l      *lockedQueue
	staged []message
}

func (l *lockedQueue) sender() *lockedSender {
	return &lockedSender{l: l, staged: make([]message, 0, l.capacity)}
}

func (s *lockedSender) next() *message {
	s.l.mu.Lock()
	full := s.l.q.Length()+len(s.staged) >= s.l.capacity
	s.l.mu.Unlock()
	if full {
		return nil
	}
	s.staged = append(s.staged, message{})
	return &s.staged[len(s.staged)-1]
}

func (s *lockedSender) flush(bool) {
	s.l.mu.Lock()
	for _, m := range s.staged {
		s.l.q.Add(m)
	}
	s.l.mu.Unlock()
	s.staged = s.staged[:0]
}

type lockedReceiver struct {
	l     *lockedQueue
	batch []message
	pos   int
}

func (l *lockedQueue) receiver() *lockedReceiver {
	return &lockedReceiver{l: l, batch: make([]message, 0, l.capacity)}
}

func (r *lockedReceiver) available() uint64 {
	r.l.mu.Lock()
	for r.l.q.Length() > 0 && len(r.batch) < cap(r.batch) {
		r.batch = append(r.batch, r.l.q.Remove().(message))
	}
	r.l.mu.Unlock()
	return uint64(len(r.batch) - r.pos)
}

func (r *lockedReceiver) poll() *message {
	m := &r.batch[r.pos]
	r.pos++
	return m
}

func (r *lockedReceiver) done(bool) {
	r.batch = r.batch[:0]
	r.pos = 0
}
