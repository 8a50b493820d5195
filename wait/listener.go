package wait

import (
	"sync/atomic"
)

// Listener is notified of every Block and Reset of a strategy.
type Listener interface {
	OnBlock()
	OnReset()
}

type listened struct {
	Strategy
	l Listener
}

// Listen wraps s so that l observes its blocks and resets.
func Listen(s Strategy, l Listener) Strategy {
	return &listened{Strategy: s, l: l}
}

func (s *listened) Block() {
	s.l.OnBlock()
	s.Strategy.Block()
}

func (s *listened) Reset() {
	s.l.OnReset()
	s.Strategy.Reset()
}

func (s *listened) String() string { return name(s.Strategy) }

// Counted wraps a strategy and counts its blocks.
// Blocks may be read from any goroutine.
type Counted struct {
	Strategy
	blocks atomic.Uint64
}

// Count wraps s into a Counted strategy.
func Count(s Strategy) *Counted {
	return &Counted{Strategy: s}
}

func (c *Counted) Block() {
	c.blocks.Add(1)
	c.Strategy.Block()
}

// Blocks returns the total number of blocks so far.
func (c *Counted) Blocks() uint64 {
	return c.blocks.Load()
}

func (c *Counted) String() string { return name(c.Strategy) }
