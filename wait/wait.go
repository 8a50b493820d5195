// Package wait provides blocking policies for the poll loops of batchring
// producers and consumers. The queues never wait themselves: they report
// full or empty and the caller decides how to wait before retrying.
package wait

import (
	"context"
	"math/bits"
	"runtime"
	"time"

	"github.com/valyala/fastrand"
)

// Strategy performs one unit of waiting per Block call and returns to its
// least aggressive mode on Reset. A Strategy is owned by a single goroutine.
type Strategy interface {
	Block()
	Reset()
}

// Poll blocks with s until ready returns true or ctx is done,
// then resets s. It returns ctx.Err() if ctx ended first.
func Poll(ctx context.Context, s Strategy, ready func() bool) error {
	defer s.Reset()
	for !ready() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Block()
	}
	return nil
}

type spin struct{}

// Spin busy-spins: Block returns immediately.
func Spin() Strategy { return spin{} }

func (spin) Block()         {}
func (spin) Reset()         {}
func (spin) String() string { return "spin" }

type yield struct{}

// Yield gives the processor to other goroutines on every Block.
func Yield() Strategy { return yield{} }

func (yield) Block()         { runtime.Gosched() }
func (yield) Reset()         {}
func (yield) String() string { return "yield" }

type sleep struct {
	d time.Duration
}

// Sleep sleeps for d on every Block.
func Sleep(d time.Duration) Strategy { return sleep{d: d} }

func (s sleep) Block()         { time.Sleep(s.d) }
func (s sleep) Reset()         {}
func (s sleep) String() string { return "sleep" }

type backoff struct {
	min, max, cur time.Duration
}

// Backoff sleeps for an exponentially growing, jittered duration
// between min and max. Reset goes back to min.
func Backoff(min, max time.Duration) Strategy {
	if min <= 0 {
		min = time.Microsecond
	}
	if max < min {
		max = min
	}
	return &backoff{min: min, max: max, cur: min}
}

func (b *backoff) Block() {
	time.Sleep(b.delay())

	if b.cur *= 2; b.cur > b.max {
		b.cur = b.max
	}
}

// delay is the current step plus up to half of it in jitter, capped at max.
func (b *backoff) delay() time.Duration {
	d := b.cur
	// half * r / 2^32 for a random 32-bit r
	jitter, _ := bits.Mul64(uint64(d/2), uint64(fastrand.Uint32())<<32)
	if d += time.Duration(jitter); d > b.max {
		d = b.max
	}
	return d
}

func (b *backoff) Reset()         { b.cur = b.min }
func (b *backoff) String() string { return "backoff" }

// Default spins, then yields, then backs off up to a millisecond.
func Default() Strategy {
	return Chain([]Step{
		{Strategy: Spin(), Iterations: 1000},
		{Strategy: Yield(), Iterations: 1000},
		{Strategy: Backoff(time.Microsecond, time.Millisecond)},
	})
}
