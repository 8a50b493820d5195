package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aradilov/batchring"
	"github.com/aradilov/batchring/wait"
)

type message struct {
	producer int
	value    int64
}

// sender and receiver are the two sides of a poll loop, bound to one
// producer or consumer of the queue under test.
type sender struct {
	next  func() *message
	flush func(lazy bool)
}

type receiver struct {
	available func() uint64
	poll      func() *message
	done      func(lazy bool)
}

// Result summarizes a run.
type Result struct {
	Sent     uint64
	Received uint64
	Checksum int64
	Elapsed  time.Duration
}

type bench struct {
	cfg     Config
	logger  *zap.Logger
	metrics *wait.Metrics

	senders   []sender
	receivers []receiver
	// expected is how many records each receiver must get; shared means
	// receivers split one total between them instead.
	expected uint64
	shared   bool
}

func newBench(cfg Config, logger *zap.Logger, metrics *wait.Metrics) (*bench, error) {
	cfg = cfg.normalize()
	b := &bench{cfg: cfg, logger: logger, metrics: metrics}

	total := uint64(cfg.Producers) * uint64(cfg.Messages)
	switch cfg.Mode {
	case ModeChannel:
		ch := batchring.NewChannel[message](cfg.Capacity, nil)
		b.senders = []sender{{next: ch.NextToDispatch, flush: ch.Flush}}
		b.receivers = []receiver{{available: ch.AvailableToFetch, poll: ch.Fetch, done: ch.DoneFetching}}
		b.expected = total

	case ModeDemux:
		d := batchring.NewDemultiplexer[message](cfg.Capacity, cfg.Consumers, nil)
		b.senders = []sender{{next: d.NextToDispatch, flush: d.Flush}}
		for c := 0; c < cfg.Consumers; c++ {
			b.receivers = append(b.receivers, receiver{
				available: func() uint64 { return d.AvailableToPoll(c) },
				poll:      func() *message { return d.Poll(c) },
				done:      func(lazy bool) { d.DonePolling(c, lazy) },
			})
		}
		b.expected, b.shared = total, true

	case ModeMux:
		m := batchring.NewMultiplexer[message](cfg.Capacity, cfg.Producers, nil)
		for p := 0; p < cfg.Producers; p++ {
			b.senders = append(b.senders, sender{
				next:  func() *message { return m.NextToDispatch(p) },
				flush: func(lazy bool) { m.Flush(p, lazy) },
			})
		}
		b.receivers = []receiver{{available: m.AvailableToPoll, poll: m.Poll, done: m.DonePolling}}
		b.expected = total

	case ModeBroadcast:
		br := batchring.NewBroadcaster[message](cfg.Capacity, cfg.Consumers, nil)
		b.senders = []sender{{next: br.NextToDispatch, flush: br.Flush}}
		for c := 0; c < cfg.Consumers; c++ {
			b.receivers = append(b.receivers, receiver{
				available: func() uint64 { return br.AvailableToPoll(c) },
				poll:      func() *message { return br.Poll(c) },
				done:      func(lazy bool) { br.DonePolling(c, lazy) },
			})
		}
		b.expected = total

	case ModeMPMC:
		q := batchring.NewMPMC[message](cfg.Capacity, cfg.Producers, cfg.Consumers, nil)
		for p := 0; p < cfg.Producers; p++ {
			h := q.Producer(p)
			b.senders = append(b.senders, sender{next: h.NextToDispatch, flush: h.Flush})
		}
		for c := 0; c < cfg.Consumers; c++ {
			h := q.Consumer(c)
			b.receivers = append(b.receivers, receiver{available: h.AvailableToPoll, poll: h.Poll, done: h.DonePolling})
		}
		b.expected, b.shared = total, true

	case ModeMPMCBroadcast:
		q := batchring.NewMPMCBroadcaster[message](cfg.Capacity, cfg.Producers, cfg.Consumers, nil)
		for p := 0; p < cfg.Producers; p++ {
			h := q.Producer(p)
			b.senders = append(b.senders, sender{next: h.NextToDispatch, flush: h.Flush})
		}
		for c := 0; c < cfg.Consumers; c++ {
			h := q.Consumer(c)
			b.receivers = append(b.receivers, receiver{available: h.AvailableToPoll, poll: h.Poll, done: h.DonePolling})
		}
		b.expected = total

	case ModeLocked:
		l := newLockedQueue(int(cfg.Capacity))
		for p := 0; p < cfg.Producers; p++ {
			s := l.sender()
			b.senders = append(b.senders, sender{next: s.next, flush: s.flush})
		}
		for c := 0; c < cfg.Consumers; c++ {
			r := l.receiver()
			b.receivers = append(b.receivers, receiver{available: r.available, poll: r.poll, done: r.done})
		}
		b.expected, b.shared = total, true

	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	return b, nil
}

func (b *bench) strategy(role string) wait.Strategy {
	var s wait.Strategy
	switch b.cfg.Wait {
	case "spin":
		s = wait.Spin()
	case "yield":
		s = wait.Yield()
	case "sleep":
		s = wait.Sleep(b.cfg.SleepFor)
	case "backoff":
		s = wait.Backoff(b.cfg.SleepFor, time.Millisecond)
	default:
		s = wait.Chain([]wait.Step{
			{Strategy: wait.Spin(), Iterations: 1000},
			{Strategy: wait.Yield(), Iterations: 1000},
			{Strategy: wait.Backoff(time.Microsecond, time.Millisecond)},
		}, wait.WithLogger(b.logger.With(zap.String("role", role))))
	}
	if b.metrics != nil {
		s = wait.Listen(s, b.metrics.Listener(role))
	}
	return s
}

// Run starts one goroutine per producer and consumer and waits for every
// record to be delivered.
func (b *bench) Run(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	var (
		res      Result
		received atomic.Uint64
		checksum atomic.Int64
	)
	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()

	for p, s := range b.senders {
		g.Go(func() error {
			b.pin(p)
			return b.produce(ctx, p, s, b.strategy("producer"))
		})
	}
	for c, r := range b.receivers {
		g.Go(func() error {
			b.pin(len(b.senders) + c)
			n, sum, err := b.consume(ctx, r, &received, b.strategy("consumer"))
			checksum.Add(sum)
			b.logger.Debug("consumer finished", zap.Int("consumer", c), zap.Uint64("received", n))
			return err
		})
	}

	err := g.Wait()
	res.Elapsed = time.Since(start)
	res.Sent = uint64(len(b.senders)) * uint64(b.cfg.Messages)
	res.Received = received.Load()
	res.Checksum = checksum.Load()
	return res, err
}

func (b *bench) produce(ctx context.Context, producer int, s sender, w wait.Strategy) error {
	var value int64
	for sent := 0; sent < b.cfg.Messages; {
		n := b.cfg.Batch
		if left := b.cfg.Messages - sent; left < n {
			n = left
		}

		k := 0
		for ; k < n; k++ {
			m := s.next()
			if m == nil {
				break
			}
			value++
			m.producer = producer
			m.value = value
		}
		if k == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("producer %d: %w", producer, err)
			}
			w.Block()
			continue
		}
		s.flush(b.cfg.Lazy)
		w.Reset()
		sent += k
	}
	return nil
}

func (b *bench) consume(ctx context.Context, r receiver, total *atomic.Uint64, w wait.Strategy) (uint64, int64, error) {
	var (
		own uint64
		sum int64
	)
	finished := func() bool {
		if b.shared {
			return total.Load() >= b.expected
		}
		return own >= b.expected
	}

	for !finished() {
		n := r.available()
		if n == 0 {
			if err := ctx.Err(); err != nil {
				return own, sum, fmt.Errorf("consumer: %w", err)
			}
			w.Block()
			continue
		}
		w.Reset()
		for i := uint64(0); i < n; i++ {
			sum += r.poll().value
		}
		r.done(b.cfg.Lazy)
		own += n
		total.Add(n)
	}
	return own, sum, nil
}
