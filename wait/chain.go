package wait

import (
	"fmt"

	"go.uber.org/zap"
)

// Step is one stage of a Chain: Strategy blocks Iterations times before
// the chain escalates to the next step. The last step never escalates.
type Step struct {
	Strategy   Strategy
	Iterations int
}

// Option configures a Chain.
type Option func(*chain)

// WithLogger logs escalations at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(c *chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type chain struct {
	steps  []Step
	step   int
	count  int
	logger *zap.Logger
}

// Chain composes strategies into one that escalates from the first step
// to the last as consecutive blocks accumulate. Reset goes back to the first step.
func Chain(steps []Step, opts ...Option) Strategy {
	if len(steps) == 0 {
		panic("wait: chain needs at least one step")
	}

	c := &chain{
		steps:  steps,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *chain) Block() {
	s := &c.steps[c.step]
	s.Strategy.Block()

	c.count++
	if c.step < len(c.steps)-1 && s.Iterations > 0 && c.count >= s.Iterations {
		c.step++
		c.count = 0
		c.logger.Debug("wait escalated",
			zap.Int("step", c.step),
			zap.String("strategy", name(c.steps[c.step].Strategy)),
		)
	}
}

func (c *chain) Reset() {
	if c.step == 0 && c.count == 0 {
		return
	}
	for i := 0; i <= c.step; i++ {
		c.steps[i].Strategy.Reset()
	}
	c.step = 0
	c.count = 0
}

func (c *chain) String() string { return "chain" }

func name(s Strategy) string {
	if n, ok := s.(fmt.Stringer); ok {
		return n.String()
	}
	return fmt.Sprintf("%T", s)
}
