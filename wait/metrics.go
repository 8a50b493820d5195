package wait

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports blocks and resets of wait strategies as Prometheus counters.
type Metrics struct {
	blocks *prometheus.CounterVec
	resets *prometheus.CounterVec
}

// NewMetrics registers the wait counters with reg (the default registerer when nil).
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		blocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wait",
				Name:      "blocks_total",
				Help:      "Total number of wait strategy blocks",
			},
			[]string{"role"},
		),
		resets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wait",
				Name:      "resets_total",
				Help:      "Total number of wait strategy resets",
			},
			[]string{"role"},
		),
	}
}

// Listener returns a Listener counting under the given role label.
func (m *Metrics) Listener(role string) Listener {
	return promListener{
		blocks: m.blocks.WithLabelValues(role),
		resets: m.resets.WithLabelValues(role),
	}
}

type promListener struct {
	blocks prometheus.Counter
	resets prometheus.Counter
}

func (l promListener) OnBlock() { l.blocks.Inc() }
func (l promListener) OnReset() { l.resets.Inc() }
