package wait

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsListener(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	n := 0
	s := Listen(Spin(), m.Listener("consumer"))
	require.NoError(t, Poll(context.Background(), s, func() bool {
		n++
		return n > 4
	}))

	assert.Equal(t, 4.0, testutil.ToFloat64(m.blocks.WithLabelValues("consumer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resets.WithLabelValues("consumer")))
	assert.Zero(t, testutil.ToFloat64(m.blocks.WithLabelValues("producer")))

	count, err := testutil.GatherAndCount(reg, "test_wait_blocks_total", "test_wait_resets_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg, "dup")
	assert.Panics(t, func() { NewMetrics(reg, "dup") })
}
