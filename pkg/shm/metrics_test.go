//go:build linux

package shm

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prometheusToFloat64 reads the current value of a counter or gauge.
func prometheusToFloat64(c prometheus.Metric) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	if m.Counter != nil {
		return m.GetCounter().GetValue()
	}
	return m.GetGauge().GetValue()
}

func TestMetrics_Registered(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	config := DefaultConfig()
	config.Registerer = reg
	config.LogOutput = &bytes.Buffer{}
	mm, err := NewMemoryMap(config)
	require.NoError(t, err)

	fd := newMemFd(t, 2*pageSize)
	r, err := mm.Map(ctx, "metrics", fd, pageSize)
	require.NoError(t, err)
	require.NoError(t, r.Resize(ctx, 2*pageSize))
	_, _ = mm.Create(ctx, -1, pageSize)

	ops := mm.metrics.operations
	assert.Equal(t, 1.0, prometheusToFloat64(ops.WithLabelValues(opCreate, resultOK)))
	assert.Equal(t, 1.0, prometheusToFloat64(ops.WithLabelValues(opCreate, resultError)))
	// resize counts its unmap and its map
	assert.Equal(t, 2.0, prometheusToFloat64(ops.WithLabelValues(opResize, resultOK)))
	assert.Equal(t, float64(2*pageSize), prometheusToFloat64(mm.metrics.mappedBytes))
	assert.Equal(t, 1.0, prometheusToFloat64(mm.metrics.regions))

	require.NoError(t, r.Close(ctx))
	assert.Equal(t, 0.0, prometheusToFloat64(mm.metrics.mappedBytes))
	assert.Equal(t, 0.0, prometheusToFloat64(mm.metrics.regions))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["memmap_operations_total"])
	assert.True(t, names["memmap_mapped_bytes"])
	assert.True(t, names["memmap_regions"])

	config2 := DefaultConfig()
	config2.Registerer = reg
	_, err = NewMemoryMap(config2)
	assert.Error(t, err, "second MemoryMap on the same registry must not register twice")
}
