package shm

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	opCreate  = "create"
	opDestroy = "destroy"
	opResize  = "resize"
	opRemap   = "remap"
	opSync    = "sync"

	resultOK    = "ok"
	resultError = "error"
	resultNoop  = "noop"
)

type metrics struct {
	operations  *prometheus.CounterVec
	mappedBytes prometheus.Gauge
	regions     prometheus.Gauge

	otelOps metric.Int64Counter
}

func newMetrics(reg prometheus.Registerer, meter metric.Meter) (*metrics, error) {
	m := &metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memmap",
			Name:      "operations_total",
			Help:      "Mapping operations by operation and result.",
		}, []string{"op", "result"}),
		mappedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memmap",
			Name:      "mapped_bytes",
			Help:      "Bytes currently mapped through this MemoryMap.",
		}),
		regions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memmap",
			Name:      "regions",
			Help:      "Registered regions.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.operations, m.mappedBytes, m.regions} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("register metrics: %w", err)
			}
		}
	}
	ops, err := meter.Int64Counter("memmap.operations",
		metric.WithDescription("Mapping operations by operation and result."),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, fmt.Errorf("otel counter: %w", err)
	}
	m.otelOps = ops
	return m, nil
}

func (m *metrics) observe(ctx context.Context, op, result string) {
	m.operations.WithLabelValues(op, result).Inc()
	m.otelOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}
