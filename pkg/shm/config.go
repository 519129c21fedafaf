package shm

import (
	"fmt"
	"io"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	defaultName           = "memmap"
	defaultDiagnosticsCap = 64
	maxDiagnosticsCap     = 1 << 16
	instrumentationName   = "github.com/srediag/memmap"
)

// Config holds MemoryMap construction parameters.
type Config struct {
	// Name identifies the MemoryMap in log lines.
	Name string
	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer
	// Meter and Tracer default to no-op implementations.
	Meter  metric.Meter
	Tracer trace.Tracer
	// Registerer, when set, receives the Prometheus collectors.
	Registerer prometheus.Registerer
	// DiagnosticsCap bounds the number of failure diagnostics kept.
	DiagnosticsCap int
	// ReleaseWorkers bounds the parallelism of CloseAll.
	ReleaseWorkers int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:           defaultName,
		Meter:          metricnoop.NewMeterProvider().Meter(instrumentationName),
		Tracer:         tracenoop.NewTracerProvider().Tracer(instrumentationName),
		DiagnosticsCap: defaultDiagnosticsCap,
		ReleaseWorkers: runtime.NumCPU(),
	}
}

// VerifyConfig is used to check whether the config is legal.
func VerifyConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config must not be nil")
	}
	if config.DiagnosticsCap <= 0 || config.DiagnosticsCap > maxDiagnosticsCap {
		return fmt.Errorf("DiagnosticsCap must be in (0, %d], got %d", maxDiagnosticsCap, config.DiagnosticsCap)
	}
	if config.ReleaseWorkers <= 0 {
		return fmt.Errorf("ReleaseWorkers must be positive, got %d", config.ReleaseWorkers)
	}
	return nil
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	out := *c
	if out.Name == "" {
		out.Name = d.Name
	}
	if out.Meter == nil {
		out.Meter = d.Meter
	}
	if out.Tracer == nil {
		out.Tracer = d.Tracer
	}
	return &out
}
