// Package health exposes liveness and readiness of a shm.MemoryMap over HTTP.
package health

import (
	"fmt"
	"strings"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/memmap/pkg/shm"
)

const (
	// LivenessCheckName fails once any region has a failed unmap.
	LivenessCheckName = "memmap-unmap"
	// ReadinessCheckName fails while an open region holds no mapping.
	ReadinessCheckName = "memmap-regions"
)

// NewHandler returns a healthcheck handler serving /live and /ready for mm.
// With a non-nil registerer the check results are also exported as
// Prometheus gauges under the "memmap" namespace.
func NewHandler(mm *shm.MemoryMap, reg prometheus.Registerer) healthcheck.Handler {
	var h healthcheck.Handler
	if reg != nil {
		h = healthcheck.NewMetricsHandler(reg, "memmap")
	} else {
		h = healthcheck.NewHandler()
	}
	h.AddLivenessCheck(LivenessCheckName, LivenessCheck(mm))
	h.AddReadinessCheck(ReadinessCheckName, ReadinessCheck(mm))
	return h
}

// LivenessCheck reports poisoned regions. Their address ranges are in an
// unknown state and the process cannot recover them.
func LivenessCheck(mm *shm.MemoryMap) healthcheck.Check {
	return func() error {
		var names []string
		for _, r := range mm.Regions() {
			if r.Poisoned() {
				names = append(names, r.Name())
			}
		}
		if len(names) > 0 {
			return fmt.Errorf("unmap failed for regions: %s", strings.Join(names, ","))
		}
		return nil
	}
}

// ReadinessCheck reports open regions left without a mapping by a failed
// resize.
func ReadinessCheck(mm *shm.MemoryMap) healthcheck.Check {
	return func() error {
		var names []string
		for _, r := range mm.Regions() {
			if !r.Closed() && !r.Mapping().Valid() {
				names = append(names, r.Name())
			}
		}
		if len(names) > 0 {
			return fmt.Errorf("regions without mapping: %s", strings.Join(names, ","))
		}
		return nil
	}
}
