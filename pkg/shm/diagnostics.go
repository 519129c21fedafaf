package shm

import (
	"errors"
	"strconv"
	"sync"
	"syscall"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"
	"github.com/shirou/gopsutil/v3/mem"
)

// Diagnostic records one failed operation.
type Diagnostic struct {
	Time time.Time
	Op   string
	Fd   int
	Size int
	Err  error
}

// diagnostics keeps the most recent failures, oldest first.
type diagnostics struct {
	mu  sync.Mutex
	q   *queuepkg.Queue
	cap int64
}

func newDiagnostics(capacity int) *diagnostics {
	return &diagnostics{
		q:   queuepkg.New(int64(capacity)),
		cap: int64(capacity),
	}
}

func (d *diagnostics) record(diag Diagnostic) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.q.Len() >= d.cap {
		if _, err := d.q.Get(1); err != nil {
			return
		}
	}
	_ = d.q.Put(diag)
}

func (d *diagnostics) snapshot() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.q.Len()
	if n == 0 {
		return nil
	}
	items, err := d.q.Get(n)
	if err != nil {
		return nil
	}
	out := make([]Diagnostic, 0, len(items))
	for _, it := range items {
		if diag, ok := it.(Diagnostic); ok {
			out = append(out, diag)
		}
	}
	_ = d.q.Put(items...)
	return out
}

// memoryHint describes the host memory state for ENOMEM failures.
func memoryHint(err error) string {
	if !errors.Is(err, syscall.ENOMEM) {
		return ""
	}
	vm, verr := mem.VirtualMemory()
	if verr != nil {
		return ""
	}
	return " (host available=" + formatBytes(vm.Available) + " total=" + formatBytes(vm.Total) + ")"
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatUint(n, 10) + "B"
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatUint(n/div, 10) + string("KMGTPE"[exp]) + "iB"
}
