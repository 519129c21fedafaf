package shm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	internalshm "github.com/srediag/memmap/internal/shm"
)

// Region is a registered mapping together with the descriptor backing it.
// The descriptor stays owned by the caller and must outlive the Region.
type Region struct {
	mm   *MemoryMap
	name string
	fd   int

	mu       sync.Mutex
	m        Mapping
	closed   bool
	poisoned bool
}

// Map creates a mapping of size bytes over fd and registers it under name.
// An empty name is replaced by a generated one. A region is only visible in
// the registry once its mapping exists.
func (mm *MemoryMap) Map(ctx context.Context, name string, fd int, size int) (*Region, error) {
	if name == "" {
		name = fmt.Sprintf("fd%d-%d", fd, mm.regionSeq.Add(1))
	}
	if mm.regions.Has(name) {
		return nil, fmt.Errorf("%w: %s", ErrRegionExists, name)
	}
	m, err := mm.Create(ctx, fd, size)
	if err != nil {
		return nil, err
	}
	r := &Region{mm: mm, name: name, fd: fd, m: m}
	if !mm.regions.SetIfAbsent(name, r) {
		// lost the name to a concurrent Map
		if derr := mm.Destroy(ctx, m); derr != nil {
			return nil, errors.Join(fmt.Errorf("%w: %s", ErrRegionExists, name), derr)
		}
		return nil, fmt.Errorf("%w: %s", ErrRegionExists, name)
	}
	mm.metrics.regions.Inc()
	mm.logger.infof("region %s mapped fd=%d size=%d", name, fd, size)
	return r, nil
}

// Region returns the registered region called name.
func (mm *MemoryMap) Region(name string) (*Region, bool) {
	return mm.regions.Get(name)
}

// Name returns the registry key of r.
func (r *Region) Name() string {
	return r.name
}

// Fd returns the backing descriptor.
func (r *Region) Fd() int {
	return r.fd
}

// Mapping returns the current mapping.
func (r *Region) Mapping() Mapping {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m
}

// Size returns the current mapping size, 0 when the mapping is invalid.
func (r *Region) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.m.Valid() {
		return 0
	}
	return r.m.Size
}

// Bytes returns the mapped memory, nil when the region holds no mapping.
// The slice must not be used across Resize, Remap or Close.
func (r *Region) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m.Bytes()
}

// Closed reports whether Close has completed.
func (r *Region) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Poisoned reports whether an unmap of this region failed. A poisoned
// region's address range is in an unknown state.
func (r *Region) Poisoned() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poisoned
}

// Resize unmaps the region and maps it again with newSize bytes. Contents are
// not copied. After a failure the region holds no mapping until a later
// successful Resize.
func (r *Region) Resize(ctx context.Context, newSize int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegionClosed
	}
	if !r.m.Valid() && newSize > 0 {
		// lost during an earlier failed resize; map afresh
		m, err := r.mm.Create(ctx, r.fd, newSize)
		if err != nil {
			return err
		}
		r.m = m
		return nil
	}
	m, err := r.mm.Resize(ctx, r.fd, r.m, newSize)
	if errors.Is(err, ErrUnmapFailed) {
		r.poisoned = true
	}
	r.m = m
	return err
}

// Remap resizes the region with mremap(2). The address may move, the
// contents up to min(old, new) size are kept, and on failure the old mapping
// stays in place.
func (r *Region) Remap(ctx context.Context, newSize int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegionClosed
	}
	if newSize == r.m.Size {
		return nil
	}
	if !r.m.Valid() {
		return &Error{Op: "mremap", Fd: r.fd, Size: newSize, Kind: ErrMapFailed, Err: ErrRegionClosed}
	}
	ctx, span := r.mm.startSpan(ctx, "memmap.Remap", r.fd, newSize)
	defer span.End()
	if newSize <= 0 {
		err := &Error{Op: "mremap", Fd: r.fd, Size: newSize, Kind: ErrMapFailed, Err: ErrInvalidSize}
		r.mm.fail(ctx, opRemap, r.fd, newSize, err)
		endSpan(span, err)
		return err
	}
	addr, errno := internalshm.Remap(r.m.Addr, r.m.Size, newSize)
	if errno != nil {
		err := &Error{Op: "mremap", Fd: r.fd, Size: newSize, Kind: ErrMapFailed, Err: errno}
		r.mm.fail(ctx, opRemap, r.fd, newSize, err)
		r.mm.mapFailures.Add(1)
		endSpan(span, err)
		return err
	}
	delta := int64(newSize - r.m.Size)
	r.mm.mappedBytes.Add(delta)
	r.mm.metrics.mappedBytes.Add(float64(delta))
	r.mm.remaps.Add(1)
	r.mm.metrics.observe(ctx, opRemap, resultOK)
	r.mm.logger.infof("region %s remapped %d -> %d bytes", r.name, r.m.Size, newSize)
	r.m = Mapping{Addr: addr, Size: newSize}
	endSpan(span, nil)
	return nil
}

// Sync flushes the region to its backing object with msync(MS_SYNC).
func (r *Region) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegionClosed
	}
	if !r.m.Valid() {
		return nil
	}
	if err := internalshm.Sync(r.m.Addr, r.m.Size); err != nil {
		e := &Error{Op: "msync", Fd: r.fd, Size: r.m.Size, Err: err}
		r.mm.fail(context.Background(), opSync, r.fd, r.m.Size, e)
		return e
	}
	return nil
}

// Close destroys the mapping and unregisters the region. Closing twice is a
// no-op. A poisoned region, whether the unmap failed here or during an
// earlier Resize, is closed but stays registered so health checks can
// report it.
func (r *Region) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	err := r.mm.Destroy(ctx, r.m)
	r.m = InvalidMapping()
	r.closed = true
	if err != nil {
		r.poisoned = true
		return err
	}
	if r.poisoned {
		r.mm.logger.warnf("region %s closed poisoned, kept registered", r.name)
		return nil
	}
	r.mm.regions.Remove(r.name)
	r.mm.metrics.regions.Dec()
	r.mm.logger.infof("region %s closed", r.name)
	return nil
}
