package shm

import (
	"context"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	internalshm "github.com/srediag/memmap/internal/shm"
)

// Addr is the opaque start address of a mapping.
type Addr = internalshm.Addr

// Invalid is the sentinel address meaning "no mapping".
const Invalid = internalshm.Invalid

// Sentinel returns the distinguished "mapping failed / no mapping" address.
func Sentinel() Addr {
	return Invalid
}

// Mapping is a process-local view of a descriptor-backed object. The zero
// value is not a valid mapping; use InvalidMapping to initialize one.
type Mapping struct {
	Addr Addr
	Size int
}

// InvalidMapping returns a Mapping holding the sentinel address.
func InvalidMapping() Mapping {
	return Mapping{Addr: Invalid}
}

// Valid reports whether m refers to an established mapping.
func (m Mapping) Valid() bool {
	return m.Addr.Valid() && m.Size > 0
}

// Bytes returns a slice aliasing the mapped memory, or nil when m is invalid.
// The slice is dead once the mapping is destroyed or resized.
func (m Mapping) Bytes() []byte {
	if !m.Valid() {
		return nil
	}
	return internalshm.Bytes(m.Addr, m.Size)
}

// Stats is a snapshot of the MemoryMap counters.
type Stats struct {
	Maps          uint64
	Unmaps        uint64
	Remaps        uint64
	MapFailures   uint64
	UnmapFailures uint64
	MappedBytes   int64
	Regions       int
	Poisoned      int
}

// MemoryMap creates, destroys and resizes shared mappings. Its methods are
// safe to call concurrently for different mappings; calls against the same
// Mapping must be serialized by the caller.
type MemoryMap struct {
	name    string
	logger  *logger
	tracer  trace.Tracer
	metrics *metrics
	diag    *diagnostics
	regions cmap.ConcurrentMap[string, *Region]
	workers int

	maps          atomic.Uint64
	unmaps        atomic.Uint64
	remaps        atomic.Uint64
	mapFailures   atomic.Uint64
	unmapFailures atomic.Uint64
	mappedBytes   atomic.Int64
	regionSeq     atomic.Uint64
}

// NewMemoryMap returns a MemoryMap configured by config. A nil config means
// DefaultConfig.
func NewMemoryMap(config *Config) (*MemoryMap, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	config = config.withDefaults()
	m, err := newMetrics(config.Registerer, config.Meter)
	if err != nil {
		return nil, err
	}
	return &MemoryMap{
		name:    config.Name,
		logger:  newLogger(config.Name, config.LogOutput),
		tracer:  config.Tracer,
		metrics: m,
		diag:    newDiagnostics(config.DiagnosticsCap),
		regions: cmap.New[*Region](),
		workers: config.ReleaseWorkers,
	}, nil
}

// Name returns the configured name.
func (mm *MemoryMap) Name() string {
	return mm.name
}

// Create requests a shared, read-write mapping of size bytes at offset 0 of
// fd. On failure it returns InvalidMapping and an *Error matching
// ErrMapFailed. It never retries.
func (mm *MemoryMap) Create(ctx context.Context, fd int, size int) (Mapping, error) {
	ctx, span := mm.startSpan(ctx, "memmap.Create", fd, size)
	defer span.End()
	m, err := mm.create(ctx, opCreate, "mmap", fd, size)
	endSpan(span, err)
	return m, err
}

// create maps fd; errOp names the failing call in the returned *Error.
func (mm *MemoryMap) create(ctx context.Context, op, errOp string, fd int, size int) (Mapping, error) {
	if size <= 0 {
		err := &Error{Op: errOp, Fd: fd, Size: size, Kind: ErrMapFailed, Err: ErrInvalidSize}
		mm.fail(ctx, op, fd, size, err)
		mm.mapFailures.Add(1)
		return InvalidMapping(), err
	}
	addr, errno := internalshm.Map(fd, size)
	if errno != nil {
		err := &Error{Op: errOp, Fd: fd, Size: size, Kind: ErrMapFailed, Err: errno}
		mm.fail(ctx, op, fd, size, err)
		mm.mapFailures.Add(1)
		return InvalidMapping(), err
	}
	mm.maps.Add(1)
	mm.mappedBytes.Add(int64(size))
	mm.metrics.mappedBytes.Add(float64(size))
	mm.metrics.observe(ctx, op, resultOK)
	mm.logger.debugf("mmap fd=%d size=%d addr=%#x", fd, size, uintptr(addr))
	return Mapping{Addr: addr, Size: size}, nil
}

// Destroy releases m. Destroying an invalid mapping is a no-op that
// succeeds. On failure the returned *Error matches ErrUnmapFailed and the
// address must be considered unusable.
func (mm *MemoryMap) Destroy(ctx context.Context, m Mapping) error {
	ctx, span := mm.startSpan(ctx, "memmap.Destroy", -1, m.Size)
	defer span.End()
	err := mm.destroy(ctx, opDestroy, -1, m)
	endSpan(span, err)
	return err
}

func (mm *MemoryMap) destroy(ctx context.Context, op string, fd int, m Mapping) error {
	if !m.Addr.Valid() {
		mm.metrics.observe(ctx, op, resultNoop)
		return nil
	}
	if errno := internalshm.Unmap(m.Addr, m.Size); errno != nil {
		err := &Error{Op: "munmap", Fd: fd, Size: m.Size, Kind: ErrUnmapFailed, Err: errno}
		mm.fail(ctx, op, fd, m.Size, err)
		mm.unmapFailures.Add(1)
		return err
	}
	mm.unmaps.Add(1)
	mm.mappedBytes.Add(-int64(m.Size))
	mm.metrics.mappedBytes.Sub(float64(m.Size))
	mm.metrics.observe(ctx, op, resultOK)
	mm.logger.debugf("munmap addr=%#x size=%d", uintptr(m.Addr), m.Size)
	return nil
}

// Resize replaces m with a mapping of newSize bytes over fd by unmapping and
// mapping again. The old address is invalid from the moment Resize is called
// and contents are not copied.
//
// Resize returns m untouched when newSize equals m.Size, and an invalid
// mapping with a nil error when m is already invalid. A non-positive newSize
// is rejected before anything is released.
func (mm *MemoryMap) Resize(ctx context.Context, fd int, m Mapping, newSize int) (Mapping, error) {
	if newSize == m.Size {
		mm.metrics.observe(ctx, opResize, resultNoop)
		return m, nil
	}
	if !m.Addr.Valid() {
		mm.metrics.observe(ctx, opResize, resultNoop)
		return InvalidMapping(), nil
	}
	ctx, span := mm.startSpan(ctx, "memmap.Resize", fd, newSize)
	defer span.End()
	span.SetAttributes(attribute.Int("old_size", m.Size))
	if newSize <= 0 {
		err := &Error{Op: "remap", Fd: fd, Size: newSize, Kind: ErrMapFailed, Err: ErrInvalidSize}
		mm.fail(ctx, opResize, fd, newSize, err)
		endSpan(span, err)
		return m, err
	}
	if err := mm.destroy(ctx, opResize, fd, m); err != nil {
		endSpan(span, err)
		return InvalidMapping(), err
	}
	nm, err := mm.create(ctx, opResize, "remap", fd, newSize)
	if err != nil {
		endSpan(span, err)
		return InvalidMapping(), err
	}
	mm.remaps.Add(1)
	mm.logger.infof("resized fd=%d %d -> %d bytes", fd, m.Size, newSize)
	endSpan(span, nil)
	return nm, nil
}

// Stats returns a snapshot of the counters.
func (mm *MemoryMap) Stats() Stats {
	s := Stats{
		Maps:          mm.maps.Load(),
		Unmaps:        mm.unmaps.Load(),
		Remaps:        mm.remaps.Load(),
		MapFailures:   mm.mapFailures.Load(),
		UnmapFailures: mm.unmapFailures.Load(),
		MappedBytes:   mm.mappedBytes.Load(),
	}
	for item := range mm.regions.IterBuffered() {
		s.Regions++
		if item.Val.Poisoned() {
			s.Poisoned++
		}
	}
	return s
}

// Diagnostics returns the recorded failures, oldest first.
func (mm *MemoryMap) Diagnostics() []Diagnostic {
	return mm.diag.snapshot()
}

func (mm *MemoryMap) fail(ctx context.Context, op string, fd int, size int, err error) {
	mm.metrics.observe(ctx, op, resultError)
	mm.diag.record(Diagnostic{Time: time.Now(), Op: op, Fd: fd, Size: size, Err: err})
	mm.logger.errorf("%s: %v%s", op, err, memoryHint(err))
}

func (mm *MemoryMap) startSpan(ctx context.Context, name string, fd int, size int) (context.Context, trace.Span) {
	return mm.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int("fd", fd),
		attribute.Int("size", size),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

var defaultMemoryMap = mustDefault()

func mustDefault() *MemoryMap {
	mm, err := NewMemoryMap(DefaultConfig())
	if err != nil {
		panic("memmap: default config rejected: " + err.Error())
	}
	return mm
}

// Default returns the MemoryMap used by the package-level functions.
func Default() *MemoryMap {
	return defaultMemoryMap
}

// Create maps size bytes of fd with the default MemoryMap.
func Create(fd int, size int) (Mapping, error) {
	return defaultMemoryMap.Create(context.Background(), fd, size)
}

// Destroy releases m with the default MemoryMap.
func Destroy(m Mapping) error {
	return defaultMemoryMap.Destroy(context.Background(), m)
}

// Resize resizes m over fd with the default MemoryMap.
func Resize(fd int, m Mapping, newSize int) (Mapping, error) {
	return defaultMemoryMap.Resize(context.Background(), fd, m, newSize)
}
