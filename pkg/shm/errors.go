package shm

import (
	"errors"
	"strconv"

	internalshm "github.com/srediag/memmap/internal/shm"
)

var (
	// ErrMapFailed means the OS refused to establish a mapping.
	ErrMapFailed = errors.New("map failed")
	// ErrUnmapFailed means the OS refused to release a mapping. The address
	// must not be reused.
	ErrUnmapFailed = errors.New("unmap failed")
	// ErrInvalidSize is returned for sizes that are not positive.
	ErrInvalidSize = errors.New("invalid mapping size")
	// ErrUnsupported is returned on platforms without shared mappings.
	ErrUnsupported = internalshm.ErrUnsupported
	// ErrRegionExists is returned by Map when the name is already registered.
	ErrRegionExists = errors.New("region already registered")
	// ErrRegionClosed is returned by operations on a closed Region.
	ErrRegionClosed = errors.New("region closed")
)

// Error describes a failed mapping operation.
type Error struct {
	Op   string // "mmap", "munmap", "remap", "mremap", "msync"
	Fd   int
	Size int
	Kind error // ErrMapFailed or ErrUnmapFailed
	Err  error // underlying cause, usually a unix.Errno
}

func (e *Error) Error() string {
	s := "memmap: " + e.Op + " fd=" + strconv.Itoa(e.Fd) + " size=" + strconv.Itoa(e.Size)
	if e.Kind != nil {
		s += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
