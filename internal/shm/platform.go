// Package shm contains the platform-specific primitives behind pkg/shm.
//
// Addresses are carried as Addr rather than []byte so a failed mapping can be
// represented by the same sentinel the kernel returns (MAP_FAILED).
package shm

import "errors"

// Addr is the start address of a mapped region.
type Addr uintptr

// Invalid is the value of MAP_FAILED, ((void *)-1).
const Invalid Addr = ^Addr(0)

// ErrUnsupported is returned on platforms without a mapping implementation.
var ErrUnsupported = errors.New("shared memory mapping not supported on this platform")

// Valid reports whether a is a usable mapping address.
func (a Addr) Valid() bool {
	return a != Invalid && a != 0
}
