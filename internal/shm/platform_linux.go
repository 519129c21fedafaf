//go:build linux

package shm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	mapProt  = unix.PROT_READ | unix.PROT_WRITE
	mapFlags = unix.MAP_SHARED
)

// Map establishes a shared, read-write mapping of size bytes at offset 0 of
// fd. The kernel chooses the address.
func Map(fd int, size int) (Addr, error) {
	if size <= 0 {
		return Invalid, unix.EINVAL
	}
	p, err := unix.MmapPtr(fd, 0, nil, uintptr(size), mapProt, mapFlags)
	if err != nil {
		return Invalid, err
	}
	return Addr(uintptr(p)), nil
}

// Unmap releases [addr, addr+size). Unmapping Invalid is a no-op.
func Unmap(addr Addr, size int) error {
	if addr == Invalid {
		return nil
	}
	return unix.MunmapPtr(addr.pointer(), uintptr(size))
}

// Remap resizes the mapping in the kernel with MREMAP_MAYMOVE. The returned
// address may differ from addr; on error the old mapping is left untouched.
func Remap(addr Addr, size, newSize int) (Addr, error) {
	if addr == Invalid {
		return Invalid, unix.EINVAL
	}
	if newSize <= 0 {
		return Invalid, unix.EINVAL
	}
	p, err := unix.MremapPtr(addr.pointer(), uintptr(size), nil, uintptr(newSize), unix.MREMAP_MAYMOVE)
	if err != nil {
		return Invalid, err
	}
	return Addr(uintptr(p)), nil
}

// Sync flushes the region back to the backing object.
func Sync(addr Addr, size int) error {
	b := Bytes(addr, size)
	if b == nil {
		return unix.EINVAL
	}
	return unix.Msync(b, unix.MS_SYNC)
}

// Bytes returns a slice aliasing the mapped region. The slice must not be
// used after the region is unmapped.
func Bytes(addr Addr, size int) []byte {
	if !addr.Valid() || size <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(addr.pointer()), size)
}

// pointer converts a mapping address back to a pointer. Mapped memory lives
// outside the Go heap, so the conversion does not hide anything from the GC.
func (a Addr) pointer() unsafe.Pointer {
	return unsafe.Pointer(uintptr(a)) //nolint:govet
}
