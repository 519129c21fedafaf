//go:build !linux

package shm

// Map establishes a shared, read-write mapping (unsupported on this platform).
func Map(fd int, size int) (Addr, error) {
	return Invalid, ErrUnsupported
}

// Unmap releases a mapping (unsupported on this platform).
func Unmap(addr Addr, size int) error {
	if addr == Invalid {
		return nil
	}
	return ErrUnsupported
}

// Remap resizes a mapping (unsupported on this platform).
func Remap(addr Addr, size, newSize int) (Addr, error) {
	return Invalid, ErrUnsupported
}

// Sync flushes a mapping (unsupported on this platform).
func Sync(addr Addr, size int) error {
	return ErrUnsupported
}

// Bytes always returns nil on this platform.
func Bytes(addr Addr, size int) []byte {
	return nil
}
