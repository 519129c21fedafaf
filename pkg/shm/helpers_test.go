//go:build linux

package shm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newMemFd returns a memfd truncated to size, closed when the test ends.
func newMemFd(t testing.TB, size int) int {
	t.Helper()
	fd := newUnmanagedMemFd(t, size)
	t.Cleanup(func() { _ = unix.Close(fd) })
	return fd
}

func newUnmanagedMemFd(t testing.TB, size int) int {
	t.Helper()
	fd, err := unix.MemfdCreate("memmap-test", unix.MFD_CLOEXEC)
	require.NoError(t, err)
	require.NoError(t, unix.Ftruncate(fd, int64(size)))
	return fd
}

func newTestMemoryMap(t testing.TB, out *bytes.Buffer) *MemoryMap {
	t.Helper()
	config := DefaultConfig()
	config.Name = t.Name()
	config.LogOutput = out
	mm, err := NewMemoryMap(config)
	require.NoError(t, err)
	return mm
}

func fillPattern(b []byte) {
	for i := range b {
		b[i] = byte(i % 251)
	}
}

func checkPattern(t testing.TB, b []byte) {
	t.Helper()
	for i := range b {
		if b[i] != byte(i%251) {
			t.Fatalf("byte %d = %d, want %d", i, b[i], byte(i%251))
		}
	}
}
