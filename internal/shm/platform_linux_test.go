//go:build linux

package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func memfd(t *testing.T, size int) int {
	t.Helper()
	fd, err := unix.MemfdCreate("internal-shm", unix.MFD_CLOEXEC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(fd) })
	require.NoError(t, unix.Ftruncate(fd, int64(size)))
	return fd
}

func TestMapUnmap(t *testing.T) {
	fd := memfd(t, 8192)
	addr, err := Map(fd, 8192)
	require.NoError(t, err)
	assert.True(t, addr.Valid())

	b := Bytes(addr, 8192)
	require.Len(t, b, 8192)
	b[0], b[8191] = 1, 2
	require.NoError(t, Sync(addr, 8192))
	require.NoError(t, Unmap(addr, 8192))
}

func TestMapFailures(t *testing.T) {
	addr, err := Map(-1, 4096)
	assert.Equal(t, Invalid, addr)
	assert.ErrorIs(t, err, unix.EBADF)

	fd := memfd(t, 4096)
	addr, err = Map(fd, 0)
	assert.Equal(t, Invalid, addr)
	assert.ErrorIs(t, err, unix.EINVAL)
}

func TestUnmapInvalid(t *testing.T) {
	assert.NoError(t, Unmap(Invalid, 4096))
	assert.ErrorIs(t, Unmap(Addr(1), 4096), unix.EINVAL)
}

func TestRemapKeepsContents(t *testing.T) {
	fd := memfd(t, 4096)
	addr, err := Map(fd, 4096)
	require.NoError(t, err)
	copy(Bytes(addr, 4096), "remap")

	require.NoError(t, unix.Ftruncate(fd, 3*4096))
	addr2, err := Remap(addr, 4096, 3*4096)
	require.NoError(t, err)
	b := Bytes(addr2, 3*4096)
	assert.Equal(t, "remap", string(b[:5]))
	b[len(b)-1] = 9

	_, err = Remap(Invalid, 4096, 8192)
	assert.ErrorIs(t, err, unix.EINVAL)
	_, err = Remap(addr2, 3*4096, 0)
	assert.ErrorIs(t, err, unix.EINVAL)
	require.NoError(t, Unmap(addr2, 3*4096))
}

func TestBytesInvalid(t *testing.T) {
	assert.Nil(t, Bytes(Invalid, 4096))
	assert.Nil(t, Bytes(0, 4096))
	assert.False(t, Invalid.Valid())
}
