//go:build linux

package health

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/srediag/memmap/pkg/shm"
)

func newMemoryMap(t *testing.T) *shm.MemoryMap {
	t.Helper()
	config := shm.DefaultConfig()
	config.LogOutput = &bytes.Buffer{}
	mm, err := shm.NewMemoryMap(config)
	require.NoError(t, err)
	return mm
}

func newMemFd(t *testing.T, size int) int {
	t.Helper()
	fd, err := unix.MemfdCreate("memmap-health", unix.MFD_CLOEXEC)
	require.NoError(t, err)
	require.NoError(t, unix.Ftruncate(fd, int64(size)))
	return fd
}

func status(t *testing.T, h http.Handler, path string) int {
	t.Helper()
	rw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path+"?full=1", nil)
	h.ServeHTTP(rw, req)
	return rw.Code
}

func TestHandler_Healthy(t *testing.T) {
	ctx := context.Background()
	mm := newMemoryMap(t)
	fd := newMemFd(t, 4096)
	defer unix.Close(fd)

	_, err := mm.Map(ctx, "ok", fd, 4096)
	require.NoError(t, err)

	h := NewHandler(mm, nil)
	assert.Equal(t, http.StatusOK, status(t, h, "/live"))
	assert.Equal(t, http.StatusOK, status(t, h, "/ready"))
	require.NoError(t, mm.CloseAll(ctx))
}

func TestHandler_RegionLostMapping(t *testing.T) {
	ctx := context.Background()
	mm := newMemoryMap(t)
	fd := newMemFd(t, 4096)

	r, err := mm.Map(ctx, "lost", fd, 4096)
	require.NoError(t, err)
	require.NoError(t, unix.Close(fd))
	require.Error(t, r.Resize(ctx, 8192))

	h := NewHandler(mm, nil)
	assert.Equal(t, http.StatusOK, status(t, h, "/live"))
	assert.Equal(t, http.StatusServiceUnavailable, status(t, h, "/ready"))
	assert.ErrorContains(t, ReadinessCheck(mm)(), "lost")

	require.NoError(t, r.Close(ctx))
	assert.Equal(t, http.StatusOK, status(t, h, "/ready"))
}

func TestLivenessCheck_NoRegions(t *testing.T) {
	mm := newMemoryMap(t)
	assert.NoError(t, LivenessCheck(mm)())
	assert.NoError(t, ReadinessCheck(mm)())
}

func TestHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	mm := newMemoryMap(t)
	h := NewHandler(mm, reg)
	assert.Equal(t, http.StatusOK, status(t, h, "/live"))

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "memmap_healthcheck_status" {
			found = true
		}
	}
	assert.True(t, found)
}
