// Package shm maps caller-owned, memory-backed file descriptors into the
// process as shared read-write regions, for buffers shared with another
// process such as a display server.
//
// The core surface is small:
//
//	m, err := shm.Create(fd, 4096)      // shared RW view of fd[0:4096)
//	m, err = shm.Resize(fd, m, 8192)    // unmap, then map 8192 bytes
//	err = shm.Destroy(m)                // release; no-op for shm.Sentinel()
//
// Resize is not atomic: the old address is invalid as soon as Resize is
// called, whether or not it succeeds, and the old contents are not copied
// (they survive only through the backing object). Region.Remap uses mremap
// instead and keeps the contents.
//
// Descriptors are never created or closed here. The descriptor must stay open
// and large enough (ftruncate) for as long as the mapping is used; touching
// pages beyond the end of the backing object raises SIGBUS.
//
// A MemoryMap instance carries the ambient state: leveled logging of failure
// diagnostics, Prometheus and OpenTelemetry instruments, and a registry of
// named Regions.
package shm
