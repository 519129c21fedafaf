package shm

// RegisterRegion adds a region holding m under name, bypassing Map.
func RegisterRegion(mm *MemoryMap, name string, fd int, m Mapping) *Region {
	r := &Region{mm: mm, name: name, fd: fd, m: m}
	mm.regions.Set(name, r)
	return r
}
