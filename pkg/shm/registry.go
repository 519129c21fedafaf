package shm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Regions returns the registered regions sorted by name.
func (mm *MemoryMap) Regions() []*Region {
	out := make([]*Region, 0, mm.regions.Count())
	for item := range mm.regions.IterBuffered() {
		out = append(out, item.Val)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// CloseAll closes every open region, releasing them in parallel on a worker
// pool bounded by Config.ReleaseWorkers. It returns once every release has
// finished; failures are joined into the returned error.
func (mm *MemoryMap) CloseAll(ctx context.Context) error {
	regions := mm.Regions()
	if len(regions) == 0 {
		return nil
	}
	pool, err := ants.NewPool(mm.workers)
	if err != nil {
		return fmt.Errorf("release pool: %w", err)
	}
	defer pool.Release()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, r := range regions {
		r := r
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := r.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("region %s: %w", r.name, err))
				mu.Unlock()
			}
		}
		if err := pool.Submit(task); err != nil {
			mm.logger.warnf("release pool refused region %s, releasing inline: %v", r.name, err)
			task()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// DebugDetail prints the state of every registered region to w.
func (mm *MemoryMap) DebugDetail(w io.Writer) {
	s := mm.Stats()
	fmt.Fprintf(w, "memmap:%s regions:%d poisoned:%d mapped:%d maps:%d unmaps:%d remaps:%d mapFailures:%d unmapFailures:%d\n",
		mm.name, s.Regions, s.Poisoned, s.MappedBytes, s.Maps, s.Unmaps, s.Remaps, s.MapFailures, s.UnmapFailures)
	for _, r := range mm.Regions() {
		m := r.Mapping()
		state := "mapped"
		switch {
		case r.Poisoned():
			state = "poisoned"
		case r.Closed():
			state = "closed"
		case !m.Valid():
			state = "invalid"
		}
		fmt.Fprintf(w, "region:%s fd:%d addr:%#x size:%d state:%s\n", r.name, r.fd, uintptr(m.Addr), m.Size, state)
	}
}
