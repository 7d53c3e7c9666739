//go:build !386

package main

import (
	"math/rand"

	"github.com/pkg/errors"

	"pagingos/kernel"
	"pagingos/kernel/hal/emu"
	"pagingos/kernel/kmain"
	"pagingos/kernel/mm"
	"pagingos/kernel/mm/vmm"
)

// workload describes a randomized sequence of heap allocations, page
// accesses and releases.
type workload struct {
	Regions     int
	MaxPages    int
	TouchRatio  float64
	ReleaseProb float64
	Seed        int64
}

type workloadStats struct {
	Allocated int
	Released  int
	Exhausted int
	Touched   int
	Unmapped  int
	Faults    uint64
}

type liveRegion struct {
	heap    *vmm.VMPool
	addr    uintptr
	touched []uintptr
}

// run executes the workload against the heaps of k. Every touched page is
// stamped with its own address and checked again before its region is
// released so that overlapping mappings are detected.
func (wl workload) run(k *kmain.Kernel, machine *emu.Machine) (workloadStats, error) {
	var (
		stats        workloadStats
		live         []liveRegion
		rng          = rand.New(rand.NewSource(wl.Seed))
		heaps        = []*vmm.VMPool{k.KernelHeap, k.ProcessHeap}
		faultsBefore = machine.Faults()
	)

	if wl.MaxPages < 1 {
		return stats, errors.Errorf("max pages per region must be at least 1; got %d", wl.MaxPages)
	}

	for i := 0; i < wl.Regions; i++ {
		heap := heaps[rng.Intn(len(heaps))]
		pages := rng.Intn(wl.MaxPages) + 1

		addr, err := heap.Allocate(uintptr(pages) << mm.PageShift)
		if err != nil {
			if err.Kind != kernel.CapacityExhausted {
				return stats, errors.Wrapf(err, "allocating %d pages", pages)
			}
			stats.Exhausted++
			continue
		}
		stats.Allocated++

		region := liveRegion{heap: heap, addr: addr}
		for page := 0; page < pages; page++ {
			if rng.Float64() >= wl.TouchRatio {
				continue
			}

			pageAddr := addr + uintptr(page)<<mm.PageShift
			*(*uint32)(mm.VirtPtr(pageAddr)) = uint32(pageAddr)
			region.touched = append(region.touched, pageAddr)
			stats.Touched++
		}
		live = append(live, region)

		if rng.Float64() < wl.ReleaseProb {
			victim := rng.Intn(len(live))
			if err := releaseRegion(live[victim]); err != nil {
				return stats, err
			}
			stats.Unmapped += len(live[victim].touched)
			live = append(live[:victim], live[victim+1:]...)
			stats.Released++
		}
	}

	for _, region := range live {
		if err := verifyRegion(region); err != nil {
			return stats, err
		}
	}

	stats.Faults = machine.Faults() - faultsBefore
	return stats, nil
}

func verifyRegion(region liveRegion) error {
	for _, pageAddr := range region.touched {
		if got := *(*uint32)(mm.VirtPtr(pageAddr)); got != uint32(pageAddr) {
			return errors.Errorf("page 0x%x was overwritten: read back 0x%x", pageAddr, got)
		}
	}
	return nil
}

func releaseRegion(region liveRegion) error {
	if err := verifyRegion(region); err != nil {
		return err
	}

	if err := region.heap.Release(region.addr); err != nil {
		return errors.Wrapf(err, "releasing region at 0x%x", region.addr)
	}
	return nil
}
