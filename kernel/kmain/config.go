package kmain

import (
	"pagingos/kernel/mm"
)

// FrameRange describes a contiguous range of physical frames.
type FrameRange struct {
	BaseFrame  mm.Frame
	FrameCount uint32
}

// VirtualRange describes a contiguous range of virtual addresses.
type VirtualRange struct {
	Base uintptr
	Size uintptr
}

// Config describes the machine memory layout used by Boot.
type Config struct {
	// KernelPool frames hold the bitmaps of the other pools, page
	// directories and second-level page tables. The pool is self-hosted
	// and must lie inside the shared region.
	KernelPool FrameRange

	// ProcessPool frames back the pages of the virtual memory pools. Its
	// bitmap is stored in a frame taken from the kernel pool.
	ProcessPool FrameRange

	// Hole is withdrawn from the process pool (e.g. memory-mapped
	// devices). A zero FrameCount disables it.
	Hole FrameRange

	// SharedSize bytes starting at address 0 are identity-mapped in every
	// address space.
	SharedSize uintptr

	// KernelHeap and ProcessHeap are reserved as virtual memory pools in
	// the boot page table.
	KernelHeap  VirtualRange
	ProcessHeap VirtualRange
}

// DefaultConfig returns the layout of the reference machine: 32M of RAM
// with the kernel pool at 2M-4M, the process pool at 4M-32M, a hole at
// 15M-16M and two 256M heaps at 512M and 1G.
func DefaultConfig() Config {
	return Config{
		KernelPool:  FrameRange{BaseFrame: mm.Frame((2 << 20) >> mm.PageShift), FrameCount: 512},
		ProcessPool: FrameRange{BaseFrame: mm.Frame((4 << 20) >> mm.PageShift), FrameCount: 7168},
		Hole:        FrameRange{BaseFrame: mm.Frame((15 << 20) >> mm.PageShift), FrameCount: 256},
		SharedSize:  4 << 20,
		KernelHeap:  VirtualRange{Base: 512 << 20, Size: 256 << 20},
		ProcessHeap: VirtualRange{Base: 1 << 30, Size: 256 << 20},
	}
}

// RAMSize returns the smallest amount of physical memory that covers both
// frame pools.
func (c Config) RAMSize() uintptr {
	end := c.KernelPool.BaseFrame + mm.Frame(c.KernelPool.FrameCount)
	if processEnd := c.ProcessPool.BaseFrame + mm.Frame(c.ProcessPool.FrameCount); processEnd > end {
		end = processEnd
	}
	return end.Address()
}
