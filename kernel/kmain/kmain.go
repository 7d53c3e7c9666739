// Package kmain boots the memory subsystem: it creates the frame pools,
// builds and activates the first page table and reserves the kernel and
// process heaps.
package kmain

import (
	"pagingos/kernel"
	"pagingos/kernel/kfmt"
	"pagingos/kernel/mm"
	"pagingos/kernel/mm/pmm"
	"pagingos/kernel/mm/vmm"
)

// Kernel holds the memory subsystem state created by Boot.
type Kernel struct {
	Frames      *pmm.Registry
	KernelPool  *pmm.FramePool
	ProcessPool *pmm.FramePool

	Paging    *vmm.Paging
	PageTable *vmm.PageTable

	KernelHeap  *vmm.VMPool
	ProcessHeap *vmm.VMPool
}

// FaultRouter is implemented by the trap layer that delivers page faults.
type FaultRouter interface {
	SetFaultHandler(handler func(address uintptr, errorCode uint32) *kernel.Error)
}

// Boot sets up the memory subsystem described by cfg. Once Boot returns,
// paging is enabled and accesses to the heaps are backed on demand.
//
// Page faults are routed to the paging fault handler through traps as soon
// as paging is initialized, since creating the heaps touches their first
// page. traps may be nil if the caller wires the trap layer itself.
func Boot(cfg Config, traps FaultRouter) (*Kernel, *kernel.Error) {
	var (
		k   = &Kernel{Frames: new(pmm.Registry)}
		err *kernel.Error
	)

	if k.KernelPool, err = k.Frames.NewPool(cfg.KernelPool.BaseFrame, cfg.KernelPool.FrameCount, mm.InvalidFrame); err != nil {
		return nil, err
	}

	infoFrame, err := k.KernelPool.GetFrames(pmm.NeededInfoFrames(cfg.ProcessPool.FrameCount))
	if err != nil {
		return nil, err
	}

	if k.ProcessPool, err = k.Frames.NewPool(cfg.ProcessPool.BaseFrame, cfg.ProcessPool.FrameCount, infoFrame); err != nil {
		return nil, err
	}

	if cfg.Hole.FrameCount != 0 {
		if err = k.ProcessPool.MarkInaccessible(cfg.Hole.BaseFrame, cfg.Hole.FrameCount); err != nil {
			return nil, err
		}
		kfmt.Printf("[kmain] withdrew frames 0x%x-0x%x\n", uintptr(cfg.Hole.BaseFrame), uintptr(cfg.Hole.BaseFrame)+uintptr(cfg.Hole.FrameCount)-1)
	}

	if k.Paging, err = vmm.InitPaging(k.Frames, k.KernelPool, k.ProcessPool, cfg.SharedSize); err != nil {
		return nil, err
	}

	if traps != nil {
		traps.SetFaultHandler(k.Paging.HandleFault)
	}

	if k.PageTable, err = k.Paging.NewPageTable(); err != nil {
		return nil, err
	}

	k.PageTable.Load()
	if err = k.Paging.EnablePaging(); err != nil {
		return nil, err
	}

	if k.KernelHeap, err = vmm.NewVMPool(cfg.KernelHeap.Base, cfg.KernelHeap.Size, k.ProcessPool, k.PageTable); err != nil {
		return nil, err
	}

	if k.ProcessHeap, err = vmm.NewVMPool(cfg.ProcessHeap.Base, cfg.ProcessHeap.Size, k.ProcessPool, k.PageTable); err != nil {
		return nil, err
	}

	kfmt.Printf("[kmain] memory subsystem ready: %d kernel frames free, %d process frames free\n", k.KernelPool.FreeFrames(), k.ProcessPool.FreeFrames())

	return k, nil
}

// Kmain boots the memory subsystem and panics if that fails; a kernel cannot
// continue without it.
func Kmain(cfg Config, traps FaultRouter) *Kernel {
	k, err := Boot(cfg, traps)
	if err != nil {
		panic(err)
	}

	return k
}
