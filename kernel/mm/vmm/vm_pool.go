package vmm

import (
	"unsafe"

	"pagingos/kernel"
	"pagingos/kernel/kfmt"
	"pagingos/kernel/mm"
	"pagingos/kernel/mm/pmm"
	"pagingos/kernel/sync"
)

var (
	errNilPageTable      = &kernel.Error{Module: "vmm", Kind: kernel.ProtocolViolation, Message: "virtual memory pool requires a page table"}
	errInvalidPoolRange  = &kernel.Error{Module: "vmm", Kind: kernel.RangeError, Message: "virtual memory pool range must be page aligned, at least two pages long and outside the shared region and the recursive window"}
	errZeroSize          = &kernel.Error{Module: "vmm", Kind: kernel.RangeError, Message: "allocation size must be greater than zero"}
	errOutOfVirtualSpace = &kernel.Error{Module: "vmm", Kind: kernel.CapacityExhausted, Message: "virtual memory pool does not have enough space to satisfy request"}
	errDescriptorsFull   = &kernel.Error{Module: "vmm", Kind: kernel.CapacityExhausted, Message: "virtual memory pool descriptor table is full"}
	errRegionNotFound    = &kernel.Error{Module: "vmm", Kind: kernel.NotFound, Message: "address does not match the start of an allocated region"}
)

// region describes a contiguous range of virtual memory handed out by a
// VMPool. Descriptors are stored in the first page of the pool range.
type region struct {
	base   uint32
	length uint32
}

// maxRegions is the number of descriptors that fit in one page.
const maxRegions = int(mm.PageSize / unsafe.Sizeof(region{}))

// VMPool reserves ranges of virtual memory inside the address space of a
// page table. Reserving a range does not allocate any frames; pages are
// backed on first access by the page table fault handler.
//
// The first page of the pool stores the region descriptor table and is
// recorded as the first region. It can never be released.
type VMPool struct {
	lock sync.Spinlock

	// base and size are fixed at construction time so that the fault
	// handler can consult IsLegitimate without acquiring the pool lock.
	base uintptr
	size uintptr

	remaining   uintptr
	regionCount int

	framePool *pmm.FramePool
	pageTable *PageTable
}

// NewVMPool creates a pool for the virtual range [baseAddress,
// baseAddress+size) and registers it with pageTable. framePool is recorded
// as the pool the range was created for; faulting pages are always backed
// with frames from the process pool passed to InitPaging.
//
// The pool is registered before its descriptor table is written so that the
// first write to the range is resolved by the fault handler.
func NewVMPool(baseAddress, size uintptr, framePool *pmm.FramePool, pageTable *PageTable) (*VMPool, *kernel.Error) {
	if pageTable == nil {
		return nil, errNilPageTable
	}

	if baseAddress&(mm.PageSize-1) != 0 || size&(mm.PageSize-1) != 0 || size < 2*mm.PageSize ||
		baseAddress < pageTable.paging.sharedSize || baseAddress > tableWindowAddr || size > tableWindowAddr-baseAddress {
		return nil, errInvalidPoolRange
	}

	pool := &VMPool{
		base:      baseAddress,
		size:      size,
		remaining: size - mm.PageSize,
		framePool: framePool,
		pageTable: pageTable,
	}

	if err := pageTable.RegisterPool(pool); err != nil {
		return nil, err
	}

	pool.regions()[0] = region{base: uint32(baseAddress), length: uint32(mm.PageSize)}
	pool.regionCount = 1

	kfmt.Printf("[vmm] constructed vm pool: 0x%8x-0x%8x\n", baseAddress, baseAddress+size-1)

	return pool, nil
}

// Base returns the first address of the pool range.
func (p *VMPool) Base() uintptr { return p.base }

// FramePool returns the frame pool the range was created for.
func (p *VMPool) FramePool() *pmm.FramePool { return p.framePool }

// Size returns the size of the pool range in bytes.
func (p *VMPool) Size() uintptr { return p.size }

// Remaining returns the number of bytes that are not covered by a region.
func (p *VMPool) Remaining() uintptr {
	p.lock.Acquire()
	defer p.lock.Release()
	return p.remaining
}

// RegionCount returns the number of regions including the descriptor page.
func (p *VMPool) RegionCount() int {
	p.lock.Acquire()
	defer p.lock.Release()
	return p.regionCount
}

// Allocate reserves a region of at least size bytes, rounded up to whole
// pages, right after the last region of the pool and returns its start
// address. No frames are allocated; the region is backed lazily.
func (p *VMPool) Allocate(size uintptr) (uintptr, *kernel.Error) {
	if size == 0 {
		return 0, errZeroSize
	}

	p.lock.Acquire()
	defer p.lock.Release()

	// Checked before rounding so that sizes close to the top of the address
	// space cannot wrap to zero.
	if size > p.remaining {
		return 0, errOutOfVirtualSpace
	}

	size = mm.PageCount(size) << mm.PageShift
	if size > p.remaining {
		return 0, errOutOfVirtualSpace
	}

	if p.regionCount == maxRegions {
		return 0, errDescriptorsFull
	}

	regions := p.regions()
	last := regions[p.regionCount-1]
	start := uintptr(last.base) + uintptr(last.length)

	// Released regions leave holes that are not reused, so the tail of the
	// range may be shorter than the remaining size.
	if size > p.base+p.size-start {
		return 0, errOutOfVirtualSpace
	}

	regions[p.regionCount] = region{base: uint32(start), length: uint32(size)}
	p.regionCount++
	p.remaining -= size

	kfmt.Printf("[vmm] allocated region 0x%8x-0x%8x\n", start, start+size-1)

	return start, nil
}

// Release returns the region starting at startAddress to the pool. Every
// page of the region that has been backed is unmapped and its frame is
// released.
func (p *VMPool) Release(startAddress uintptr) *kernel.Error {
	p.lock.Acquire()
	defer p.lock.Release()

	regions := p.regions()

	// Region 0 holds the descriptor table.
	index := -1
	for i := 1; i < p.regionCount; i++ {
		if uintptr(regions[i].base) == startAddress {
			index = i
			break
		}
	}

	if index == -1 {
		return errRegionNotFound
	}

	target := regions[index]
	for addr := uintptr(target.base); addr < uintptr(target.base)+uintptr(target.length); addr += mm.PageSize {
		if !p.pageTable.Mapped(addr) {
			continue
		}

		if err := p.pageTable.FreePage(addr); err != nil {
			return err
		}
	}

	if tail := p.regionCount - index - 1; tail > 0 {
		kernel.Memcopy(
			uintptr(unsafe.Pointer(&regions[index+1])),
			uintptr(unsafe.Pointer(&regions[index])),
			uintptr(tail)*unsafe.Sizeof(region{}),
		)
	}
	p.regionCount--
	p.remaining += uintptr(target.length)

	kfmt.Printf("[vmm] released region 0x%8x-0x%8x\n", uintptr(target.base), uintptr(target.base)+uintptr(target.length)-1)

	return nil
}

// IsLegitimate returns true if address belongs to the range reserved by this
// pool. The end address of the range is also accepted.
func (p *VMPool) IsLegitimate(address uintptr) bool {
	return p.base <= address && address <= p.base+p.size
}

// regions returns the descriptor table stored in the first page of the pool.
// Accessing it may trigger a page fault.
func (p *VMPool) regions() []region {
	return unsafe.Slice((*region)(mm.VirtPtr(p.base)), maxRegions)
}
