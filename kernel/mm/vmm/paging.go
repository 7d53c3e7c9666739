// Package vmm implements two-level demand paging on top of the frame pools
// provided by the pmm package.
//
// Every page directory reserves its last slot for a recursive mapping back to
// itself. Once a directory is active and paging is enabled, the directory is
// addressable at 0xfffff000 and the second-level table for directory index d
// at 0xffc00000 | d<<12, which allows the fault handler to edit the tables in
// place. Virtual ranges are reserved ahead of time through VMPools; a fault
// inside a reserved range is resolved by backing the faulting page with a
// single frame while any other fault is fatal.
package vmm

import (
	"pagingos/kernel"
	"pagingos/kernel/cpu"
	"pagingos/kernel/kfmt"
	"pagingos/kernel/mm"
	"pagingos/kernel/mm/pmm"
	"pagingos/kernel/sync"
)

var (
	// switchPDTFn is used by tests to override calls to switchPDT which
	// will cause a fault if called in user-mode.
	switchPDTFn = cpu.SwitchPDT

	// readCR0Fn and writeCR0Fn are used by tests to override accesses to
	// the CR0 register.
	readCR0Fn  = cpu.ReadCR0
	writeCR0Fn = cpu.WriteCR0

	errNilPool          = &kernel.Error{Module: "vmm", Kind: kernel.ProtocolViolation, Message: "paging requires both a kernel and a process frame pool"}
	errSharedSize       = &kernel.Error{Module: "vmm", Kind: kernel.RangeError, Message: "shared region size must be page aligned and end below the recursive window"}
	errNoActiveTable    = &kernel.Error{Module: "vmm", Kind: kernel.ProtocolViolation, Message: "no page table has been loaded"}
	errRecursiveWindow  = &kernel.Error{Module: "vmm", Kind: kernel.RangeError, Message: "address falls inside the recursive page table window"}
	errPageNotPresent   = &kernel.Error{Module: "vmm", Kind: kernel.ProtocolViolation, Message: "virtual page is not present"}
	errProtectionFault  = &kernel.Error{Module: "vmm", Kind: kernel.IllegalAccess, Message: "page protection violation"}
	errIllegalAddress   = &kernel.Error{Module: "vmm", Kind: kernel.IllegalAccess, Message: "address is not part of any reserved virtual memory range"}
	errPoolRegistration = &kernel.Error{Module: "vmm", Kind: kernel.RangeError, Message: "virtual memory pool overlaps a registered pool"}
	errSharedRegion     = &kernel.Error{Module: "vmm", Kind: kernel.RangeError, Message: "pages of the shared region cannot be freed"}
)

// Paging holds the state shared by all page tables: the frame sources for
// page table and page frames, the size of the identity-mapped region that
// every address space shares, the hardware-active table and whether
// translation is enabled.
//
// A single lock guards page table edits, table activation and fault handling.
type Paging struct {
	lock sync.Spinlock

	frames      *pmm.Registry
	kernelPool  *pmm.FramePool
	processPool *pmm.FramePool

	// sharedSize bytes starting at address 0 are identity-mapped in
	// every page table.
	sharedSize uintptr

	active  *PageTable
	enabled bool
}

// InitPaging records the frame pools used by the paging code and the size of
// the shared identity-mapped region. Page directories and second-level
// tables are allocated from kernelPool; frames that back faulting pages are
// allocated from processPool. Frames are returned to their pools
// through frames.
func InitPaging(frames *pmm.Registry, kernelPool, processPool *pmm.FramePool, sharedSize uintptr) (*Paging, *kernel.Error) {
	if frames == nil || kernelPool == nil || processPool == nil {
		return nil, errNilPool
	}

	if sharedSize&(mm.PageSize-1) != 0 || sharedSize > tableWindowAddr {
		return nil, errSharedSize
	}

	kfmt.Printf("[vmm] paging initialized: shared region 0x0-0x%x\n", sharedSize)

	return &Paging{
		frames:      frames,
		kernelPool:  kernelPool,
		processPool: processPool,
		sharedSize:  sharedSize,
	}, nil
}

// SharedSize returns the size of the identity-mapped region.
func (p *Paging) SharedSize() uintptr { return p.sharedSize }

// Active returns the page table that was loaded last or nil if no table has
// been loaded yet.
func (p *Paging) Active() *PageTable {
	p.lock.Acquire()
	defer p.lock.Release()
	return p.active
}

// Enabled returns true if EnablePaging has been called.
func (p *Paging) Enabled() bool {
	p.lock.Acquire()
	defer p.lock.Release()
	return p.enabled
}

// EnablePaging turns on address translation using the loaded page table.
// There is no way to turn translation off again.
func (p *Paging) EnablePaging() *kernel.Error {
	p.lock.Acquire()
	defer p.lock.Release()

	if p.active == nil {
		return errNoActiveTable
	}

	if p.enabled {
		return nil
	}

	writeCR0Fn(readCR0Fn() | cpu.CR0PagingBit)
	p.enabled = true

	kfmt.Printf("[vmm] enabled paging\n")
	return nil
}

// NewPageTable allocates a page directory from the kernel pool and fills it
// in. The shared region is identity-mapped, the last directory slot points
// back to the directory itself and every other entry is marked as not
// present. If the kernel pool runs out of frames, any frames allocated so
// far are released and an error is returned.
func (p *Paging) NewPageTable() (*PageTable, *kernel.Error) {
	p.lock.Acquire()
	defer p.lock.Release()

	dirFrame, err := p.kernelPool.GetFrames(1)
	if err != nil {
		return nil, err
	}

	dir := physTable(dirFrame)
	for i := range dir {
		dir[i] = 0
	}

	sharedTables := int((p.sharedSize + tableSpan - 1) / tableSpan)
	for d := 0; d < sharedTables; d++ {
		tableFrame, err := p.kernelPool.GetFrames(1)
		if err != nil {
			p.releaseTables(dirFrame, d)
			return nil, err
		}

		table := physTable(tableFrame)
		for t := range table {
			addr := uintptr(d)*tableSpan + uintptr(t)<<tableShift
			if addr >= p.sharedSize {
				table[t] = pageTableEntry(FlagNotBacked)
				continue
			}

			table[t] = 0
			table[t].SetFrame(mm.FrameFromAddress(addr))
			table[t].SetFlags(FlagPresent | FlagRW)
		}

		dir[d].SetFrame(tableFrame)
		dir[d].SetFlags(FlagPresent | FlagRW)
	}

	dir[recursiveSlot].SetFrame(dirFrame)
	dir[recursiveSlot].SetFlags(FlagPresent | FlagRW)

	kfmt.Printf("[vmm] constructed page table: directory frame 0x%x, %d shared tables\n", uintptr(dirFrame), sharedTables)

	return &PageTable{paging: p, dirFrame: dirFrame}, nil
}

// releaseTables returns the directory frame and the first tableCount
// second-level tables it references to their pools.
func (p *Paging) releaseTables(dirFrame mm.Frame, tableCount int) {
	dir := physTable(dirFrame)
	for d := 0; d < tableCount; d++ {
		_ = p.frames.ReleaseFrames(dir[d].Frame())
	}
	_ = p.frames.ReleaseFrames(dirFrame)
}

// HandleFault resolves a page fault against the active page table. It is
// the entry point used by the trap layer.
func (p *Paging) HandleFault(address uintptr, errorCode uint32) *kernel.Error {
	p.lock.Acquire()
	defer p.lock.Release()

	if p.active == nil {
		reportFault(address, errorCode, errNoActiveTable)
		return errNoActiveTable
	}

	return p.active.handleFault(address, errorCode)
}

// load activates pt and reloads the translation base register which also
// flushes the TLB. The caller must hold the paging lock.
func (p *Paging) load(pt *PageTable) {
	p.active = pt
	switchPDTFn(pt.dirFrame.Address())
}
