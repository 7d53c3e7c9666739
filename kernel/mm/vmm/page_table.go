package vmm

import (
	"pagingos/kernel"
	"pagingos/kernel/kfmt"
	"pagingos/kernel/mm"
)

// PageTable describes the two-level translation structure of one address
// space together with the virtual memory pools that reserve ranges inside it.
type PageTable struct {
	paging   *Paging
	dirFrame mm.Frame

	// pools are consulted by the fault handler to decide whether a
	// faulting address belongs to a reserved range.
	pools []*VMPool
}

// DirectoryFrame returns the physical frame that holds the page directory.
func (pt *PageTable) DirectoryFrame() mm.Frame { return pt.dirFrame }

// Load makes this page table the hardware-active one. All translations and
// faults operate against it until another table is loaded.
func (pt *PageTable) Load() {
	pt.paging.lock.Acquire()
	pt.paging.load(pt)
	pt.paging.lock.Release()

	kfmt.Printf("[vmm] loaded page table: directory frame 0x%x\n", uintptr(pt.dirFrame))
}

// RegisterPool associates a virtual memory pool with this page table. Pools
// cannot be unregistered. An error is returned if the pool range overlaps
// the range of an already registered pool.
func (pt *PageTable) RegisterPool(pool *VMPool) *kernel.Error {
	pt.paging.lock.Acquire()
	defer pt.paging.lock.Release()

	for _, other := range pt.pools {
		if pool.base < other.base+other.size && other.base < pool.base+pool.size {
			return errPoolRegistration
		}
	}

	pt.pools = append(pt.pools, pool)
	return nil
}

// HandleFault resolves a not-present fault at address. Faults caused by a
// protection violation and faults outside every registered pool are not
// recoverable and are reported as kernel.IllegalAccess. Otherwise, the
// second-level table covering address is allocated from the kernel pool if
// missing and a single frame is installed to back the faulting page.
func (pt *PageTable) HandleFault(address uintptr, errorCode uint32) *kernel.Error {
	pt.paging.lock.Acquire()
	defer pt.paging.lock.Release()

	return pt.handleFault(address, errorCode)
}

// FreePage unmaps the page at virtPageAddr, returns its backing frame to the
// pool it was allocated from and reloads the table so that the stale
// translation is dropped. Pages of the shared identity-mapped region are
// never freed.
func (pt *PageTable) FreePage(virtPageAddr uintptr) *kernel.Error {
	if virtPageAddr < pt.paging.sharedSize {
		return errSharedRegion
	}

	pt.paging.lock.Acquire()
	defer pt.paging.lock.Release()

	entry, err := pt.pageEntry(virtPageAddr)
	if err != nil {
		return err
	}

	if err = pt.paging.frames.ReleaseFrames(entry.Frame()); err != nil {
		return err
	}

	*entry = pageTableEntry(FlagNotBacked)
	if pt.paging.active == pt {
		pt.paging.load(pt)
	}

	return nil
}

// Translate returns the physical address that virtAddr maps to.
func (pt *PageTable) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pt.paging.lock.Acquire()
	defer pt.paging.lock.Release()

	entry, err := pt.pageEntry(virtAddr)
	if err != nil {
		return 0, err
	}

	return entry.Frame().Address() + virtAddr&(mm.PageSize-1), nil
}

// Mapped returns true if the page containing virtAddr is present.
func (pt *PageTable) Mapped(virtAddr uintptr) bool {
	_, err := pt.Translate(virtAddr)
	return err == nil
}

// usesRecursiveWindow returns true if the entries of this table must be
// accessed through the recursive window instead of their physical frames.
func (pt *PageTable) usesRecursiveWindow() bool {
	return pt.paging.enabled && pt.paging.active == pt
}

func (pt *PageTable) dirEntry(d dirIndex) *pageTableEntry {
	if pt.usesRecursiveWindow() {
		return directoryEntry(d)
	}
	return &physTable(pt.dirFrame)[d]
}

// tblEntry returns an entry of the second-level table referenced by
// directory index d. The directory entry must be present.
func (pt *PageTable) tblEntry(d dirIndex, t tableIndex) *pageTableEntry {
	if pt.usesRecursiveWindow() {
		return tableEntry(d, t)
	}
	return &physTable(physTable(pt.dirFrame)[d].Frame())[t]
}

// pageEntry returns the present second-level entry that maps virtAddr.
func (pt *PageTable) pageEntry(virtAddr uintptr) (*pageTableEntry, *kernel.Error) {
	d, ok := dirIndexFor(virtAddr)
	if !ok {
		return nil, errRecursiveWindow
	}

	if !pt.dirEntry(d).HasFlags(FlagPresent) {
		return nil, errPageNotPresent
	}

	entry := pt.tblEntry(d, tableIndexFor(virtAddr))
	if !entry.HasFlags(FlagPresent) {
		return nil, errPageNotPresent
	}

	return entry, nil
}
