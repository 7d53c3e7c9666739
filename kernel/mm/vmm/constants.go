package vmm

const (
	// entriesPerTable is the number of 4-byte entries that fit in the
	// page directory and in each second-level page table.
	entriesPerTable = 1024

	// entrySize is the size in bytes of a page table entry.
	entrySize = 4

	// dirShift and tableShift select the directory and table index bits of
	// a virtual address. Each index is 10 bits wide.
	dirShift   = 22
	tableShift = 12
	indexMask  = entriesPerTable - 1

	// tableSpan is the size of the virtual address range covered by a
	// single directory entry.
	tableSpan = uintptr(1) << dirShift

	// recursiveSlot is the directory entry that points back to the
	// directory frame. It is never used for ordinary mappings.
	recursiveSlot = entriesPerTable - 1

	// tableWindowAddr is the start of the virtual window where the
	// recursive slot exposes every second-level table of the active
	// directory: the table for directory index d lives at
	// tableWindowAddr | d<<12.
	tableWindowAddr = uintptr(recursiveSlot) << dirShift

	// directoryAddr is the virtual address of the active page directory.
	directoryAddr = tableWindowAddr | uintptr(recursiveSlot)<<tableShift

	// ptePhysPageMask extracts the physical frame address from an entry.
	ptePhysPageMask = uint32(0xfffff000)

	// faultProtection is the error code bit that is set when the fault
	// was caused by a protection violation on a present page.
	faultProtection = uint32(1 << 0)
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint32

const (
	// FlagPresent is set when the page is available in memory.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set when a directory entry maps a 4M page instead of
	// pointing to a second-level table.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal

	// FlagNotBacked is a software-defined bit that marks entries of a
	// freshly allocated second-level table which have never been backed by
	// a frame. The MMU ignores it.
	FlagNotBacked PageTableEntryFlag = 1 << 9
)
