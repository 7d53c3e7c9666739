package vmm

import (
	"unsafe"

	"pagingos/kernel/mm"
)

var (
	// ptePtrFn returns a pointer to the page table entry at the supplied
	// virtual address inside the recursive window. It is used by tests to
	// redirect entry accesses to fake tables.
	ptePtrFn = mm.VirtPtr
)

// pageTableEntry describes a page directory or page table entry. These
// entries encode a physical frame address and a set of flags.
type pageTableEntry uint32

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) == uint32(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uint32(*pte) | uint32(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uint32(*pte) &^ uint32(flags))
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() mm.Frame {
	return mm.Frame((uint32(pte) & ptePhysPageMask) >> mm.PageShift)
}

// SetFrame updates the page table entry to point the the given physical frame.
func (pte *pageTableEntry) SetFrame(frame mm.Frame) {
	*pte = (pageTableEntry)((uint32(*pte) &^ ptePhysPageMask) | uint32(frame.Address()))
}

// dirIndex is a page directory index that refers to an ordinary mapping.
// Values are only produced by dirIndexFor, which refuses addresses inside
// the recursive window, so a dirIndex can never select the recursive slot.
type dirIndex uint32

// tableIndex is an index into a second-level page table.
type tableIndex uint32

// dirIndexFor returns the directory index for virtAddr. The second return
// value is false if virtAddr falls inside the recursive window.
func dirIndexFor(virtAddr uintptr) (dirIndex, bool) {
	index := (virtAddr >> dirShift) & indexMask
	if index == recursiveSlot {
		return 0, false
	}

	return dirIndex(index), true
}

// tableIndexFor returns the second-level table index for virtAddr.
func tableIndexFor(virtAddr uintptr) tableIndex {
	return tableIndex((virtAddr >> tableShift) & indexMask)
}

// directoryEntry returns the entry for index d of the active page
// directory, reached through the recursive window.
func directoryEntry(d dirIndex) *pageTableEntry {
	return (*pageTableEntry)(ptePtrFn(directoryAddr + uintptr(d)*entrySize))
}

// tableEntry returns entry t of the second-level table referenced by
// directory index d of the active page directory, reached through the
// recursive window. The directory entry must be present.
func tableEntry(d dirIndex, t tableIndex) *pageTableEntry {
	return (*pageTableEntry)(ptePtrFn(tableWindowAddr | uintptr(d)<<tableShift + uintptr(t)*entrySize))
}

// physTable returns the entries of the table stored in the supplied frame.
// The frame must be identity-mapped in every address space.
func physTable(frame mm.Frame) []pageTableEntry {
	return unsafe.Slice((*pageTableEntry)(mm.PhysPtr(frame.Address())), entriesPerTable)
}
