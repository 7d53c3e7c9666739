package vmm

import (
	"pagingos/kernel"
	"pagingos/kernel/kfmt"
	"pagingos/kernel/mm"
)

// handleFault implements HandleFault. The caller must hold the paging lock.
func (pt *PageTable) handleFault(address uintptr, errorCode uint32) *kernel.Error {
	if err := pt.resolveFault(address, errorCode); err != nil {
		reportFault(address, errorCode, err)
		return err
	}

	return nil
}

func (pt *PageTable) resolveFault(address uintptr, errorCode uint32) *kernel.Error {
	if errorCode&faultProtection != 0 {
		return errProtectionFault
	}

	var owner *VMPool
	for _, pool := range pt.pools {
		if pool.IsLegitimate(address) {
			owner = pool
			break
		}
	}

	if owner == nil {
		return errIllegalAddress
	}

	d, ok := dirIndexFor(address)
	if !ok {
		return errRecursiveWindow
	}

	if dirEntry := pt.dirEntry(d); !dirEntry.HasFlags(FlagPresent) {
		tableFrame, err := pt.paging.kernelPool.GetFrames(1)
		if err != nil {
			return err
		}

		*dirEntry = 0
		dirEntry.SetFrame(tableFrame)
		dirEntry.SetFlags(FlagPresent | FlagRW)

		// The table is now reachable through the recursive window
		for t := tableIndex(0); t < entriesPerTable; t++ {
			*pt.tblEntry(d, t) = pageTableEntry(FlagNotBacked)
		}
	}

	entry := pt.tblEntry(d, tableIndexFor(address))
	if entry.HasFlags(FlagPresent) {
		// Already resolved; the access will succeed on retry.
		return nil
	}

	frame, err := pt.paging.processPool.GetFrames(1)
	if err != nil {
		return err
	}

	*entry = 0
	entry.SetFrame(frame)
	entry.SetFlags(FlagPresent | FlagRW)

	return nil
}

func reportFault(address uintptr, errorCode uint32, err *kernel.Error) {
	kfmt.Printf("[vmm] page fault while accessing address: 0x%8x (page 0x%x)\n[vmm] reason: ", address, uintptr(mm.PageFromAddress(address)))
	switch {
	case errorCode == 0:
		kfmt.Printf("read from non-present page")
	case errorCode == 1:
		kfmt.Printf("page protection violation (read)")
	case errorCode == 2:
		kfmt.Printf("write to non-present page")
	case errorCode == 3:
		kfmt.Printf("page protection violation (write)")
	case errorCode&4 != 0:
		kfmt.Printf("page-fault in user-mode")
	default:
		kfmt.Printf("unknown")
	}

	kfmt.Printf("\n[vmm] unrecoverable fault: %s (%s)\n", err.Message, err.Kind.String())
}
