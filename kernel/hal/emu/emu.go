//go:build !386

// Package emu provides a hosted machine for running the memory management
// code outside of a real kernel. The machine owns a block of emulated
// physical RAM, performs the two-level page table walk in software using the
// hosted control registers of the cpu package and delivers page faults to a
// registered handler the way the trap layer does on real hardware.
package emu

import (
	"unsafe"

	"github.com/pkg/errors"

	"pagingos/kernel"
	"pagingos/kernel/cpu"
	"pagingos/kernel/mm"
)

const (
	entryPresent  = uint32(1 << 0)
	entryRW       = uint32(1 << 1)
	entryFrameMsk = uint32(0xfffff000)

	// Error codes passed to the fault handler.
	faultNotPresent = uint32(0)
	faultProtection = uint32(1 << 0)
	faultWrite      = uint32(1 << 1)
)

var (
	errPhysOutOfRange  = &kernel.Error{Module: "emu", Kind: kernel.RangeError, Message: "physical address outside of machine RAM"}
	errNoFaultHandler  = &kernel.Error{Module: "emu", Kind: kernel.ProtocolViolation, Message: "page fault raised without a registered fault handler"}
	errNestedFault     = &kernel.Error{Module: "emu", Kind: kernel.ProtocolViolation, Message: "page fault raised while handling a page fault"}
	errFaultUnresolved = &kernel.Error{Module: "emu", Kind: kernel.IllegalAccess, Message: "page still not present after the fault handler returned"}
)

// FaultHandler is invoked for every page fault with the faulting virtual
// address and the hardware error code.
type FaultHandler = func(address uintptr, errorCode uint32) *kernel.Error

// Machine is an emulated single-core machine with a fixed amount of RAM.
type Machine struct {
	ram []byte

	handler    FaultHandler
	inFault    bool
	faultCount uint64
}

// NewMachine creates a machine with ramSize bytes of zeroed physical memory.
// The size is rounded up to a whole number of frames.
func NewMachine(ramSize uintptr) (*Machine, error) {
	if ramSize == 0 {
		return nil, errors.New("emu: machine RAM size must be greater than zero")
	}

	ram, err := allocRAM(int(mm.PageCount(ramSize) << mm.PageShift))
	if err != nil {
		return nil, errors.Wrapf(err, "emu: allocating %d bytes of machine RAM", ramSize)
	}

	return &Machine{ram: ram}, nil
}

// RAMSize returns the size of the machine RAM in bytes.
func (m *Machine) RAMSize() uintptr { return uintptr(len(m.ram)) }

// FrameCount returns the number of physical frames in machine RAM.
func (m *Machine) FrameCount() uint32 { return uint32(len(m.ram) >> mm.PageShift) }

// Faults returns the number of page faults delivered so far.
func (m *Machine) Faults() uint64 { return m.faultCount }

// SetFaultHandler registers the function that receives page faults.
func (m *Machine) SetFaultHandler(handler FaultHandler) {
	m.handler = handler
}

// Install routes the physical and virtual address mappers of the mm package
// through this machine.
func (m *Machine) Install() {
	mm.SetPhysMapper(m.PhysPtr)
	mm.SetVirtMapper(m.VirtPtr)
}

// Uninstall restores the identity address mappers of the mm package.
func (m *Machine) Uninstall() {
	mm.SetPhysMapper(nil)
	mm.SetVirtMapper(nil)
}

// Close releases the machine RAM. The machine must not be used afterwards.
func (m *Machine) Close() error {
	ram := m.ram
	m.ram = nil
	if err := freeRAM(ram); err != nil {
		return errors.Wrap(err, "emu: releasing machine RAM")
	}
	return nil
}

// PhysPtr returns a pointer to the byte at physAddr in machine RAM. It
// panics if the address lies outside RAM.
func (m *Machine) PhysPtr(physAddr uintptr) unsafe.Pointer {
	if physAddr >= uintptr(len(m.ram)) {
		panic(errPhysOutOfRange)
	}
	return unsafe.Pointer(&m.ram[physAddr])
}

// VirtPtr returns a pointer to the byte that virtAddr translates to. While
// paging is disabled virtual addresses are physical addresses. Otherwise, a
// missing translation raises a page fault; if the handler fails or the page
// is still missing afterwards VirtPtr panics with the reported error, the
// way a kernel halts on an unrecoverable fault.
func (m *Machine) VirtPtr(virtAddr uintptr) unsafe.Pointer {
	physAddr, errorCode, ok := m.walk(virtAddr)
	if ok {
		return m.PhysPtr(physAddr)
	}

	m.raiseFault(virtAddr, errorCode)

	if physAddr, _, ok = m.walk(virtAddr); !ok {
		panic(errFaultUnresolved)
	}
	return m.PhysPtr(physAddr)
}

// Translate returns the physical address for virtAddr using the active
// page directory without raising a fault. The second return value is false
// if the address is not mapped.
func (m *Machine) Translate(virtAddr uintptr) (uintptr, bool) {
	physAddr, _, ok := m.walk(virtAddr)
	return physAddr, ok
}

func (m *Machine) raiseFault(virtAddr uintptr, errorCode uint32) {
	switch {
	case m.inFault:
		panic(errNestedFault)
	case m.handler == nil:
		panic(errNoFaultHandler)
	}

	m.inFault = true
	m.faultCount++
	err := m.handler(virtAddr, errorCode)
	m.inFault = false

	if err != nil {
		panic(err)
	}
}

// walk translates virtAddr through the page directory pointed to by the
// hosted CR3 register.
func (m *Machine) walk(virtAddr uintptr) (uintptr, uint32, bool) {
	if !cpu.PagingEnabled() {
		return virtAddr, 0, true
	}

	dirEntry := m.readEntry(cpu.ActivePDT()&uintptr(entryFrameMsk) + (virtAddr>>22&0x3ff)*4)
	if dirEntry&entryPresent == 0 {
		return 0, faultNotPresent | faultWrite, false
	}

	entry := m.readEntry(uintptr(dirEntry&entryFrameMsk) + (virtAddr>>12&0x3ff)*4)
	if entry&entryPresent == 0 {
		return 0, faultNotPresent | faultWrite, false
	}

	if dirEntry&entry&entryRW == 0 {
		return 0, faultProtection | faultWrite, false
	}

	return uintptr(entry&entryFrameMsk) + virtAddr&(mm.PageSize-1), 0, true
}

func (m *Machine) readEntry(physAddr uintptr) uint32 {
	return *(*uint32)(m.PhysPtr(physAddr))
}
