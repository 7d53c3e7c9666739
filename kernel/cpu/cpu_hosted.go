//go:build !386

package cpu

// When the kernel packages are compiled for any architecture other than 386
// they run hosted (tests, tools/memsim). The control registers are then kept
// in memory so that a software MMU such as kernel/hal/emu can consult them.
var (
	cr0 uint32
	cr3 uintptr
)

// SwitchPDT sets the root page table directory to point to the specified
// physical address.
func SwitchPDT(pdtPhysAddr uintptr) { cr3 = pdtPhysAddr }

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr { return cr3 }

// ReadCR0 returns the value stored in the CR0 register.
func ReadCR0() uint32 { return cr0 }

// WriteCR0 stores value in the CR0 register.
func WriteCR0(value uint32) { cr0 = value }
