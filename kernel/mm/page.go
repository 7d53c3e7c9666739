// Package mm defines the physical frame and virtual page types shared by the
// memory management packages together with the hooks used to turn addresses
// into dereferenceable pointers.
package mm

import "unsafe"

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when they fail to
	// reserve the requested frame. It also serves as the "no frame"
	// argument for APIs that accept an optional frame.
	InvalidFrame = Frame(^uintptr(0))
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns a pointer to the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns a Frame that corresponds to
// the given physical address. This function can handle
// both page-aligned and not aligned addresses. in the
// latter case, the input address will be rounded down
// to the frame that contains it.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(PageSize - 1)) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(PageSize - 1)) >> PageShift)
}

// PageCount returns the number of pages needed to cover size bytes.
func PageCount(size uintptr) uintptr {
	return (size + PageSize - 1) >> PageShift
}

// AddressMapperFn converts an address into a pointer that the running code
// can dereference.
type AddressMapperFn func(addr uintptr) unsafe.Pointer

var (
	// physMapper and virtMapper are identity mappings on real hardware:
	// the frames holding allocator bitmaps and page tables live in the
	// identity-mapped shared region and virtual addresses are translated
	// by the MMU. Hosted runs install mappers backed by emulated RAM.
	physMapper AddressMapperFn = identityMapper
	virtMapper AddressMapperFn = identityMapper
)

func identityMapper(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr)
}

// SetPhysMapper registers the function used by PhysPtr. Passing nil restores
// the identity mapping.
func SetPhysMapper(fn AddressMapperFn) {
	if fn == nil {
		fn = identityMapper
	}
	physMapper = fn
}

// SetVirtMapper registers the function used by VirtPtr. Passing nil restores
// the identity mapping.
func SetVirtMapper(fn AddressMapperFn) {
	if fn == nil {
		fn = identityMapper
	}
	virtMapper = fn
}

// PhysPtr returns a pointer for accessing the supplied physical address. It
// must only be used for frames that are identity-mapped in every address
// space.
func PhysPtr(physAddr uintptr) unsafe.Pointer {
	return physMapper(physAddr)
}

// VirtPtr returns a pointer for accessing the supplied virtual address in the
// active address space. Dereferencing it may trigger a page fault.
func VirtPtr(virtAddr uintptr) unsafe.Pointer {
	return virtMapper(virtAddr)
}
