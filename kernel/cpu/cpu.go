// Package cpu exposes the control registers that the memory subsystem needs
// to program the MMU.
package cpu

const (
	// CR0PagingBit is the CR0 bit that turns on address translation.
	CR0PagingBit = uint32(1 << 31)
)

// PagingEnabled returns true if CR0 has the paging bit set.
func PagingEnabled() bool {
	return ReadCR0()&CR0PagingBit != 0
}
