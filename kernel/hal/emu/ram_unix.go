//go:build unix && !386

package emu

import "golang.org/x/sys/unix"

// allocRAM maps anonymous memory so that machine RAM lives outside of the Go
// heap and pointers into it can be handed out freely.
func allocRAM(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func freeRAM(ram []byte) error {
	if ram == nil {
		return nil
	}
	return unix.Munmap(ram)
}
