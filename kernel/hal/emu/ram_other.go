//go:build !unix && !386

package emu

func allocRAM(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func freeRAM([]byte) error { return nil }
