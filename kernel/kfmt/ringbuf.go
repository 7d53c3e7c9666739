package kfmt

import "io"

// ringBufferSize is the capacity of the early output buffer. It must be a
// power of 2.
const ringBufferSize = 2048

// ringBuffer keeps the most recent ringBufferSize bytes written to it; older
// bytes are overwritten once the buffer wraps.
type ringBuffer struct {
	data       [ringBufferSize]byte
	head, size int
}

// Write appends p to the buffer, discarding the oldest bytes when full.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.data[(rb.head+rb.size)&(ringBufferSize-1)] = b
		if rb.size == ringBufferSize {
			rb.head = (rb.head + 1) & (ringBufferSize - 1)
		} else {
			rb.size++
		}
	}

	return len(p), nil
}

// Read drains up to len(p) buffered bytes into p. It returns io.EOF once the
// buffer is empty.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.size == 0 {
		return 0, io.EOF
	}

	n := 0
	for ; n < len(p) && rb.size > 0; n++ {
		p[n] = rb.data[rb.head]
		rb.head = (rb.head + 1) & (ringBufferSize - 1)
		rb.size--
	}

	return n, nil
}
