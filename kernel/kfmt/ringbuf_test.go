package kfmt

import (
	"bytes"
	"io"
	"testing"
)

func TestRingBuffer(t *testing.T) {
	t.Run("read/write", func(t *testing.T) {
		var (
			rb     ringBuffer
			buf    bytes.Buffer
			expStr = "the big brown fox jumped over the lazy dog"
		)

		n, err := rb.Write([]byte(expStr))
		if err != nil {
			t.Fatal(err)
		}

		if n != len(expStr) {
			t.Fatalf("expected to write %d bytes; wrote %d", len(expStr), n)
		}

		if _, err = io.Copy(&buf, &rb); err != nil {
			t.Fatal(err)
		}

		if got := buf.String(); got != expStr {
			t.Fatalf("expected to read %q; got %q", expStr, got)
		}
	})

	t.Run("overflow keeps the most recent bytes", func(t *testing.T) {
		var rb ringBuffer

		for i := 0; i < ringBufferSize; i++ {
			_, _ = rb.Write([]byte{'a'})
		}
		_, _ = rb.Write([]byte("xyz"))

		out := make([]byte, ringBufferSize+10)
		n, err := rb.Read(out)
		if err != nil {
			t.Fatal(err)
		}

		if n != ringBufferSize {
			t.Fatalf("expected to read %d bytes; got %d", ringBufferSize, n)
		}

		if got := string(out[n-3 : n]); got != "xyz" {
			t.Fatalf("expected the buffer to end with %q; got %q", "xyz", got)
		}

		if out[0] != 'a' {
			t.Fatalf("expected the buffer to start with 'a'; got %q", out[0])
		}
	})

	t.Run("short reads", func(t *testing.T) {
		var rb ringBuffer
		_, _ = rb.Write([]byte("abcdef"))

		out := make([]byte, 4)
		if n, _ := rb.Read(out); n != 4 || string(out) != "abcd" {
			t.Fatalf("expected first read to return %q; got %q", "abcd", out[:n])
		}

		if n, _ := rb.Read(out); n != 2 || string(out[:n]) != "ef" {
			t.Fatalf("expected second read to return %q; got %q", "ef", out[:n])
		}

		if _, err := rb.Read(out); err != io.EOF {
			t.Fatalf("expected io.EOF; got %v", err)
		}
	})
}
