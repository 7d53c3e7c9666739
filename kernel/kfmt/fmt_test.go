package kfmt

import (
	"bytes"
	"strings"
	"testing"

	"pagingos/kernel"
)

func TestPrintf(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	faultErr := &kernel.Error{Module: "vmm", Kind: kernel.IllegalAccess, Message: "address is not part of any reserved virtual memory range"}

	specs := []struct {
		format    string
		args      []interface{}
		expOutput string
	}{
		{"[vmm] enabled paging\n", nil, "[vmm] enabled paging\n"},
		// addresses are logged zero-padded to 32 bits
		{"0x%8x-0x%8x", []interface{}{uintptr(0x40001000), uintptr(0x40003fff)}, "0x40001000-0x40003fff"},
		{"address: 0x%8x", []interface{}{uintptr(0x1000)}, "address: 0x00001000"},
		{"address: 0x%8x", []interface{}{uintptr(0)}, "address: 0x00000000"},
		{"address: 0x%8x", []interface{}{uint64(0x1ffffffff)}, "address: 0x1ffffffff"},
		{"(page 0x%x)", []interface{}{uintptr(0x40001)}, "(page 0x40001)"},
		// frame numbers and counters
		{
			"pool %d: frames 0x%x-0x%x, info frame 0x%x, %d free",
			[]interface{}{0, uintptr(0x200), uintptr(0x3ff), uintptr(0x200), uint32(511)},
			"pool 0: frames 0x200-0x3ff, info frame 0x200, 511 free",
		},
		{"%d shared tables", []interface{}{uint8(1)}, "1 shared tables"},
		{"'%5d' free", []interface{}{uint32(42)}, "'   42' free"},
		{"'%2d' free", []interface{}{uint16(1013)}, "'1013' free"},
		{"delta %d", []interface{}{int32(-11)}, "delta -11"},
		{"'%5d'", []interface{}{int64(-11)}, "'  -11'"},
		{"'%6x'", []interface{}{int(-0xbeef)}, "'-0beef'"},
		{"'%40x'", []interface{}{uint64(1)}, "'" + strings.Repeat("0", numBufSize-2) + "1'"},
		// error reports
		{
			"unrecoverable fault: %s (%s)",
			[]interface{}{faultErr.Message, faultErr.Kind.String()},
			"unrecoverable fault: address is not part of any reserved virtual memory range (illegal access)",
		},
		{"%s", []interface{}{[]byte("[kernel] ")}, "[kernel] "},
		{"'%4s'", []interface{}{"vmm"}, "' vmm'"},
		{"'%2s'", []interface{}{"pmm"}, "'pmm'"},
		{"paging enabled: %t, loaded: %t", []interface{}{true, false}, "paging enabled: true, loaded: false"},
		{"%d%% used", []interface{}{uint32(50)}, "50% used"},
		// malformed input
		{"frames", []interface{}{uint32(1), uint32(2)}, "frames%!(EXTRA)%!(EXTRA)"},
		{"frame 0x%x", nil, "frame 0x(MISSING)"},
		{"frame %p", []interface{}{uint32(1)}, "frame %!(NOVERB)%!(EXTRA)"},
		{"frame %", nil, "frame %!(NOVERB)"},
		{"frame %d", []interface{}{"one"}, "frame %!(WRONGTYPE)"},
		{"status %s", []interface{}{uint8(2)}, "status %!(WRONGTYPE)"},
		{"enabled %t", []interface{}{1}, "enabled %!(WRONGTYPE)"},
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	for specIndex, spec := range specs {
		buf.Reset()
		Printf(spec.format, spec.args...)

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get\n%q\ngot:\n%q", specIndex, spec.expOutput, got)
		}
	}
}

func TestPrintfToRingBuffer(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	SetOutputSink(nil)
	exp := "[pmm] pool 0: 1023 free frames\n"
	Printf("[pmm] pool %d: %d free frames\n", 0, uint32(1023))

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer

	exp := "[vmm] loaded page table: directory frame 0x200\n"
	Fprintf(&buf, "[vmm] loaded page table: directory frame 0x%x\n", uintptr(0x200))

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}
