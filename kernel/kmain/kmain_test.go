//go:build !386

package kmain

import (
	"testing"

	"pagingos/kernel"
	"pagingos/kernel/cpu"
	"pagingos/kernel/hal/emu"
	"pagingos/kernel/mm"
)

func newTestMachine(t *testing.T, cfg Config) *emu.Machine {
	machine, err := emu.NewMachine(cfg.RAMSize())
	if err != nil {
		t.Fatal(err)
	}
	machine.Install()

	t.Cleanup(func() {
		cpu.WriteCR0(0)
		cpu.SwitchPDT(0)
		machine.Uninstall()
		_ = machine.Close()
	})

	return machine
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if exp, got := uintptr(32<<20), cfg.RAMSize(); got != exp {
		t.Fatalf("expected default layout to need 0x%x bytes of RAM; got 0x%x", exp, got)
	}

	if end := cfg.KernelPool.BaseFrame + mm.Frame(cfg.KernelPool.FrameCount); end.Address() > cfg.SharedSize {
		t.Fatal("expected the kernel pool to be part of the shared region")
	}
}

func TestBoot(t *testing.T) {
	cfg := DefaultConfig()
	machine := newTestMachine(t, cfg)

	k, err := Boot(cfg, machine)
	if err != nil {
		t.Fatal(err)
	}

	if !cpu.PagingEnabled() || cpu.ActivePDT() != k.PageTable.DirectoryFrame().Address() {
		t.Fatal("expected Boot to load the page table and enable paging")
	}

	// The first page of each heap was faulted in to hold its descriptors
	if exp, got := uint64(2), machine.Faults(); got != exp {
		t.Fatalf("expected %d faults; got %d", exp, got)
	}

	specs := []struct {
		descr   string
		freeFn  func() uint32
		expFree uint32
	}{
		// self-hosted bitmap, process pool bitmap, directory, shared table
		// and one table for each heap
		{"kernel pool", k.KernelPool.FreeFrames, 512 - 6},
		// hole and one descriptor page for each heap
		{"process pool", k.ProcessPool.FreeFrames, 7168 - 256 - 2},
	}

	for _, spec := range specs {
		if got := spec.freeFn(); got != spec.expFree {
			t.Errorf("[%s] expected free frame count to be %d; got %d", spec.descr, spec.expFree, got)
		}
	}

	for _, heap := range []struct {
		descr   string
		base    uintptr
		size    uintptr
		expBase uintptr
	}{
		{"kernel heap", k.KernelHeap.Base(), k.KernelHeap.Size(), cfg.KernelHeap.Base},
		{"process heap", k.ProcessHeap.Base(), k.ProcessHeap.Size(), cfg.ProcessHeap.Base},
	} {
		if heap.base != heap.expBase || heap.size != 256<<20 {
			t.Errorf("[%s] unexpected range 0x%x+0x%x", heap.descr, heap.base, heap.size)
		}
	}

	addr, err := k.ProcessHeap.Allocate(64 << 10)
	if err != nil {
		t.Fatal(err)
	}

	for offset := uintptr(0); offset < 64<<10; offset += mm.PageSize {
		*(*uint64)(mm.VirtPtr(addr + offset)) = uint64(offset)
	}

	if exp, got := uint64(2+16), machine.Faults(); got != exp {
		t.Fatalf("expected %d faults; got %d", exp, got)
	}

	for offset := uintptr(0); offset < 64<<10; offset += mm.PageSize {
		phys, err := k.PageTable.Translate(addr + offset)
		if err != nil {
			t.Fatal(err)
		}

		frame := mm.FrameFromAddress(phys)
		if frame >= cfg.Hole.BaseFrame && frame < cfg.Hole.BaseFrame+mm.Frame(cfg.Hole.FrameCount) {
			t.Fatalf("page at offset 0x%x is backed by frame 0x%x inside the memory hole", offset, uintptr(frame))
		}
	}

	if err = k.ProcessHeap.Release(addr); err != nil {
		t.Fatal(err)
	}

	if exp, got := uint32(7168-256-2), k.ProcessPool.FreeFrames(); got != exp {
		t.Fatalf("expected process pool free count to be %d after release; got %d", exp, got)
	}
}

func TestBootErrors(t *testing.T) {
	specs := []struct {
		descr   string
		mutate  func(*Config)
		expKind kernel.ErrorKind
	}{
		{"invalid kernel pool", func(c *Config) { c.KernelPool.FrameCount = 3 }, kernel.RangeError},
		{"overlapping pools", func(c *Config) { c.ProcessPool.BaseFrame = 1000 }, kernel.RangeError},
		{"hole outside of process pool", func(c *Config) { c.Hole.BaseFrame = 100 }, kernel.RangeError},
		{"unaligned shared size", func(c *Config) { c.SharedSize = 4097 }, kernel.RangeError},
		{"heap in shared region", func(c *Config) { c.KernelHeap.Base = 0x1000 }, kernel.RangeError},
		{"overlapping heaps", func(c *Config) { c.ProcessHeap.Base = c.KernelHeap.Base }, kernel.RangeError},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			cfg := DefaultConfig()
			spec.mutate(&cfg)
			machine := newTestMachine(t, DefaultConfig())

			_, err := Boot(cfg, machine)
			if err == nil {
				t.Fatal("expected Boot to fail")
			}

			if err.Kind != spec.expKind {
				t.Fatalf("expected error kind %s; got %s (%s)", spec.expKind, err.Kind, err.Message)
			}
		})
	}
}

func TestKmainPanicsOnBootFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KernelPool.FrameCount = 0
	newTestMachine(t, DefaultConfig())

	defer func() {
		err, ok := recover().(*kernel.Error)
		if !ok || err.Kind != kernel.RangeError {
			t.Fatalf("expected Kmain to panic with a range error; got %v", err)
		}
	}()

	Kmain(cfg, nil)
	t.Fatal("expected Kmain to panic")
}
