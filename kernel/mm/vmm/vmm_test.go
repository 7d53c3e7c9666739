//go:build !386

package vmm

import (
	"testing"

	"pagingos/kernel"
	"pagingos/kernel/cpu"
	"pagingos/kernel/hal/emu"
	"pagingos/kernel/mm"
	"pagingos/kernel/mm/pmm"
)

const (
	testRAMFrames      = 2048
	testKernelBase     = mm.Frame(256)
	testKernelFrames   = 256
	testProcessBase    = mm.Frame(512)
	testProcessFrames  = 1536
	testSharedSize     = uintptr(2 << 20)
	testPoolBase       = uintptr(1 << 30)
	testPoolPages      = 16
	testPoolSize       = testPoolPages * mm.PageSize
	testOtherPoolBase  = uintptr(512 << 20)
	testOtherPoolPages = 8
)

// testEnv is a booted memory subsystem running on an emulated machine with
// 8M of RAM. The kernel pool manages frames 256-511 and the process pool
// frames 512-2047.
type testEnv struct {
	machine     *emu.Machine
	frames      *pmm.Registry
	kernelPool  *pmm.FramePool
	processPool *pmm.FramePool
	paging      *Paging
}

func newTestEnv(t *testing.T, sharedSize uintptr) *testEnv {
	machine, err := emu.NewMachine(testRAMFrames << mm.PageShift)
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

	env := &testEnv{machine: machine, frames: new(pmm.Registry)}

	var kErr *kernel.Error
	if env.kernelPool, kErr = env.frames.NewPool(testKernelBase, testKernelFrames, mm.InvalidFrame); kErr != nil {
		t.Fatal(kErr)
	}

	infoFrame, kErr := env.kernelPool.GetFrames(pmm.NeededInfoFrames(testProcessFrames))
	if kErr != nil {
		t.Fatal(kErr)
	}

	if env.processPool, kErr = env.frames.NewPool(testProcessBase, testProcessFrames, infoFrame); kErr != nil {
		t.Fatal(kErr)
	}

	if env.paging, kErr = InitPaging(env.frames, env.kernelPool, env.processPool, sharedSize); kErr != nil {
		t.Fatal(kErr)
	}

	return env
}

// enablePaging creates a page table, loads it, turns on translation and
// routes machine faults to the paging fault handler.
func (env *testEnv) enablePaging(t *testing.T) *PageTable {
	pt, err := env.paging.NewPageTable()
	if err != nil {
		t.Fatal(err)
	}

	pt.Load()
	if err = env.paging.EnablePaging(); err != nil {
		t.Fatal(err)
	}

	env.machine.SetFaultHandler(env.paging.HandleFault)
	return pt
}
