package pmm

import (
	"testing"

	"pagingos/kernel"
	"pagingos/kernel/mm"
)

func TestNewPoolSelfHosted(t *testing.T) {
	fakePhysMem(t, 0, 1)

	var reg Registry
	pool, err := reg.NewPool(0, 1024, mm.InvalidFrame)
	if err != nil {
		t.Fatal(err)
	}

	if exp, got := uint32(1023), pool.FreeFrames(); got != exp {
		t.Fatalf("expected free frame count to be %d; got %d", exp, got)
	}

	if got := pool.InfoFrame(); got != 0 {
		t.Fatalf("expected the bitmap to be hosted in frame 0; got frame %d", got)
	}

	if status, _ := pool.Status(0); status != StatusHead {
		t.Fatalf("expected info frame to be marked as %s; got %s", StatusHead, status)
	}

	for frame := mm.Frame(1); frame < 1024; frame++ {
		if status, _ := pool.Status(frame); status != StatusFree {
			t.Fatalf("expected frame %d to be free; got %s", frame, status)
		}
	}

	if got := pool.release(0); got != errReleaseInfoFrame {
		t.Fatalf("expected releasing the info frame to fail with %v; got %v", errReleaseInfoFrame, got)
	}
}

func TestNewPoolExternalInfoFrame(t *testing.T) {
	physMem := fakePhysMem(t, 100, 1)

	var reg Registry
	pool, err := reg.NewPool(512, 512, 100)
	if err != nil {
		t.Fatal(err)
	}

	if exp, got := uint32(512), pool.FreeFrames(); got != exp {
		t.Fatalf("expected free frame count to be %d; got %d", exp, got)
	}

	// 512 frames need 128 bitmap bytes which should be cleared; the rest
	// of the info frame must be left untouched.
	for i := 0; i < 128; i++ {
		if physMem[i] != 0 {
			t.Fatalf("expected bitmap byte %d to be cleared; got 0x%x", i, physMem[i])
		}
	}
	if physMem[128] != 0xf0 {
		t.Fatal("expected bytes past the bitmap to be left untouched")
	}

	if got := pool.InfoFrame(); got != 100 {
		t.Fatalf("expected info frame to be 100; got %d", got)
	}
}

func TestNewPoolErrors(t *testing.T) {
	fakePhysMem(t, 0, 1)

	var reg Registry
	if _, err := reg.NewPool(1024, 1024, 0); err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		baseFrame  mm.Frame
		frameCount uint32
		infoFrame  mm.Frame
		expErr     *kernel.Error
	}{
		{4096, 0, 0, errInvalidFrameCount},
		{4096, 12, 0, errInvalidFrameCount},
		{4096, MaxPoolFrames + 8, 0, errInvalidFrameCount},
		{4096, 64, 4100, errInfoFrameInPool},
		{512, 1024, 0, errPoolOverlap},
		{2040, 16, 0, errPoolOverlap},
	}

	for specIndex, spec := range specs {
		if _, err := reg.NewPool(spec.baseFrame, spec.frameCount, spec.infoFrame); err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}
	}

	if exp, got := 1, len(reg.Pools()); got != exp {
		t.Fatalf("expected failed pool constructions not to be registered; got %d pools", got)
	}
}

func TestRegistryPoolForFrame(t *testing.T) {
	fakePhysMem(t, 0, 2)

	var reg Registry
	kernelPool, err := reg.NewPool(0, 64, mm.InvalidFrame)
	if err != nil {
		t.Fatal(err)
	}

	infoFrame, err := kernelPool.GetFrames(1)
	if err != nil {
		t.Fatal(err)
	}

	processPool, err := reg.NewPool(128, 64, infoFrame)
	if err != nil {
		t.Fatal(err)
	}

	if kernelPool.ID() != 0 || processPool.ID() != 1 {
		t.Fatalf("expected pool ids to follow insertion order; got %d and %d", kernelPool.ID(), processPool.ID())
	}

	specs := []struct {
		frame   mm.Frame
		expPool *FramePool
	}{
		{0, kernelPool},
		{63, kernelPool},
		{64, nil},
		{128, processPool},
		{191, processPool},
		{192, nil},
	}

	for specIndex, spec := range specs {
		if got := reg.PoolForFrame(spec.frame); got != spec.expPool {
			t.Errorf("[spec %d] expected frame %d to resolve to pool %v; got %v", specIndex, spec.frame, spec.expPool, got)
		}
	}
}

func TestRegistryReleaseFrames(t *testing.T) {
	fakePhysMem(t, 0, 2)

	var reg Registry
	kernelPool, _ := reg.NewPool(0, 64, mm.InvalidFrame)
	infoFrame, _ := kernelPool.GetFrames(1)
	processPool, _ := reg.NewPool(128, 64, infoFrame)

	kFrame, err := kernelPool.GetFrames(4)
	if err != nil {
		t.Fatal(err)
	}

	pFrame, err := processPool.GetFrames(8)
	if err != nil {
		t.Fatal(err)
	}

	// Release both runs through the registry without naming the pool
	if err = reg.ReleaseFrames(pFrame); err != nil {
		t.Fatal(err)
	}
	if err = reg.ReleaseFrames(kFrame); err != nil {
		t.Fatal(err)
	}

	if exp, got := uint32(62), kernelPool.FreeFrames(); got != exp {
		t.Errorf("expected kernel pool free count to be %d; got %d", exp, got)
	}

	if exp, got := uint32(64), processPool.FreeFrames(); got != exp {
		t.Errorf("expected process pool free count to be %d; got %d", exp, got)
	}

	if err = reg.ReleaseFrames(0xbadf00d); err != errFrameNotManaged {
		t.Fatalf("expected error %v; got %v", errFrameNotManaged, err)
	}

	if err = reg.ReleaseFrames(pFrame); err != errNotHeadOfRun {
		t.Fatalf("expected double release to fail with %v; got %v", errNotHeadOfRun, err)
	}
}
