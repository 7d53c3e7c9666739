//go:build !386

// Command memsim boots the memory subsystem on an emulated machine, runs a
// randomized heap workload against it and reports the resulting state of the
// frame pools.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"pagingos/kernel/hal/emu"
	"pagingos/kernel/kfmt"
	"pagingos/kernel/kmain"
	"pagingos/kernel/mm"
	"pagingos/kernel/sync"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[memsim] error: %s\n", err.Error())
	os.Exit(1)
}

// terminalWidth returns the width of the terminal attached to stdout or a
// fixed width if stdout is not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 80
	}

	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func runTool() error {
	cfg := kmain.DefaultConfig()

	var (
		kernelBase  = flag.Uint("kernel-pool-base", uint(cfg.KernelPool.BaseFrame), "first frame of the kernel pool")
		kernelCount = flag.Uint("kernel-pool-frames", uint(cfg.KernelPool.FrameCount), "number of frames in the kernel pool")
		procBase    = flag.Uint("process-pool-base", uint(cfg.ProcessPool.BaseFrame), "first frame of the process pool")
		procCount   = flag.Uint("process-pool-frames", uint(cfg.ProcessPool.FrameCount), "number of frames in the process pool")
		holeBase    = flag.Uint("hole-base", uint(cfg.Hole.BaseFrame), "first frame withdrawn from the process pool")
		holeCount   = flag.Uint("hole-frames", uint(cfg.Hole.FrameCount), "number of frames withdrawn from the process pool (0 disables the hole)")
		sharedSize  = flag.Uint64("shared-size", uint64(cfg.SharedSize), "size in bytes of the identity-mapped shared region")
		kHeapBase   = flag.Uint64("kernel-heap-base", uint64(cfg.KernelHeap.Base), "virtual base address of the kernel heap")
		kHeapSize   = flag.Uint64("kernel-heap-size", uint64(cfg.KernelHeap.Size), "size in bytes of the kernel heap")
		pHeapBase   = flag.Uint64("process-heap-base", uint64(cfg.ProcessHeap.Base), "virtual base address of the process heap")
		pHeapSize   = flag.Uint64("process-heap-size", uint64(cfg.ProcessHeap.Size), "size in bytes of the process heap")

		regions     = flag.Int("regions", 64, "number of heap regions to allocate")
		maxPages    = flag.Int("max-pages", 16, "maximum number of pages per region")
		touchRatio  = flag.Float64("touch", 0.5, "probability of touching each page of a new region")
		releaseProb = flag.Float64("release", 0.3, "probability of releasing a random live region after each allocation")
		seed        = flag.Int64("seed", 1, "random seed for the workload")

		showMap = flag.Bool("map", true, "print a text map of the frame pools")
		pngOut  = flag.String("png", "", "render the frame pools into a PNG file")
		quiet   = flag.Bool("quiet", false, "suppress kernel log output")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "memsim: run a demand paging workload on an emulated machine\n\n")
		fmt.Fprint(os.Stderr, "Usage: memsim [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg.KernelPool = kmain.FrameRange{BaseFrame: mm.Frame(*kernelBase), FrameCount: uint32(*kernelCount)}
	cfg.ProcessPool = kmain.FrameRange{BaseFrame: mm.Frame(*procBase), FrameCount: uint32(*procCount)}
	cfg.Hole = kmain.FrameRange{BaseFrame: mm.Frame(*holeBase), FrameCount: uint32(*holeCount)}
	cfg.SharedSize = uintptr(*sharedSize)
	cfg.KernelHeap = kmain.VirtualRange{Base: uintptr(*kHeapBase), Size: uintptr(*kHeapSize)}
	cfg.ProcessHeap = kmain.VirtualRange{Base: uintptr(*pHeapBase), Size: uintptr(*pHeapSize)}

	var sink io.Writer = &kfmt.PrefixWriter{Sink: os.Stderr, Prefix: []byte("[kernel] ")}
	if *quiet {
		sink = io.Discard
	}
	kfmt.SetOutputSink(sink)
	sync.SetYieldFunc(runtime.Gosched)

	machine, err := emu.NewMachine(cfg.RAMSize())
	if err != nil {
		return err
	}
	defer machine.Close()

	machine.Install()
	defer machine.Uninstall()

	k, kerr := kmain.Boot(cfg, machine)
	if kerr != nil {
		return errors.Wrap(kerr, "booting memory subsystem")
	}

	wl := workload{
		Regions:     *regions,
		MaxPages:    *maxPages,
		TouchRatio:  *touchRatio,
		ReleaseProb: *releaseProb,
		Seed:        *seed,
	}

	stats, err := wl.run(k, machine)
	if err != nil {
		return errors.Wrap(err, "running workload")
	}

	fmt.Printf("regions: %d allocated, %d released, %d rejected\n", stats.Allocated, stats.Released, stats.Exhausted)
	fmt.Printf("pages touched: %d, unmapped: %d, page faults: %d\n", stats.Touched, stats.Unmapped, stats.Faults)
	fmt.Printf("kernel heap: %d regions, 0x%x bytes left\n", k.KernelHeap.RegionCount(), k.KernelHeap.Remaining())
	fmt.Printf("process heap: %d regions, 0x%x bytes left\n", k.ProcessHeap.RegionCount(), k.ProcessHeap.Remaining())

	if *showMap {
		if err = writeFrameMap(os.Stdout, k.Frames.Pools(), terminalWidth()); err != nil {
			return err
		}
	}

	if *pngOut != "" {
		if err = renderFrameMap(*pngOut, k.Frames.Pools()); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
