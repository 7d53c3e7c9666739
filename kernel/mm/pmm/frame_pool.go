package pmm

import (
	"pagingos/kernel"
	"pagingos/kernel/mm"
	"pagingos/kernel/sync"
)

// FrameStatus describes the state of a single frame in a pool.
type FrameStatus uint8

const (
	// StatusFree marks a frame that can be allocated.
	StatusFree FrameStatus = iota

	// StatusHead marks the first frame of an allocated run.
	StatusHead

	// StatusReserved marks a frame withdrawn via MarkInaccessible.
	StatusReserved

	// StatusContinuation marks an allocated frame that follows the head
	// of its run.
	StatusContinuation
)

// String implements fmt.Stringer.
func (s FrameStatus) String() string {
	switch s {
	case StatusFree:
		return "free"
	case StatusHead:
		return "head"
	case StatusReserved:
		return "reserved"
	default:
		return "continuation"
	}
}

// FramePool manages a contiguous range of physical frames. Pools are created
// by Registry.NewPool and live for as long as the kernel runs.
type FramePool struct {
	lock sync.Spinlock

	// id is the index of the pool in its registry.
	id int

	// baseFrame is the first frame managed by the pool. Status entry i
	// describes frame (baseFrame + i).
	baseFrame  mm.Frame
	frameCount uint32

	// freeCount always equals the number of frames with StatusFree.
	freeCount uint32

	// infoFrame hosts the bitmap. For self-hosted pools it equals
	// baseFrame.
	infoFrame  mm.Frame
	selfHosted bool

	// bitmap is overlaid on top of infoFrame. Each byte holds the status
	// of 4 frames, the lowest numbered frame in the most significant bits.
	bitmap []byte
}

// ID returns the index of this pool in its registry.
func (p *FramePool) ID() int { return p.id }

// BaseFrame returns the first frame managed by this pool.
func (p *FramePool) BaseFrame() mm.Frame { return p.baseFrame }

// FrameCount returns the number of frames managed by this pool.
func (p *FramePool) FrameCount() uint32 { return p.frameCount }

// InfoFrame returns the frame that stores the pool bitmap.
func (p *FramePool) InfoFrame() mm.Frame { return p.infoFrame }

// FreeFrames returns the number of frames that are currently free.
func (p *FramePool) FreeFrames() uint32 {
	p.lock.Acquire()
	defer p.lock.Release()
	return p.freeCount
}

// Contains returns true if frame belongs to the range managed by this pool.
func (p *FramePool) Contains(frame mm.Frame) bool {
	return frame >= p.baseFrame && uint64(frame-p.baseFrame) < uint64(p.frameCount)
}

// Status returns the status of the supplied frame.
func (p *FramePool) Status(frame mm.Frame) (FrameStatus, *kernel.Error) {
	if !p.Contains(frame) {
		return StatusFree, errRangeOutOfPool
	}

	p.lock.Acquire()
	defer p.lock.Release()
	return p.status(uint32(frame - p.baseFrame)), nil
}

// GetFrames allocates a run of n contiguous frames and returns the first
// frame of the run. The pool is scanned in increasing frame order and the
// first run that is large enough is used.
func (p *FramePool) GetFrames(n uint32) (mm.Frame, *kernel.Error) {
	if n == 0 {
		return mm.InvalidFrame, errZeroFrames
	}

	p.lock.Acquire()
	defer p.lock.Release()

	if n > p.freeCount {
		return mm.InvalidFrame, errOutOfFrames
	}

	var runStart, runLen uint32
	for index := uint32(0); index < p.frameCount; index++ {
		if p.status(index) != StatusFree {
			runLen = 0
			continue
		}

		if runLen == 0 {
			runStart = index
		}

		if runLen++; runLen == n {
			p.setStatus(runStart, StatusHead)
			for cont := runStart + 1; cont < runStart+n; cont++ {
				p.setStatus(cont, StatusContinuation)
			}
			p.freeCount -= n

			return p.baseFrame + mm.Frame(runStart), nil
		}
	}

	return mm.InvalidFrame, errNoContiguousRun
}

// MarkInaccessible withdraws the n frames starting at base from the pool so
// that they are never handed out by GetFrames. The frames must belong to the
// pool and be free; otherwise the pool is left untouched and an error is
// returned.
func (p *FramePool) MarkInaccessible(base mm.Frame, n uint32) *kernel.Error {
	if n == 0 || !p.Contains(base) || uint64(base-p.baseFrame)+uint64(n) > uint64(p.frameCount) {
		return errRangeOutOfPool
	}

	p.lock.Acquire()
	defer p.lock.Release()

	first := uint32(base - p.baseFrame)
	for index := first; index < first+n; index++ {
		if p.status(index) != StatusFree {
			return errFramesInUse
		}
	}

	for index := first; index < first+n; index++ {
		p.setStatus(index, StatusReserved)
	}
	p.freeCount -= n

	return nil
}

// release frees the run whose head is first. The caller must ensure that
// first belongs to this pool.
func (p *FramePool) release(first mm.Frame) *kernel.Error {
	if p.selfHosted && first == p.infoFrame {
		return errReleaseInfoFrame
	}

	p.lock.Acquire()
	defer p.lock.Release()

	index := uint32(first - p.baseFrame)
	if p.status(index) != StatusHead {
		return errNotHeadOfRun
	}

	p.setStatus(index, StatusFree)
	p.freeCount++

	for index++; index < p.frameCount && p.status(index) == StatusContinuation; index++ {
		p.setStatus(index, StatusFree)
		p.freeCount++
	}

	return nil
}

func (p *FramePool) status(index uint32) FrameStatus {
	shift := 6 - (index%framesPerByte)*bitsPerFrame
	return FrameStatus((p.bitmap[index/framesPerByte] >> shift) & 0x3)
}

func (p *FramePool) setStatus(index uint32, status FrameStatus) {
	shift := 6 - (index%framesPerByte)*bitsPerFrame
	block := &p.bitmap[index/framesPerByte]
	*block = (*block &^ (0x3 << shift)) | byte(status)<<shift
}
