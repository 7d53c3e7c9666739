// Package pmm manages physical memory as pools of contiguous frames.
//
// Each FramePool tracks the state of its frames in a bitmap that uses two
// bits per frame. The bitmap lives either in the first frame of the pool
// (self-hosted) or in a frame that belongs to another, already initialized,
// pool. All pools are owned by a Registry which allows frames to be released
// without knowing the pool they were allocated from.
package pmm

import (
	"pagingos/kernel"
	"pagingos/kernel/mm"
)

const (
	bitsPerFrame  = 2
	framesPerByte = 8 / bitsPerFrame

	// MaxPoolFrames is the largest number of frames whose status fits in
	// a single info frame.
	MaxPoolFrames = uint32(mm.PageSize) * framesPerByte
)

var (
	errInvalidFrameCount = &kernel.Error{Module: "pmm", Kind: kernel.RangeError, Message: "frame count must be a non-zero multiple of 8 that fits in a single info frame"}
	errInfoFrameInPool   = &kernel.Error{Module: "pmm", Kind: kernel.RangeError, Message: "external info frame must not belong to the pool it describes"}
	errPoolOverlap       = &kernel.Error{Module: "pmm", Kind: kernel.RangeError, Message: "frame range overlaps a registered pool"}
	errZeroFrames        = &kernel.Error{Module: "pmm", Kind: kernel.RangeError, Message: "frame count must be greater than zero"}
	errRangeOutOfPool    = &kernel.Error{Module: "pmm", Kind: kernel.RangeError, Message: "frame range is not managed by this pool"}
	errOutOfFrames       = &kernel.Error{Module: "pmm", Kind: kernel.CapacityExhausted, Message: "not enough free frames to satisfy request"}
	errNoContiguousRun   = &kernel.Error{Module: "pmm", Kind: kernel.CapacityExhausted, Message: "no contiguous run of free frames is large enough to satisfy request"}
	errFramesInUse       = &kernel.Error{Module: "pmm", Kind: kernel.ProtocolViolation, Message: "frame range contains frames that are not free"}
	errNotHeadOfRun      = &kernel.Error{Module: "pmm", Kind: kernel.ProtocolViolation, Message: "frame is not the head of an allocated run"}
	errReleaseInfoFrame  = &kernel.Error{Module: "pmm", Kind: kernel.ProtocolViolation, Message: "a pool's info frame cannot be released"}
	errFrameNotManaged   = &kernel.Error{Module: "pmm", Kind: kernel.NotFound, Message: "frame does not belong to any registered pool"}
)

// NeededInfoFrames returns the number of info frames required for storing
// the status bitmap of a pool with frameCount frames.
func NeededInfoFrames(frameCount uint32) uint32 {
	bitsPerInfoFrame := uint64(mm.PageSize) * 8
	return uint32((uint64(frameCount)*bitsPerFrame + bitsPerInfoFrame - 1) / bitsPerInfoFrame)
}
