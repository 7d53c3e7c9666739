package pmm

import (
	"unsafe"

	"pagingos/kernel"
	"pagingos/kernel/kfmt"
	"pagingos/kernel/mm"
)

// Registry owns every FramePool created through it in insertion order. A
// registry allows a frame to be released without knowing which pool it was
// allocated from.
//
// Pools are never removed from a registry.
type Registry struct {
	pools []*FramePool
}

// NewPool creates a pool that manages frameCount frames starting at
// baseFrame and appends it to the registry.
//
// If infoFrame is mm.InvalidFrame, the pool bitmap is stored in baseFrame
// which is marked as allocated. Otherwise, the bitmap is stored in infoFrame
// which must not belong to the new pool; the caller is responsible for
// withdrawing infoFrame from the pool that owns it (e.g. via GetFrames).
func (r *Registry) NewPool(baseFrame mm.Frame, frameCount uint32, infoFrame mm.Frame) (*FramePool, *kernel.Error) {
	if frameCount == 0 || frameCount%8 != 0 || frameCount > MaxPoolFrames {
		return nil, errInvalidFrameCount
	}

	pool := &FramePool{
		id:         len(r.pools),
		baseFrame:  baseFrame,
		frameCount: frameCount,
		freeCount:  frameCount,
		infoFrame:  infoFrame,
	}

	if !infoFrame.Valid() {
		pool.infoFrame = baseFrame
		pool.selfHosted = true
	} else if pool.Contains(infoFrame) {
		return nil, errInfoFrameInPool
	}

	for _, other := range r.pools {
		if baseFrame < other.baseFrame+mm.Frame(other.frameCount) && other.baseFrame < baseFrame+mm.Frame(frameCount) {
			return nil, errPoolOverlap
		}
	}

	bitmapSize := uintptr(frameCount / framesPerByte)
	bitmapPtr := mm.PhysPtr(pool.infoFrame.Address())
	kernel.Memset(uintptr(bitmapPtr), 0, bitmapSize)
	pool.bitmap = unsafe.Slice((*byte)(bitmapPtr), bitmapSize)

	if pool.selfHosted {
		pool.setStatus(0, StatusHead)
		pool.freeCount--
	}

	r.pools = append(r.pools, pool)

	kfmt.Printf("[pmm] pool %d: frames 0x%x-0x%x, info frame 0x%x, %d free\n",
		pool.id, uintptr(baseFrame), uintptr(baseFrame)+uintptr(frameCount)-1, uintptr(pool.infoFrame), pool.freeCount,
	)

	return pool, nil
}

// Pools returns the registered pools in insertion order. The returned slice
// must not be modified.
func (r *Registry) Pools() []*FramePool {
	return r.pools
}

// PoolForFrame returns the pool that manages frame or nil if no registered
// pool contains it.
func (r *Registry) PoolForFrame(frame mm.Frame) *FramePool {
	for _, pool := range r.pools {
		if pool.Contains(frame) {
			return pool
		}
	}

	return nil
}

// ReleaseFrames releases the run of frames that starts at first. The owning
// pool is looked up among the registered pools. The frame must be the head
// of a run returned by GetFrames; the run ends at the first frame that is not
// a continuation frame or at the end of the pool.
func (r *Registry) ReleaseFrames(first mm.Frame) *kernel.Error {
	pool := r.PoolForFrame(first)
	if pool == nil {
		return errFrameNotManaged
	}

	return pool.release(first)
}
