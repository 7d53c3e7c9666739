// Package sync provides the spinlock used to keep the memory subsystem
// non-reentrant.
package sync

import "sync/atomic"

var (
	// yieldFn is invoked between failed acquisition attempts. The kernel
	// runs on a single core without a scheduler so it stays nil there;
	// hosted runs and tests point it to runtime.Gosched.
	yieldFn func()
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		if yieldFn != nil {
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// SetYieldFunc registers the function invoked while spinning. Passing nil
// restores pure busy-waiting.
func SetYieldFunc(fn func()) {
	yieldFn = fn
}
