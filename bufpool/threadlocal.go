package bufpool

import "sync/atomic"

// threadLocalDepth is the fixed number of buffers a ThreadLocalPool
// stack holds before falling through to the shared BufferPool (spec
// §4.3 "thread-local tier").
const threadLocalDepth = 8

// ThreadLocalPool is the lock-free, single-owner fast tier in front of a
// shared BufferPool: a fixed 8-slot stack of buffers that a single
// goroutine acquires and releases without taking the shared pool's
// mutex on the common case. It is not safe for concurrent use by more
// than one goroutine — callers are expected to keep one ThreadLocalPool
// per worker, mirroring the per-P free lists the runtime itself uses.
type ThreadLocalPool struct {
	shared *BufferPool

	top  int
	free [threadLocalDepth]Handle

	localHits atomic.Uint64
	fallbacks atomic.Uint64
}

// NewThreadLocalPool builds a thread-local stack backed by shared.
func NewThreadLocalPool(shared *BufferPool) *ThreadLocalPool {
	return &ThreadLocalPool{shared: shared}
}

// Acquire pops a buffer off the local stack if one is present, and
// falls through to the shared pool's Acquire otherwise.
func (t *ThreadLocalPool) Acquire() Handle {
	if t.top > 0 {
		t.top--
		t.localHits.Add(1)
		return t.free[t.top]
	}
	t.fallbacks.Add(1)
	return t.shared.Acquire()
}

// Release pushes h onto the local stack if there is room, and releases
// to the shared pool otherwise.
func (t *ThreadLocalPool) Release(h Handle) {
	if t.top < threadLocalDepth {
		t.free[t.top] = h
		t.top++
		return
	}
	t.shared.Release(h)
}

// LocalStats is a point-in-time snapshot of the thread-local tier's
// hit/fallback counters.
type LocalStats struct {
	LocalHits uint64
	Fallbacks uint64
	Depth     int
}

// Stats returns a snapshot of this pool's local-stack counters.
func (t *ThreadLocalPool) Stats() LocalStats {
	return LocalStats{
		LocalHits: t.localHits.Load(),
		Fallbacks: t.fallbacks.Load(),
		Depth:     t.top,
	}
}
