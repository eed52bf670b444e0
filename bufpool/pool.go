// Package bufpool implements the record-sized buffer pools the data
// plane uses to avoid per-record heap allocation (spec §4.3): a
// mutex-guarded, multi-producer BufferPool and a lock-free, single-owner
// ThreadLocalPool.
//
// Grounded on the pooled-object shape in
// MiraiMindz-watt/capacitor/pkg/cache/memory/pool.go (reset-before-reuse
// entry pool) and the tiered acquire/release API naming in
// MiraiMindz-watt/bolt/pool/buffers/json_buffer_pool.go.
package bufpool

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// slot is one pool-managed buffer: fixed-size storage, an in-use flag,
// and a generation counter bumped on every acquire. The generation field
// exists purely for debug-time double-release detection (spec §9
// "Pool generations") — production builds may elide the check but the
// handle shape must stay stable.
type slot struct {
	data       []byte
	inUse      bool
	generation uint32
}

// BufferPool is the shared, multi-producer tier: a mutex-guarded scan
// for a free slot, first-free-wins under contention (spec §4.3 —
// no LRU guarantee is made or needed).
type BufferPool struct {
	bufSize int
	log     *zap.Logger

	mu    sync.Mutex
	slots []*slot

	hits          atomic.Uint64
	misses        atomic.Uint64
	deallocations atomic.Uint64
	activeBuffers atomic.Int64
	peakBuffers   atomic.Int64
}

// New constructs a BufferPool whose buffers are all bufSize bytes.
func New(bufSize int, log *zap.Logger) *BufferPool {
	if log == nil {
		log = zap.NewNop()
	}
	return &BufferPool{bufSize: bufSize, log: log}
}

// Handle is a released-at-most-once binding to one pooled buffer.
type Handle struct {
	slot       *slot
	Data       []byte
	generation uint32
}

// Acquire returns a Handle to a free buffer, allocating a new slot if
// none are free (spec §4.3 acquire).
func (p *BufferPool) Acquire() Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.slots {
		if !s.inUse {
			s.inUse = true
			s.generation++
			p.hits.Add(1)
			active := p.activeBuffers.Add(1)
			p.bumpPeak(active)
			return Handle{slot: s, Data: s.data, generation: s.generation}
		}
	}

	s := &slot{data: make([]byte, p.bufSize), inUse: true, generation: 1}
	p.slots = append(p.slots, s)
	p.misses.Add(1)
	active := p.activeBuffers.Add(1)
	p.bumpPeak(active)
	p.log.Debug("bufpool: allocated new slot", zap.Int("total_slots", len(p.slots)))
	return Handle{slot: s, Data: s.data, generation: s.generation}
}

func (p *BufferPool) bumpPeak(active int64) {
	for {
		peak := p.peakBuffers.Load()
		if active <= peak {
			return
		}
		if p.peakBuffers.CompareAndSwap(peak, active) {
			return
		}
	}
}

// Release returns a handle's buffer to the pool. It asserts the slot is
// still in use and that the handle's generation matches the slot's
// current generation; a mismatch means the handle was already released
// once (double-release) and release panics, the debug-time contract
// spec §9 calls for (len(buf) must also match bufSize).
func (p *BufferPool) Release(h Handle) {
	if len(h.Data) != p.bufSize {
		panic("bufpool: released buffer does not match pool buffer size")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !h.slot.inUse || h.slot.generation != h.generation {
		panic("bufpool: double release detected")
	}
	h.slot.inUse = false
	p.deallocations.Add(1)
	p.activeBuffers.Add(-1)
}

// Stats is a point-in-time snapshot of the pool's counters.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Deallocations uint64
	ActiveBuffers int64
	PeakBuffers   int64
}

// Stats returns a snapshot of the pool's counters (invariant 4: after a
// matched acquire/release sequence, ActiveBuffers == 0 and
// Hits+Misses == total acquires).
func (p *BufferPool) Stats() Stats {
	return Stats{
		Hits:          p.hits.Load(),
		Misses:        p.misses.Load(),
		Deallocations: p.deallocations.Load(),
		ActiveBuffers: p.activeBuffers.Load(),
		PeakBuffers:   p.peakBuffers.Load(),
	}
}
