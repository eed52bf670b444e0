// Package arena implements the handshake-scoped, grow-only allocator
// pool (spec §4.4): a mutex-guarded vector of arenas, each reset (not
// freed) on release, retaining whatever capacity it grew to.
//
// Grounded on the teacher's own scratch-buffer churn in its frame reader
// (record-layer.go's per-record make([]byte, ...) allocations are
// exactly the cost an arena exists to amortize) and the tiered pool
// shape in MiraiMindz-watt/bolt/pool/buffers.
package arena

import "sync"

// DefaultCapacity is the initial byte capacity a freshly allocated
// Arena starts with (spec §4.4 "default 64 KiB").
const DefaultCapacity = 64 * 1024

// Arena is a grow-only bump allocator. Allocations are never freed
// individually; Reset discards all of them at once while keeping the
// underlying storage for reuse.
type Arena struct {
	buf []byte
	off int
}

func newArena(capacity int) *Arena {
	return &Arena{buf: make([]byte, capacity)}
}

// Alloc returns an n-byte slice carved from the arena's backing array,
// growing the backing array first if there isn't enough room left.
// Growth allocates a fresh backing array from the parent allocator
// (spec §4.4 "arena does not fragment" — the old array is simply
// dropped since everything in it is freed together on release anyway).
func (a *Arena) Alloc(n int) []byte {
	if a.off+n > len(a.buf) {
		grown := make([]byte, max(len(a.buf)*2, a.off+n))
		copy(grown, a.buf[:a.off])
		a.buf = grown
	}
	s := a.buf[a.off : a.off+n : a.off+n]
	a.off += n
	return s
}

// Cap reports the arena's current backing-array capacity.
func (a *Arena) Cap() int { return len(a.buf) }

// Used reports how many bytes are currently allocated out of the arena.
func (a *Arena) Used() int { return a.off }

func (a *Arena) reset() {
	a.off = 0
}

// Pool is the mutex-guarded vector of arenas spec §4.4 describes.
// acquire() scans for a free arena, resets it, and returns it; if none
// are free, a new one is appended.
type Pool struct {
	initialCapacity int

	mu     sync.Mutex
	arenas []*Arena
	inUse  map[*Arena]bool
}

// New constructs a Pool whose freshly created arenas start at
// initialCapacity bytes. Pass 0 to use DefaultCapacity.
func New(initialCapacity int) *Pool {
	if initialCapacity <= 0 {
		initialCapacity = DefaultCapacity
	}
	return &Pool{initialCapacity: initialCapacity, inUse: make(map[*Arena]bool)}
}

// Handle is a scoped binding to one pool arena: it captures the pool
// and arena together so Release needs no extra bookkeeping from the
// caller, and Scope ties the lifetime to a function scope.
type Handle struct {
	pool  *Pool
	arena *Arena
}

// Arena returns the underlying arena this handle owns.
func (h Handle) Arena() *Arena { return h.arena }

// Release marks the arena free again, after resetting its bump offset.
// All slices previously returned by Alloc become invalid the instant
// Release is called (spec §4.4 invariant: "all allocations are
// invalidated simultaneously on release; no individual free").
func (h Handle) Release() {
	h.pool.release(h.arena)
}

// Acquire returns the first non-in-use arena after resetting it, or
// appends a new one sized at the pool's initial capacity.
func (p *Pool) Acquire() Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, a := range p.arenas {
		if !p.inUse[a] {
			a.reset()
			p.inUse[a] = true
			return Handle{pool: p, arena: a}
		}
	}

	a := newArena(p.initialCapacity)
	p.arenas = append(p.arenas, a)
	p.inUse[a] = true
	return Handle{pool: p, arena: a}
}

func (p *Pool) release(a *Arena) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.inUse[a] {
		panic("arena: double release detected")
	}
	p.inUse[a] = false
}

// Scope acquires an arena, invokes fn with it, and releases it when fn
// returns — the common case where the handshake needs scratch memory
// for exactly the duration of one call.
func (p *Pool) Scope(fn func(a *Arena)) {
	h := p.Acquire()
	defer h.Release()
	fn(h.arena)
}

// ActiveArenas reports how many arenas are currently checked out, for
// tests and diagnostics.
func (p *Pool) ActiveArenas() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, inUse := range p.inUse {
		if inUse {
			n++
		}
	}
	return n
}

// TotalArenas reports how many arenas the pool has ever allocated.
func (p *Pool) TotalArenas() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.arenas)
}
