package bufpool

import "testing"

func TestThreadLocalPool_LocalHitBeforeFallback(t *testing.T) {
	shared := New(32, nil)
	local := NewThreadLocalPool(shared)

	h := local.Acquire()
	if stats := shared.Stats(); stats.Misses != 1 {
		t.Fatalf("shared Misses = %d, want 1 (local stack starts empty)", stats.Misses)
	}
	local.Release(h)

	local.Acquire()
	stats := local.Stats()
	if stats.LocalHits != 1 {
		t.Fatalf("LocalHits = %d, want 1", stats.LocalHits)
	}
	if shared.Stats().Misses != 1 {
		t.Fatal("shared pool should not have been touched on the local hit")
	}
}

func TestThreadLocalPool_OverflowFallsThroughToShared(t *testing.T) {
	shared := New(16, nil)
	local := NewThreadLocalPool(shared)

	var handles []Handle
	for i := 0; i < threadLocalDepth+2; i++ {
		handles = append(handles, local.Acquire())
	}
	for _, h := range handles {
		local.Release(h)
	}

	stats := local.Stats()
	if stats.Depth != threadLocalDepth {
		t.Fatalf("Depth = %d, want %d (overflow releases go to shared pool)", stats.Depth, threadLocalDepth)
	}
	// The first 8 released handles stay parked on the local stack (still
	// checked out as far as the shared pool is concerned); only the 2
	// that overflowed the local stack actually call shared.Release.
	if shared.Stats().ActiveBuffers != 8 {
		t.Fatalf("shared ActiveBuffers = %d, want 8 (8 buffers still parked on the local stack)", shared.Stats().ActiveBuffers)
	}
}
