package arena

import "testing"

func TestAlloc_GrowsWhenExceedingCapacity(t *testing.T) {
	p := New(64)
	h := p.Acquire()
	defer h.Release()

	a := h.Arena()
	if a.Cap() != 64 {
		t.Fatalf("Cap = %d, want 64", a.Cap())
	}
	a.Alloc(100)
	if a.Cap() < 100 {
		t.Fatalf("Cap = %d, want >= 100 after growth", a.Cap())
	}
}

func TestAlloc_SequentialOffsetsDoNotOverlap(t *testing.T) {
	p := New(256)
	h := p.Acquire()
	defer h.Release()

	a := h.Arena()
	s1 := a.Alloc(10)
	s2 := a.Alloc(10)
	for i := range s1 {
		s1[i] = 0xAA
	}
	for i := range s2 {
		s2[i] = 0xBB
	}
	for i := range s1 {
		if s1[i] != 0xAA {
			t.Fatalf("s1 clobbered by s2 write at index %d", i)
		}
	}
}

// Invariant: release resets capacity-retained reuse — acquiring again
// after release returns an arena with the same or larger capacity and a
// zeroed allocation offset.
func TestAcquireRelease_RetainsCapacityAcrossReuse(t *testing.T) {
	p := New(64)
	h := p.Acquire()
	a := h.Arena()
	a.Alloc(200) // forces growth well past 64
	grownCap := a.Cap()
	h.Release()

	h2 := p.Acquire()
	defer h2.Release()
	a2 := h2.Arena()
	if a2 != a {
		t.Fatal("expected the same arena to be reused rather than a new one allocated")
	}
	if a2.Cap() != grownCap {
		t.Fatalf("Cap = %d, want %d (capacity retained across release)", a2.Cap(), grownCap)
	}
	if a2.Used() != 0 {
		t.Fatalf("Used = %d, want 0 after reset", a2.Used())
	}
	if p.TotalArenas() != 1 {
		t.Fatalf("TotalArenas = %d, want 1 (no new arena should have been created)", p.TotalArenas())
	}
}

func TestAcquire_AppendsNewArenaWhenNoneFree(t *testing.T) {
	p := New(64)
	h1 := p.Acquire()
	h2 := p.Acquire()
	if p.TotalArenas() != 2 {
		t.Fatalf("TotalArenas = %d, want 2", p.TotalArenas())
	}
	if p.ActiveArenas() != 2 {
		t.Fatalf("ActiveArenas = %d, want 2", p.ActiveArenas())
	}
	h1.Release()
	h2.Release()
	if p.ActiveArenas() != 0 {
		t.Fatalf("ActiveArenas = %d, want 0", p.ActiveArenas())
	}
}

func TestDoubleReleasePanics(t *testing.T) {
	p := New(64)
	h := p.Acquire()
	h.Release()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on double release")
		}
	}()
	h.Release()
}

func TestScope_ReleasesOnReturn(t *testing.T) {
	p := New(64)
	p.Scope(func(a *Arena) {
		a.Alloc(10)
	})
	if p.ActiveArenas() != 0 {
		t.Fatalf("ActiveArenas = %d, want 0 after Scope returns", p.ActiveArenas())
	}
	if p.TotalArenas() != 1 {
		t.Fatalf("TotalArenas = %d, want 1", p.TotalArenas())
	}
}
