package mem

import "testing"

func TestAllocFreeRoundTrip(t *testing.T) {
	a := NewAllocator(4)
	free, total := a.Stats()
	if total != 4 || free != 4 {
		t.Fatalf("Stats = (%d,%d), want (4,4) on a fresh allocator", free, total)
	}

	pg := a.Alloc()
	if pg == nil {
		t.Fatalf("Alloc returned nil with pages available")
	}
	for _, b := range pg.Bytes {
		if b != 0 {
			t.Fatalf("freshly allocated page not zeroed")
		}
	}

	free, _ = a.Stats()
	if free != 3 {
		t.Fatalf("free = %d after one Alloc, want 3", free)
	}

	a.Free(pg)
	free, _ = a.Stats()
	if free != 4 {
		t.Fatalf("free = %d after Free, want 4", free)
	}
}

func TestFreeStampsPoison(t *testing.T) {
	a := NewAllocator(1)
	pg := a.Alloc()
	a.Free(pg)
	for i, b := range pg.Bytes {
		if b != 0xa5 {
			t.Fatalf("byte %d = %#x after Free, want poison 0xa5", i, b)
		}
	}
}

func TestAllocExhaustionReturnsNilNotPanic(t *testing.T) {
	a := NewAllocator(2)
	if a.Alloc() == nil {
		t.Fatalf("Alloc failed with pages available")
	}
	if a.Alloc() == nil {
		t.Fatalf("Alloc failed with pages available")
	}
	if pg := a.Alloc(); pg != nil {
		t.Fatalf("Alloc on exhausted allocator returned %v, want nil", pg)
	}
}

func TestDistinctPagesDoNotAlias(t *testing.T) {
	a := NewAllocator(2)
	p1 := a.Alloc()
	p2 := a.Alloc()
	if p1.PA == p2.PA {
		t.Fatalf("two live allocations share physical address %#x", p1.PA)
	}
	p1.Bytes[0] = 7
	if p2.Bytes[0] == 7 {
		t.Fatalf("writing p1 is visible through p2")
	}
}

func TestGlobalIsSingleton(t *testing.T) {
	if Global() != Global() {
		t.Fatalf("Global returned two different allocators")
	}
}
