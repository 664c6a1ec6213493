package buddy

import "testing"

// scenario 1 (spec.md §8.3): boot + one page.
func TestBootPlusOnePage(t *testing.T) {
	a, err := New(1024)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	phys, ok := a.AllocPage()
	if !ok || phys != 0 {
		t.Fatalf("AllocPage() = %#x, %v; want 0, true", phys, ok)
	}
	if err := a.FreePage(phys); err != nil {
		t.Fatal(err)
	}
	if a.UsedPages() != 0 {
		t.Fatalf("UsedPages() = %d, want 0", a.UsedPages())
	}
}

// scenario 2 (spec.md §8.3): split + merge over 16 pages (max_order=4).
func TestSplitAndMerge(t *testing.T) {
	a, err := New(16)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.MaxOrder() != 4 {
		t.Fatalf("MaxOrder() = %d, want 4", a.MaxOrder())
	}

	p0, ok := a.AllocPage()
	if !ok || p0 != 0x0000 {
		t.Fatalf("first alloc = %#x, want 0x0000", p0)
	}
	p1, ok := a.AllocPage()
	if !ok || p1 != 0x1000 {
		t.Fatalf("second alloc = %#x, want 0x1000", p1)
	}

	// freeing the first page must not merge -- its buddy (p1) is still used.
	if err := a.FreePage(p0); err != nil {
		t.Fatal(err)
	}
	if a.blockOrder[0] != 0 {
		t.Fatalf("freeing p0 alone should not merge, blockOrder=%d", a.blockOrder[0])
	}

	// freeing the second page merges all the way up to order 4.
	if err := a.FreePage(p1); err != nil {
		t.Fatal(err)
	}
	if a.orderHeads[4] != 0 {
		t.Fatalf("expected full merge back to a single order-4 block at index 0")
	}
	if a.UsedPages() != 0 {
		t.Fatalf("UsedPages() = %d, want 0", a.UsedPages())
	}
}

func TestDisjointFreeBlocks(t *testing.T) {
	a, err := New(64)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	seen := map[uint32]bool{}
	for order, head := range a.orderHeads {
		span := a.blockPages(uint32(order))
		for idx := head; idx != invalidIndex; idx = a.links[idx].next {
			for p := idx; p < idx+span; p++ {
				if seen[p] {
					t.Fatalf("page %d covered by more than one free block", p)
				}
				seen[p] = true
			}
		}
	}
}

func TestAllocFreeBalancedRoundTrip(t *testing.T) {
	a, err := New(128)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	var allocs []uint64
	for i := 0; i < 50; i++ {
		p, ok := a.AllocPage()
		if !ok {
			t.Fatal("unexpected OOM")
		}
		allocs = append(allocs, p)
	}
	for _, p := range allocs {
		if err := a.FreePage(p); err != nil {
			t.Fatal(err)
		}
	}
	if a.UsedPages() != 0 {
		t.Fatalf("UsedPages() = %d, want 0 after balanced alloc/free", a.UsedPages())
	}

	// the free-list state must now match a fresh reset.
	before := snapshotOrders(a)
	a.ResetAllReserved()
	after := snapshotOrders(a)
	for o := range before {
		if before[o] != after[o] {
			t.Fatalf("order %d head differs after balanced round trip: %d vs %d", o, before[o], after[o])
		}
	}
}

func snapshotOrders(a *Allocator) []uint32 {
	out := make([]uint32, len(a.orderHeads))
	copy(out, a.orderHeads)
	return out
}

func TestSetRangeReservesAndReleases(t *testing.T) {
	a, err := New(32)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if err := a.SetRange(5, 3, true); err != nil {
		t.Fatal(err)
	}
	if a.UsedPages() != 3 {
		t.Fatalf("UsedPages() = %d, want 3", a.UsedPages())
	}
	if err := a.SetRange(5, 3, false); err != nil {
		t.Fatal(err)
	}
	if a.UsedPages() != 0 {
		t.Fatalf("UsedPages() = %d, want 0 after release", a.UsedPages())
	}
}

func TestFreeUnalignedRejected(t *testing.T) {
	a, err := New(16)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if err := a.FreePage(1); err == nil {
		t.Fatal("expected error freeing non-page-aligned address")
	}
}

func TestMetadataSizePageAligned(t *testing.T) {
	sz := MetadataSize(1 << 20)
	if sz%PageSize != 0 {
		t.Fatalf("MetadataSize() = %d, not a page multiple", sz)
	}
}
