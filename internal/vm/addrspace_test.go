package vm

import (
	"testing"

	"github.com/Jango73/EXOS-sub006/internal/buddy"
	"github.com/Jango73/EXOS-sub006/internal/defs"
)

func newTestManager(t *testing.T, pages uint32) *Manager {
	t.Helper()
	a, err := buddy.New(pages)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return NewManager(a, 16*PageSize)
}

// spec.md §8.2: alloc_region(b,p,s,COMMIT|RW) ; free_region(b,s) leaves the
// page tables as they were and the buddy's used_pages delta is 0.
func TestAllocFreeRegionRoundTrip(t *testing.T) {
	m := newTestManager(t, 64)
	as := m.NewAddressSpace()

	usedBefore := m.Phys.UsedPages()

	base, err := as.AllocRegion(UserMin, 3*PageSize, Commit|ReadWrite)
	if err != defs.SUCCESS {
		t.Fatalf("AllocRegion: %v", err)
	}
	if !as.IsValidMemory(base) || !as.IsValidMemory(base+PageSize) {
		t.Fatal("expected committed pages to be valid")
	}

	if err := as.FreeRegion(base, 3*PageSize); err != defs.SUCCESS {
		t.Fatalf("FreeRegion: %v", err)
	}
	if as.IsValidMemory(base) {
		t.Fatal("expected pages to be unmapped after FreeRegion")
	}
	if m.Phys.UsedPages() != usedBefore {
		t.Fatalf("UsedPages() = %d, want %d (round trip should be a no-op)", m.Phys.UsedPages(), usedBefore)
	}
}

func TestReserveOnlyRegionNotBacked(t *testing.T) {
	m := newTestManager(t, 64)
	as := m.NewAddressSpace()

	base, err := as.AllocRegion(UserMin, PageSize, Reserve|AtOrOver)
	if err != defs.SUCCESS {
		t.Fatalf("AllocRegion: %v", err)
	}
	if as.IsValidMemory(base) {
		t.Fatal("RESERVE-only region should not be committed")
	}
}

func TestPageFaultDemandCommitsReserveAtOrOver(t *testing.T) {
	m := newTestManager(t, 64)
	as := m.NewAddressSpace()

	base, err := as.AllocRegion(UserMin, PageSize, Reserve|AtOrOver|ReadWrite)
	if err != defs.SUCCESS {
		t.Fatalf("AllocRegion: %v", err)
	}
	if as.IsValidMemory(base) {
		t.Fatal("expected page to start uncommitted")
	}
	if err := as.HandlePageFault(base, false, true); err != defs.SUCCESS {
		t.Fatalf("HandlePageFault: %v", err)
	}
	if !as.IsValidMemory(base) {
		t.Fatal("expected page fault to demand-commit the page")
	}
}

func TestKernelFaultIsFatal(t *testing.T) {
	m := newTestManager(t, 64)
	as := m.NewAddressSpace()
	if err := as.HandlePageFault(0xdead0000, true, false); err == defs.SUCCESS {
		t.Fatal("kernel-mode fault must never succeed")
	}
}

func TestFixedOverlappingRegionRejected(t *testing.T) {
	m := newTestManager(t, 64)
	as := m.NewAddressSpace()

	if _, err := as.AllocRegion(UserMin, 2*PageSize, Commit|ReadWrite); err != defs.SUCCESS {
		t.Fatalf("AllocRegion: %v", err)
	}
	if _, err := as.AllocRegion(UserMin+PageSize, PageSize, Commit|ReadWrite); err == defs.SUCCESS {
		t.Fatal("expected overlapping fixed region to be rejected")
	}
}

func TestMapUnmapIORoundTrip(t *testing.T) {
	m := newTestManager(t, 64)
	kernel := m.NewAddressSpace()

	lin, err := m.MapIO(kernel, 0x1000, 256)
	if err != defs.SUCCESS {
		t.Fatalf("MapIO: %v", err)
	}
	buf, err := m.MMIOBytes(kernel, lin, 256)
	if err != defs.SUCCESS {
		t.Fatalf("MMIOBytes: %v", err)
	}
	copy(buf, []byte("hello"))
	if string(buf[:5]) != "hello" {
		t.Fatal("MMIO bytes did not round trip")
	}

	if err := m.UnmapIO(kernel, lin, 256); err != defs.SUCCESS {
		t.Fatalf("UnmapIO: %v", err)
	}
	if kernel.IsValidMemory(lin) {
		t.Fatal("expected MMIO mapping to be gone after UnmapIO")
	}
}
