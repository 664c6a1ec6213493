// Package vm implements the virtual-memory manager described in
// spec.md §3.2/§4.3: page-directory/table lifecycle, kernel and user
// address-space layout, region allocation with COMMIT/RESERVE semantics,
// and MMIO/framebuffer mapping.
//
// Grounded on biscuit/src/vm.Vm_t (the Lock_pmap/Userdmap8_inner/
// Sys_pgfault family) and biscuit/src/mem.Dmap_init for the direct-map/
// page-directory bring-up idiom, reworked from manipulating literal x86
// PTEs via unsafe.Pointer into recursive page-table slots (real hardware)
// into a hosted simulation: a page directory is a Go array of page-table
// pointers and a page table is a Go array of PTE values with the same bit
// layout spec.md §3.2 names. Physical frames back onto internal/buddy's
// mmap'd arena.
package vm

import "github.com/Jango73/EXOS-sub006/internal/defs"

// PTE flag bits, matching spec.md §3.2's page-table entry field list
// exactly (present/rw/user/writethrough/cache-disable/accessed/dirty/
// global) plus one EXOS-specific Fixed bit marking permanently resident
// kernel pages that the page-fault handler must never evict or COW.
type PTE uint64

const (
	PTEPresent      PTE = 1 << 0
	PTEWritable     PTE = 1 << 1
	PTEUser         PTE = 1 << 2
	PTEWriteThrough PTE = 1 << 3
	PTECacheDisable PTE = 1 << 4
	PTEAccessed     PTE = 1 << 5
	PTEDirty        PTE = 1 << 6
	PTEGlobal       PTE = 1 << 7
	PTEFixed        PTE = 1 << 8

	pteFrameShift = 12
	pteFrameMask  = PTE(^uint64(0)) << pteFrameShift
)

// Frame returns the 20-bit+ frame index packed into the entry.
func (p PTE) Frame() uint64 { return uint64(p&pteFrameMask) >> pteFrameShift }

// WithFrame returns a copy of p with its frame bits replaced.
func (p PTE) WithFrame(phys uint64) PTE {
	return (p &^ pteFrameMask) | PTE((phys>>pteFrameShift)<<pteFrameShift)
}

func (p PTE) Present() bool { return p&PTEPresent != 0 }

// PageTable is the 1024-entry leaf table (spec.md §3.2).
type PageTable struct {
	Entries [1024]PTE
}

// PageDirectory is the 1024-entry top-level table; each entry maps 4MiB
// (x86 non-PAE, spec.md §3.2) onto one PageTable.
type PageDirectory struct {
	Tables [1024]*PageTable
}

const (
	// pdeBits/pteBits are the index widths for each level of a non-PAE
	// two-level 32-bit page table: 10 bits of page-directory index, 10
	// bits of page-table index, 12 bits of page offset.
	pdeBits  = 10
	pteBits  = 10
	PageSize = 1 << 12
)

func pdeIndex(lin uint64) int { return int((lin >> (12 + pteBits)) & 0x3ff) }
func pteIndex(lin uint64) int { return int((lin >> 12) & 0x3ff) }
func pageOffset(lin uint64) uint64 { return lin & (PageSize - 1) }

// Walk returns the PTE mapping lin, allocating intermediate page tables
// on demand only when alloc is true. ok is false when the mapping does
// not exist and alloc was false.
func (pd *PageDirectory) Walk(lin uint64, alloc bool) (pte *PTE, ok bool) {
	pdi := pdeIndex(lin)
	pt := pd.Tables[pdi]
	if pt == nil {
		if !alloc {
			return nil, false
		}
		pt = &PageTable{}
		pd.Tables[pdi] = pt
	}
	return &pt.Entries[pteIndex(lin)], true
}

// Lookup returns the PTE mapping lin without allocating, or false if no
// page table is installed at that directory slot.
func (pd *PageDirectory) Lookup(lin uint64) (PTE, bool) {
	pdi := pdeIndex(lin)
	pt := pd.Tables[pdi]
	if pt == nil {
		return 0, false
	}
	return pt.Entries[pteIndex(lin)], true
}

// IsValidMemory is the precise check from spec.md §4.3: PDE present AND
// PTE present for the page containing lin.
func (pd *PageDirectory) IsValidMemory(lin uint64) bool {
	pte, ok := pd.Lookup(lin)
	return ok && pte.Present()
}

// ValidateUser returns BAD_PARAMETER-shaped failure info for syscall-level
// callers that must reject invalid user pointers before dereferencing them
// (spec.md §7).
func (pd *PageDirectory) ValidateUser(lin uint64) defs.Err_t {
	if !pd.IsValidMemory(lin) {
		return defs.BAD_PARAMETER
	}
	return defs.SUCCESS
}
