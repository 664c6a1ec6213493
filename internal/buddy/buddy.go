// Package buddy implements the physical-page buddy allocator described in
// spec.md §3.2/§4.2: a power-of-two-block allocator over a bitmap of 4KiB
// frames, with per-order free lists, split-on-alloc, merge-on-free, and
// range reservation.
//
// Grounded on biscuit/src/mem.Physmem_t: a mutex-protected global
// singleton holding one free list per "bucket" (biscuit has only a single
// free list; we generalize to MaxOrder+1 order lists) addressed through a
// parallel metadata array rather than pointers embedded in the pages
// themselves -- exactly spec.md §3.2's "intrusive free-list links stored
// in metadata, not in the frame itself." The split/merge algorithm and
// magic-number header follow original_source/kernel/source/BuddyAllocator.c.
//
// Per SPEC_FULL.md's DOMAIN STACK section, the RAM the allocator manages is
// a real anonymous mapping obtained via golang.org/x/sys/unix.Mmap rather
// than a Go slice, so physical addresses handed out by AllocPage are offsets
// into genuine process memory that AHCI DMA and the VMM can read and write
// through Arena(), the same way biscuit's Physmem.Dmap lets any subsystem
// turn a physical address into bytes.
package buddy

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/Jango73/EXOS-sub006/internal/stats"
)

const (
	// Magic identifies an initialized buddy header.
	Magic uint32 = 0x42444459 // "BDDY"

	// PageShift/PageSize mirror mem.PGSHIFT/mem.PGSIZE in the teacher.
	PageShift = 12
	PageSize  = 1 << PageShift

	invalidIndex = ^uint32(0)
)

// node is the per-frame intrusive free-list link, stored in a parallel
// array rather than in the page itself (spec.md §3.2).
type node struct {
	prev, next uint32
}

// Allocator is the buddy page allocator. The zero value is not usable;
// construct with New.
type Allocator struct {
	magic      uint32
	totalPages uint32
	maxOrder   uint32
	usedPages  uint32
	ready      bool

	orderHeads []uint32 // index by order, invalidIndex means empty
	links      []node
	blockOrder []uint8
	pageUsed   []uint8

	arena []byte // mmap'd backing RAM; arena[0] is physical address 0
}

// MetadataSize returns the exact byte footprint of a buddy header plus its
// order-head array, per-frame link table, per-frame block-order byte, and
// per-frame page-used byte, each sub-region aligned on its natural
// boundary and the whole padded up to a page multiple -- spec.md §4.2's
// metadata_size contract. It is a pure function of totalPages; callers who
// keep metadata in a separate arena (as this package does) can use it to
// size that arena precisely.
func MetadataSize(totalPages uint32) uint32 {
	if totalPages == 0 {
		return PageSize
	}
	maxOrder := computeMaxOrder(totalPages)

	const headerSize = 4 + 4 + 4 + 4 + 4 // magic,total,maxorder,used,ready (u32 each)
	orderHeadsSize := (maxOrder + 1) * 4
	linksSize := totalPages * 8 // two uint32 per frame
	blockOrderSize := totalPages * 1
	pageUsedSize := totalPages * 1

	total := uint32(headerSize)
	total = align(total, 4) + orderHeadsSize
	total = align(total, 4) + linksSize
	total = align(total, 4) + blockOrderSize
	total = align(total, 1) + pageUsedSize
	return align(total, PageSize)
}

func align(v, to uint32) uint32 {
	if to == 0 {
		return v
	}
	return (v + to - 1) &^ (to - 1)
}

func computeMaxOrder(totalPages uint32) uint32 {
	if totalPages <= 1 {
		return 0
	}
	var order uint32
	span := uint32(1)
	for span <= totalPages>>1 {
		span <<= 1
		order++
	}
	return order
}

// New initializes a buddy allocator managing totalPages 4KiB frames. It
// mmaps the backing RAM arena (anonymous, private) and seeds the free
// lists with the largest power-of-two blocks that fit at each position,
// descending in order until the whole range is covered -- spec.md §4.2's
// initialize() contract.
func New(totalPages uint32) (*Allocator, error) {
	if totalPages == 0 {
		return nil, fmt.Errorf("buddy: totalPages must be > 0")
	}
	arena, err := unix.Mmap(-1, 0, int(totalPages)*PageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("buddy: mmap arena: %w", err)
	}

	a := &Allocator{
		magic:      Magic,
		totalPages: totalPages,
		maxOrder:   computeMaxOrder(totalPages),
		links:      make([]node, totalPages),
		blockOrder: make([]uint8, totalPages),
		pageUsed:   make([]uint8, totalPages),
		arena:      arena,
	}
	a.orderHeads = make([]uint32, a.maxOrder+1)
	a.resetAllReserved()
	a.ready = true
	return a, nil
}

// Close releases the arena's backing mapping. The allocator must not be
// used afterwards.
func (a *Allocator) Close() error {
	if a.arena == nil {
		return nil
	}
	err := unix.Munmap(a.arena)
	a.arena = nil
	return err
}

// Arena returns the byte slice backing physical address 0..totalPages*4096.
// VMM and AHCI DMA read/write through this slice using addresses returned
// by AllocPage.
func (a *Allocator) Arena() []byte { return a.arena }

// TotalPages, MaxOrder, UsedPages, Ready expose the buddy header fields.
func (a *Allocator) TotalPages() uint32 { return a.totalPages }
func (a *Allocator) MaxOrder() uint32   { return a.maxOrder }
func (a *Allocator) UsedPages() uint32  { return a.usedPages }
func (a *Allocator) Ready() bool        { return a.ready }

// Counters implements stats.Source for the D_PROF profiling device.
func (a *Allocator) Counters() []stats.Counter {
	return []stats.Counter{
		{Subsystem: "buddy", Name: "used_pages", Value: int64(a.UsedPages()), Unit: "pages"},
		{Subsystem: "buddy", Name: "total_pages", Value: int64(a.TotalPages()), Unit: "pages"},
	}
}

func (a *Allocator) blockPages(order uint32) uint32 { return 1 << order }

func (a *Allocator) addFree(index, order uint32) {
	head := a.orderHeads[order]
	a.blockOrder[index] = uint8(order)
	a.links[index].prev = invalidIndex
	a.links[index].next = head
	if head != invalidIndex {
		a.links[head].prev = index
	}
	a.orderHeads[order] = index
}

func (a *Allocator) removeFree(index, order uint32) {
	lk := a.links[index]
	if lk.prev != invalidIndex {
		a.links[lk.prev].next = lk.next
	} else {
		a.orderHeads[order] = lk.next
	}
	if lk.next != invalidIndex {
		a.links[lk.next].prev = lk.prev
	}
	a.links[index] = node{invalidIndex, invalidIndex}
}

// resetAllReserved rebuilds the all-free state without losing the header,
// matching spec.md's reset_all_reserved.
func (a *Allocator) resetAllReserved() {
	for o := range a.orderHeads {
		a.orderHeads[o] = invalidIndex
	}
	for i := range a.pageUsed {
		a.pageUsed[i] = 0
		a.blockOrder[i] = 0
		a.links[i] = node{invalidIndex, invalidIndex}
	}
	a.usedPages = 0

	// Seed free lists with the largest power-of-two blocks that fit,
	// descending in order at each alignment boundary, per spec.md §4.2.
	var idx uint32
	for idx < a.totalPages {
		order := a.maxOrder
		for order > 0 {
			span := a.blockPages(order)
			if idx%span == 0 && idx+span <= a.totalPages {
				break
			}
			order--
		}
		a.addFree(idx, order)
		idx += a.blockPages(order)
	}
}

// ResetAllReserved is the exported form used by tests and VM re-init.
func (a *Allocator) ResetAllReserved() { a.resetAllReserved() }

// AllocPage implements spec.md's single-page alloc_page: find the
// smallest non-empty order, repeatedly halve (pushing the right buddy down
// to the next-lower order) until a single frame remains, mark it used, and
// return its physical address. Returns (0, false) when out of memory.
func (a *Allocator) AllocPage() (uint64, bool) {
	var order uint32
	found := false
	for order = 0; order <= a.maxOrder; order++ {
		if a.orderHeads[order] != invalidIndex {
			found = true
			break
		}
	}
	if !found {
		return 0, false
	}

	index := a.orderHeads[order]
	a.removeFree(index, order)

	for order > 0 {
		order--
		buddy := index + a.blockPages(order)
		a.addFree(buddy, order)
	}

	a.pageUsed[index] = 1
	a.blockOrder[index] = 0
	a.usedPages++
	return uint64(index) << PageShift, true
}

// FreePage implements spec.md's free_page: clear used, then walk upward
// merging with the buddy at each order as long as the buddy is free, in
// range, and of the same order -- splits always pushed the right buddy, so
// merges always look for the buddy at start XOR block_pages.
func (a *Allocator) FreePage(phys uint64) error {
	if phys%PageSize != 0 {
		return fmt.Errorf("buddy: free of non-page-aligned address %#x", phys)
	}
	index := uint32(phys >> PageShift)
	if index >= a.totalPages {
		return fmt.Errorf("buddy: free of out-of-range address %#x", phys)
	}
	if a.pageUsed[index] == 0 {
		return fmt.Errorf("buddy: double free of %#x", phys)
	}
	a.pageUsed[index] = 0
	a.usedPages--

	order := uint32(0)
	start := index
	for order < a.maxOrder {
		blockPages := a.blockPages(order)
		buddy := start ^ blockPages
		if buddy >= a.totalPages {
			break
		}
		if a.pageUsed[buddy] != 0 || a.blockOrder[buddy] != uint8(order) {
			break
		}
		// buddy must actually be linked in this order's free list --
		// guaranteed by blockOrder matching since every used frame has
		// blockOrder 0 and every free frame's blockOrder reflects its
		// current list membership.
		a.removeFree(buddy, order)
		if buddy < start {
			start = buddy
		}
		order++
	}
	a.addFree(start, order)
	return nil
}

// SetRange marks count pages starting at the frame index first as used or
// free, splitting free blocks down to single-page granularity as needed --
// spec.md's set_range, used to carve out boot-reserved or MMIO spans.
func (a *Allocator) SetRange(first, count uint32, used bool) error {
	for p := first; p < first+count; p++ {
		if used {
			if err := a.reserveOne(p); err != nil {
				return err
			}
		} else {
			if err := a.FreePage(uint64(p) << PageShift); err != nil {
				return err
			}
		}
	}
	return nil
}

// reserveOne finds the free block covering page p, splits it down to a
// single page, and marks that page used.
func (a *Allocator) reserveOne(p uint32) error {
	if a.pageUsed[p] != 0 {
		return fmt.Errorf("buddy: page %d already reserved", p)
	}
	// Find the free block that covers p by scanning order lists; this is
	// O(free blocks) which is acceptable for boot-time reservation.
	for order := a.maxOrder; ; {
		for idx := a.orderHeads[order]; idx != invalidIndex; idx = a.links[idx].next {
			span := a.blockPages(order)
			if p >= idx && p < idx+span {
				a.splitDownTo(idx, order, p)
				a.pageUsed[p] = 1
				a.blockOrder[p] = 0
				a.usedPages++
				return nil
			}
		}
		if order == 0 {
			return fmt.Errorf("buddy: page %d not free", p)
		}
		order--
	}
}

// splitDownTo removes the free block at (index, order) and halves it
// repeatedly, returning each half that does not contain target to the
// free lists, until target is a single page that is in no free list
// (the caller marks it used).
func (a *Allocator) splitDownTo(index, order, target uint32) {
	a.removeFree(index, order)
	for order > 0 {
		order--
		left := index
		right := index + a.blockPages(order)
		if target >= right {
			a.addFree(left, order)
			index = right
		} else {
			a.addFree(right, order)
			index = left
		}
	}
}
