// Package kheap implements the per-process kernel heap described in
// spec.md §4 (component #8 of the overview table, carried ambiently since
// every process needs a heap regardless of which spec.md modules it
// exercises): a first-fit free-list allocator over a linear range backed
// by internal/vm regions, able to Extend on demand.
//
// Grounded on biscuit/src/fs.Blockmem_i (an interface abstracting "give me
// a page, take one back" so a block cache doesn't care how pages are
// actually sourced) for the shape of Heap's dependency on
// internal/vm.AddressSpace, and biscuit/src/limits.Sysatomic_t for the
// atomically-updated usage counter idiom.
package kheap

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Jango73/EXOS-sub006/internal/defs"
	"github.com/Jango73/EXOS-sub006/internal/klist"
	"github.com/Jango73/EXOS-sub006/internal/klog"
	"github.com/Jango73/EXOS-sub006/internal/stats"
	"github.com/Jango73/EXOS-sub006/internal/vm"
)

// freeBlock is one run of free bytes in the heap, kept in a singly-tracked
// intrusive list ordered by Offset.
type freeBlock struct {
	link         klist.Link[freeBlock]
	Offset, Size uint64
}

func freeBlockLink(b *freeBlock) *klist.Link[freeBlock] { return &b.link }

// Heap is a first-fit allocator over [Base, Base+committed) of an
// AddressSpace, growing by calling AllocRegion again when it runs out of
// room.
type Heap struct {
	as   *vm.AddressSpace
	base uint64

	committed uint64 // bytes currently backed by AllocRegion
	used      int64  // atomically updated; bytes currently handed out

	free      *klist.List[freeBlock]
	allocated map[uint64]uint64 // offset -> size, for Free validation
}

// Init commits initialSize bytes at base in as and returns a ready Heap.
func Init(as *vm.AddressSpace, base, initialSize uint64) (*Heap, defs.Err_t) {
	if _, err := as.AllocRegion(base, initialSize, vm.Commit|vm.ReadWrite); err != defs.SUCCESS {
		return nil, err
	}
	h := &Heap{
		as:        as,
		base:      base,
		committed: initialSize,
		free:      klist.New[freeBlock](freeBlockLink, nil),
		allocated: make(map[uint64]uint64),
	}
	h.free.AddTail(&freeBlock{Offset: 0, Size: initialSize})
	return h, defs.SUCCESS
}

// Used reports the number of bytes currently allocated out of the heap.
func (h *Heap) Used() int64 { return atomic.LoadInt64(&h.used) }

// Committed reports the heap's current backed size.
func (h *Heap) Committed() uint64 { return h.committed }

// Counters implements stats.Source for the D_PROF profiling device.
func (h *Heap) Counters() []stats.Counter {
	return []stats.Counter{
		{Subsystem: "kheap", Name: "used_bytes", Value: h.Used(), Unit: "bytes"},
		{Subsystem: "kheap", Name: "committed_bytes", Value: int64(h.Committed()), Unit: "bytes"},
	}
}

// Alloc returns the linear address of a size-byte block (8-byte aligned),
// extending the heap via AllocRegion if no free block is large enough.
func (h *Heap) Alloc(size uint64) (uint64, defs.Err_t) {
	if size == 0 {
		return 0, defs.BAD_PARAMETER
	}
	size = align8(size)

	blk := h.firstFit(size)
	if blk == nil {
		if err := h.extend(size); err != defs.SUCCESS {
			return 0, err
		}
		blk = h.firstFit(size)
		if blk == nil {
			return 0, defs.NO_MEMORY
		}
	}

	offset := blk.Offset
	if blk.Size == size {
		h.free.Erase(blk)
	} else {
		blk.Offset += size
		blk.Size -= size
	}
	h.allocated[offset] = size
	atomic.AddInt64(&h.used, int64(size))
	return h.base + offset, defs.SUCCESS
}

func (h *Heap) firstFit(size uint64) *freeBlock {
	for b := h.free.Front(); b != nil; b = h.free.Next(b) {
		if b.Size >= size {
			return b
		}
	}
	return nil
}

// extend grows the heap by at least need bytes (rounded up to a page),
// appending a new free block at the end of the committed range.
func (h *Heap) extend(need uint64) defs.Err_t {
	grow := align(need, vm.PageSize)
	if grow < vm.PageSize {
		grow = vm.PageSize
	}
	if _, err := h.as.AllocRegion(h.base+h.committed, grow, vm.Commit|vm.ReadWrite); err != defs.SUCCESS {
		return err
	}
	klog.Sub("kheap").Debug("extending heap", zap.Uint64("bytes", grow), zap.Uint64("committed", h.committed))
	h.free.AddTail(&freeBlock{Offset: h.committed, Size: grow})
	h.committed += grow
	return defs.SUCCESS
}

// Free releases the block previously returned at linear address addr.
// Adjacent free blocks are coalesced.
func (h *Heap) Free(addr uint64) defs.Err_t {
	if addr < h.base {
		return defs.BAD_PARAMETER
	}
	offset := addr - h.base
	size, ok := h.allocated[offset]
	if !ok {
		return defs.BAD_PARAMETER
	}
	delete(h.allocated, offset)
	atomic.AddInt64(&h.used, -int64(size))

	nb := &freeBlock{Offset: offset, Size: size}
	h.insertCoalesced(nb)
	return defs.SUCCESS
}

func (h *Heap) insertCoalesced(nb *freeBlock) {
	var prev, next *freeBlock
	for b := h.free.Front(); b != nil; b = h.free.Next(b) {
		if b.Offset < nb.Offset {
			prev = b
		} else {
			next = b
			break
		}
	}

	if prev != nil && prev.Offset+prev.Size == nb.Offset {
		prev.Size += nb.Size
		nb = prev
	} else if next != nil {
		h.free.AddBefore(next, nb)
	} else {
		h.free.AddTail(nb)
	}

	if next != nil && nb.Offset+nb.Size == next.Offset {
		nb.Size += next.Size
		h.free.Erase(next)
	}
}

func align(v, to uint64) uint64 {
	if to == 0 {
		return v
	}
	return (v + to - 1) &^ (to - 1)
}

func align8(v uint64) uint64 { return align(v, 8) }

func (h *Heap) String() string {
	return fmt.Sprintf("Heap{base=%#x committed=%d used=%d}", h.base, h.committed, h.Used())
}
