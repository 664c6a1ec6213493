package vm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Jango73/EXOS-sub006/internal/buddy"
	"github.com/Jango73/EXOS-sub006/internal/defs"
)

// RegionFlags mirrors spec.md §3.2/§4.3's linear-region allocation flags.
type RegionFlags uint32

const (
	Commit RegionFlags = 1 << iota
	Reserve
	ReadOnly
	ReadWrite
	Uncached
	WriteCombining
	IO
	AtOrOver
)

// Region describes one half-open linear range [Base, Base+Size) tagged
// with allocation flags (spec.md §3.2).
type Region struct {
	Base, Size uint64
	Flags      RegionFlags
}

func (r *Region) end() uint64 { return r.Base + r.Size }

// Kernel/user layout constants (spec.md §4.3).
const (
	KernelBase = 0xC0000000 // VMA_KERNEL
	UserMin    = 0x00400000
	UserMax    = 0x40000000
)

// AddressSpace is one process's page directory plus its region map --
// biscuit's Vm_t, reworked for a hosted simulation. The mutex guards the
// page directory and the region list together, matching spec.md's
// requirement that VMM structures protecting pmap/vmregion are a single
// critical section (Lock_pmap/Unlock_pmap in the teacher).
type AddressSpace struct {
	mu sync.Mutex

	Dir     *PageDirectory
	regions []*Region // kept sorted by Base

	mgr *Manager
}

// Manager owns the physical allocator and the MMIO arena shared by every
// address space -- biscuit's global Physmem, generalized with an MMIO
// side-arena since this module does not run on real hardware.
type Manager struct {
	mu sync.Mutex

	Phys *buddy.Allocator

	mmio      []byte
	mmioUsed  uint64 // next free offset into the mmio arena
	mmioSize  uint64
	kernelDir *PageDirectory // template mapped identically into every space
}

// NewManager constructs a Manager over an already-initialized buddy
// allocator, reserving mmioSize bytes of simulated MMIO address space
// (spec.md's "IO-exact-mapping" regions do not come from the buddy pool).
func NewManager(phys *buddy.Allocator, mmioSize uint64) *Manager {
	return &Manager{
		Phys:      phys,
		mmio:      make([]byte, mmioSize),
		mmioSize:  mmioSize,
		kernelDir: &PageDirectory{},
	}
}

// NewAddressSpace allocates a fresh page directory and copies into it the
// page-table pointers of the Manager's kernel template directory, so a
// table installed in that template is shared by every space. Nothing in
// this package installs tables into the template: it stays empty, and
// MapIO maps only into the AddressSpace passed to it.
func (m *Manager) NewAddressSpace() *AddressSpace {
	as := &AddressSpace{Dir: &PageDirectory{}, mgr: m}
	for i, t := range m.kernelDir.Tables {
		as.Dir.Tables[i] = t // shared table pointers: identical kernel mapping
	}
	return as
}

// AllocPageDirectory allocates a physical page to back a page directory
// and returns an AddressSpace whose Dir is populated from it. In this
// hosted model the "physical directory" is represented directly by the Go
// PageDirectory; AllocPageDirectory still consumes a physical frame so
// that buddy accounting matches the real allocator's behavior.
func (m *Manager) AllocPageDirectory() (*AddressSpace, defs.Err_t) {
	if _, ok := m.Phys.AllocPage(); !ok {
		return nil, defs.NO_MEMORY
	}
	return m.NewAddressSpace(), defs.SUCCESS
}

// AllocPhysPage/FreePhysPage forward to the buddy allocator -- the VMM's
// narrow public surface onto physical memory (spec.md §4.3).
func (m *Manager) AllocPhysPage() (uint64, defs.Err_t) {
	p, ok := m.Phys.AllocPage()
	if !ok {
		return 0, defs.NO_MEMORY
	}
	return p, defs.SUCCESS
}

func (m *Manager) FreePhysPage(phys uint64) defs.Err_t {
	if err := m.Phys.FreePage(phys); err != nil {
		return defs.BAD_PARAMETER
	}
	return defs.SUCCESS
}

// MapPhysicalPage installs a transient one-page mapping used only while
// parsing boot/ACPI tables (spec.md §4.3): in the hosted model this is
// simply the physical address itself, since internal/buddy's arena is
// directly addressable Go memory -- there is no separate "linear" view to
// construct.
func (m *Manager) MapPhysicalPage(phys uint64) uint64 { return phys }

func roundDown(v, to uint64) uint64 { return v - v%to }
func roundUp(v, to uint64) uint64   { return roundDown(v+to-1, to) }

// findGap returns the first page-aligned linear address >= lowerBound that
// has size free space, not overlapping any existing region.
func (as *AddressSpace) findGap(lowerBound, size uint64) uint64 {
	cand := roundUp(lowerBound, PageSize)
	for _, r := range as.regions {
		if cand+size <= r.Base {
			return cand
		}
		if cand < r.end() {
			cand = roundUp(r.end(), PageSize)
		}
	}
	return cand
}

func (as *AddressSpace) overlaps(base, size uint64) bool {
	end := base + size
	for _, r := range as.regions {
		if base < r.end() && end > r.Base {
			return true
		}
	}
	return false
}

func (as *AddressSpace) insertRegion(r *Region) {
	as.regions = append(as.regions, r)
	sort.Slice(as.regions, func(i, j int) bool { return as.regions[i].Base < as.regions[j].Base })
}

// AllocRegion implements spec.md §4.3's alloc_region: base is a fixed
// linear address unless flags include AtOrOver, in which case base is
// only a lower bound and the manager chooses any page-aligned VA at or
// above it. size is rounded up to a page multiple. COMMIT additionally
// back-fills physical pages from the buddy allocator; RESERVE-only marks
// the range allocated without backing it.
func (as *AddressSpace) AllocRegion(base, size uint64, flags RegionFlags) (uint64, defs.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()

	size = roundUp(size, PageSize)
	if size == 0 {
		return 0, defs.BAD_PARAMETER
	}

	var linBase uint64
	if flags&AtOrOver != 0 {
		linBase = as.findGap(base, size)
	} else {
		linBase = roundDown(base, PageSize)
		if as.overlaps(linBase, size) {
			return 0, defs.BAD_PARAMETER
		}
	}

	as.insertRegion(&Region{Base: linBase, Size: size, Flags: flags})

	if flags&Commit != 0 {
		if err := as.commitRange(linBase, size, flags); err != 0 {
			return 0, err
		}
	}
	return linBase, defs.SUCCESS
}

func (as *AddressSpace) commitRange(base, size uint64, flags RegionFlags) defs.Err_t {
	perms := PTEPresent | PTEUser
	if flags&ReadWrite != 0 {
		perms |= PTEWritable
	}
	if flags&Uncached != 0 {
		perms |= PTECacheDisable
	}
	for off := uint64(0); off < size; off += PageSize {
		phys, ok := as.mgr.Phys.AllocPage()
		if !ok {
			// roll back pages committed so far in this call
			as.uncommitRange(base, off)
			return defs.NO_MEMORY
		}
		pte, _ := as.Dir.Walk(base+off, true)
		*pte = PTE(perms).WithFrame(phys)
	}
	return defs.SUCCESS
}

func (as *AddressSpace) uncommitRange(base, size uint64) {
	for off := uint64(0); off < size; off += PageSize {
		pte, ok := as.Dir.Walk(base+off, false)
		if !ok || !pte.Present() {
			continue
		}
		as.mgr.Phys.FreePage(pte.Frame() << pteFrameShift)
		*pte = 0
	}
}

// FreeRegion releases the whole region that starts at base (rounded down
// to a page); size is not consulted, the region's recorded size is used.
// Committed pages return to the buddy allocator, and the region is
// removed from the address space's map, undoing AllocRegion per
// spec.md §8.2's round-trip invariant.
func (as *AddressSpace) FreeRegion(base, size uint64) defs.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()

	size = roundUp(size, PageSize)
	base = roundDown(base, PageSize)

	idx := -1
	for i, r := range as.regions {
		if r.Base == base {
			idx = i
			break
		}
	}
	if idx == -1 {
		return defs.BAD_PARAMETER
	}
	r := as.regions[idx]
	as.uncommitRange(r.Base, r.Size)
	as.regions = append(as.regions[:idx], as.regions[idx+1:]...)
	return defs.SUCCESS
}

// IsValidMemory reports whether lin is backed by a present mapping in this
// address space (spec.md §4.3).
func (as *AddressSpace) IsValidMemory(lin uint64) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.Dir.IsValidMemory(lin)
}

// MapLinearToPhysical translates a mapped linear address to its backing
// physical address, including the intra-page offset.
func (as *AddressSpace) MapLinearToPhysical(lin uint64) (uint64, defs.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()
	pte, ok := as.Dir.Lookup(lin)
	if !ok || !pte.Present() {
		return 0, defs.BAD_PARAMETER
	}
	return (pte.Frame() << pteFrameShift) | pageOffset(lin), defs.SUCCESS
}

func (as *AddressSpace) regionFor(lin uint64) *Region {
	for _, r := range as.regions {
		if lin >= r.Base && lin < r.end() {
			return r
		}
	}
	return nil
}

// HandlePageFault implements spec.md §4.3's page-fault policy. kernelMode
// faults are always fatal (the caller must terminate the faulting
// task/process). User faults on a RESERVE-only page inside an AT_OR_OVER
// region commit the page on demand; any other user fault is fatal too.
func (as *AddressSpace) HandlePageFault(lin uint64, kernelMode, write bool) defs.Err_t {
	if kernelMode {
		return defs.GENERIC // fatal: caller kills task+process
	}
	as.mu.Lock()
	r := as.regionFor(lin)
	if r == nil {
		as.mu.Unlock()
		return defs.GENERIC
	}
	if r.Flags&Reserve == 0 || r.Flags&AtOrOver == 0 {
		as.mu.Unlock()
		return defs.GENERIC
	}
	page := roundDown(lin, PageSize)
	as.mu.Unlock()
	return as.commitRange(page, PageSize, r.Flags)
}

// MapIO reserves a kernel VA range, backs it with the next free
// page-aligned span of the simulated MMIO arena (phys sets only the
// returned address's offset within its page, not the arena offset), and
// installs PTEs with UC caching -- spec.md §4.3's map_io. It returns the
// VA of the original (non-rounded) offset.
func (m *Manager) MapIO(kernel *AddressSpace, phys, size uint64) (uint64, defs.Err_t) {
	alignedPhys := roundDown(phys, PageSize)
	skew := phys - alignedPhys
	alignedSize := roundUp(size+skew, PageSize)

	m.mu.Lock()
	if m.mmioUsed+alignedSize > m.mmioSize {
		m.mu.Unlock()
		return 0, defs.NO_MEMORY
	}
	mmioOff := m.mmioUsed
	m.mmioUsed += alignedSize
	m.mu.Unlock()

	kernel.mu.Lock()
	defer kernel.mu.Unlock()
	linBase := kernel.findGap(KernelBase, alignedSize)
	kernel.insertRegion(&Region{Base: linBase, Size: alignedSize, Flags: IO | Commit | ReadWrite | Uncached})

	perms := PTEPresent | PTEWritable | PTECacheDisable
	for off := uint64(0); off < alignedSize; off += PageSize {
		pte, _ := kernel.Dir.Walk(linBase+off, true)
		// mmioOff stands in for the physical IO address; Frame just needs
		// to be a stable identifier MapIO's counterpart can translate
		// back through MMIOBytes.
		*pte = PTE(perms).WithFrame(mmioOff + off)
	}
	return linBase + skew, defs.SUCCESS
}

// UnmapIO reverses MapIO: it clears the PTEs covering [linear, linear+size)
// (rounded to pages) in kernel and removes the region record.
func (m *Manager) UnmapIO(kernel *AddressSpace, linear, size uint64) defs.Err_t {
	kernel.mu.Lock()
	defer kernel.mu.Unlock()

	base := roundDown(linear, PageSize)
	r := kernel.regionFor(base)
	if r == nil || r.Flags&IO == 0 {
		return defs.BAD_PARAMETER
	}
	for off := uint64(0); off < r.Size; off += PageSize {
		pte, ok := kernel.Dir.Walk(r.Base+off, false)
		if ok {
			*pte = 0
		}
	}
	for i, rr := range kernel.regions {
		if rr == r {
			kernel.regions = append(kernel.regions[:i], kernel.regions[i+1:]...)
			break
		}
	}
	return defs.SUCCESS
}

// MMIOBytes returns the byte slice backing the simulated MMIO arena at the
// given mapped linear address -- the hosted equivalent of dereferencing a
// volatile MMIO pointer. The caller must have mapped the range via MapIO.
func (m *Manager) MMIOBytes(kernel *AddressSpace, linear uint64, size uint64) ([]byte, defs.Err_t) {
	kernel.mu.Lock()
	pte, ok := kernel.Dir.Lookup(linear)
	kernel.mu.Unlock()
	if !ok || !pte.Present() {
		return nil, defs.BAD_PARAMETER
	}
	off := pte.Frame()<<pteFrameShift | pageOffset(linear)
	if off+size > m.mmioSize {
		return nil, defs.BAD_PARAMETER
	}
	return m.mmio[off : off+size], defs.SUCCESS
}

func (as *AddressSpace) String() string {
	return fmt.Sprintf("AddressSpace{regions=%d}", len(as.regions))
}
