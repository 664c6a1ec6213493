// Package kobj implements the common kernel-object prelude described in
// spec.md §3.1: a tagged type id, a strong reference count, a weak owner
// back-reference, and the node links every kernel collection uses.
//
// biscuit has no single file that plays this role — every kernel struct
// (Physpg_t, Bdev_block_t, Stat_t, ...) hand-rolls its own header fields.
// Per spec.md §9's design note, we replace the original C macro
// (LISTNODE_FIELDS, embedded in every struct) with one Go struct composed
// into each concrete kernel type, the same way biscuit composes
// sync.Mutex or Accnt_t into Proc_t.
package kobj

import "sync/atomic"

// TypeID tags the runtime type of a kernel object so polymorphic downcasts
// can check it first (spec.md: SAFE_USE_VALID_ID).
type TypeID int

const (
	TypeNone TypeID = iota
	TypeProcess
	TypeTask
	TypeMutex
	TypeFile
	TypeFileSystem
	TypeDriver
	TypeDisk
	TypePCIDevice
	TypeGraphicsContext
	TypeBrush
	TypePen
	TypeIOControl
	TypeSecurity
)

func (t TypeID) String() string {
	names := [...]string{
		"None", "Process", "Task", "Mutex", "File", "FileSystem",
		"Driver", "Disk", "PCIDevice", "GraphicsContext", "Brush",
		"Pen", "IOControl", "Security",
	}
	if int(t) < 0 || int(t) >= len(names) {
		return "Unknown"
	}
	return names[t]
}

// Header is embedded by every kernel-visible object. It carries identity
// (TypeID), lifetime (references), and ownership (Owner) -- but not list
// membership: spec.md requires that "a node belongs to at most one list,"
// a guarantee the container must enforce, so the list links live in
// klist.Link[T], embedded separately by whichever concrete type needs to
// sit in a klist.List.
type Header struct {
	TypeID     TypeID
	references int32
	Owner      any // weak back-reference to the owning *Process, or nil
}

// Init stamps the type id and sets the initial strong reference count to 1,
// matching spec.md's invariant that references >= 1 as long as an object is
// reachable from any owning list.
func (h *Header) Init(t TypeID) {
	h.TypeID = t
	atomic.StoreInt32(&h.references, 1)
}

// Ref returns the current strong reference count.
func (h *Header) Ref() int32 {
	return atomic.LoadInt32(&h.references)
}

// Retain increments the strong reference count and returns the new value.
func (h *Header) Retain() int32 {
	return atomic.AddInt32(&h.references, 1)
}

// Release decrements the strong reference count and reports whether it
// reached zero (the caller must run the object's destructor and return its
// memory to the owning allocator when true).
func (h *Header) Release() bool {
	return atomic.AddInt32(&h.references, -1) == 0
}

// CheckID panics unless the header carries the expected type id — the Go
// equivalent of SAFE_USE_VALID_ID, used at every polymorphic downcast.
func (h *Header) CheckID(want TypeID) {
	if h.TypeID != want {
		panic("kobj: invalid type id: want " + want.String() + " got " + h.TypeID.String())
	}
}

