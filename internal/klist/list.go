// Package klist implements the intrusive doubly-linked list described in
// spec.md §4.1: O(1) insert/remove by node identity, an optional
// destructor hook, and a node-identity guarantee (a node belongs to at
// most one list) enforced by the container rather than by convention.
// There are no allocator hooks: callers allocate and own every node.
//
// Grounded on biscuit/src/fs.BlkList_t, which wraps container/list for
// exactly this purpose (a list of *Bdev_block_t with Front/Back/Remove/
// Append/Apply). klist generalizes that to any element type and makes the
// list genuinely intrusive: the link fields live inside the element
// (embedded Link[T]) instead of being boxed into a container/list.Element.
package klist

// Link is embedded by any type that wants to sit in a List[T]. It is the
// Go replacement for spec.md's LISTNODE_FIELDS macro (§9 Design Notes).
type Link[T any] struct {
	next, prev *T
	owner      *List[T]
}

// List is an intrusive doubly-linked list of *T. Construct it with New:
// the zero value has no accessor and panics on first use. Destructor may
// be set to run cleanup when a node is Erase'd instead of merely Remove'd.
type List[T any] struct {
	head, tail *T
	size       int
	acc        accessor[T]

	// Destructor, if non-nil, is invoked by Erase/EraseLast/Reset -- the
	// spec's "optional destructor ... hook" on new_list.
	Destructor func(*T)
}

// accessor reaches a node's embedded Link[T]. Go generics cannot require
// "T embeds Link[T]" structurally, so every concrete element type provides
// a tiny accessor method and passes it to New.
type accessor[T any] func(*T) *Link[T]

// New constructs an empty list given the accessor that reaches a node's
// embedded Link[T]. destructor may be nil.
func New[T any](acc accessor[T], destructor func(*T)) *List[T] {
	return &List[T]{Destructor: destructor, acc: acc}
}

func (l *List[T]) a() accessor[T] { return l.acc }

// GetSize returns the number of elements currently linked.
func (l *List[T]) GetSize() int { return l.size }

func (l *List[T]) checkFree(n *T) {
	lk := l.a()(n)
	if lk.owner != nil {
		panic("klist: node already belongs to a list")
	}
}

// AddTail appends n to the end of the list. O(1).
func (l *List[T]) AddTail(n *T) {
	l.checkFree(n)
	lk := l.a()(n)
	lk.owner = l
	lk.prev = l.tail
	lk.next = nil
	if l.tail != nil {
		l.a()(l.tail).next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.size++
}

// AddHead prepends n to the front of the list. O(1).
func (l *List[T]) AddHead(n *T) {
	l.checkFree(n)
	lk := l.a()(n)
	lk.owner = l
	lk.next = l.head
	lk.prev = nil
	if l.head != nil {
		l.a()(l.head).prev = n
	} else {
		l.tail = n
	}
	l.head = n
	l.size++
}

// AddItem is an alias for AddTail (spec.md names it separately from
// AddTail, but both append).
func (l *List[T]) AddItem(n *T) { l.AddTail(n) }

// AddBefore inserts n immediately before mark. mark must currently belong
// to this list.
func (l *List[T]) AddBefore(mark, n *T) {
	l.checkFree(n)
	ml := l.a()(mark)
	if ml.owner != l {
		panic("klist: mark does not belong to this list")
	}
	nl := l.a()(n)
	nl.owner = l
	nl.next = mark
	nl.prev = ml.prev
	if ml.prev != nil {
		l.a()(ml.prev).next = n
	} else {
		l.head = n
	}
	ml.prev = n
	l.size++
}

// AddAfter inserts n immediately after mark. mark must currently belong to
// this list.
func (l *List[T]) AddAfter(mark, n *T) {
	l.checkFree(n)
	ml := l.a()(mark)
	if ml.owner != l {
		panic("klist: mark does not belong to this list")
	}
	nl := l.a()(n)
	nl.owner = l
	nl.prev = mark
	nl.next = ml.next
	if ml.next != nil {
		l.a()(ml.next).prev = n
	} else {
		l.tail = n
	}
	ml.next = n
	l.size++
}

// Remove unlinks n from the list and returns it. It does not invoke the
// destructor. Panics if n does not belong to this list.
func (l *List[T]) Remove(n *T) *T {
	lk := l.a()(n)
	if lk.owner != l {
		panic("klist: node does not belong to this list")
	}
	if lk.prev != nil {
		l.a()(lk.prev).next = lk.next
	} else {
		l.head = lk.next
	}
	if lk.next != nil {
		l.a()(lk.next).prev = lk.prev
	} else {
		l.tail = lk.prev
	}
	lk.next, lk.prev, lk.owner = nil, nil, nil
	l.size--
	return n
}

// Erase removes n and, if Destructor is set, runs it.
func (l *List[T]) Erase(n *T) {
	l.Remove(n)
	if l.Destructor != nil {
		l.Destructor(n)
	}
}

// EraseLast erases the tail element, if any.
func (l *List[T]) EraseLast() {
	if l.tail != nil {
		l.Erase(l.tail)
	}
}

// Reset removes (and, if set, destructs) every element.
func (l *List[T]) Reset() {
	for l.head != nil {
		l.Erase(l.head)
	}
}

// Front returns the head element, or nil.
func (l *List[T]) Front() *T { return l.head }

// Back returns the tail element, or nil.
func (l *List[T]) Back() *T { return l.tail }

// Next returns the element following n within this list, or nil.
func (l *List[T]) Next(n *T) *T { return l.a()(n).next }

// Prev returns the element preceding n within this list, or nil.
func (l *List[T]) Prev(n *T) *T { return l.a()(n).prev }

// GetItem returns the element at the given zero-based index, or nil if out
// of range. O(n).
func (l *List[T]) GetItem(index int) *T {
	if index < 0 {
		return nil
	}
	i := 0
	for n := l.head; n != nil; n = l.a()(n).next {
		if i == index {
			return n
		}
		i++
	}
	return nil
}

// GetItemIndex returns the zero-based index of n within the list, or -1.
func (l *List[T]) GetItemIndex(n *T) int {
	i := 0
	for c := l.head; c != nil; c = l.a()(c).next {
		if c == n {
			return i
		}
		i++
	}
	return -1
}

// Merge appends every element of other onto l, leaving other empty. The
// elements themselves are relinked rather than copied, one at a time, so
// the operation is O(len(other)).
func (l *List[T]) Merge(other *List[T]) {
	for n := other.head; n != nil; {
		next := l.a()(n).next
		l.a()(n).owner = nil // detach so AddTail's checkFree passes
		l.AddTail(n)
		n = next
	}
	other.head, other.tail, other.size = nil, nil, 0
}

// Sort stably reorders the list's elements using cmp (negative/zero/
// positive like strings.Compare). Stability matters: spec.md requires it
// because file enumeration relies on insertion order within equal keys.
func (l *List[T]) Sort(cmp func(a, b *T) int) {
	if l.size < 2 {
		return
	}
	items := make([]*T, 0, l.size)
	for n := l.head; n != nil; n = l.a()(n).next {
		items = append(items, n)
	}
	// insertion sort: stable, and the lists this package manages (run
	// queues, open-file lists, directory pages) are small.
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && cmp(items[j-1], items[j]) > 0 {
			items[j-1], items[j] = items[j], items[j-1]
			j--
		}
	}
	l.head, l.tail = nil, nil
	for _, n := range items {
		lk := l.a()(n)
		lk.next, lk.prev, lk.owner = nil, nil, nil
	}
	l.size = 0
	for _, n := range items {
		l.AddTail(n)
	}
}
