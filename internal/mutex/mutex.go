// Package mutex implements the recursive, task-owned mutex described in
// spec.md §3.3/§4.4: FIFO wakeup order, timeout-bounded waits, and
// no-barging ownership transfer (the woken waiter becomes the owner
// directly; a task calling Lock while another is already queued can never
// steal the lock ahead of it).
//
// Grounded on tinfo.Tnote_t's per-task Killnaps pattern (a condition
// variable plus an error code delivered to the waiter) and accnt.Accnt_t's
// ownership bookkeeping, generalized from "thread blocked on a runtime
// channel" into an explicit FIFO wait queue built on internal/klist so
// wakeup order is observable and testable.
package mutex

import (
	"sync"
	"time"

	"github.com/Jango73/EXOS-sub006/internal/defs"
	"github.com/Jango73/EXOS-sub006/internal/klist"
)

// waiter is one blocked Lock call, queued in FIFO order.
type waiter struct {
	link klist.Link[waiter]
	tid  defs.Tid_t
	wake chan defs.Err_t // exactly one value is ever sent
}

func waiterLink(w *waiter) *klist.Link[waiter] { return &w.link }

// Mutex is a recursive, task-owned, FIFO-waiter lock. The zero value is not
// usable; construct with New.
type Mutex struct {
	guard sync.Mutex // protects the fields below only, never held during a caller's wait

	held      bool
	owner     defs.Tid_t
	recursion int

	waiters *klist.List[waiter]
}

// New constructs an unlocked mutex.
func New() *Mutex {
	return &Mutex{waiters: klist.New[waiter](waiterLink, nil)}
}

// TryLock attempts to acquire the mutex for tid without blocking. It
// succeeds immediately if the mutex is free or already recursively held by
// tid.
func (m *Mutex) TryLock(tid defs.Tid_t) bool {
	m.guard.Lock()
	defer m.guard.Unlock()
	return m.tryAcquireLocked(tid)
}

// tryAcquireLocked must be called with m.guard held. It only grants the
// lock to a fresh caller when no one is already queued, preserving FIFO
// order: an unlocked mutex with waiters present is being handed to the
// head waiter, not up for grabs.
func (m *Mutex) tryAcquireLocked(tid defs.Tid_t) bool {
	if m.held && m.owner == tid {
		m.recursion++
		return true
	}
	if !m.held && m.waiters.GetSize() == 0 {
		m.held = true
		m.owner = tid
		m.recursion = 1
		return true
	}
	return false
}

// Lock blocks until tid holds the mutex. It never returns an error; use
// LockTimeout for a bounded wait.
func (m *Mutex) Lock(tid defs.Tid_t) {
	m.LockTimeout(tid, 0)
}

// LockTimeout blocks until tid holds the mutex or timeout elapses (0 means
// wait forever). Waiters are served strictly in FIFO order: Unlock hands
// ownership directly to the head of the queue rather than releasing the
// lock for open contention, so a task already queued can never be passed
// over by one that called Lock later.
func (m *Mutex) LockTimeout(tid defs.Tid_t, timeout time.Duration) defs.Err_t {
	m.guard.Lock()
	if m.tryAcquireLocked(tid) {
		m.guard.Unlock()
		return defs.SUCCESS
	}

	w := &waiter{tid: tid, wake: make(chan defs.Err_t, 1)}
	m.waiters.AddTail(w)
	m.guard.Unlock()

	if timeout <= 0 {
		return <-w.wake
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-w.wake:
		return err
	case <-timer.C:
		m.guard.Lock()
		// The waiter may have been handed the lock in the window between
		// the timer firing and acquiring guard; check wake one more time
		// before declaring a timeout.
		select {
		case err := <-w.wake:
			m.guard.Unlock()
			return err
		default:
		}
		m.waiters.Remove(w)
		m.guard.Unlock()
		return defs.TIMEOUT
	}
}

// Unlock releases one level of recursive ownership held by tid. When the
// outermost level is released and waiters are queued, ownership transfers
// directly to the FIFO head; otherwise the mutex becomes free.
func (m *Mutex) Unlock(tid defs.Tid_t) defs.Err_t {
	m.guard.Lock()
	defer m.guard.Unlock()

	if !m.held || m.owner != tid {
		return defs.NO_PERMISSION
	}
	m.recursion--
	if m.recursion > 0 {
		return defs.SUCCESS
	}

	if head := m.waiters.Front(); head != nil {
		m.waiters.Remove(head)
		m.owner = head.tid
		m.recursion = 1
		head.wake <- defs.SUCCESS
		return defs.SUCCESS
	}

	m.held = false
	m.owner = 0
	return defs.SUCCESS
}

// Delete consumes the mutex, failing with BUSY if it is currently held by
// anyone or has waiters queued -- spec.md §4.4's delete() contract.
func (m *Mutex) Delete() defs.Err_t {
	m.guard.Lock()
	defer m.guard.Unlock()
	if m.held || m.waiters.GetSize() != 0 {
		return defs.BUSY
	}
	return defs.SUCCESS
}

// IsHeldBy reports whether tid currently owns the mutex, for assertions and
// tests.
func (m *Mutex) IsHeldBy(tid defs.Tid_t) bool {
	m.guard.Lock()
	defer m.guard.Unlock()
	return m.held && m.owner == tid
}

// WaiterCount reports how many tasks are currently queued, for tests.
func (m *Mutex) WaiterCount() int {
	m.guard.Lock()
	defer m.guard.Unlock()
	return m.waiters.GetSize()
}
