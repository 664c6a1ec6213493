// Package syscalltable implements the syscall surface (spec.md §4.10): a
// fixed table mapping a numeric syscall ID to a {function, privilege}
// entry, ABI header validation, and privilege-checked dispatch.
//
// Grounded on internal/defs/abi.go's ABIHeader/Privilege types and on
// biscuit/src/caller's call-site validation idiom (here repurposed from
// stack-trace deduplication to privilege-gate enforcement at the syscall
// entry point).
package syscalltable

import (
	"fmt"
	"sync"

	"github.com/Jango73/EXOS-sub006/internal/defs"
)

// Handler is the signature every syscall entry point implements: it
// receives the raw payload (header already stripped/validated by the
// table) and the calling task, returning a result word and an Err_t.
type Handler func(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t)

// Entry is one row of the fixed syscall table.
type Entry struct {
	Name        string
	Privilege   defs.Privilege
	PayloadSize uint32
	Fn          Handler
}

// Well-known syscall numbers, per spec.md §4.10's recognized families.
const (
	SysCreateProcess uint32 = iota + 1
	SysKillProcess
	SysCreateTask
	SysKillTask
	SysSuspend
	SysResume
	SysSleep

	SysPostMessage
	SysSendMessage
	SysPeekMessage
	SysGetMessage
	SysDispatchMessage

	SysMutexLock
	SysMutexUnlock

	SysAllocRegion
	SysFreeRegion
	SysGetProcessHeap
	SysHeapAlloc
	SysHeapFree

	SysOpenFile
	SysCloseFile
	SysReadFile
	SysWriteFile
	SysGetFileSize
	SysGetFilePointer
	SysSetFilePointer
	SysFindFirstFile
	SysFindNextFile

	SysEnumVolumes

	SysConsolePeekKey
	SysConsoleGetKey
	SysConsolePrint
	SysConsoleGetString
	SysConsoleGotoXY

	// SysDesktopBase and above are forwarded into internal/gfx as thin
	// stubs -- their drawing internals are out of scope (spec.md §4.9).
	SysDesktopBase
)

// Table is the fixed {id -> Entry} mapping. New returns it empty; entries
// are added by Register calls at boot, and an id is never overwritten.
type Table struct {
	mu      sync.RWMutex
	entries map[uint32]Entry
}

// New constructs an empty table; callers register entries with Register.
func New() *Table {
	return &Table{entries: make(map[uint32]Entry)}
}

// Register adds id -> entry. Registering the same id twice is a
// programmer error and returns BAD_PARAMETER rather than silently
// overwriting, since the table is meant to be fixed at boot.
func (t *Table) Register(id uint32, entry Entry) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[id]; exists {
		return defs.BAD_PARAMETER
	}
	t.entries[id] = entry
	return defs.SUCCESS
}

// Dispatch validates header against the entry's expected payload size and
// version, checks the caller's privilege dominates the entry's minimum,
// and invokes the handler.
func (t *Table) Dispatch(id uint32, caller defs.Tid_t, callerPriv defs.Privilege, header defs.ABIHeader, payload []byte) (uintptr, defs.Err_t) {
	t.mu.RLock()
	entry, ok := t.entries[id]
	t.mu.RUnlock()
	if !ok {
		return 0, defs.NOT_IMPLEMENTED
	}

	if err := header.Validate(entry.PayloadSize); err != defs.SUCCESS {
		return 0, err
	}
	if !callerPriv.Dominates(entry.Privilege) {
		return 0, defs.NO_PERMISSION
	}
	return entry.Fn(caller, payload)
}

// Lookup returns the registered entry for id, for diagnostics.
func (t *Table) Lookup(id uint32) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	return e, ok
}

// String renders the table for debugging/boot-log dumps.
func (t *Table) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fmt.Sprintf("syscalltable(%d entries)", len(t.entries))
}
