// Package driver implements EXOS's uniform driver vtable and PCI
// enumeration/attach model (spec.md §4.7/§4.8's driver-ABI component).
//
// Grounded on original_source/kernel/include/Driver.h's DRVFUNC
// (UINT (*)(UINT Function, UINT Parameter)) vtable and DRIVER_TYPE_*
// enumeration, and on biscuit/src/pci's Disk_i-style small capability
// interface, generalized here into a single Command method every driver
// implements regardless of device class.
package driver

import (
	"fmt"
	"sync"

	"github.com/Jango73/EXOS-sub006/internal/defs"
)

// Type enumerates device classes, matching Driver.h's DRIVER_TYPE_*
// constants (a subset of the original, far longer list; of these, only
// TypeHardDisk and TypeFileSystem are reported by a driver in this module).
type Type uint32

const (
	TypeNone Type = iota
	TypeClock
	TypeConsole
	TypeInterrupt
	TypeMemory
	TypeHardDisk
	TypeFileSystem
	TypeGraphics
	TypeOther Type = 0xffffffff
)

// Flags mirrors Driver.h's DRIVER_FLAG_* bits.
type Flags uint32

const (
	FlagReady    Flags = 1 << 0
	FlagCritical Flags = 1 << 1
)

// Driver is the uniform interface every device driver implements --
// Driver.h's DRVFUNC vtable generalized to a single dispatch method, since
// Go interfaces do more work than a raw function-pointer union.
type Driver interface {
	// Command dispatches a driver-specific function code with a single
	// parameter and returns a driver-specific result plus an Err_t.
	Command(function uint32, param uintptr) (uintptr, defs.Err_t)

	Type() Type
	Name() string
}

// Registry tracks every attached driver, addressable by name or type --
// the Go counterpart of the kernel's global driver list.
type Registry struct {
	mu     sync.Mutex
	byName map[string]Driver
	byType map[Type][]Driver
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Driver),
		byType: make(map[Type][]Driver),
	}
}

// Register adds d to the registry. It returns BAD_PARAMETER if a driver
// with the same name is already registered.
func (r *Registry) Register(d Driver) defs.Err_t {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[d.Name()]; exists {
		return defs.BAD_PARAMETER
	}
	r.byName[d.Name()] = d
	r.byType[d.Type()] = append(r.byType[d.Type()], d)
	return defs.SUCCESS
}

// Lookup returns the driver registered under name, if any.
func (r *Registry) Lookup(name string) (Driver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byName[name]
	return d, ok
}

// ByType returns every driver of the given class.
func (r *Registry) ByType(t Type) []Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Driver, len(r.byType[t]))
	copy(out, r.byType[t])
	return out
}

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeClock:
		return "clock"
	case TypeConsole:
		return "console"
	case TypeInterrupt:
		return "interrupt"
	case TypeMemory:
		return "memory"
	case TypeHardDisk:
		return "harddisk"
	case TypeFileSystem:
		return "filesystem"
	case TypeGraphics:
		return "graphics"
	case TypeOther:
		return "other"
	default:
		return fmt.Sprintf("Type(%d)", uint32(t))
	}
}
