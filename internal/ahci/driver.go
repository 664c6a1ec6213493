package ahci

import (
	"sync"
	"unsafe"

	"github.com/Jango73/EXOS-sub006/internal/defs"
	"github.com/Jango73/EXOS-sub006/internal/driver"
)

// Driver function codes, matching the shape of original_source's
// IOCONTROL-based Read/Write/GetInfo/SetAccess dispatch in SATA.c, folded
// into the single Command(function, param) vtable spec.md's driver ABI
// requires.
const (
	FuncRead uint32 = iota + 1
	FuncWrite
	FuncGetInfo
	FuncIdentify
)

// IORequest is the parameter block a caller passes by pointer (simulated
// here as a Go pointer rather than a physical address, since param is a
// uintptr carrying an unsafe.Pointer in the real ABI).
type IORequest struct {
	LBA    uint64
	Count  int
	Buffer []byte
}

// DiskDriver adapts a Disk to the uniform driver.Driver interface and adds
// the top-half/bottom-half/poll interrupt model spec.md §4.7 describes:
// a command submission records the request as pending, and Poll (or a
// simulated Interrupt, which does the same) runs the bottom half that
// completes it. Read and Write call Poll themselves before returning.
type DiskDriver struct {
	name string
	disk *Disk

	mu      sync.Mutex
	pending func() defs.Err_t // bottom half: finishes the in-flight command
}

func NewDiskDriver(name string, disk *Disk) *DiskDriver {
	return &DiskDriver{name: name, disk: disk}
}

func (d *DiskDriver) Type() driver.Type { return driver.TypeHardDisk }
func (d *DiskDriver) Name() string      { return d.name }

// Command implements driver.Driver: param carries a *IORequest (for
// FuncRead/FuncWrite) or a *DiskInfo (for FuncGetInfo), the same way the
// real ABI passes a pointer packed into a uintptr parameter.
func (d *DiskDriver) Command(function uint32, param uintptr) (uintptr, defs.Err_t) {
	switch function {
	case FuncRead:
		req := (*IORequest)(unsafe.Pointer(param))
		return 0, d.Read(*req)
	case FuncWrite:
		req := (*IORequest)(unsafe.Pointer(param))
		return 0, d.Write(*req)
	case FuncGetInfo:
		out := (*DiskInfo)(unsafe.Pointer(param))
		*out = d.GetInfo()
		return 0, defs.SUCCESS
	case FuncIdentify:
		words := d.disk.Identify()
		dst := (*[256]uint16)(unsafe.Pointer(param))
		*dst = words
		return 0, defs.SUCCESS
	default:
		return 0, defs.NOT_IMPLEMENTED
	}
}

// Read submits a read request and completes it at once through Poll,
// returning its result (matching bounceRead's immediate-completion
// model); no exported call submits a request without completing it.
func (d *DiskDriver) Read(req IORequest) defs.Err_t {
	d.mu.Lock()
	d.pending = func() defs.Err_t {
		return d.disk.ReadSectors(req.LBA, req.Count, req.Buffer)
	}
	d.mu.Unlock()
	return d.Poll()
}

// Write submits a write request the same way Read does.
func (d *DiskDriver) Write(req IORequest) defs.Err_t {
	d.mu.Lock()
	d.pending = func() defs.Err_t {
		return d.disk.WriteSectors(req.LBA, req.Count, req.Buffer)
	}
	d.mu.Unlock()
	return d.Poll()
}

// Poll runs the bottom half for whatever request is currently pending --
// the non-interrupt completion path SATA.c falls back to when interrupts
// are masked during early boot.
func (d *DiskDriver) Poll() defs.Err_t {
	d.mu.Lock()
	p := d.pending
	d.pending = nil
	d.mu.Unlock()
	if p == nil {
		return defs.SUCCESS
	}
	return p()
}

// Interrupt runs the bottom half exactly like Poll, modeling the top-half/
// bottom-half split: an interrupt handler (the top half) would normally
// just signal a waiting task, which then calls into driver code (the
// bottom half) to actually finish the command -- AHCIInterruptHandler's
// role in SATA.c, collapsed here since this driver never truly runs
// concurrently with the command it is completing.
func (d *DiskDriver) Interrupt() defs.Err_t {
	return d.Poll()
}

// GetInfo returns the disk's capacity and identify strings, implementing
// SATA.c's GetInfo IOCONTROL handler.
type DiskInfo struct {
	TotalSectors int
	Model        string
	Serial       string
}

func (d *DiskDriver) GetInfo() DiskInfo {
	return DiskInfo{
		TotalSectors: d.disk.totalSectors(),
		Model:        d.disk.ModelString(),
		Serial:       d.disk.SerialString(),
	}
}
