// Package ext2stub implements an in-memory EXT2-like file-system backend
// (spec.md §4.8): a flat path-to-bytes map, with no directories or
// inodes, that exercises the fsdisp dispatch layer without needing a
// real on-disk EXT2 image.
//
// Grounded on biscuit/src/fs's inode-table-over-a-map style used in its
// test fixtures, and on internal/driver.Driver for the Command(function,
// param) vtable every FS backend implements.
package ext2stub

import (
	"sync"
	"unsafe"

	"github.com/Jango73/EXOS-sub006/internal/defs"
	"github.com/Jango73/EXOS-sub006/internal/driver"
)

// Func* alias the shared FS ABI command set (internal/defs.FSFunc) under
// this package's own Command vtable, per spec.md §6.3.
const (
	FuncGetVolumeInfo   = uint32(defs.FSGetVolumeInfo)
	FuncSetVolumeInfo   = uint32(defs.FSSetVolumeInfo)
	FuncFlush           = uint32(defs.FSFlush)
	FuncCreateFolder    = uint32(defs.FSCreateFolder)
	FuncDeleteFolder    = uint32(defs.FSDeleteFolder)
	FuncRenameFolder    = uint32(defs.FSRenameFolder)
	FuncOpen            = uint32(defs.FSOpenFile)
	FuncOpenNext        = uint32(defs.FSOpenNext)
	FuncClose           = uint32(defs.FSCloseFile)
	FuncDeleteFile      = uint32(defs.FSDeleteFile)
	FuncRenameFile      = uint32(defs.FSRenameFile)
	FuncRead            = uint32(defs.FSRead)
	FuncWrite           = uint32(defs.FSWrite)
	FuncGetPosition     = uint32(defs.FSGetPosition)
	FuncSetPosition     = uint32(defs.FSSetPosition)
	FuncGetAttributes   = uint32(defs.FSGetAttributes)
	FuncStat            = FuncGetAttributes
	FuncSetAttributes   = uint32(defs.FSSetAttributes)
	FuncCreatePartition = uint32(defs.FSCreatePartition)
)

// OpenArgs/RWArgs/StatArgs are the parameter blocks passed through
// Command's param uintptr, mirroring internal/ahci's IORequest pattern.
type OpenArgs struct {
	Path   string
	Handle int // out
}

type RWArgs struct {
	Handle int
	Offset int64
	Buffer []byte
	N      int // out
}

type StatArgs struct {
	Path string
	Size int64 // out
}

// RenameArgs renames OldPath to NewPath.
type RenameArgs struct {
	OldPath string
	NewPath string
}

// PositionArgs gets or sets a handle's tracked read/write position.
type PositionArgs struct {
	Handle int
	Pos    int64 // in for SetPosition, out for GetPosition
}

// VolumeInfoArgs reports aggregate volume statistics.
type VolumeInfoArgs struct {
	FileCount  int   // out
	TotalBytes int64 // out
}

type file struct {
	data []byte
}

// FS is a flat in-memory filesystem: every path maps directly to a byte
// blob, with no real directory hierarchy -- adequate for exercising the
// dispatch/open-cache layer above it, which is what this stub exists for.
type FS struct {
	mu       sync.Mutex
	files    map[string]*file
	handles  map[int]string
	position map[int]int64
	nextH    int
}

func New() *FS {
	return &FS{
		files:    make(map[string]*file),
		handles:  make(map[int]string),
		position: make(map[int]int64),
	}
}

// WriteFile seeds path with initial content, for boot-time fixtures and
// tests.
func (f *FS) WriteFile(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.files[path] = &file{data: cp}
}

// Driver adapts FS to internal/driver.Driver.
type Driver struct {
	name string
	fs   *FS
}

func NewDriver(name string, fs *FS) *Driver { return &Driver{name: name, fs: fs} }

func (d *Driver) Type() driver.Type { return driver.TypeFileSystem }
func (d *Driver) Name() string      { return d.name }

func (d *Driver) Command(function uint32, param uintptr) (uintptr, defs.Err_t) {
	switch function {
	case FuncOpen:
		args := (*OpenArgs)(unsafe.Pointer(param))
		return 0, d.open(args)
	case FuncRead:
		args := (*RWArgs)(unsafe.Pointer(param))
		return 0, d.read(args)
	case FuncWrite:
		args := (*RWArgs)(unsafe.Pointer(param))
		return 0, d.write(args)
	case FuncClose:
		h := int(param)
		return 0, d.close(h)
	case FuncGetAttributes:
		args := (*StatArgs)(unsafe.Pointer(param))
		return 0, d.stat(args)
	case FuncDeleteFile:
		args := (*StatArgs)(unsafe.Pointer(param))
		return 0, d.deleteFile(args.Path)
	case FuncRenameFile:
		args := (*RenameArgs)(unsafe.Pointer(param))
		return 0, d.renameFile(args)
	case FuncGetPosition:
		args := (*PositionArgs)(unsafe.Pointer(param))
		return 0, d.getPosition(args)
	case FuncSetPosition:
		args := (*PositionArgs)(unsafe.Pointer(param))
		return 0, d.setPosition(args)
	case FuncGetVolumeInfo:
		args := (*VolumeInfoArgs)(unsafe.Pointer(param))
		return 0, d.volumeInfo(args)
	case FuncFlush:
		return 0, defs.SUCCESS // nothing buffered beyond the in-memory map itself
	case FuncSetVolumeInfo, FuncCreateFolder, FuncDeleteFolder, FuncRenameFolder,
		FuncOpenNext, FuncSetAttributes, FuncCreatePartition:
		// No mutable volume metadata, directory hierarchy, extended
		// attributes, or partitioning exist in this flat in-memory stub.
		return 0, defs.NOT_IMPLEMENTED
	default:
		return 0, defs.NOT_IMPLEMENTED
	}
}

func (d *Driver) open(args *OpenArgs) defs.Err_t {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	if _, ok := d.fs.files[args.Path]; !ok {
		d.fs.files[args.Path] = &file{}
	}
	d.fs.nextH++
	h := d.fs.nextH
	d.fs.handles[h] = args.Path
	args.Handle = h
	return defs.SUCCESS
}

func (d *Driver) close(handle int) defs.Err_t {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	if _, ok := d.fs.handles[handle]; !ok {
		return defs.BAD_PARAMETER
	}
	delete(d.fs.handles, handle)
	delete(d.fs.position, handle)
	return defs.SUCCESS
}

func (d *Driver) read(args *RWArgs) defs.Err_t {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	path, ok := d.fs.handles[args.Handle]
	if !ok {
		return defs.BAD_PARAMETER
	}
	f := d.fs.files[path]
	if args.Offset >= int64(len(f.data)) {
		args.N = 0
		return defs.SUCCESS
	}
	n := copy(args.Buffer, f.data[args.Offset:])
	args.N = n
	return defs.SUCCESS
}

func (d *Driver) write(args *RWArgs) defs.Err_t {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	path, ok := d.fs.handles[args.Handle]
	if !ok {
		return defs.BAD_PARAMETER
	}
	f := d.fs.files[path]
	end := args.Offset + int64(len(args.Buffer))
	if end > int64(cap(f.data)) {
		// Capacity at least doubles on each reallocation.
		newCap := 2 * int64(cap(f.data))
		if newCap < end {
			newCap = end
		}
		grown := make([]byte, end, newCap)
		copy(grown, f.data)
		f.data = grown
	} else if end > int64(len(f.data)) {
		f.data = f.data[:end]
	}
	n := copy(f.data[args.Offset:end], args.Buffer)
	args.N = n
	return defs.SUCCESS
}

func (d *Driver) stat(args *StatArgs) defs.Err_t {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	f, ok := d.fs.files[args.Path]
	if !ok {
		return defs.BAD_PARAMETER
	}
	args.Size = int64(len(f.data))
	return defs.SUCCESS
}

func (d *Driver) deleteFile(path string) defs.Err_t {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	if _, ok := d.fs.files[path]; !ok {
		return defs.BAD_PARAMETER
	}
	delete(d.fs.files, path)
	return defs.SUCCESS
}

func (d *Driver) renameFile(args *RenameArgs) defs.Err_t {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	f, ok := d.fs.files[args.OldPath]
	if !ok {
		return defs.BAD_PARAMETER
	}
	delete(d.fs.files, args.OldPath)
	d.fs.files[args.NewPath] = f
	for h, p := range d.fs.handles {
		if p == args.OldPath {
			d.fs.handles[h] = args.NewPath
		}
	}
	return defs.SUCCESS
}

func (d *Driver) getPosition(args *PositionArgs) defs.Err_t {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	if _, ok := d.fs.handles[args.Handle]; !ok {
		return defs.BAD_PARAMETER
	}
	args.Pos = d.fs.position[args.Handle]
	return defs.SUCCESS
}

func (d *Driver) setPosition(args *PositionArgs) defs.Err_t {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	if _, ok := d.fs.handles[args.Handle]; !ok {
		return defs.BAD_PARAMETER
	}
	d.fs.position[args.Handle] = args.Pos
	return defs.SUCCESS
}

func (d *Driver) volumeInfo(args *VolumeInfoArgs) defs.Err_t {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	var total int64
	for _, f := range d.fs.files {
		total += int64(len(f.data))
	}
	args.FileCount = len(d.fs.files)
	args.TotalBytes = total
	return defs.SUCCESS
}
