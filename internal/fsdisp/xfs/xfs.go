// Package xfs implements an on-disk file-system backend (spec.md §4.8):
// a fixed-layout superblock plus cluster directory pages, backed by a
// sector-addressable disk rather than living entirely in memory the way
// ext2stub does.
//
// Grounded on biscuit/src/fs.Superblock_t's fieldr/fieldw idiom (typed
// accessors over fixed integer-sized offsets into a raw block) and on
// internal/ahci.Disk as the sector-addressable backing store, through
// internal/driver.Driver's Command vtable.
package xfs

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"github.com/Jango73/EXOS-sub006/internal/defs"
	"github.com/Jango73/EXOS-sub006/internal/driver"
)

const (
	blockSize = 512
	// Superblock field offsets, each an 8-byte little-endian integer --
	// the same fixed-field-over-raw-bytes layout Superblock_t's
	// fieldr(sb.Data, n) reads at word n.
	sbOffMagic       = 0
	sbOffClusterLen  = 8
	sbOffClusterCnt  = 16
	sbOffRootCluster = 24

	Magic uint64 = 0x5846535f45584f53 // "XFS_EXOS" as bytes, arbitrary but fixed

	dirNameLen = 56
)

// BlockDevice is the minimal capability xfs needs from a disk: read/write
// one fixed-size block by index.
type BlockDevice interface {
	ReadBlock(index uint32, buf []byte) defs.Err_t
	WriteBlock(index uint32, buf []byte) defs.Err_t
}

func fieldr(b []byte, off int) uint64 { return binary.LittleEndian.Uint64(b[off:]) }
func fieldw(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:], v)
}

// Superblock is the on-disk header describing cluster geometry.
type Superblock struct {
	raw [blockSize]byte
}

func (sb *Superblock) Magic() uint64        { return fieldr(sb.raw[:], sbOffMagic) }
func (sb *Superblock) ClusterLen() uint64   { return fieldr(sb.raw[:], sbOffClusterLen) }
func (sb *Superblock) ClusterCount() uint64 { return fieldr(sb.raw[:], sbOffClusterCnt) }
func (sb *Superblock) RootCluster() uint64  { return fieldr(sb.raw[:], sbOffRootCluster) }

func (sb *Superblock) init(clusterLen, clusterCount, rootCluster uint64) {
	fieldw(sb.raw[:], sbOffMagic, Magic)
	fieldw(sb.raw[:], sbOffClusterLen, clusterLen)
	fieldw(sb.raw[:], sbOffClusterCnt, clusterCount)
	fieldw(sb.raw[:], sbOffRootCluster, rootCluster)
}

// dirEntry is one fixed-size slot in the root directory page (block 1):
// a name plus the data cluster it starts at and its length in bytes.
type dirEntry struct {
	name    [dirNameLen]byte
	cluster uint64
	size    uint64
}

const dirEntryOnDiskSize = dirNameLen + 16
const rootDirBlock = 1
const firstDataCluster = 2

func (e *dirEntry) Name() string {
	n := 0
	for n < len(e.name) && e.name[n] != 0 {
		n++
	}
	return string(e.name[:n])
}

func (e *dirEntry) encode(b []byte) {
	copy(b, e.name[:])
	binary.LittleEndian.PutUint64(b[dirNameLen:], e.cluster)
	binary.LittleEndian.PutUint64(b[dirNameLen+8:], e.size)
}

func (e *dirEntry) decode(b []byte) {
	copy(e.name[:], b[:dirNameLen])
	e.cluster = binary.LittleEndian.Uint64(b[dirNameLen:])
	e.size = binary.LittleEndian.Uint64(b[dirNameLen+8:])
}

// FS mounts a BlockDevice formatted with a Superblock at block 0 and a
// root directory page at block 1 holding fixed-size entries; file
// contents live in the data clusters the directory entries reference.
type FS struct {
	mu     sync.Mutex
	dev    BlockDevice
	sb     Superblock
	root   map[string]dirEntry // name -> entry, mirrored from block 1
	nextCl uint64
}

// Format initializes a fresh superblock, an empty root directory page at
// block rootDirBlock, and persists both to dev.
func Format(dev BlockDevice, clusterLen, clusterCount uint64) (*FS, defs.Err_t) {
	fsys := &FS{dev: dev, root: make(map[string]dirEntry), nextCl: firstDataCluster}
	fsys.sb.init(clusterLen, clusterCount, rootDirBlock)

	if err := dev.WriteBlock(0, fsys.sb.raw[:]); err != defs.SUCCESS {
		return nil, err
	}
	if err := fsys.flushDir(); err != defs.SUCCESS {
		return nil, err
	}
	return fsys, defs.SUCCESS
}

// Mount reads an existing superblock and root directory page from dev,
// rebuilding the in-memory name index.
func Mount(dev BlockDevice) (*FS, defs.Err_t) {
	fsys := &FS{dev: dev, root: make(map[string]dirEntry), nextCl: firstDataCluster}
	if err := dev.ReadBlock(0, fsys.sb.raw[:]); err != defs.SUCCESS {
		return nil, err
	}
	if fsys.sb.Magic() != Magic {
		return nil, defs.FS_BADSECTOR
	}

	dirPage := make([]byte, blockSize)
	if err := dev.ReadBlock(rootDirBlock, dirPage); err != defs.SUCCESS {
		return nil, err
	}
	for off := 0; off+dirEntryOnDiskSize <= len(dirPage); off += dirEntryOnDiskSize {
		var e dirEntry
		e.decode(dirPage[off : off+dirEntryOnDiskSize])
		name := e.Name()
		if name == "" {
			continue
		}
		fsys.root[name] = e
		blocks := (e.size + blockSize - 1) / blockSize
		if blocks == 0 {
			blocks = 1
		}
		if e.cluster+blocks > fsys.nextCl {
			fsys.nextCl = e.cluster + blocks
		}
	}
	return fsys, defs.SUCCESS
}

// flushDir writes the in-memory directory index back to the root
// directory page, one dirEntry slot per file.
func (f *FS) flushDir() defs.Err_t {
	dirPage := make([]byte, blockSize)
	off := 0
	for name, e := range f.root {
		if off+dirEntryOnDiskSize > len(dirPage) {
			break
		}
		var ne dirEntry
		copy(ne.name[:], name)
		ne.cluster = e.cluster
		ne.size = e.size
		ne.encode(dirPage[off : off+dirEntryOnDiskSize])
		off += dirEntryOnDiskSize
	}
	return f.dev.WriteBlock(rootDirBlock, dirPage)
}

// CreateFile writes data under name, allocating a fresh data cluster
// (persisted as one block per clusterLen-sized chunk is out of scope for
// this stub; the whole payload is written starting at the cluster's
// block index) and updating the on-disk directory page.
func (f *FS) CreateFile(name string, data []byte) defs.Err_t {
	if len(name) >= dirNameLen {
		return defs.BAD_PARAMETER
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	cluster := f.nextCl
	blocks := uint64((len(data) + blockSize - 1) / blockSize)
	if blocks == 0 {
		blocks = 1
	}
	f.nextCl += blocks

	for i := 0; i*blockSize < len(data); i++ {
		block := make([]byte, blockSize)
		end := (i + 1) * blockSize
		if end > len(data) {
			end = len(data)
		}
		copy(block, data[i*blockSize:end])
		if err := f.dev.WriteBlock(uint32(cluster)+uint32(i), block); err != defs.SUCCESS {
			return err
		}
	}

	var e dirEntry
	copy(e.name[:], name)
	e.cluster = cluster
	e.size = uint64(len(data))
	f.root[name] = e
	return f.flushDir()
}

// ReadFile returns the contents stored under name, reassembled from its
// data clusters.
func (f *FS) ReadFile(name string) ([]byte, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.root[name]
	if !ok {
		return nil, defs.BAD_PARAMETER
	}

	out := make([]byte, 0, e.size)
	remaining := e.size
	for i := uint64(0); remaining > 0; i++ {
		block := make([]byte, blockSize)
		if err := f.dev.ReadBlock(uint32(e.cluster)+uint32(i), block); err != defs.SUCCESS {
			return nil, err
		}
		n := uint64(blockSize)
		if remaining < n {
			n = remaining
		}
		out = append(out, block[:n]...)
		remaining -= n
	}
	return out, defs.SUCCESS
}

// Func* alias the shared FS ABI command set (internal/defs.FSFunc), matching
// ext2stub's so both backends dispatch through the same fsdisp.Dispatcher
// codepath, per spec.md §6.3.
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

type OpenArgs struct {
	Path   string
	Handle int
}

type RWArgs struct {
	Handle int
	Offset int64
	Buffer []byte
	N      int
}

type StatArgs struct {
	Path string
	Size int64
}

// PositionArgs gets or sets a handle's tracked read/write position.
type PositionArgs struct {
	Handle int
	Pos    int64 // in for SetPosition, out for GetPosition
}

// VolumeInfoArgs reports aggregate cluster-geometry statistics from the
// mounted superblock.
type VolumeInfoArgs struct {
	ClusterLen   uint64 // out
	ClusterCount uint64 // out
	FileCount    int    // out
}

// Driver adapts FS to internal/driver.Driver.
type Driver struct {
	name     string
	fs       *FS
	handles  map[int]string
	position map[int]int64
	nextH    int
	mu       sync.Mutex
}

func NewDriver(name string, fs *FS) *Driver {
	return &Driver{name: name, fs: fs, handles: make(map[int]string), position: make(map[int]int64)}
}

func (d *Driver) Type() driver.Type { return driver.TypeFileSystem }
func (d *Driver) Name() string      { return d.name }

func (d *Driver) Command(function uint32, param uintptr) (uintptr, defs.Err_t) {
	switch function {
	case FuncOpen:
		args := (*OpenArgs)(unsafe.Pointer(param))
		d.mu.Lock()
		d.nextH++
		h := d.nextH
		d.handles[h] = args.Path
		args.Handle = h
		d.mu.Unlock()
		return 0, defs.SUCCESS
	case FuncRead:
		args := (*RWArgs)(unsafe.Pointer(param))
		d.mu.Lock()
		path := d.handles[args.Handle]
		d.mu.Unlock()
		data, err := d.fs.ReadFile(path)
		if err != defs.SUCCESS {
			return 0, err
		}
		if args.Offset >= int64(len(data)) {
			args.N = 0
			return 0, defs.SUCCESS
		}
		args.N = copy(args.Buffer, data[args.Offset:])
		return 0, defs.SUCCESS
	case FuncWrite:
		args := (*RWArgs)(unsafe.Pointer(param))
		d.mu.Lock()
		path := d.handles[args.Handle]
		d.mu.Unlock()
		if err := d.fs.CreateFile(path, args.Buffer); err != defs.SUCCESS {
			return 0, err
		}
		args.N = len(args.Buffer)
		return 0, defs.SUCCESS
	case FuncClose:
		d.mu.Lock()
		h := int(param)
		delete(d.handles, h)
		delete(d.position, h)
		d.mu.Unlock()
		return 0, defs.SUCCESS
	case FuncGetAttributes:
		args := (*StatArgs)(unsafe.Pointer(param))
		data, err := d.fs.ReadFile(args.Path)
		if err != defs.SUCCESS {
			return 0, err
		}
		args.Size = int64(len(data))
		return 0, defs.SUCCESS
	case FuncGetPosition:
		args := (*PositionArgs)(unsafe.Pointer(param))
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.handles[args.Handle]; !ok {
			return 0, defs.BAD_PARAMETER
		}
		args.Pos = d.position[args.Handle]
		return 0, defs.SUCCESS
	case FuncSetPosition:
		args := (*PositionArgs)(unsafe.Pointer(param))
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.handles[args.Handle]; !ok {
			return 0, defs.BAD_PARAMETER
		}
		d.position[args.Handle] = args.Pos
		return 0, defs.SUCCESS
	case FuncGetVolumeInfo:
		args := (*VolumeInfoArgs)(unsafe.Pointer(param))
		d.fs.mu.Lock()
		args.ClusterLen = d.fs.sb.ClusterLen()
		args.ClusterCount = d.fs.sb.ClusterCount()
		args.FileCount = len(d.fs.root)
		d.fs.mu.Unlock()
		return 0, defs.SUCCESS
	case FuncFlush:
		return 0, d.fs.flushDir()
	case FuncDeleteFile, FuncRenameFile:
		// Files cannot be deleted or renamed; CreateFile (reached through
		// FuncWrite, which replaces a file's whole contents) is the only
		// mutator.
		return 0, defs.NOT_IMPLEMENTED
	case FuncSetVolumeInfo, FuncCreateFolder, FuncDeleteFolder, FuncRenameFolder,
		FuncOpenNext, FuncSetAttributes, FuncCreatePartition:
		// No mutable superblock fields, directory hierarchy beyond the
		// flat root page, or partition table exist at this FS-driver layer.
		return 0, defs.NOT_IMPLEMENTED
	default:
		return 0, defs.NOT_IMPLEMENTED
	}
}
