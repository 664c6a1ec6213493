package xfs

import (
	"testing"
	"unsafe"

	"github.com/Jango73/EXOS-sub006/internal/defs"
)

type memBlockDevice struct {
	blocks map[uint32][]byte
}

func newMemBlockDevice() *memBlockDevice {
	return &memBlockDevice{blocks: make(map[uint32][]byte)}
}

func (d *memBlockDevice) ReadBlock(index uint32, buf []byte) defs.Err_t {
	b, ok := d.blocks[index]
	if !ok {
		return defs.FS_BADSECTOR
	}
	copy(buf, b)
	return defs.SUCCESS
}

func (d *memBlockDevice) WriteBlock(index uint32, buf []byte) defs.Err_t {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.blocks[index] = cp
	return defs.SUCCESS
}

func TestFormatAndMountRoundTrip(t *testing.T) {
	dev := newMemBlockDevice()
	fsys, err := Format(dev, 4096, 256)
	if err != defs.SUCCESS {
		t.Fatalf("Format: %v", err)
	}
	if fsys.sb.ClusterLen() != 4096 || fsys.sb.ClusterCount() != 256 {
		t.Fatalf("unexpected superblock fields: %+v", fsys.sb)
	}

	mounted, err := Mount(dev)
	if err != defs.SUCCESS {
		t.Fatalf("Mount: %v", err)
	}
	if mounted.sb.Magic() != Magic {
		t.Fatalf("Magic = %x, want %x", mounted.sb.Magic(), Magic)
	}
}

func TestMountRejectsBadMagic(t *testing.T) {
	dev := newMemBlockDevice()
	dev.blocks[0] = make([]byte, blockSize)
	if _, err := Mount(dev); err != defs.FS_BADSECTOR {
		t.Fatalf("err = %v, want FS_BADSECTOR", err)
	}
}

func TestCreateAndReadFile(t *testing.T) {
	dev := newMemBlockDevice()
	fsys, _ := Format(dev, 4096, 256)
	content := []byte("hello cluster world")
	if err := fsys.CreateFile("greeting", content); err != defs.SUCCESS {
		t.Fatalf("CreateFile: %v", err)
	}
	got, err := fsys.ReadFile("greeting")
	if err != defs.SUCCESS {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("ReadFile = %q, want %q", got, content)
	}
}

func TestDriverOpenWriteReadClose(t *testing.T) {
	dev := newMemBlockDevice()
	fsys, _ := Format(dev, 4096, 256)
	drv := NewDriver("XFS0", fsys)

	open := &OpenArgs{Path: "notes"}
	if _, err := drv.Command(FuncOpen, uintptr(unsafe.Pointer(open))); err != defs.SUCCESS {
		t.Fatalf("open: %v", err)
	}
	if open.Handle == 0 {
		t.Fatal("expected non-zero handle")
	}

	payload := []byte("on-disk payload")
	wr := &RWArgs{Handle: open.Handle, Buffer: payload}
	if _, err := drv.Command(FuncWrite, uintptr(unsafe.Pointer(wr))); err != defs.SUCCESS {
		t.Fatalf("write: %v", err)
	}
	if wr.N != len(payload) {
		t.Fatalf("write N = %d, want %d", wr.N, len(payload))
	}

	buf := make([]byte, len(payload))
	rd := &RWArgs{Handle: open.Handle, Buffer: buf}
	if _, err := drv.Command(FuncRead, uintptr(unsafe.Pointer(rd))); err != defs.SUCCESS {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:rd.N]) != string(payload) {
		t.Fatalf("read = %q, want %q", buf[:rd.N], payload)
	}

	if _, err := drv.Command(FuncClose, uintptr(open.Handle)); err != defs.SUCCESS {
		t.Fatalf("close: %v", err)
	}
}

func TestDriverStatReturnsSize(t *testing.T) {
	dev := newMemBlockDevice()
	fsys, _ := Format(dev, 4096, 256)
	fsys.CreateFile("sized", make([]byte, 123))
	drv := NewDriver("XFS0", fsys)

	st := &StatArgs{Path: "sized"}
	if _, err := drv.Command(FuncStat, uintptr(unsafe.Pointer(st))); err != defs.SUCCESS {
		t.Fatalf("stat: %v", err)
	}
	if st.Size != 123 {
		t.Fatalf("Size = %d, want 123", st.Size)
	}
}

func TestDriverGetSetPosition(t *testing.T) {
	dev := newMemBlockDevice()
	fsys, _ := Format(dev, 4096, 256)
	drv := NewDriver("XFS0", fsys)

	open := &OpenArgs{Path: "seekable"}
	drv.Command(FuncOpen, uintptr(unsafe.Pointer(open)))

	set := &PositionArgs{Handle: open.Handle, Pos: 42}
	if _, err := drv.Command(FuncSetPosition, uintptr(unsafe.Pointer(set))); err != defs.SUCCESS {
		t.Fatalf("SetPosition: %v", err)
	}

	get := &PositionArgs{Handle: open.Handle}
	if _, err := drv.Command(FuncGetPosition, uintptr(unsafe.Pointer(get))); err != defs.SUCCESS {
		t.Fatalf("GetPosition: %v", err)
	}
	if get.Pos != 42 {
		t.Fatalf("Pos = %d, want 42", get.Pos)
	}
}

func TestDriverGetPositionUnknownHandle(t *testing.T) {
	dev := newMemBlockDevice()
	fsys, _ := Format(dev, 4096, 256)
	drv := NewDriver("XFS0", fsys)

	get := &PositionArgs{Handle: 999}
	if _, err := drv.Command(FuncGetPosition, uintptr(unsafe.Pointer(get))); err != defs.BAD_PARAMETER {
		t.Fatalf("err = %v, want BAD_PARAMETER", err)
	}
}

func TestDriverGetVolumeInfo(t *testing.T) {
	dev := newMemBlockDevice()
	fsys, _ := Format(dev, 4096, 256)
	drv := NewDriver("XFS0", fsys)
	fsys.CreateFile("a", []byte("x"))
	fsys.CreateFile("b", []byte("y"))

	info := &VolumeInfoArgs{}
	if _, err := drv.Command(FuncGetVolumeInfo, uintptr(unsafe.Pointer(info))); err != defs.SUCCESS {
		t.Fatalf("GetVolumeInfo: %v", err)
	}
	if info.ClusterLen != 4096 || info.ClusterCount != 256 {
		t.Fatalf("unexpected geometry: %+v", info)
	}
	if info.FileCount != 2 {
		t.Fatalf("FileCount = %d, want 2", info.FileCount)
	}
}

func TestDriverFlush(t *testing.T) {
	dev := newMemBlockDevice()
	fsys, _ := Format(dev, 4096, 256)
	drv := NewDriver("XFS0", fsys)

	if _, err := drv.Command(FuncFlush, 0); err != defs.SUCCESS {
		t.Fatalf("Flush: %v", err)
	}
}

func TestDriverDeleteFileNotImplemented(t *testing.T) {
	dev := newMemBlockDevice()
	fsys, _ := Format(dev, 4096, 256)
	drv := NewDriver("XFS0", fsys)

	st := &StatArgs{Path: "whatever"}
	if _, err := drv.Command(FuncDeleteFile, uintptr(unsafe.Pointer(st))); err != defs.NOT_IMPLEMENTED {
		t.Fatalf("err = %v, want NOT_IMPLEMENTED", err)
	}
}

func TestDriverCreateFolderNotImplemented(t *testing.T) {
	dev := newMemBlockDevice()
	fsys, _ := Format(dev, 4096, 256)
	drv := NewDriver("XFS0", fsys)

	if _, err := drv.Command(FuncCreateFolder, 0); err != defs.NOT_IMPLEMENTED {
		t.Fatalf("err = %v, want NOT_IMPLEMENTED", err)
	}
}
