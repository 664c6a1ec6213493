package ahci

import (
	"testing"
	"time"

	"github.com/Jango73/EXOS-sub006/internal/defs"
)

func newTestDisk(t *testing.T) *Disk {
	t.Helper()
	d := New(64, 8, time.Minute)
	d.StartPort()
	return d
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	d := newTestDisk(t)
	in := make([]byte, SectorSize)
	copy(in, []byte("hello sector"))

	if err := d.WriteSectors(3, 1, in); err != defs.SUCCESS {
		t.Fatalf("WriteSectors: %v", err)
	}
	out := make([]byte, SectorSize)
	if err := d.ReadSectors(3, 1, out); err != defs.SUCCESS {
		t.Fatalf("ReadSectors: %v", err)
	}
	if string(out[:12]) != "hello sector" {
		t.Fatalf("read back %q, want %q", out[:12], "hello sector")
	}
}

func TestReadPastCapacityRejected(t *testing.T) {
	d := newTestDisk(t)
	buf := make([]byte, SectorSize)
	if err := d.ReadSectors(1000, 1, buf); err != defs.BAD_PARAMETER {
		t.Fatalf("ReadSectors out of range = %v, want BAD_PARAMETER", err)
	}
}

func TestReadWhileStoppedReturnsNoDevice(t *testing.T) {
	d := New(64, 8, time.Minute)
	buf := make([]byte, SectorSize)
	if err := d.ReadSectors(0, 1, buf); err != defs.NODEVICE {
		t.Fatalf("ReadSectors on stopped port = %v, want NODEVICE", err)
	}
}

func TestWriteUpdatesCacheInPlace(t *testing.T) {
	d := newTestDisk(t)
	buf := make([]byte, SectorSize)
	d.ReadSectors(5, 1, buf) // populate cache with zeros

	before := d.cache.size()

	updated := make([]byte, SectorSize)
	copy(updated, []byte("changed"))
	d.WriteSectors(5, 1, updated)

	if d.cache.size() != before {
		t.Fatalf("expected write-through to update the entry in place, cache size changed from %d to %d", before, d.cache.size())
	}

	out := make([]byte, SectorSize)
	d.ReadSectors(5, 1, out)
	if string(out[:7]) != "changed" {
		t.Fatal("expected cache to reflect the write, not stale data")
	}
}

func TestModelAndSerialRoundTrip(t *testing.T) {
	d := newTestDisk(t)
	d.SetModel("EXOS VIRTUAL DISK")
	d.SetSerial("EX0001")

	if got := d.ModelString(); got != "EXOS VIRTUAL DISK" {
		t.Fatalf("ModelString() = %q", got)
	}
	if got := d.SerialString(); got != "EX0001" {
		t.Fatalf("SerialString() = %q", got)
	}
}

func TestDriverReadWriteThroughCommand(t *testing.T) {
	d := newTestDisk(t)
	drv := NewDiskDriver("ahci0", d)

	in := make([]byte, SectorSize)
	copy(in, []byte("via driver"))
	if err := drv.Write(IORequest{LBA: 1, Count: 1, Buffer: in}); err != defs.SUCCESS {
		t.Fatalf("Write: %v", err)
	}
	out := make([]byte, SectorSize)
	if err := drv.Read(IORequest{LBA: 1, Count: 1, Buffer: out}); err != defs.SUCCESS {
		t.Fatalf("Read: %v", err)
	}
	if string(out[:10]) != "via driver" {
		t.Fatalf("got %q", out[:10])
	}
}
