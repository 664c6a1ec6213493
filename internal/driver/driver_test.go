package driver

import (
	"testing"

	"github.com/Jango73/EXOS-sub006/internal/defs"
)

type stubDriver struct {
	name string
	typ  Type
}

func (d *stubDriver) Command(function uint32, param uintptr) (uintptr, defs.Err_t) {
	return param, defs.SUCCESS
}
func (d *stubDriver) Type() Type   { return d.typ }
func (d *stubDriver) Name() string { return d.name }

type stubFactory struct {
	vendor uint16
	name   string
	typ    Type
}

func (f *stubFactory) Match(dev PCIDevice) bool { return dev.VendorID == f.vendor }
func (f *stubFactory) Attach(dev PCIDevice) (Driver, defs.Err_t) {
	return &stubDriver{name: f.name, typ: f.typ}, defs.SUCCESS
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	d := &stubDriver{name: "ahci0", typ: TypeHardDisk}
	if err := r.Register(d); err != defs.SUCCESS {
		t.Fatal(err)
	}
	got, ok := r.Lookup("ahci0")
	if !ok || got != d {
		t.Fatal("expected to find registered driver by name")
	}
	if len(r.ByType(TypeHardDisk)) != 1 {
		t.Fatal("expected one driver of type TypeHardDisk")
	}
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubDriver{name: "x", typ: TypeOther})
	if err := r.Register(&stubDriver{name: "x", typ: TypeOther}); err != defs.BAD_PARAMETER {
		t.Fatalf("duplicate register = %v, want BAD_PARAMETER", err)
	}
}

func TestBusProbeAttachesMatchingFactory(t *testing.T) {
	devs := []PCIDevice{
		{Bus: 0, Device: 1, Function: 0, VendorID: 0x8086, DeviceID: 0x2922},
		{Bus: 0, Device: 2, Function: 0, VendorID: 0xdead, DeviceID: 0xbeef},
	}
	b := NewBus(devs)
	b.AddFactory(&stubFactory{vendor: 0x8086, name: "ahci0", typ: TypeHardDisk})

	reg := NewRegistry()
	errs := b.Probe(reg)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if _, ok := reg.Lookup("ahci0"); !ok {
		t.Fatal("expected matching device to be attached")
	}
	if len(reg.ByType(TypeHardDisk)) != 1 {
		t.Fatal("expected exactly one attached hard disk driver")
	}
}
