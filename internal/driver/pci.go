package driver

import "github.com/Jango73/EXOS-sub006/internal/defs"

// PCIDevice is one simulated PCI configuration-space entry -- enough of
// pci/olddiski.go's Disk_i shape plus bus/device/function addressing to
// let a Factory decide which driver, if any, claims the device.
type PCIDevice struct {
	Bus, Device, Function uint8
	VendorID, DeviceID    uint16
	ClassCode, SubClass   uint8
}

// Factory builds a Driver for a matching PCIDevice. Match reports whether
// this factory claims dev; Attach constructs and returns the bound
// driver.
type Factory interface {
	Match(dev PCIDevice) bool
	Attach(dev PCIDevice) (Driver, defs.Err_t)
}

// Bus enumerates a fixed set of simulated PCI devices (there being no real
// configuration-space bus to probe in a hosted kernel) and attaches the
// first matching Factory to each, registering the result.
type Bus struct {
	devices   []PCIDevice
	factories []Factory
}

func NewBus(devices []PCIDevice) *Bus {
	return &Bus{devices: devices}
}

// AddFactory registers f as a candidate driver builder, tried in
// registration order for every device during Probe.
func (b *Bus) AddFactory(f Factory) {
	b.factories = append(b.factories, f)
}

// Probe walks every simulated device, attaching and registering the first
// matching factory's driver. Devices matched by no factory are skipped
// silently, matching the teacher's tolerant enumerate-and-attach-what-you-
// can boot sequence.
func (b *Bus) Probe(reg *Registry) []defs.Err_t {
	var errs []defs.Err_t
	for _, dev := range b.devices {
		for _, f := range b.factories {
			if !f.Match(dev) {
				continue
			}
			drv, err := f.Attach(dev)
			if err != defs.SUCCESS {
				errs = append(errs, err)
				break
			}
			if err := reg.Register(drv); err != defs.SUCCESS {
				errs = append(errs, err)
			}
			break
		}
	}
	return errs
}

// Devices returns the bus's simulated device list, for tests and
// diagnostics.
func (b *Bus) Devices() []PCIDevice { return b.devices }
