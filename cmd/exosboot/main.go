// Command exosboot wires the hosted EXOS kernel core's boot sequence:
// physical memory (internal/buddy) -> virtual memory manager
// (internal/vm) -> kernel process/heap (internal/sched, internal/kheap)
// -> kernel task -> drivers enumerated over a simulated PCI bus
// (internal/driver, internal/ahci, internal/fsdisp) -> graphics selector
// (internal/gfx) -> syscall table (internal/syscalltable).
//
// Grounded on original_source/kernel/source's boot sequence (memory,
// then scheduler, then drivers, then syscalls) and on
// canonical-snapd/cmd's go-flags option-struct style for argument
// parsing.
package main

import (
	"fmt"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"
	"go.uber.org/zap/zapcore"

	"github.com/Jango73/EXOS-sub006/internal/ahci"
	"github.com/Jango73/EXOS-sub006/internal/buddy"
	"github.com/Jango73/EXOS-sub006/internal/defs"
	"github.com/Jango73/EXOS-sub006/internal/driver"
	"github.com/Jango73/EXOS-sub006/internal/fsdisp"
	"github.com/Jango73/EXOS-sub006/internal/fsdisp/ext2stub"
	"github.com/Jango73/EXOS-sub006/internal/gfx"
	"github.com/Jango73/EXOS-sub006/internal/kheap"
	"github.com/Jango73/EXOS-sub006/internal/klog"
	"github.com/Jango73/EXOS-sub006/internal/sched"
	"github.com/Jango73/EXOS-sub006/internal/stats"
	"github.com/Jango73/EXOS-sub006/internal/syscalltable"
	"github.com/Jango73/EXOS-sub006/internal/vm"
)

// options is the boot-time configuration surface: how much simulated RAM
// to carve out, how many simulated disk sectors to back the AHCI driver
// with, and which volume label mounts the root file system.
type options struct {
	RAMPages uint32 `long:"ram-pages" default:"4096" description:"physical pages of simulated RAM (4KiB each)"`
	DiskMB   uint32 `long:"disk-mb" default:"16" description:"size in MiB of the simulated AHCI disk"`
	Volume   string `long:"volume" default:"C" description:"volume label the root file system mounts under"`
	Verbose  bool   `long:"verbose" short:"v" description:"enable debug-level kernel logging"`
}

const ahciVendor, ahciDevice uint16 = 0x8086, 0x2922 // ICH9 AHCI, an arbitrary but real-looking ID

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	logger, err := klog.Init(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "exosboot: logger init: %v\n", err)
		os.Exit(1)
	}
	defer klog.Sync()

	log := logger.Sugar()
	log.Infow("booting EXOS kernel core", "ramPages", opts.RAMPages, "diskMB", opts.DiskMB, "volume", opts.Volume)

	phys, err := buddy.New(opts.RAMPages)
	if err != nil {
		log.Fatalw("buddy allocator init failed", "error", err)
	}
	defer phys.Close()

	mgr := vm.NewManager(phys, 16*vm.PageSize)
	kernelAS := mgr.NewAddressSpace()

	heap, kerr := kheap.Init(kernelAS, vm.KernelBase, 64*vm.PageSize)
	if kerr != defs.SUCCESS {
		log.Fatalw("kernel heap init failed", "error", kerr)
	}

	scheduler := sched.New()
	kernelProcess := sched.NewProcess(0, "kernel", nil, 0)
	kernelTask := &sched.Task{ID: 0, Name: "kernel-idle", Process: kernelProcess, Priority: sched.PriorityLow, Status: sched.TaskRunnable}
	kernelProcess.AddTask(kernelTask, scheduler)

	registry := driver.NewRegistry()
	bus := driver.NewBus([]driver.PCIDevice{
		{Bus: 0, Device: 1, Function: 0, VendorID: ahciVendor, DeviceID: ahciDevice, ClassCode: 0x01, SubClass: 0x06},
	})
	disk := ahci.New(int(opts.DiskMB)*1024*1024/ahci.SectorSize, 64, 5*time.Second)
	disk.StartPort()
	bus.AddFactory(ahciFactory{disk: disk})
	if errs := bus.Probe(registry); anyFailed(errs) {
		log.Fatalw("PCI probe failed", "errors", errs)
	}

	fsRegistry := ext2stub.New()
	fsDriver := ext2stub.NewDriver("ext2stub0", fsRegistry)
	dispatcher := fsdisp.New(opts.Volume)
	dispatcher.Mount(opts.Volume, fsDriver)

	selector := gfx.NewSelector(gfx.NewGOPBackend(), gfx.NewVESABackend())

	syscalls := syscalltable.New()
	if serr := syscalltable.RegisterGfxForwarding(syscalls, selector); serr != defs.SUCCESS {
		log.Fatalw("syscall table init failed", "error", serr)
	}
	kstate := newKernelState(scheduler, kernelProcess, kernelTask, kernelAS, heap, dispatcher)
	if serr := registerCoreSyscalls(syscalls, kstate); serr != defs.SUCCESS {
		log.Fatalw("core syscall registration failed", "error", serr)
	}

	// D_PROF boot-time smoke check: every subsystem's Counters() must
	// snapshot into a structurally valid pprof profile.
	snapshot := stats.Snapshot(phys, scheduler, heap, disk)
	if err := snapshot.CheckValid(); err != nil {
		log.Fatalw("D_PROF snapshot invalid at boot", "error", err)
	}

	log.Infow("kernel core booted",
		"activeGfxBackend", selector.Active(),
		"heapCommitted", heap.Committed(),
		"registeredDrivers", len(registry.ByType(driver.TypeHardDisk)),
	)
}

func anyFailed(errs []defs.Err_t) bool {
	for _, e := range errs {
		if e != defs.SUCCESS {
			return true
		}
	}
	return false
}

// ahciFactory adapts a pre-constructed ahci.Disk to driver.Factory,
// matching the single simulated AHCI device the Bus enumerates.
type ahciFactory struct {
	disk *ahci.Disk
}

func (f ahciFactory) Match(dev driver.PCIDevice) bool {
	return dev.VendorID == ahciVendor && dev.DeviceID == ahciDevice
}

func (f ahciFactory) Attach(dev driver.PCIDevice) (driver.Driver, defs.Err_t) {
	return ahci.NewDiskDriver("ahci0", f.disk), defs.SUCCESS
}
