package main

import (
	"encoding/binary"
	"testing"

	"github.com/Jango73/EXOS-sub006/internal/buddy"
	"github.com/Jango73/EXOS-sub006/internal/defs"
	"github.com/Jango73/EXOS-sub006/internal/fsdisp"
	"github.com/Jango73/EXOS-sub006/internal/fsdisp/ext2stub"
	"github.com/Jango73/EXOS-sub006/internal/kheap"
	"github.com/Jango73/EXOS-sub006/internal/sched"
	"github.com/Jango73/EXOS-sub006/internal/syscalltable"
	"github.com/Jango73/EXOS-sub006/internal/vm"
)

func newTestKernelState(t *testing.T) (*kernelState, defs.Tid_t) {
	t.Helper()
	phys, err := buddy.New(4096)
	if err != nil {
		t.Fatalf("buddy.New: %v", err)
	}
	mgr := vm.NewManager(phys, 16*vm.PageSize)
	kernelAS := mgr.NewAddressSpace()
	heap, herr := kheap.Init(kernelAS, vm.KernelBase, 64*vm.PageSize)
	if herr != defs.SUCCESS {
		t.Fatalf("kheap.Init: %v", herr)
	}

	scheduler := sched.New()
	kernelProcess := sched.NewProcess(0, "kernel", nil, 0)
	kernelTask := &sched.Task{ID: 0, Name: "kernel-idle", Process: kernelProcess, Priority: sched.PriorityLow, Status: sched.TaskRunnable}
	kernelProcess.AddTask(kernelTask, scheduler)

	fs := ext2stub.New()
	drv := ext2stub.NewDriver("ext2stub0", fs)
	dispatcher := fsdisp.New("C")
	dispatcher.Mount("C", drv)

	return newKernelState(scheduler, kernelProcess, kernelTask, kernelAS, heap, dispatcher), defs.Tid_t(kernelTask.ID)
}

func abiHeader(size uint32) defs.ABIHeader {
	return defs.ABIHeader{Size: size, Version: defs.ExosABIVersion}
}

func TestRegisterCoreSyscallsCreateProcessAndKill(t *testing.T) {
	st, caller := newTestKernelState(t)
	tbl := syscalltable.New()
	if err := registerCoreSyscalls(tbl, st); err != defs.SUCCESS {
		t.Fatalf("registerCoreSyscalls: %v", err)
	}

	payload := make([]byte, 68)
	copy(payload, []byte("child"))
	binary.LittleEndian.PutUint32(payload[64:], sched.PriorityLow)

	res, err := tbl.Dispatch(syscalltable.SysCreateProcess, caller, defs.PrivKernel, abiHeader(68), payload)
	if err != defs.SUCCESS {
		t.Fatalf("CreateProcess: %v", err)
	}
	pid := uint32(res)

	killPayload := make([]byte, 4)
	binary.LittleEndian.PutUint32(killPayload, pid)
	if _, err := tbl.Dispatch(syscalltable.SysKillProcess, caller, defs.PrivKernel, abiHeader(4), killPayload); err != defs.SUCCESS {
		t.Fatalf("KillProcess: %v", err)
	}
}

func TestRegisterCoreSyscallsMutexLockUnlock(t *testing.T) {
	st, caller := newTestKernelState(t)
	tbl := syscalltable.New()
	if err := registerCoreSyscalls(tbl, st); err != defs.SUCCESS {
		t.Fatalf("registerCoreSyscalls: %v", err)
	}

	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, 1)

	if _, err := tbl.Dispatch(syscalltable.SysMutexLock, caller, defs.PrivUser, abiHeader(4), payload); err != defs.SUCCESS {
		t.Fatalf("MutexLock: %v", err)
	}
	if _, err := tbl.Dispatch(syscalltable.SysMutexUnlock, caller, defs.PrivUser, abiHeader(4), payload); err != defs.SUCCESS {
		t.Fatalf("MutexUnlock: %v", err)
	}
}

func TestRegisterCoreSyscallsHeapAllocFree(t *testing.T) {
	st, caller := newTestKernelState(t)
	tbl := syscalltable.New()
	if err := registerCoreSyscalls(tbl, st); err != defs.SUCCESS {
		t.Fatalf("registerCoreSyscalls: %v", err)
	}

	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, 64)
	res, err := tbl.Dispatch(syscalltable.SysHeapAlloc, caller, defs.PrivUser, abiHeader(8), payload)
	if err != defs.SUCCESS {
		t.Fatalf("HeapAlloc: %v", err)
	}

	freePayload := make([]byte, 8)
	binary.LittleEndian.PutUint64(freePayload, uint64(res))
	if _, err := tbl.Dispatch(syscalltable.SysHeapFree, caller, defs.PrivUser, abiHeader(8), freePayload); err != defs.SUCCESS {
		t.Fatalf("HeapFree: %v", err)
	}
}

func TestRegisterCoreSyscallsFileRoundTrip(t *testing.T) {
	st, caller := newTestKernelState(t)
	tbl := syscalltable.New()
	if err := registerCoreSyscalls(tbl, st); err != defs.SUCCESS {
		t.Fatalf("registerCoreSyscalls: %v", err)
	}

	openPayload := make([]byte, pathPayloadSize)
	copy(openPayload, []byte("C:/hello.txt"))
	res, err := tbl.Dispatch(syscalltable.SysOpenFile, caller, defs.PrivUser, abiHeader(pathPayloadSize), openPayload)
	if err != defs.SUCCESS {
		t.Fatalf("OpenFile: %v", err)
	}
	fh := uint32(res)

	writePayload := make([]byte, 8+dataPayloadSize)
	binary.LittleEndian.PutUint32(writePayload, fh)
	content := []byte("hello from a syscall")
	binary.LittleEndian.PutUint32(writePayload[4:], uint32(len(content)))
	copy(writePayload[8:], content)
	wres, err := tbl.Dispatch(syscalltable.SysWriteFile, caller, defs.PrivUser, abiHeader(8+dataPayloadSize), writePayload)
	if err != defs.SUCCESS {
		t.Fatalf("WriteFile: %v", err)
	}
	if int(wres) != len(content) {
		t.Fatalf("WriteFile wrote %d bytes, want %d", wres, len(content))
	}

	seekPayload := make([]byte, 12)
	binary.LittleEndian.PutUint32(seekPayload, fh)
	binary.LittleEndian.PutUint64(seekPayload[4:], 0)
	if _, err := tbl.Dispatch(syscalltable.SysSetFilePointer, caller, defs.PrivUser, abiHeader(12), seekPayload); err != defs.SUCCESS {
		t.Fatalf("SetFilePointer: %v", err)
	}

	readPayload := make([]byte, 8)
	binary.LittleEndian.PutUint32(readPayload, fh)
	binary.LittleEndian.PutUint32(readPayload[4:], uint32(len(content)))
	rres, err := tbl.Dispatch(syscalltable.SysReadFile, caller, defs.PrivUser, abiHeader(8), readPayload)
	if err != defs.SUCCESS {
		t.Fatalf("ReadFile: %v", err)
	}
	if int(rres) != len(content) {
		t.Fatalf("ReadFile read %d bytes, want %d", rres, len(content))
	}

	closePayload := make([]byte, 4)
	binary.LittleEndian.PutUint32(closePayload, fh)
	if _, err := tbl.Dispatch(syscalltable.SysCloseFile, caller, defs.PrivUser, abiHeader(4), closePayload); err != defs.SUCCESS {
		t.Fatalf("CloseFile: %v", err)
	}
}
