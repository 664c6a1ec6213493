package main

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"github.com/Jango73/EXOS-sub006/internal/defs"
	"github.com/Jango73/EXOS-sub006/internal/fsdisp"
	"github.com/Jango73/EXOS-sub006/internal/kheap"
	"github.com/Jango73/EXOS-sub006/internal/mutex"
	"github.com/Jango73/EXOS-sub006/internal/sched"
	"github.com/Jango73/EXOS-sub006/internal/syscalltable"
	"github.com/Jango73/EXOS-sub006/internal/vm"
)

// kernelState is the live object graph every core syscall handler closes
// over: the scheduler's process/task registries (spec.md §4.10 handlers
// resolve a caller Tid_t to its Task/Process the way Process.c's global
// process list does), a lazily-populated mutex table, the kernel address
// space and heap, and the boot-time file dispatcher with the syscall
// layer's own open-file table.
type kernelState struct {
	mu sync.Mutex

	scheduler     *sched.Scheduler
	kernelProcess *sched.Process
	processes     map[defs.Pid_t]*sched.Process
	tasks         map[defs.Tid_t]*sched.Task
	nextPid       defs.Pid_t
	nextTid       defs.Tid_t

	mutexes map[uint32]*mutex.Mutex

	kernelAS *vm.AddressSpace
	heap     *kheap.Heap

	dispatcher *fsdisp.Dispatcher
	files      map[uint32]*openFile
	nextFile   uint32
}

// openFile pairs the dispatcher's refcounted OpenFile with the backend
// driver's own handle and the syscall-tracked read/write position, since
// read_file/write_file leave position tracking to the FS driver
// (spec.md §4.8) but our backends key position by their own int handle.
type openFile struct {
	of     *fsdisp.OpenFile
	handle int
	pos    int64
}

func newKernelState(scheduler *sched.Scheduler, kernelProcess *sched.Process, kernelTask *sched.Task, kernelAS *vm.AddressSpace, heap *kheap.Heap, dispatcher *fsdisp.Dispatcher) *kernelState {
	return &kernelState{
		scheduler:     scheduler,
		kernelProcess: kernelProcess,
		processes:     map[defs.Pid_t]*sched.Process{kernelProcess.ID: kernelProcess},
		tasks:         map[defs.Tid_t]*sched.Task{defs.Tid_t(kernelTask.ID): kernelTask},
		nextPid:       kernelProcess.ID + 1,
		nextTid:       defs.Tid_t(kernelTask.ID) + 1,
		mutexes:       make(map[uint32]*mutex.Mutex),
		kernelAS:      kernelAS,
		heap:          heap,
		dispatcher:    dispatcher,
		files:         make(map[uint32]*openFile),
		nextFile:      1,
	}
}

// registerCoreSyscalls wires the process/task, mutex, memory and file
// syscall families (spec.md §4.10) onto t, dispatching into the already
// constructed kernel subsystems st closes over.
func registerCoreSyscalls(t *syscalltable.Table, st *kernelState) defs.Err_t {
	entries := []struct {
		id   uint32
		name string
		priv defs.Privilege
		size uint32
		fn   syscalltable.Handler
	}{
		{syscalltable.SysCreateProcess, "CreateProcess", defs.PrivKernel, 68, st.sysCreateProcess},
		{syscalltable.SysKillProcess, "KillProcess", defs.PrivKernel, 4, st.sysKillProcess},
		{syscalltable.SysCreateTask, "CreateTask", defs.PrivUser, 4, st.sysCreateTask},
		{syscalltable.SysKillTask, "KillTask", defs.PrivUser, 4, st.sysKillTask},
		{syscalltable.SysSuspend, "Suspend", defs.PrivUser, 4, st.sysSuspend},
		{syscalltable.SysResume, "Resume", defs.PrivUser, 4, st.sysResume},
		{syscalltable.SysSleep, "Sleep", defs.PrivUser, 4, st.sysSleep},

		{syscalltable.SysMutexLock, "MutexLock", defs.PrivUser, 4, st.sysMutexLock},
		{syscalltable.SysMutexUnlock, "MutexUnlock", defs.PrivUser, 4, st.sysMutexUnlock},

		{syscalltable.SysAllocRegion, "AllocRegion", defs.PrivUser, 20, st.sysAllocRegion},
		{syscalltable.SysFreeRegion, "FreeRegion", defs.PrivUser, 16, st.sysFreeRegion},
		{syscalltable.SysGetProcessHeap, "GetProcessHeap", defs.PrivUser, 0, st.sysGetProcessHeap},
		{syscalltable.SysHeapAlloc, "HeapAlloc", defs.PrivUser, 8, st.sysHeapAlloc},
		{syscalltable.SysHeapFree, "HeapFree", defs.PrivUser, 8, st.sysHeapFree},

		{syscalltable.SysOpenFile, "OpenFile", defs.PrivUser, pathPayloadSize, st.sysOpenFile},
		{syscalltable.SysCloseFile, "CloseFile", defs.PrivUser, 4, st.sysCloseFile},
		{syscalltable.SysReadFile, "ReadFile", defs.PrivUser, 8, st.sysReadFile},
		{syscalltable.SysWriteFile, "WriteFile", defs.PrivUser, 8 + dataPayloadSize, st.sysWriteFile},
		{syscalltable.SysGetFilePointer, "GetFilePointer", defs.PrivUser, 4, st.sysGetFilePointer},
		{syscalltable.SysSetFilePointer, "SetFilePointer", defs.PrivUser, 12, st.sysSetFilePointer},
	}

	for _, e := range entries {
		if err := t.Register(e.id, syscalltable.Entry{Name: e.name, Privilege: e.priv, PayloadSize: e.size, Fn: e.fn}); err != defs.SUCCESS {
			return err
		}
	}
	return defs.SUCCESS
}

const (
	nameFieldSize   = 64
	pathFieldSize   = 192
	pathPayloadSize = pathFieldSize + 4 // path bytes + flags uint32
	dataPayloadSize = 256
)

func decodeString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// --- process / task lifecycle ---

func (st *kernelState) sysCreateProcess(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	name := decodeString(payload[:nameFieldSize])
	priority := binary.LittleEndian.Uint32(payload[nameFieldSize:])

	st.mu.Lock()
	defer st.mu.Unlock()
	pid := st.nextPid
	st.nextPid++
	proc := sched.NewProcess(pid, name, st.kernelProcess, 0)
	tid := st.nextTid
	st.nextTid++
	task := &sched.Task{ID: tid, Name: name, Process: proc, Priority: priority, Status: sched.TaskRunnable}
	proc.AddTask(task, st.scheduler)
	st.processes[pid] = proc
	st.tasks[tid] = task
	return uintptr(pid), defs.SUCCESS
}

func (st *kernelState) sysKillProcess(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	pid := defs.Pid_t(binary.LittleEndian.Uint32(payload))

	st.mu.Lock()
	proc, ok := st.processes[pid]
	st.mu.Unlock()
	if !ok {
		return 0, defs.BAD_PARAMETER
	}
	return 0, sched.KillProcess(proc, st.scheduler, st.kernelProcess)
}

func (st *kernelState) sysCreateTask(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	priority := binary.LittleEndian.Uint32(payload)

	st.mu.Lock()
	defer st.mu.Unlock()
	owner, ok := st.tasks[caller]
	if !ok {
		return 0, defs.BAD_PARAMETER
	}
	tid := st.nextTid
	st.nextTid++
	task := &sched.Task{ID: tid, Name: owner.Process.FileName, Process: owner.Process, Priority: priority, Status: sched.TaskRunnable}
	owner.Process.AddTask(task, st.scheduler)
	st.tasks[tid] = task
	return uintptr(tid), defs.SUCCESS
}

func (st *kernelState) sysKillTask(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	tid := defs.Tid_t(binary.LittleEndian.Uint32(payload))

	st.mu.Lock()
	defer st.mu.Unlock()
	task, ok := st.tasks[tid]
	if !ok {
		return 0, defs.BAD_PARAMETER
	}
	st.scheduler.RemoveTask(task)
	task.Terminated = true
	task.Status = sched.TaskTerminated
	delete(st.tasks, tid)
	return 0, defs.SUCCESS
}

func (st *kernelState) sysSuspend(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	tid := defs.Tid_t(binary.LittleEndian.Uint32(payload))

	st.mu.Lock()
	task, ok := st.tasks[tid]
	st.mu.Unlock()
	if !ok {
		return 0, defs.BAD_PARAMETER
	}
	// No dedicated "suspended" state exists; parking the task on the sleep
	// queue with no wakeup deadline until sysResume explicitly requeues it
	// reuses the existing sleep machinery rather than growing TaskStatus.
	st.scheduler.Sleep(task, ^uint64(0))
	return 0, defs.SUCCESS
}

func (st *kernelState) sysResume(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	tid := defs.Tid_t(binary.LittleEndian.Uint32(payload))

	st.mu.Lock()
	task, ok := st.tasks[tid]
	st.mu.Unlock()
	if !ok {
		return 0, defs.BAD_PARAMETER
	}
	st.scheduler.RemoveTask(task)
	task.Status = sched.TaskRunnable
	st.scheduler.AddTask(task)
	return 0, defs.SUCCESS
}

func (st *kernelState) sysSleep(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	ms := binary.LittleEndian.Uint32(payload)

	st.mu.Lock()
	task, ok := st.tasks[caller]
	st.mu.Unlock()
	if !ok {
		return 0, defs.BAD_PARAMETER
	}
	st.scheduler.Sleep(task, st.scheduler.NowMS()+uint64(ms))
	return 0, defs.SUCCESS
}

// --- mutex ---

func (st *kernelState) mutexFor(id uint32) *mutex.Mutex {
	st.mu.Lock()
	defer st.mu.Unlock()
	m, ok := st.mutexes[id]
	if !ok {
		m = mutex.New()
		st.mutexes[id] = m
	}
	return m
}

func (st *kernelState) sysMutexLock(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	id := binary.LittleEndian.Uint32(payload)
	st.mutexFor(id).Lock(caller)
	return 0, defs.SUCCESS
}

func (st *kernelState) sysMutexUnlock(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	id := binary.LittleEndian.Uint32(payload)
	return 0, st.mutexFor(id).Unlock(caller)
}

// --- memory ---

func (st *kernelState) sysAllocRegion(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	base := binary.LittleEndian.Uint64(payload)
	size := binary.LittleEndian.Uint64(payload[8:])
	flags := vm.RegionFlags(binary.LittleEndian.Uint32(payload[16:]))

	addr, err := st.kernelAS.AllocRegion(base, size, flags)
	return uintptr(addr), err
}

func (st *kernelState) sysFreeRegion(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	base := binary.LittleEndian.Uint64(payload)
	size := binary.LittleEndian.Uint64(payload[8:])
	return 0, st.kernelAS.FreeRegion(base, size)
}

func (st *kernelState) sysGetProcessHeap(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	// A single kernel heap backs every process in this hosted simulation,
	// so its handle is always 1.
	return 1, defs.SUCCESS
}

func (st *kernelState) sysHeapAlloc(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	size := binary.LittleEndian.Uint64(payload)
	addr, err := st.heap.Alloc(size)
	return uintptr(addr), err
}

func (st *kernelState) sysHeapFree(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	addr := binary.LittleEndian.Uint64(payload)
	return 0, st.heap.Free(addr)
}

// --- files ---

// fsOpenArgs/fsRWArgs/fsPositionArgs mirror the memory layout ext2stub and
// xfs each declare for their own identically shaped parameter-block types,
// so Command's unsafe.Pointer cast works no matter which of the two
// backends resolves the path.
type fsOpenArgs struct {
	Path   string
	Handle int
}

type fsRWArgs struct {
	Handle int
	Offset int64
	Buffer []byte
	N      int
}

type fsPositionArgs struct {
	Handle int
	Pos    int64
}

func (st *kernelState) sysOpenFile(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	path := decodeString(payload[:pathFieldSize])
	flags := binary.LittleEndian.Uint32(payload[pathFieldSize:])

	of, err := st.dispatcher.Open(path, caller, flags)
	if err != defs.SUCCESS {
		return 0, err
	}

	args := fsOpenArgs{Path: of.Rel}
	if _, cerr := of.Driver.Command(uint32(defs.FSOpenFile), uintptr(unsafe.Pointer(&args))); cerr != defs.SUCCESS {
		st.dispatcher.Close(of)
		return 0, cerr
	}

	st.mu.Lock()
	fh := st.nextFile
	st.nextFile++
	st.files[fh] = &openFile{of: of, handle: args.Handle}
	st.mu.Unlock()
	return uintptr(fh), defs.SUCCESS
}

func (st *kernelState) sysCloseFile(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	fh := binary.LittleEndian.Uint32(payload)

	st.mu.Lock()
	f, ok := st.files[fh]
	if ok {
		delete(st.files, fh)
	}
	st.mu.Unlock()
	if !ok {
		return 0, defs.BAD_PARAMETER
	}
	f.of.Driver.Command(uint32(defs.FSCloseFile), uintptr(f.handle))
	return 0, st.dispatcher.Close(f.of)
}

func (st *kernelState) sysReadFile(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	fh := binary.LittleEndian.Uint32(payload)
	length := binary.LittleEndian.Uint32(payload[4:])

	st.mu.Lock()
	f, ok := st.files[fh]
	st.mu.Unlock()
	if !ok {
		return 0, defs.BAD_PARAMETER
	}

	buf := make([]byte, length)
	args := fsRWArgs{Handle: f.handle, Offset: f.pos, Buffer: buf}
	if _, err := f.of.Driver.Command(uint32(defs.FSRead), uintptr(unsafe.Pointer(&args))); err != defs.SUCCESS {
		return 0, err
	}
	f.pos += int64(args.N)
	return uintptr(args.N), defs.SUCCESS
}

func (st *kernelState) sysWriteFile(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	fh := binary.LittleEndian.Uint32(payload)
	length := binary.LittleEndian.Uint32(payload[4:])
	if int(8+length) > len(payload) {
		return 0, defs.BAD_PARAMETER
	}

	st.mu.Lock()
	f, ok := st.files[fh]
	st.mu.Unlock()
	if !ok {
		return 0, defs.BAD_PARAMETER
	}

	data := payload[8 : 8+length]
	args := fsRWArgs{Handle: f.handle, Offset: f.pos, Buffer: data}
	if _, err := f.of.Driver.Command(uint32(defs.FSWrite), uintptr(unsafe.Pointer(&args))); err != defs.SUCCESS {
		return 0, err
	}
	f.pos += int64(args.N)
	return uintptr(args.N), defs.SUCCESS
}

func (st *kernelState) sysGetFilePointer(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	fh := binary.LittleEndian.Uint32(payload)
	st.mu.Lock()
	f, ok := st.files[fh]
	st.mu.Unlock()
	if !ok {
		return 0, defs.BAD_PARAMETER
	}
	args := fsPositionArgs{Handle: f.handle}
	if _, err := f.of.Driver.Command(uint32(defs.FSGetPosition), uintptr(unsafe.Pointer(&args))); err != defs.SUCCESS {
		return 0, err
	}
	return uintptr(args.Pos), defs.SUCCESS
}

func (st *kernelState) sysSetFilePointer(caller defs.Tid_t, payload []byte) (uintptr, defs.Err_t) {
	fh := binary.LittleEndian.Uint32(payload)
	pos := int64(binary.LittleEndian.Uint64(payload[4:]))

	st.mu.Lock()
	f, ok := st.files[fh]
	st.mu.Unlock()
	if !ok {
		return 0, defs.BAD_PARAMETER
	}
	args := fsPositionArgs{Handle: f.handle, Pos: pos}
	if _, err := f.of.Driver.Command(uint32(defs.FSSetPosition), uintptr(unsafe.Pointer(&args))); err != defs.SUCCESS {
		return 0, err
	}
	f.pos = pos
	return 0, defs.SUCCESS
}
