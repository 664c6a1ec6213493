package sched

import (
	"sync"

	"github.com/Jango73/EXOS-sub006/internal/defs"
)

// ProcessFlags mirrors Process.h's PROCESS_CREATE_* bits.
type ProcessFlags uint32

const (
	// KillChildrenOnDeath, when set, makes KillProcess recursively kill
	// every descendant process; otherwise children are orphaned (Owner set
	// to nil), per original_source/Process.c's two policies. It lives on
	// the process itself rather than being passed as a KillProcess
	// parameter, matching the original's Flags field.
	KillChildrenOnDeath ProcessFlags = 1 << 0
)

type ProcessStatus int

const (
	ProcessAlive ProcessStatus = iota
	ProcessDying
	ProcessDead
)

// Process groups one or more Tasks under a shared address space and
// ownership record (spec.md §3.4). Process.c's PROCESS struct, minus the
// fields (PageDirectory, Desktop, Security, ...) owned by other packages.
type Process struct {
	mu sync.Mutex

	ID       defs.Pid_t
	FileName string
	Flags    ProcessFlags
	Status   ProcessStatus

	Owner    *Process // OwnerProcess in the teacher; nil for the kernel process
	children map[defs.Pid_t]*Process
	tasks    map[defs.Tid_t]*Task
}

// NewProcess constructs a process owned by owner (nil for the kernel
// process itself).
func NewProcess(id defs.Pid_t, name string, owner *Process, flags ProcessFlags) *Process {
	p := &Process{
		ID:       id,
		FileName: name,
		Flags:    flags,
		Status:   ProcessAlive,
		Owner:    owner,
		children: make(map[defs.Pid_t]*Process),
		tasks:    make(map[defs.Tid_t]*Task),
	}
	if owner != nil {
		owner.mu.Lock()
		owner.children[id] = p
		owner.mu.Unlock()
	}
	return p
}

// AddTask registers t as belonging to p and enqueues it on sched.
func (p *Process) AddTask(t *Task, s *Scheduler) {
	t.Process = p
	p.mu.Lock()
	p.tasks[t.ID] = t
	p.mu.Unlock()
	s.AddTask(t)
}

// Tasks returns a snapshot of p's current task set.
func (p *Process) Tasks() []*Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, t)
	}
	return out
}

// Children returns a snapshot of p's child processes.
func (p *Process) Children() []*Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Process, 0, len(p.children))
	for _, c := range p.children {
		out = append(out, c)
	}
	return out
}

func killTasks(p *Process, s *Scheduler) {
	for _, t := range p.Tasks() {
		// RemoveTask picks the queue from Status, so it runs first.
		s.RemoveTask(t)
		t.Status = TaskTerminated
		t.Terminated = true
	}
}

// KillProcess implements Process.c's KillProcess: it always kills this
// process's own tasks, then applies one of two policies to its children,
// read from p.Flags rather than taken as a parameter --
// KillChildrenOnDeath recursively kills every descendant, while its
// absence orphans each direct child (Owner set to nil, per
// Process.c:322's ChildProcess->OwnerProcess = NULL) instead. The kernel
// process itself can never be killed.
func KillProcess(p *Process, s *Scheduler, kernelProcess *Process) defs.Err_t {
	if p == kernelProcess {
		return defs.NO_PERMISSION
	}

	p.mu.Lock()
	p.Status = ProcessDying
	p.mu.Unlock()

	if p.Flags&KillChildrenOnDeath != 0 {
		for _, child := range p.Children() {
			KillProcess(child, s, kernelProcess)
		}
	} else {
		for _, child := range p.Children() {
			child.mu.Lock()
			child.Owner = nil
			child.mu.Unlock()
		}
	}

	killTasks(p, s)

	if p.Owner != nil {
		p.Owner.mu.Lock()
		delete(p.Owner.children, p.ID)
		p.Owner.mu.Unlock()
	}

	p.mu.Lock()
	p.Status = ProcessDead
	p.children = make(map[defs.Pid_t]*Process)
	p.mu.Unlock()
	return defs.SUCCESS
}
