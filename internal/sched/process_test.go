package sched

import (
	"testing"

	"github.com/Jango73/EXOS-sub006/internal/defs"
)

func TestKillProcessWithKillChildrenPolicy(t *testing.T) {
	s := New()
	kernel := NewProcess(0, "EXOS", nil, 0)
	parent := NewProcess(1, "parent", kernel, KillChildrenOnDeath)
	child := NewProcess(2, "child", parent, 0)

	pt := &Task{ID: 10, Status: TaskRunnable, Priority: PriorityMedium}
	ct := &Task{ID: 11, Status: TaskRunnable, Priority: PriorityMedium}
	parent.AddTask(pt, s)
	child.AddTask(ct, s)

	if err := KillProcess(parent, s, kernel); err != defs.SUCCESS {
		t.Fatalf("KillProcess: %v", err)
	}
	if child.Status != ProcessDead {
		t.Fatalf("expected child to be killed too, status = %v", child.Status)
	}
	if !ct.Terminated {
		t.Fatal("expected child's task to be terminated")
	}
	if len(kernel.Children()) != 0 {
		t.Fatal("kernel should not have inherited a killed child")
	}
}

func TestKillProcessWithOrphanPolicy(t *testing.T) {
	s := New()
	kernel := NewProcess(0, "EXOS", nil, 0)
	parent := NewProcess(1, "parent", kernel, 0) // no KillChildrenOnDeath: orphan policy
	child := NewProcess(2, "child", parent, 0)

	if err := KillProcess(parent, s, kernel); err != defs.SUCCESS {
		t.Fatalf("KillProcess: %v", err)
	}
	if child.Status == ProcessDead {
		t.Fatal("orphan policy must not kill children")
	}
	if child.Owner != nil {
		t.Fatalf("expected orphaned child to have a nil Owner, got %v", child.Owner)
	}
	for _, c := range kernel.Children() {
		if c == child {
			t.Fatal("orphaned child must not be reparented onto the kernel process")
		}
	}
}

func TestKernelProcessCannotBeKilled(t *testing.T) {
	s := New()
	kernel := NewProcess(0, "EXOS", nil, 0)
	if err := KillProcess(kernel, s, kernel); err != defs.NO_PERMISSION {
		t.Fatalf("KillProcess(kernel) = %v, want NO_PERMISSION", err)
	}
}
