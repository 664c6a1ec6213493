// Package sched implements EXOS's process/task lifecycle and priority
// scheduler (spec.md §3.4/§4.5/§4.6): a 5-level priority-aging preemptive
// scheduler, a sleep queue, and process creation/termination policy.
//
// Grounded on original_source/kernel/source/Schedule.c and Process.c for
// the exact algorithm (PriorityToIndex, UpdateTaskTime, AgeRunnableTasks,
// the Scheduler() run-queue walk, KillProcess's children policy), and on
// biscuit/src/tinfo.Tnote_t plus accnt.Accnt_t for the Go idiom of a
// per-task note struct guarded by its own mutex. Unlike biscuit (where an
// OS thread backs every task and the Go runtime does the actual context
// switch), this package only reproduces the scheduling *decisions* --
// queue membership, priority, aging, wakeup order -- since a hosted
// simulation has no silicon task-state segments to switch between.
package sched

import (
	"github.com/Jango73/EXOS-sub006/internal/defs"
	"github.com/Jango73/EXOS-sub006/internal/klist"
)

// Priority levels, matching spec.md's task-priority constants.
const (
	PriorityLowest  uint32 = 0
	PriorityLow     uint32 = 4
	PriorityMedium  uint32 = 8
	PriorityHigh    uint32 = 12
	PriorityHighest uint32 = 16
	PriorityCritical uint32 = 20

	maxPriorityLevels = 5
	priorityStep      = 4
	ageThreshold      = 5
)

// priorityIndex maps a raw priority value onto one of the 5 run-queue
// buckets, exactly Schedule.c's PriorityToIndex.
func priorityIndex(priority uint32) uint32 {
	if priority >= PriorityCritical {
		return maxPriorityLevels - 1
	}
	return priority >> 2
}

// TaskStatus is a task's scheduling state.
type TaskStatus int

const (
	TaskRunnable TaskStatus = iota
	TaskSleeping
	TaskTerminated
)

func (s TaskStatus) String() string {
	switch s {
	case TaskRunnable:
		return "runnable"
	case TaskSleeping:
		return "sleeping"
	case TaskTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Task is one schedulable unit of execution within a Process.
type Task struct {
	link klist.Link[Task]

	ID      defs.Tid_t
	Name    string
	Process *Process

	Priority uint32
	Age      uint32
	// Time is the task's current slice length in milliseconds, recomputed
	// from Priority by updateTaskTime whenever the task (re)joins a run
	// queue.
	Time uint32

	Status     TaskStatus
	WakeUpMS   uint64 // absolute scheduler time at which a sleeping task wakes
	Terminated bool
}

func taskLink(t *Task) *klist.Link[Task] { return &t.link }

// updateTaskTime recomputes Time from Priority, matching Schedule.c's
// UpdateTaskTime: slice = max(20, priority*2) milliseconds.
func updateTaskTime(t *Task) {
	slice := (t.Priority & 0xff) * 2
	if slice < 20 {
		slice = 20
	}
	t.Time = slice
}
