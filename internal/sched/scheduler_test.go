package sched

import (
	"testing"

	"github.com/Jango73/EXOS-sub006/internal/defs"
)

func mkTask(id int, priority uint32) *Task {
	return &Task{ID: defs.Tid_t(id), Priority: priority, Status: TaskRunnable}
}

func TestHigherPriorityRunsFirst(t *testing.T) {
	s := New()
	low := mkTask(1, PriorityLow)
	high := mkTask(2, PriorityHigh)
	s.AddTask(low)
	s.AddTask(high)

	got := s.Tick(20)
	if got != high {
		t.Fatalf("expected high-priority task selected first, got task %d", got.ID)
	}
}

func TestRoundRobinWithinSamePriority(t *testing.T) {
	s := New()
	a := mkTask(1, PriorityMedium)
	b := mkTask(2, PriorityMedium)
	s.AddTask(a)
	s.AddTask(b)

	first := s.Tick(20)
	second := s.Tick(first.Time)
	if first == second {
		t.Fatal("expected round-robin to alternate within the same priority level")
	}
}

func TestNoRescheduleBeforeSliceExpires(t *testing.T) {
	s := New()
	a := mkTask(1, PriorityMedium)
	b := mkTask(2, PriorityMedium)
	s.AddTask(a)
	s.AddTask(b)

	first := s.Tick(20)
	still := s.Tick(1) // far less than the 20ms slice for PriorityMedium
	if still != first {
		t.Fatalf("task switched before its slice expired")
	}
}

func TestAgingPromotesStarvedTask(t *testing.T) {
	s := New()
	hog := mkTask(1, PriorityHighest)
	starved := mkTask(2, PriorityLow)
	s.AddTask(hog)
	s.AddTask(starved)

	// Each reschedule of hog ages starved by 1; once its age reaches
	// ageThreshold it is promoted by one priorityStep, so ageThreshold+1
	// reschedules are enough for at least one promotion.
	for i := 0; i < ageThreshold+1; i++ {
		s.Tick(hog.Time)
	}
	if starved.Priority <= PriorityLow {
		t.Fatalf("expected starved task to be promoted, priority = %d", starved.Priority)
	}
}

func TestSleepAndWake(t *testing.T) {
	s := New()
	task := mkTask(1, PriorityMedium)
	s.AddTask(task)
	s.Sleep(task, s.NowMS()+100)

	if s.SleepingLen() != 1 {
		t.Fatalf("SleepingLen() = %d, want 1", s.SleepingLen())
	}

	s.Tick(50) // not yet due
	if s.SleepingLen() != 1 {
		t.Fatal("task woke up too early")
	}

	s.Tick(60) // now past the 100ms deadline
	if s.SleepingLen() != 0 {
		t.Fatal("task did not wake up once its deadline passed")
	}
	if task.Status != TaskRunnable {
		t.Fatalf("Status = %v, want TaskRunnable", task.Status)
	}
}

func TestFreezeSuppressesRescheduling(t *testing.T) {
	s := New()
	a := mkTask(1, PriorityMedium)
	s.AddTask(a)
	s.Tick(100) // select a

	b := mkTask(2, PriorityHighest)
	s.Freeze()
	s.AddTask(b)
	got := s.Tick(1000)
	if got != a {
		t.Fatal("scheduler rescheduled while frozen")
	}
	s.Unfreeze()
	got = s.Tick(1000)
	if got != b {
		t.Fatal("expected higher-priority task to run once unfrozen")
	}
}

func TestTerminatedTaskNeverReselected(t *testing.T) {
	s := New()
	a := mkTask(1, PriorityHighest)
	s.AddTask(a)
	s.Tick(100)
	a.Status = TaskTerminated

	b := mkTask(2, PriorityLow)
	s.AddTask(b)
	got := s.Tick(1000)
	if got == a {
		t.Fatal("terminated task must never be reselected")
	}
}
