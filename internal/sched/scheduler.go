package sched

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Jango73/EXOS-sub006/internal/klist"
	"github.com/Jango73/EXOS-sub006/internal/klog"
	"github.com/Jango73/EXOS-sub006/internal/stats"
)

// Scheduler holds the run queues, sleep queue, and current-task pointer
// for the whole kernel -- Schedule.c's file-scope TaskList, generalized
// into an explicit struct with no package-level mutable state so tests can
// construct independent schedulers.
//
// nowMS is a free-running millisecond counter advanced only by Tick,
// rather than a wall-clock read, so scheduling decisions are deterministic
// under test (original_source/Schedule.c reads GetSystemTime(), a tick
// counter with the same property on real hardware).
type Scheduler struct {
	mu sync.Mutex

	freeze        uint32
	schedulerTime uint32 // ms accumulated since the last reschedule
	taskTime      uint32 // current slice budget, ms
	nowMS         uint64

	runQueues [maxPriorityLevels]*klist.List[Task]
	sleeping  *klist.List[Task]

	current *Task
}

// New constructs an empty scheduler with taskTime seeded to 20ms, matching
// Schedule.c's TaskList initializer.
func New() *Scheduler {
	s := &Scheduler{taskTime: 20, sleeping: klist.New[Task](taskLink, nil)}
	for i := range s.runQueues {
		s.runQueues[i] = klist.New[Task](taskLink, nil)
	}
	return s
}

// NowMS returns the scheduler's free-running tick counter.
func (s *Scheduler) NowMS() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowMS
}

// Freeze/Unfreeze pause and resume preemptive rescheduling without
// affecting queue membership -- FreezeScheduler/UnfreezeScheduler in the
// teacher, both counted so nested callers compose safely.
func (s *Scheduler) Freeze() {
	s.mu.Lock()
	s.freeze++
	s.mu.Unlock()
}

func (s *Scheduler) Unfreeze() {
	s.mu.Lock()
	if s.freeze > 0 {
		s.freeze--
	}
	s.mu.Unlock()
}

// AddTask enqueues a new or woken task onto its sleep queue or run queue
// according to its Status (Schedule.c's AddTaskToQueue).
func (s *Scheduler) AddTask(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addTaskLocked(t)
}

func (s *Scheduler) addTaskLocked(t *Task) {
	if t.Status == TaskSleeping {
		s.sleeping.AddTail(t)
		return
	}
	updateTaskTime(t)
	t.Age = 0
	s.runQueues[priorityIndex(t.Priority)].AddTail(t)
}

// RemoveTask removes t from whichever queue currently holds it
// (Schedule.c's RemoveTaskFromQueue), e.g. when a task is about to be
// terminated.
func (s *Scheduler) RemoveTask(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status == TaskSleeping {
		s.sleeping.Remove(t)
		return
	}
	s.runQueues[priorityIndex(t.Priority)].Remove(t)
}

// Sleep moves t to the sleep queue until wakeUpMS (measured against
// NowMS).
func (s *Scheduler) Sleep(t *Task, wakeUpMS uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runQueues[priorityIndex(t.Priority)].Remove(t)
	t.Status = TaskSleeping
	t.WakeUpMS = wakeUpMS
	s.sleeping.AddTail(t)
}

// wakeSleepingTasksLocked moves every sleeper whose deadline has passed
// back onto its run queue (Schedule.c's WakeSleepingTasks).
func (s *Scheduler) wakeSleepingTasksLocked() {
	node := s.sleeping.Front()
	for node != nil {
		next := s.sleeping.Next(node)
		if s.nowMS >= node.WakeUpMS {
			s.sleeping.Remove(node)
			node.Status = TaskRunnable
			s.addTaskLocked(node)
		}
		node = next
	}
}

// ageRunnableTasksLocked increments Age for every runnable task except
// selected, promoting any that crossed ageThreshold by priorityStep --
// Schedule.c's AgeRunnableTasks.
func (s *Scheduler) ageRunnableTasksLocked(selected *Task) {
	for i := 0; i < maxPriorityLevels; i++ {
		node := s.runQueues[i].Front()
		for node != nil {
			next := s.runQueues[i].Next(node)
			if node != selected {
				node.Age++
				if node.Age >= ageThreshold && node.Priority < PriorityCritical {
					s.runQueues[i].Remove(node)
					node.Priority += priorityStep
					node.Age = 0
					s.addTaskLocked(node)
				}
			}
			node = next
		}
	}
}

// Current returns the task currently selected to run, or nil before the
// first Tick.
func (s *Scheduler) Current() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Tick advances the scheduler by deltaMS of wall time (the 10ms timer
// interrupt in the teacher). It wakes due sleepers every tick, and once
// the accumulated time reaches the current slice budget, picks the next
// task to run from the highest non-empty priority queue, ages every other
// runnable task, and resets the slice budget from the winner's priority --
// Schedule.c's Scheduler().
func (s *Scheduler) Tick(deltaMS uint32) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nowMS += uint64(deltaMS)
	s.schedulerTime += deltaMS

	if s.freeze > 0 {
		return s.current
	}

	s.wakeSleepingTasksLocked()

	if s.schedulerTime < s.taskTime {
		return s.current
	}
	s.schedulerTime = 0

	for i := maxPriorityLevels; i > 0; i-- {
		q := s.runQueues[i-1]
		for {
			next := q.Front()
			if next == nil {
				break
			}
			q.Remove(next)
			if next.Status == TaskTerminated {
				klog.Sub("sched").Debug("dropping terminated task", zap.Int("tid", int(next.ID)))
				continue // dropped: never rescheduled
			}
			q.AddTail(next)

			s.current = next
			s.taskTime = next.Time
			next.Age = 0
			s.ageRunnableTasksLocked(next)
			return next
		}
	}
	return s.current
}

// UpdateSlices recomputes every queued task's slice length from its
// current priority -- Schedule.c's UpdateScheduler, used after a bulk
// priority change.
func (s *Scheduler) UpdateSlices() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < maxPriorityLevels; i++ {
		for node := s.runQueues[i].Front(); node != nil; node = s.runQueues[i].Next(node) {
			updateTaskTime(node)
		}
	}
}

// RunQueueLen reports how many tasks sit in the queue for priority, for
// tests and diagnostics.
func (s *Scheduler) RunQueueLen(priority uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runQueues[priorityIndex(priority)].GetSize()
}

// SleepingLen reports how many tasks are currently asleep.
func (s *Scheduler) SleepingLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sleeping.GetSize()
}

// Counters implements stats.Source, reporting one gauge per priority run
// queue plus the sleep queue, for the D_PROF profiling device.
func (s *Scheduler) Counters() []stats.Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stats.Counter, 0, maxPriorityLevels+1)
	for i := 0; i < maxPriorityLevels; i++ {
		out = append(out, stats.Counter{
			Subsystem: "sched", Name: "run_queue_len", Value: int64(s.runQueues[i].GetSize()), Unit: "tasks",
		})
	}
	out = append(out, stats.Counter{Subsystem: "sched", Name: "sleeping_len", Value: int64(s.sleeping.GetSize()), Unit: "tasks"})
	return out
}
