package scheduler

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/aristath/foreman/internal/events"
)

// DefaultConcurrencyLimit caps simultaneous in-flight tasks when the caller
// supplies no limit of its own.
const DefaultConcurrencyLimit = 4

// meanTaskDuration is the assumed average processing time behind EstimateWait.
const meanTaskDuration = 30 * time.Second

// Scheduler admits tasks from a priority-ordered backlog under a global
// concurrency ceiling. Admission requires every tracked dependency to have
// completed and every requested resource to be free; admitted tasks hold
// their resources exclusively until the caller reports completion or failure.
//
// All state sits behind a single mutex, so each public operation is one
// atomic step. The Scheduler never blocks, never starts goroutines, and
// never fails a task on its own initiative; event publishes happen outside
// the critical section.
type Scheduler struct {
	mu        sync.Mutex
	limit     int              // Concurrency ceiling for in-flight tasks
	tasks     map[string]*Task // Every task ever submitted, indexed by ID
	backlog   []*Task          // Queued tasks, sorted by weight then age
	inflight  map[string]*Task // Admitted tasks currently holding resources
	locks     lockTable        // Resource name -> holding task ID
	completed int
	failed    int
	bus       *events.EventBus
}

// Stats is a point-in-time snapshot of the scheduler's counters.
type Stats struct {
	Queued    int
	InFlight  int
	Completed int
	Failed    int
	Limit     int
}

// New creates a Scheduler with the given concurrency limit. A limit of zero
// or less falls back to DefaultConcurrencyLimit. The bus may be nil when no
// one is listening.
func New(limit int, bus *events.EventBus) *Scheduler {
	if limit <= 0 {
		limit = DefaultConcurrencyLimit
	}
	return &Scheduler{
		limit:    limit,
		tasks:    make(map[string]*Task),
		inflight: make(map[string]*Task),
		locks:    make(lockTable),
		bus:      bus,
	}
}

// Submit queues a task for admission. It never fails: if another task holds
// one of the requested resources, that holder is appended to the task's
// dependencies (deduplicated) and the task waits its turn. Admission itself
// happens in AdmitNext, which the caller invokes after a submission burst.
func (s *Scheduler) Submit(task *Task) {
	s.mu.Lock()

	if _, tracked := s.tasks[task.ID]; tracked {
		s.mu.Unlock()
		log.Printf("WARNING: task %q already submitted, ignoring duplicate", task.ID)
		return
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.Status = TaskQueued

	// A held resource means its holder must finish before this task starts.
	for _, resource := range task.Resources {
		if holder, held := s.locks.holder(resource); held && holder != task.ID {
			task.Dependencies = appendUnique(task.Dependencies, holder)
		}
	}

	s.tasks[task.ID] = task
	s.backlog = append(s.backlog, task)
	s.sortBacklog()

	queued := events.TaskQueuedEvent{
		ID:        task.ID,
		Priority:  task.Priority.String(),
		Position:  s.position(task.ID),
		Timestamp: time.Now(),
	}
	stats := s.statsEvent()
	s.mu.Unlock()

	s.publish(queued)
	s.publish(stats)
}

// AdmitNext admits as much queued work as the ceiling allows. Each pass scans
// the sorted backlog and admits the first admissible task; the scan repeats
// until the ceiling is reached or nothing admissible remains, so freed
// capacity is back-filled in a single call. Skipped tasks stay queued.
// Returns copies of the newly admitted tasks.
//
// Callers must invoke AdmitNext after every submission burst; Complete and
// Fail re-run it internally because finishing a task can unblock others.
func (s *Scheduler) AdmitNext() []*Task {
	s.mu.Lock()

	var admitted []*Task
	var toPublish []events.Event

	for len(s.inflight) < s.limit {
		idx := s.nextAdmissible()
		if idx < 0 {
			break
		}

		task := s.backlog[idx]
		s.backlog = append(s.backlog[:idx], s.backlog[idx+1:]...)

		now := time.Now()
		task.Status = TaskProcessing
		task.StartedAt = &now
		s.locks.acquire(task.ID, task.Resources)
		s.inflight[task.ID] = task

		copied := cloneTask(task)
		admitted = append(admitted, copied)
		toPublish = append(toPublish, events.TaskAdmittedEvent{
			ID:        task.ID,
			Priority:  task.Priority.String(),
			Resources: copied.Resources,
			Timestamp: now,
		})
	}

	if len(admitted) > 0 {
		toPublish = append(toPublish, s.statsEvent())
	}
	s.mu.Unlock()

	for _, event := range toPublish {
		s.publish(event)
	}
	return admitted
}

// Complete reports an in-flight task as finished. Its resource locks are
// released and the admission scan reruns, since freed resources and capacity
// can unblock queued work. Reporting a task that is not in flight logs a
// warning and changes nothing.
func (s *Scheduler) Complete(taskID string) {
	s.finish(taskID, TaskCompleted, nil)
}

// Fail reports an in-flight task as failed. Locks are released exactly as on
// completion, but tasks depending on this one can never be admitted:
// dependencies must reach completed status.
func (s *Scheduler) Fail(taskID string, taskErr error) {
	s.finish(taskID, TaskFailed, taskErr)
}

func (s *Scheduler) finish(taskID string, status TaskStatus, taskErr error) {
	s.mu.Lock()
	task, inflight := s.inflight[taskID]
	if !inflight {
		s.mu.Unlock()
		log.Printf("WARNING: task %q is not in flight, ignoring %s report", taskID, status)
		return
	}

	now := time.Now()
	task.Status = status
	task.Err = taskErr
	task.CompletedAt = &now
	delete(s.inflight, taskID)
	s.locks.releaseAll(taskID)

	var duration time.Duration
	if task.StartedAt != nil {
		duration = now.Sub(*task.StartedAt)
	}

	var finished events.Event
	if status == TaskCompleted {
		s.completed++
		finished = events.TaskCompletedEvent{ID: taskID, Duration: duration, Timestamp: now}
	} else {
		s.failed++
		finished = events.TaskFailedEvent{ID: taskID, Err: taskErr, Duration: duration, Timestamp: now}
	}
	stats := s.statsEvent()
	s.mu.Unlock()

	s.publish(finished)
	s.publish(stats)

	s.AdmitNext()
}

// Get returns a copy of a tracked task. Terminal tasks remain tracked, so
// dependency checks and history lookups stay decidable after completion.
func (s *Scheduler) Get(taskID string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, tracked := s.tasks[taskID]
	if !tracked {
		return nil, false
	}
	return cloneTask(task), true
}

// Position returns the 1-based backlog position of a task, or -1 if the task
// is not queued.
func (s *Scheduler) Position(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position(taskID)
}

// EstimateWait returns a naive time-to-admission estimate for a queued task:
// its backlog position multiplied by an assumed mean task duration. Tasks not
// in the backlog estimate to zero.
func (s *Scheduler) EstimateWait(taskID string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.position(taskID)
	if pos < 0 {
		return 0
	}
	return time.Duration(pos) * meanTaskDuration
}

// QueueLength returns the number of queued tasks.
func (s *Scheduler) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog)
}

// InFlightCount returns the number of admitted tasks.
func (s *Scheduler) InFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// InFlight returns copies of the admitted tasks, ordered by admission time.
func (s *Scheduler) InFlight() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]*Task, 0, len(s.inflight))
	for _, task := range s.inflight {
		tasks = append(tasks, cloneTask(task))
	}
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.StartedAt != nil && b.StartedAt != nil && !a.StartedAt.Equal(*b.StartedAt) {
			return a.StartedAt.Before(*b.StartedAt)
		}
		return a.ID < b.ID
	})
	return tasks
}

// Queued returns copies of the backlog in admission-scan order.
func (s *Scheduler) Queued() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]*Task, 0, len(s.backlog))
	for _, task := range s.backlog {
		tasks = append(tasks, cloneTask(task))
	}
	return tasks
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Queued:    len(s.backlog),
		InFlight:  len(s.inflight),
		Completed: s.completed,
		Failed:    s.failed,
		Limit:     s.limit,
	}
}

// sortBacklog orders the backlog by priority weight descending, then
// CreatedAt ascending. The sort is stable, so equal keys keep FIFO order.
func (s *Scheduler) sortBacklog() {
	sort.SliceStable(s.backlog, func(i, j int) bool {
		if s.backlog[i].Priority != s.backlog[j].Priority {
			return s.backlog[i].Priority > s.backlog[j].Priority
		}
		return s.backlog[i].CreatedAt.Before(s.backlog[j].CreatedAt)
	})
}

// nextAdmissible returns the backlog index of the earliest-sorted admissible
// task, or -1 when nothing can start. Blocked tasks are skipped, not removed,
// so a lower-priority task with free resources can run ahead of a blocked
// higher-priority one.
func (s *Scheduler) nextAdmissible() int {
	for i, task := range s.backlog {
		if s.admissible(task) {
			return i
		}
	}
	return -1
}

// admissible applies the admission test: every tracked dependency must have
// completed (a failed dependency blocks forever, an unknown one is treated
// as satisfied), and no requested resource may be held by another task.
func (s *Scheduler) admissible(task *Task) bool {
	for _, depID := range task.Dependencies {
		dep, tracked := s.tasks[depID]
		if !tracked {
			continue
		}
		if dep.Status != TaskCompleted {
			return false
		}
	}
	return s.locks.available(task.ID, task.Resources)
}

// position is the lock-held variant of Position.
func (s *Scheduler) position(taskID string) int {
	for i, task := range s.backlog {
		if task.ID == taskID {
			return i + 1
		}
	}
	return -1
}

// statsEvent builds a QueueStatsEvent from current counters. Callers must
// hold s.mu.
func (s *Scheduler) statsEvent() events.QueueStatsEvent {
	return events.QueueStatsEvent{
		Queued:    len(s.backlog),
		InFlight:  len(s.inflight),
		Completed: s.completed,
		Failed:    s.failed,
		Limit:     s.limit,
		Timestamp: time.Now(),
	}
}

func (s *Scheduler) publish(event events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.TopicTask, event)
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
