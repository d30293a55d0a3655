package scheduler

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskQueued     TaskStatus = iota // Waiting in the backlog
	TaskProcessing                   // Admitted, holding its resources
	TaskCompleted                    // Finished successfully
	TaskFailed                       // Finished with error
)

// String returns the status name used in events, logs and persistence.
func (s TaskStatus) String() string {
	switch s {
	case TaskQueued:
		return "queued"
	case TaskProcessing:
		return "processing"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Priority is a task's admission weight. Higher values sort earlier in the
// backlog; the numeric value itself is the sort key.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

// String returns the priority name used in events and config files.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "medium"
	}
}

// ParsePriority maps a priority name to its weight.
// Unknown names fall back to PriorityMedium.
func ParsePriority(name string) Priority {
	switch name {
	case "urgent":
		return PriorityUrgent
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Task represents a unit of work competing for admission.
type Task struct {
	ID           string     // Unique identifier, assigned by the caller
	Priority     Priority   // Admission weight, immutable after submission
	Resources    []string   // Names held exclusively while processing
	Dependencies []string   // Task IDs that must complete before admission
	Status       TaskStatus
	Err          error      // Error if failed
	CreatedAt    time.Time  // Submission time, FIFO tie-breaker within a priority
	StartedAt    *time.Time // Set on admission
	CompletedAt  *time.Time // Set on completion or failure
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.Resources != nil {
		cp.Resources = append([]string(nil), task.Resources...)
	}
	if task.Dependencies != nil {
		cp.Dependencies = append([]string(nil), task.Dependencies...)
	}
	return &cp
}
