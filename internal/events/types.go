package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask     = "task"
	TopicApproval = "approval"
)

// Event type constants
const (
	EventTypeTaskQueued    = "task.queued"
	EventTypeTaskAdmitted  = "task.admitted"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeQueueStats    = "queue.stats"

	EventTypeWorkflowCreated   = "workflow.created"
	EventTypeStageApproved     = "workflow.stage_approved"
	EventTypeStageAdvanced     = "workflow.stage_advanced"
	EventTypeWorkflowApproved  = "workflow.approved"
	EventTypeWorkflowRejected  = "workflow.rejected"
	EventTypeEmergencyOverride = "workflow.emergency"
)

// TaskQueuedEvent is published when a task enters the backlog.
type TaskQueuedEvent struct {
	ID        string
	Priority  string
	Position  int // 1-based position in the backlog after insertion
	Timestamp time.Time
}

func (e TaskQueuedEvent) EventType() string { return EventTypeTaskQueued }
func (e TaskQueuedEvent) TaskID() string    { return e.ID }

// TaskAdmittedEvent is published when a task wins admission and starts processing.
type TaskAdmittedEvent struct {
	ID        string
	Priority  string
	Resources []string
	Timestamp time.Time
}

func (e TaskAdmittedEvent) EventType() string { return EventTypeTaskAdmitted }
func (e TaskAdmittedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when an in-flight task is reported completed.
type TaskCompletedEvent struct {
	ID        string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when an in-flight task is reported failed.
type TaskFailedEvent struct {
	ID        string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// QueueStatsEvent is published after every scheduler mutation so monitors can
// track backlog depth and concurrency without polling.
type QueueStatsEvent struct {
	Queued    int
	InFlight  int
	Completed int
	Failed    int
	Limit     int
	Timestamp time.Time
}

func (e QueueStatsEvent) EventType() string { return EventTypeQueueStats }
func (e QueueStatsEvent) TaskID() string    { return "" }

// WorkflowCreatedEvent is published when an approval workflow is opened for a task.
type WorkflowCreatedEvent struct {
	ID          string // task ID the workflow gates
	RequestedBy string
	Stages      int
	Required    int
	Timestamp   time.Time
}

func (e WorkflowCreatedEvent) EventType() string { return EventTypeWorkflowCreated }
func (e WorkflowCreatedEvent) TaskID() string    { return e.ID }

// StageApprovedEvent is published when a single stage receives its approval.
type StageApprovedEvent struct {
	ID         string
	StageRole  string
	StageLevel int
	ApprovedBy string
	Timestamp  time.Time
}

func (e StageApprovedEvent) EventType() string { return EventTypeStageApproved }
func (e StageApprovedEvent) TaskID() string    { return e.ID }

// StageAdvancedEvent is published when the workflow moves on to a later stage.
type StageAdvancedEvent struct {
	ID         string
	StageRole  string // role required by the new current stage
	StageLevel int
	Timestamp  time.Time
}

func (e StageAdvancedEvent) EventType() string { return EventTypeStageAdvanced }
func (e StageAdvancedEvent) TaskID() string    { return e.ID }

// WorkflowApprovedEvent is published when every required stage has been approved.
type WorkflowApprovedEvent struct {
	ID        string
	Timestamp time.Time
}

func (e WorkflowApprovedEvent) EventType() string { return EventTypeWorkflowApproved }
func (e WorkflowApprovedEvent) TaskID() string    { return e.ID }

// WorkflowRejectedEvent is published when any participant rejects the workflow.
type WorkflowRejectedEvent struct {
	ID         string
	RejectedBy string
	Reason     string
	Timestamp  time.Time
}

func (e WorkflowRejectedEvent) EventType() string { return EventTypeWorkflowRejected }
func (e WorkflowRejectedEvent) TaskID() string    { return e.ID }

// EmergencyOverrideEvent is published when a superadmin bypasses the remaining
// stages. Kept distinct from WorkflowApprovedEvent so audit trails can tell a
// normal approval from an override.
type EmergencyOverrideEvent struct {
	ID         string
	ApprovedBy string
	Timestamp  time.Time
}

func (e EmergencyOverrideEvent) EventType() string { return EventTypeEmergencyOverride }
func (e EmergencyOverrideEvent) TaskID() string    { return e.ID }
