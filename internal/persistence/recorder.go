package persistence

import (
	"context"
	"log"

	"github.com/aristath/foreman/internal/events"
	"github.com/aristath/foreman/internal/scheduler"
)

// TaskSource yields current task snapshots for the recorder; the scheduler
// satisfies it.
type TaskSource interface {
	Get(taskID string) (*scheduler.Task, bool)
}

// Recorder pumps bus events into the store: every task lifecycle event saves
// a fresh snapshot, every approval event appends to the audit trail. Storage
// failures are logged, never propagated - history is best-effort and the
// core keeps running without it.
type Recorder struct {
	store  Store
	source TaskSource
	sub    <-chan events.Event
}

// NewRecorder creates a Recorder subscribed to every bus topic.
func NewRecorder(store Store, source TaskSource, bus *events.EventBus) *Recorder {
	return &Recorder{
		store:  store,
		source: source,
		sub:    bus.SubscribeAll(256),
	}
}

// Run consumes events until the context is cancelled or the bus closes.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-r.sub:
			if !ok {
				return nil
			}
			r.record(ctx, event)
		}
	}
}

func (r *Recorder) record(ctx context.Context, event events.Event) {
	switch e := event.(type) {
	case events.TaskQueuedEvent, events.TaskAdmittedEvent, events.TaskCompletedEvent, events.TaskFailedEvent:
		r.snapshotTask(ctx, event.TaskID())

	case events.StageApprovedEvent:
		r.append(ctx, ApprovalRecord{
			TaskID:     e.ID,
			Action:     "approve",
			StageRole:  e.StageRole,
			StageLevel: e.StageLevel,
			Actor:      e.ApprovedBy,
			Timestamp:  e.Timestamp,
		})

	case events.WorkflowApprovedEvent:
		r.append(ctx, ApprovalRecord{
			TaskID:    e.ID,
			Action:    "resolve",
			Timestamp: e.Timestamp,
		})

	case events.WorkflowRejectedEvent:
		r.append(ctx, ApprovalRecord{
			TaskID:    e.ID,
			Action:    "reject",
			Actor:     e.RejectedBy,
			Reason:    e.Reason,
			Timestamp: e.Timestamp,
		})

	case events.EmergencyOverrideEvent:
		r.append(ctx, ApprovalRecord{
			TaskID:    e.ID,
			Action:    "emergency",
			Actor:     e.ApprovedBy,
			Timestamp: e.Timestamp,
		})
	}
}

func (r *Recorder) snapshotTask(ctx context.Context, taskID string) {
	task, ok := r.source.Get(taskID)
	if !ok {
		log.Printf("WARNING: no task %q to snapshot", taskID)
		return
	}
	if err := r.store.SaveTask(ctx, task); err != nil {
		log.Printf("WARNING: failed to persist task %q: %v", taskID, err)
	}
}

func (r *Recorder) append(ctx context.Context, rec ApprovalRecord) {
	if err := r.store.RecordApproval(ctx, rec); err != nil {
		log.Printf("WARNING: failed to persist approval action for task %q: %v", rec.TaskID, err)
	}
}
