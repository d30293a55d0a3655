package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/foreman/internal/events"
	"github.com/aristath/foreman/internal/scheduler"
)

// mapSource is a TaskSource backed by a plain map.
type mapSource map[string]*scheduler.Task

func (m mapSource) Get(taskID string) (*scheduler.Task, bool) {
	task, ok := m[taskID]
	return task, ok
}

// startRecorder runs a recorder against the bus for the duration of the test.
func startRecorder(t *testing.T, store Store, source TaskSource, bus *events.EventBus) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	rec := NewRecorder(store, source, bus) // subscribe before any test publishes
	go func() {
		defer close(done)
		_ = rec.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// TestRecorderPersistsAuditTrail drives a full lifecycle through the bus and
// verifies the stored history: queued, admitted, stage approvals, resolution,
// completion.
func TestRecorderPersistsAuditTrail(t *testing.T) {
	store := testStore(t)
	bus := events.NewEventBus()
	defer bus.Close()

	now := time.Now().UTC().Truncate(time.Second)
	task := &scheduler.Task{
		ID:        "deploy-1",
		Priority:  scheduler.PriorityHigh,
		Resources: []string{"web"},
		Status:    scheduler.TaskQueued,
		CreatedAt: now,
	}
	source := mapSource{"deploy-1": task}
	startRecorder(t, store, source, bus)

	bus.Publish(events.TopicTask, events.TaskQueuedEvent{ID: "deploy-1", Priority: "high", Position: 1, Timestamp: now})
	waitForStored(t, store, "deploy-1", scheduler.TaskQueued)

	// The source reflects admission; the next snapshot must too.
	started := now.Add(time.Second)
	task.Status = scheduler.TaskProcessing
	task.StartedAt = &started
	bus.Publish(events.TopicTask, events.TaskAdmittedEvent{ID: "deploy-1", Priority: "high", Resources: []string{"web"}, Timestamp: started})
	waitForStored(t, store, "deploy-1", scheduler.TaskProcessing)

	bus.Publish(events.TopicApproval, events.StageApprovedEvent{ID: "deploy-1", StageRole: "admin", StageLevel: 2, ApprovedBy: "ops", Timestamp: started})
	bus.Publish(events.TopicApproval, events.WorkflowApprovedEvent{ID: "deploy-1", Timestamp: started})

	completed := now.Add(2 * time.Second)
	task.Status = scheduler.TaskCompleted
	task.CompletedAt = &completed
	bus.Publish(events.TopicTask, events.TaskCompletedEvent{ID: "deploy-1", Duration: time.Second, Timestamp: completed})
	waitForStored(t, store, "deploy-1", scheduler.TaskCompleted)

	log := waitForLog(t, store, "deploy-1", 2)
	if log[0].Action != "approve" || log[0].StageRole != "admin" || log[0].Actor != "ops" {
		t.Errorf("log[0] = %+v, want admin stage approved by ops", log[0])
	}
	if log[1].Action != "resolve" {
		t.Errorf("log[1].Action = %s, want resolve", log[1].Action)
	}
}

// TestRecorderPersistsRejectionAndOverride verifies the distinct audit rows
// for rejection and emergency bypass.
func TestRecorderPersistsRejectionAndOverride(t *testing.T) {
	store := testStore(t)
	bus := events.NewEventBus()
	defer bus.Close()
	startRecorder(t, store, mapSource{}, bus)

	now := time.Now().UTC().Truncate(time.Second)
	bus.Publish(events.TopicApproval, events.WorkflowRejectedEvent{ID: "change-1", RejectedBy: "dev", Reason: "too risky", Timestamp: now})
	bus.Publish(events.TopicApproval, events.EmergencyOverrideEvent{ID: "change-2", ApprovedBy: "root", Timestamp: now})

	rejected := waitForLog(t, store, "change-1", 1)
	if rejected[0].Action != "reject" || rejected[0].Reason != "too risky" {
		t.Errorf("change-1 log = %+v, want rejection with reason", rejected[0])
	}

	overridden := waitForLog(t, store, "change-2", 1)
	if overridden[0].Action != "emergency" || overridden[0].Actor != "root" {
		t.Errorf("change-2 log = %+v, want emergency by root", overridden[0])
	}
}

func waitForStored(t *testing.T, store Store, taskID string, want scheduler.TaskStatus) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if task, err := store.GetTask(context.Background(), taskID); err == nil && task.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %q never stored with status %s", taskID, want)
}

func waitForLog(t *testing.T, store Store, taskID string, wantLen int) []ApprovalRecord {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if log, err := store.ApprovalLog(context.Background(), taskID); err == nil && len(log) >= wantLen {
			return log
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("approval log for %q never reached %d records", taskID, wantLen)
	return nil
}
