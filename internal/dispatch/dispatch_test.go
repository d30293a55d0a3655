package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/foreman/internal/events"
	"github.com/aristath/foreman/internal/scheduler"
	"github.com/aristath/foreman/internal/workflow"
)

// fakeWorker runs a test-provided function for every assignment.
type fakeWorker struct {
	kind string
	fn   func(ctx context.Context, a Assignment) (Result, error)
}

func (w *fakeWorker) Execute(ctx context.Context, a Assignment) (Result, error) {
	return w.fn(ctx, a)
}

func (w *fakeWorker) Kind() string {
	if w.kind == "" {
		return "fake"
	}
	return w.kind
}

// fastRetry keeps test retries in the millisecond range.
func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval:     time.Millisecond,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      250 * time.Millisecond,
		Multiplier:          2.0,
		RandomizationFactor: 0,
	}
}

// harness wires a scheduler, engine and dispatcher to one bus and runs the
// dispatcher until the test ends.
type harness struct {
	sched  *scheduler.Scheduler
	engine *workflow.Engine
	disp   *Dispatcher
}

func newHarness(t *testing.T, cfg Config, worker Worker) *harness {
	t.Helper()

	bus := events.NewEventBus()
	sched := scheduler.New(2, bus)
	engine := workflow.NewEngine(bus)
	engine.AddUser(&workflow.User{ID: "root", Role: workflow.RoleSuperadmin})
	engine.AddUser(&workflow.User{ID: "ops", Role: workflow.RoleAdmin})
	engine.AddUser(&workflow.User{ID: "dev", Role: workflow.RoleDeveloper})

	disp := New(cfg, sched, engine, worker, bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = disp.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		bus.Close()
	})

	return &harness{sched: sched, engine: engine, disp: disp}
}

// waitForStatus polls until the task reaches the wanted status.
func waitForStatus(t *testing.T, s *scheduler.Scheduler, taskID string, want scheduler.TaskStatus) *scheduler.Task {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if task, ok := s.Get(taskID); ok && task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := s.Get(taskID)
	t.Fatalf("task %q never reached %s (last seen: %+v)", taskID, want, task)
	return nil
}

// waitForWorkflow polls until the engine holds a workflow for the task.
func waitForWorkflow(t *testing.T, e *workflow.Engine, taskID string) *workflow.Workflow {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if wf, ok := e.Get(taskID); ok {
			return wf
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no workflow appeared for task %q", taskID)
	return nil
}

// TestDispatcherCompletesAdmittedTask covers the no-approval path: admitted,
// executed, completed, locks released.
func TestDispatcherCompletesAdmittedTask(t *testing.T) {
	var executed atomic.Int32
	worker := &fakeWorker{fn: func(ctx context.Context, a Assignment) (Result, error) {
		executed.Add(1)
		return Result{Output: "done"}, nil
	}}
	h := newHarness(t, Config{Retry: fastRetry()}, worker)

	h.disp.Submit(&scheduler.Task{ID: "T1", Priority: scheduler.PriorityHigh, Resources: []string{"web"}})

	waitForStatus(t, h.sched, "T1", scheduler.TaskCompleted)
	if got := executed.Load(); got != 1 {
		t.Errorf("worker executed %d times, want 1", got)
	}

	// The resource must be free for the next task.
	h.disp.Submit(&scheduler.Task{ID: "T2", Priority: scheduler.PriorityLow, Resources: []string{"web"}})
	waitForStatus(t, h.sched, "T2", scheduler.TaskCompleted)
}

// TestDispatcherRetriesTransientFailures verifies a worker that fails twice
// then succeeds still completes the task.
func TestDispatcherRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	worker := &fakeWorker{fn: func(ctx context.Context, a Assignment) (Result, error) {
		if attempts.Add(1) < 3 {
			return Result{}, errors.New("transient failure")
		}
		return Result{}, nil
	}}
	h := newHarness(t, Config{Retry: fastRetry()}, worker)

	h.disp.Submit(&scheduler.Task{ID: "flaky", Priority: scheduler.PriorityMedium})

	waitForStatus(t, h.sched, "flaky", scheduler.TaskCompleted)
	if got := attempts.Load(); got != 3 {
		t.Errorf("worker attempts = %d, want 3", got)
	}
}

// TestDispatcherFailsAfterRetryBudget verifies a persistently failing worker
// fails the task once the backoff budget is exhausted.
func TestDispatcherFailsAfterRetryBudget(t *testing.T) {
	workerErr := errors.New("broken collaborator")
	worker := &fakeWorker{fn: func(ctx context.Context, a Assignment) (Result, error) {
		return Result{}, workerErr
	}}
	h := newHarness(t, Config{Retry: fastRetry()}, worker)

	h.disp.Submit(&scheduler.Task{ID: "doomed", Priority: scheduler.PriorityUrgent})

	task := waitForStatus(t, h.sched, "doomed", scheduler.TaskFailed)
	if !errors.Is(task.Err, workerErr) {
		t.Errorf("task error = %v, want wrapped %v", task.Err, workerErr)
	}
}

// TestDispatcherParksTaskUntilApproved covers the approval path: the task
// stays in flight after the work is done, and only completes once every
// required stage signs off.
func TestDispatcherParksTaskUntilApproved(t *testing.T) {
	worker := &fakeWorker{fn: func(ctx context.Context, a Assignment) (Result, error) {
		return Result{}, nil
	}}
	cfg := Config{
		Retry:  fastRetry(),
		Policy: func(taskID string) (string, bool) { return "ops", true },
	}
	h := newHarness(t, cfg, worker)

	h.disp.Submit(&scheduler.Task{ID: "gated", Priority: scheduler.PriorityHigh})

	wf := waitForWorkflow(t, h.engine, "gated")
	if len(wf.Stages) != 2 {
		t.Fatalf("admin-requested workflow has %d stages, want 2", len(wf.Stages))
	}

	// Work is done but the task must still hold its in-flight slot.
	task, _ := h.sched.Get("gated")
	if task.Status != scheduler.TaskProcessing {
		t.Fatalf("task status = %v before approval, want TaskProcessing", task.Status)
	}

	approved, err := h.engine.Approve("gated", "root")
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if !approved {
		t.Fatal("Approve() = false, want true (optional superadmin stage skipped)")
	}

	waitForStatus(t, h.sched, "gated", scheduler.TaskCompleted)
}

// TestDispatcherFailsRejectedTask verifies any registered user's rejection
// fails the parked task with the rejection reason.
func TestDispatcherFailsRejectedTask(t *testing.T) {
	worker := &fakeWorker{fn: func(ctx context.Context, a Assignment) (Result, error) {
		return Result{}, nil
	}}
	cfg := Config{
		Retry:  fastRetry(),
		Policy: func(taskID string) (string, bool) { return "ops", true },
	}
	h := newHarness(t, cfg, worker)

	h.disp.Submit(&scheduler.Task{ID: "vetoed", Priority: scheduler.PriorityMedium})
	waitForWorkflow(t, h.engine, "vetoed")

	if err := h.engine.Reject("vetoed", "dev", "not this week"); err != nil {
		t.Fatalf("Reject() error: %v", err)
	}

	task := waitForStatus(t, h.sched, "vetoed", scheduler.TaskFailed)
	if task.Err == nil || !strings.Contains(task.Err.Error(), "not this week") {
		t.Errorf("task error = %v, want rejection reason carried through", task.Err)
	}
}

// TestDispatcherEmergencyOverrideCompletes verifies a superadmin bypass
// completes the parked task like a normal approval.
func TestDispatcherEmergencyOverrideCompletes(t *testing.T) {
	worker := &fakeWorker{fn: func(ctx context.Context, a Assignment) (Result, error) {
		return Result{}, nil
	}}
	cfg := Config{
		Retry:  fastRetry(),
		Policy: func(taskID string) (string, bool) { return "dev", true },
	}
	h := newHarness(t, cfg, worker)

	h.disp.Submit(&scheduler.Task{ID: "hotfix", Priority: scheduler.PriorityUrgent})
	waitForWorkflow(t, h.engine, "hotfix")

	if err := h.engine.EmergencyApprove("hotfix", "root"); err != nil {
		t.Fatalf("EmergencyApprove() error: %v", err)
	}

	waitForStatus(t, h.sched, "hotfix", scheduler.TaskCompleted)
}

// TestDispatcherFailsWhenRequesterUnknown verifies a policy naming an
// unregistered requester fails the task instead of silently skipping the
// approval gate.
func TestDispatcherFailsWhenRequesterUnknown(t *testing.T) {
	worker := &fakeWorker{fn: func(ctx context.Context, a Assignment) (Result, error) {
		return Result{}, nil
	}}
	cfg := Config{
		Retry:  fastRetry(),
		Policy: func(taskID string) (string, bool) { return "nobody", true },
	}
	h := newHarness(t, cfg, worker)

	h.disp.Submit(&scheduler.Task{ID: "orphan", Priority: scheduler.PriorityLow})

	task := waitForStatus(t, h.sched, "orphan", scheduler.TaskFailed)
	if !errors.Is(task.Err, workflow.ErrUnknownUser) {
		t.Errorf("task error = %v, want ErrUnknownUser", task.Err)
	}
}
