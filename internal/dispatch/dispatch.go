package dispatch

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/foreman/internal/events"
	"github.com/aristath/foreman/internal/scheduler"
	"github.com/aristath/foreman/internal/workflow"
)

// Assignment carries an admitted task to a worker. It is the dispatcher's
// view of the task: identity and declared metadata, never content.
type Assignment struct {
	TaskID    string
	Priority  string
	Resources []string
}

// Result is what a worker hands back for a successful assignment.
type Result struct {
	Output string
}

// Worker performs the actual work for an admitted task. It stands in for
// whatever collaborator does the job (an AI backend, a deploy script); the
// dispatcher only cares that Execute returns or errors. Kind names the
// worker family for circuit breaker bookkeeping.
type Worker interface {
	Execute(ctx context.Context, a Assignment) (Result, error)
	Kind() string
}

// ApprovalPolicy decides whether a finished task's effects need sign-off
// before it counts as completed, and who the approval is requested on behalf
// of. A nil policy means no task ever needs approval.
type ApprovalPolicy func(taskID string) (requesterID string, required bool)

// Config configures a Dispatcher.
type Config struct {
	ConcurrencyLimit int            // Bound on concurrent worker executions (default 4)
	Retry            RetryConfig    // Backoff policy for worker executions
	Policy           ApprovalPolicy // Optional; nil disables approval gating
}

// Dispatcher is the reference orchestrator sitting between the scheduler and
// the workflow engine. It consumes admission events, runs the worker with
// retry and circuit breaker protection, opens approval workflows for tasks
// whose effects need sign-off, and reports completed/failed back to the
// scheduler when the work (and any workflow) resolves.
//
// The scheduler and engine never see each other; the dispatcher correlates
// them purely by task ID.
type Dispatcher struct {
	config      Config
	sched       *scheduler.Scheduler
	engine      *workflow.Engine
	worker      Worker
	breakers    *BreakerRegistry
	taskSub     <-chan events.Event
	approvalSub <-chan events.Event
}

// New creates a Dispatcher and subscribes it to the bus. The engine may be
// nil when cfg.Policy is nil.
func New(cfg Config, sched *scheduler.Scheduler, engine *workflow.Engine, worker Worker, bus *events.EventBus) *Dispatcher {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = scheduler.DefaultConcurrencyLimit
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}

	return &Dispatcher{
		config:      cfg,
		sched:       sched,
		engine:      engine,
		worker:      worker,
		breakers:    NewBreakerRegistry(),
		taskSub:     bus.Subscribe(events.TopicTask, 256),
		approvalSub: bus.Subscribe(events.TopicApproval, 256),
	}
}

// Submit queues a batch of tasks and runs one admission pass over the whole
// batch, so priority ordering is decided across the burst rather than
// task by task.
func (d *Dispatcher) Submit(tasks ...*scheduler.Task) {
	for _, task := range tasks {
		d.sched.Submit(task)
	}
	d.sched.AdmitNext()
}

// Run consumes bus events until the context is cancelled or the bus closes.
// Worker executions run on a bounded errgroup; Run waits for in-flight
// executions to finish before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.ConcurrencyLimit)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()

		case event, ok := <-d.taskSub:
			if !ok {
				_ = g.Wait()
				return nil
			}
			admitted, isAdmission := event.(events.TaskAdmittedEvent)
			if !isAdmission {
				continue
			}
			a := Assignment{
				TaskID:    admitted.ID,
				Priority:  admitted.Priority,
				Resources: admitted.Resources,
			}
			g.Go(func() error {
				d.execute(gctx, a)
				return nil
			})

		case event, ok := <-d.approvalSub:
			if !ok {
				_ = g.Wait()
				return nil
			}
			d.resolveWorkflow(event)
		}
	}
}

// execute runs one assignment through the worker and reports the outcome.
// A task whose policy demands approval is parked: it stays in flight,
// holding its resources, until its workflow resolves.
func (d *Dispatcher) execute(ctx context.Context, a Assignment) {
	cb := d.breakers.Get(d.worker.Kind())

	result, err := executeWithRetry(ctx, d.worker, a, cb, d.config.Retry)
	if err != nil {
		d.sched.Fail(a.TaskID, err)
		return
	}
	if result.Output != "" {
		log.Printf("task %q produced %d bytes of output", a.TaskID, len(result.Output))
	}

	if d.config.Policy != nil {
		if requesterID, required := d.config.Policy(a.TaskID); required {
			if _, err := d.engine.CreateWorkflow(a.TaskID, requesterID); err != nil {
				d.sched.Fail(a.TaskID, fmt.Errorf("approval required but workflow not created: %w", err))
				return
			}
			// Parked until the workflow resolves.
			return
		}
	}

	d.sched.Complete(a.TaskID)
}

// resolveWorkflow translates workflow outcomes into scheduler reports. The
// record is cleaned up once resolved; the audit trail lives in the event
// stream, not the engine.
func (d *Dispatcher) resolveWorkflow(event events.Event) {
	switch e := event.(type) {
	case events.WorkflowApprovedEvent:
		d.sched.Complete(e.ID)
		d.engine.Cleanup(e.ID)
	case events.EmergencyOverrideEvent:
		d.sched.Complete(e.ID)
		d.engine.Cleanup(e.ID)
	case events.WorkflowRejectedEvent:
		d.sched.Fail(e.ID, fmt.Errorf("rejected by %s: %s", e.RejectedBy, e.Reason))
		d.engine.Cleanup(e.ID)
	}
}
