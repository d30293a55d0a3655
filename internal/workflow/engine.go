package workflow

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/aristath/foreman/internal/events"
)

var (
	// ErrUnknownUser means the acting or requesting user is not registered.
	ErrUnknownUser = errors.New("unknown user")
	// ErrUnknownWorkflow means no workflow exists for the given task.
	ErrUnknownWorkflow = errors.New("unknown workflow")
	// ErrForbidden means the acting user's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")
)

// Engine owns one approval workflow per task and the user registry the
// permission checks run against. Workflows are correlated to scheduler tasks
// only by sharing a task ID; the engine never validates IDs against the
// scheduler.
//
// Like the scheduler, all state sits behind a single mutex, every public
// operation is one atomic step, and event publishes happen outside the
// critical section. A failed check mutates nothing.
type Engine struct {
	mu        sync.Mutex
	users     map[string]*User
	workflows map[string]*Workflow
	bus       *events.EventBus
}

// NewEngine creates an Engine with an empty registry. The bus may be nil.
func NewEngine(bus *events.EventBus) *Engine {
	return &Engine{
		users:     make(map[string]*User),
		workflows: make(map[string]*Workflow),
		bus:       bus,
	}
}

// CreateWorkflow builds the approval workflow for a task from the requester's
// role and replaces any previous workflow for the same task. Fails with
// ErrUnknownUser when the requester is not registered.
func (e *Engine) CreateWorkflow(taskID, requesterID string) (*Workflow, error) {
	e.mu.Lock()

	requester, ok := e.users[requesterID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("create workflow for task %q: %w: %q", taskID, ErrUnknownUser, requesterID)
	}

	stages := stagesFor(requester.Role)
	required := 0
	for _, stage := range stages {
		if stage.Required {
			required++
		}
	}

	if _, exists := e.workflows[taskID]; exists {
		log.Printf("WARNING: replacing existing workflow for task %q", taskID)
	}

	wf := &Workflow{
		TaskID:            taskID,
		RequestedBy:       requesterID,
		Stages:            stages,
		RequiredApprovals: required,
		Status:            StatusPending,
		CreatedAt:         time.Now(),
	}
	e.workflows[taskID] = wf

	snapshot := cloneWorkflow(wf)
	created := events.WorkflowCreatedEvent{
		ID:          taskID,
		RequestedBy: requesterID,
		Stages:      len(stages),
		Required:    required,
		Timestamp:   wf.CreatedAt,
	}
	e.mu.Unlock()

	e.publish(created)
	return snapshot, nil
}

// Approve records the acting user's sign-off on the current stage and
// advances the workflow, skipping optional stages. Returns whether the
// workflow is now fully approved.
//
// Fails with ErrUnknownWorkflow, ErrUnknownUser, or ErrForbidden when the
// user's role cannot approve the current stage. Approving a workflow already
// terminal logs a warning, changes nothing, and reports the current outcome.
func (e *Engine) Approve(taskID, userID string) (bool, error) {
	e.mu.Lock()

	wf, ok := e.workflows[taskID]
	if !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("approve task %q: %w", taskID, ErrUnknownWorkflow)
	}
	user, ok := e.users[userID]
	if !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("approve task %q: %w: %q", taskID, ErrUnknownUser, userID)
	}
	if wf.Status != StatusPending {
		approved := wf.Status == StatusApproved
		e.mu.Unlock()
		log.Printf("WARNING: workflow for task %q is already %s, ignoring approval by %s", taskID, wf.Status, userID)
		return approved, nil
	}

	stage := &wf.Stages[wf.CurrentStage]
	if !user.Role.CanApprove(stage.Role) {
		e.mu.Unlock()
		return false, fmt.Errorf("approve task %q: %w: role %s cannot approve the %s stage",
			taskID, ErrForbidden, user.Role, stage.Role)
	}

	now := time.Now()
	stage.ApprovedBy = userID
	stage.ApprovedAt = &now

	toPublish := []events.Event{events.StageApprovedEvent{
		ID:         taskID,
		StageRole:  string(stage.Role),
		StageLevel: stage.Level,
		ApprovedBy: userID,
		Timestamp:  now,
	}}

	// Advance: skip forward over optional stages; landing past the end
	// means every required stage has signed off.
	next := wf.CurrentStage + 1
	for next < len(wf.Stages) && !wf.Stages[next].Required {
		next++
	}

	approved := false
	if next >= len(wf.Stages) {
		wf.Status = StatusApproved
		approved = true
		toPublish = append(toPublish, events.WorkflowApprovedEvent{ID: taskID, Timestamp: now})
	} else {
		wf.CurrentStage = next
		toPublish = append(toPublish, events.StageAdvancedEvent{
			ID:         taskID,
			StageRole:  string(wf.Stages[next].Role),
			StageLevel: wf.Stages[next].Level,
			Timestamp:  now,
		})
	}
	e.mu.Unlock()

	for _, event := range toPublish {
		e.publish(event)
	}
	return approved, nil
}

// Reject marks the workflow rejected regardless of its current stage. Any
// registered user may reject; only approval is role-gated. Rejecting a
// terminal workflow logs a warning and changes nothing.
func (e *Engine) Reject(taskID, userID, reason string) error {
	e.mu.Lock()

	wf, ok := e.workflows[taskID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("reject task %q: %w", taskID, ErrUnknownWorkflow)
	}
	if _, ok := e.users[userID]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("reject task %q: %w: %q", taskID, ErrUnknownUser, userID)
	}
	if wf.Status != StatusPending {
		status := wf.Status
		e.mu.Unlock()
		log.Printf("WARNING: workflow for task %q is already %s, ignoring rejection by %s", taskID, status, userID)
		return nil
	}

	wf.Status = StatusRejected
	rejected := events.WorkflowRejectedEvent{
		ID:         taskID,
		RejectedBy: userID,
		Reason:     reason,
		Timestamp:  time.Now(),
	}
	e.mu.Unlock()

	e.publish(rejected)
	return nil
}

// EmergencyApprove forces a pending workflow straight to approved, bypassing
// all remaining stages. Restricted to superadmins; the override is published
// as a distinct event for audit. Overriding a terminal workflow logs a
// warning and changes nothing.
func (e *Engine) EmergencyApprove(taskID, userID string) error {
	e.mu.Lock()

	wf, ok := e.workflows[taskID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("emergency approve task %q: %w", taskID, ErrUnknownWorkflow)
	}
	user, ok := e.users[userID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("emergency approve task %q: %w: %q", taskID, ErrUnknownUser, userID)
	}
	if user.Role != RoleSuperadmin {
		e.mu.Unlock()
		return fmt.Errorf("emergency approve task %q: %w: requires superadmin, %s is %s",
			taskID, ErrForbidden, userID, user.Role)
	}
	if wf.Status != StatusPending {
		status := wf.Status
		e.mu.Unlock()
		log.Printf("WARNING: workflow for task %q is already %s, ignoring emergency approval by %s", taskID, status, userID)
		return nil
	}

	wf.Status = StatusApproved
	override := events.EmergencyOverrideEvent{
		ID:         taskID,
		ApprovedBy: userID,
		Timestamp:  time.Now(),
	}
	e.mu.Unlock()

	e.publish(override)
	return nil
}

// NextApprovers returns the registered users whose role can approve the
// workflow's current stage, highest trust first. Terminal workflows have no
// next approvers.
func (e *Engine) NextApprovers(taskID string) ([]*User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	wf, ok := e.workflows[taskID]
	if !ok {
		return nil, fmt.Errorf("next approvers for task %q: %w", taskID, ErrUnknownWorkflow)
	}
	if wf.Status != StatusPending {
		return nil, nil
	}

	stage := wf.Stages[wf.CurrentStage]
	var approvers []*User
	for _, user := range e.users {
		if user.Role.CanApprove(stage.Role) {
			approvers = append(approvers, cloneUser(user))
		}
	}
	sortUsers(approvers)
	return approvers, nil
}

// AddUser registers a user, replacing any previous entry with the same ID.
// Empty permissions are filled from the role's defaults. Registry changes
// apply immediately, including to workflows already in flight.
func (e *Engine) AddUser(user *User) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(user.Permissions) == 0 {
		user.Permissions = defaultPermissions(user.Role)
	}
	e.users[user.ID] = user
}

// RemoveUser drops a user from the registry. Removing an unknown user is a
// no-op.
func (e *Engine) RemoveUser(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.users, userID)
}

// Users returns a snapshot of the registry, highest trust first.
func (e *Engine) Users() []*User {
	e.mu.Lock()
	defer e.mu.Unlock()

	users := make([]*User, 0, len(e.users))
	for _, user := range e.users {
		users = append(users, cloneUser(user))
	}
	sortUsers(users)
	return users
}

// Get returns a snapshot of a task's workflow.
func (e *Engine) Get(taskID string) (*Workflow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	wf, ok := e.workflows[taskID]
	if !ok {
		return nil, false
	}
	return cloneWorkflow(wf), true
}

// Workflows returns a snapshot of every workflow, newest first.
func (e *Engine) Workflows() []*Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()

	workflows := make([]*Workflow, 0, len(e.workflows))
	for _, wf := range e.workflows {
		workflows = append(workflows, cloneWorkflow(wf))
	}
	sort.Slice(workflows, func(i, j int) bool {
		if !workflows[i].CreatedAt.Equal(workflows[j].CreatedAt) {
			return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
		}
		return workflows[i].TaskID < workflows[j].TaskID
	})
	return workflows
}

// Cleanup discards a task's workflow record. Idempotent: cleaning up a task
// with no workflow just logs.
func (e *Engine) Cleanup(taskID string) {
	e.mu.Lock()
	_, ok := e.workflows[taskID]
	delete(e.workflows, taskID)
	e.mu.Unlock()

	if !ok {
		log.Printf("WARNING: no workflow to clean up for task %q", taskID)
	}
}

func (e *Engine) publish(event events.Event) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.TopicApproval, event)
}

func sortUsers(users []*User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Role.Level() != users[j].Role.Level() {
			return users[i].Role.Level() > users[j].Role.Level()
		}
		return users[i].ID < users[j].ID
	})
}
