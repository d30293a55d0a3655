package workflow

import "time"

// Status is an approval workflow's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	// StatusExpired is declared for external timers to apply; the engine
	// never sets it itself. Stage timeouts are stored but not enforced.
	StatusExpired Status = "expired"
)

// Stage timeouts, stored on each stage for an external expiry sweep.
const (
	developerStageTimeout  = 30 * time.Minute
	adminStageTimeout      = 60 * time.Minute
	superadminStageTimeout = 120 * time.Minute
)

// Stage is one role-gated checkpoint in a workflow. Optional stages are
// skipped when the advance reaches them.
type Stage struct {
	Level      int           // Trust ordinal of the gating role
	Role       Role          // Role whose approval this stage wants
	Required   bool          // Optional stages are skippable
	Timeout    time.Duration // Stored, inert without an external timer
	ApprovedBy string
	ApprovedAt *time.Time
}

// Workflow is the approval state machine for one task. Stages are fixed at
// creation from the requester's role; only approve, reject and emergency
// bypass mutate it afterwards.
type Workflow struct {
	TaskID            string
	RequestedBy       string
	Stages            []Stage
	CurrentStage      int // Index into Stages
	RequiredApprovals int // Count of required stages at creation, informational
	Status            Status
	CreatedAt         time.Time
}

// stagesFor builds the stage sequence for a requester's role: developers get
// a developer sign-off stage first; everyone gets a required admin stage and
// an optional superadmin stage.
func stagesFor(role Role) []Stage {
	var stages []Stage
	if role == RoleDeveloper {
		stages = append(stages, Stage{
			Level:    RoleDeveloper.Level(),
			Role:     RoleDeveloper,
			Required: true,
			Timeout:  developerStageTimeout,
		})
	}
	stages = append(stages,
		Stage{
			Level:    RoleAdmin.Level(),
			Role:     RoleAdmin,
			Required: true,
			Timeout:  adminStageTimeout,
		},
		Stage{
			Level:    RoleSuperadmin.Level(),
			Role:     RoleSuperadmin,
			Required: false,
			Timeout:  superadminStageTimeout,
		},
	)
	return stages
}

func cloneWorkflow(wf *Workflow) *Workflow {
	if wf == nil {
		return nil
	}

	cp := *wf
	if wf.Stages != nil {
		cp.Stages = append([]Stage(nil), wf.Stages...)
	}
	return &cp
}
