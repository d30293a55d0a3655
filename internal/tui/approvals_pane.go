package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/foreman/internal/workflow"
)

// ApprovalsPaneModel lists approval workflows with their stage progress and
// drives the engine from the keyboard: the acting user cycles with 'u', and
// a/r/x approve, reject or emergency-override the selected workflow. Engine
// refusals (Forbidden and friends) are expected interactions and land on the
// status line instead of crashing anything.
type ApprovalsPaneModel struct {
	engine      *workflow.Engine
	workflows   []*workflow.Workflow
	users       []*workflow.User
	selectedIdx int
	actingIdx   int // index into users: who the key presses act as
	status      string
	width       int
	height      int
	focused     bool
}

// NewApprovalsPaneModel creates an approvals pane driving the given engine.
func NewApprovalsPaneModel(engine *workflow.Engine) ApprovalsPaneModel {
	m := ApprovalsPaneModel{engine: engine}
	m.refresh()
	return m
}

// Update handles messages for the approvals pane. Any approval-topic event
// triggers a snapshot refresh; the event payload itself is not inspected.
func (m ApprovalsPaneModel) Update(msg tea.Msg) (ApprovalsPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		m.handleKey(msg.String())

	default:
		m.refresh()
	}

	return m, nil
}

func (m *ApprovalsPaneModel) handleKey(key string) {
	switch key {
	case KeyJ, KeyDown:
		if m.selectedIdx < len(m.workflows)-1 {
			m.selectedIdx++
		}
	case KeyK, KeyUp:
		if m.selectedIdx > 0 {
			m.selectedIdx--
		}
	case KeyActingUser:
		if len(m.users) > 0 {
			m.actingIdx = (m.actingIdx + 1) % len(m.users)
			m.status = fmt.Sprintf("acting as %s (%s)", m.actingUser().ID, m.actingUser().Role)
		}
	case KeyApprove:
		m.act("approve", func(taskID, userID string) error {
			approved, err := m.engine.Approve(taskID, userID)
			if err == nil && approved {
				m.status = fmt.Sprintf("workflow for %s fully approved", taskID)
			}
			return err
		})
	case KeyReject:
		m.act("reject", func(taskID, userID string) error {
			return m.engine.Reject(taskID, userID, "rejected from monitor")
		})
	case KeyEmergency:
		m.act("override", func(taskID, userID string) error {
			return m.engine.EmergencyApprove(taskID, userID)
		})
	}
}

// act runs an engine operation against the selected workflow as the acting
// user, then refreshes the snapshots.
func (m *ApprovalsPaneModel) act(name string, op func(taskID, userID string) error) {
	wf := m.selectedWorkflow()
	user := m.actingUser()
	if wf == nil || user == nil {
		m.status = "nothing selected"
		return
	}

	m.status = fmt.Sprintf("%s %s as %s", name, wf.TaskID, user.ID)
	if err := op(wf.TaskID, user.ID); err != nil {
		m.status = err.Error()
	}
	m.refresh()
}

// refresh re-reads workflow and user snapshots from the engine.
func (m *ApprovalsPaneModel) refresh() {
	m.workflows = m.engine.Workflows()
	m.users = m.engine.Users()
	if m.selectedIdx >= len(m.workflows) {
		m.selectedIdx = max(0, len(m.workflows)-1)
	}
	if m.actingIdx >= len(m.users) {
		m.actingIdx = 0
	}
}

func (m ApprovalsPaneModel) selectedWorkflow() *workflow.Workflow {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.workflows) {
		return m.workflows[m.selectedIdx]
	}
	return nil
}

func (m ApprovalsPaneModel) actingUser() *workflow.User {
	if m.actingIdx >= 0 && m.actingIdx < len(m.users) {
		return m.users[m.actingIdx]
	}
	return nil
}

// View renders the approvals pane.
func (m ApprovalsPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Approvals")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if acting := m.actingUser(); acting != nil {
		b.WriteString(StyleHelp.Render(fmt.Sprintf("acting as %s (%s)", acting.ID, acting.Role)))
		b.WriteString("\n\n")
	}

	if len(m.workflows) == 0 {
		b.WriteString(StyleStatusPending.Render("No pending approvals."))
		b.WriteString("\n")
	} else {
		for i, wf := range m.workflows {
			line := fmt.Sprintf("%s %s %s", workflowStatusIcon(wf.Status), wf.TaskID, renderStages(wf))
			if i == m.selectedIdx {
				line = lipgloss.NewStyle().
					Background(lipgloss.Color("62")).
					Foreground(lipgloss.Color("0")).
					Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(StyleStatusLine.Render(m.status))
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// renderStages renders one marker per stage: approved stages get a check,
// the current stage a dot, optional stages a dash until reached.
func renderStages(wf *workflow.Workflow) string {
	markers := make([]string, 0, len(wf.Stages))
	for i, stage := range wf.Stages {
		var mark string
		switch {
		case stage.ApprovedBy != "":
			mark = StyleStatusGood.Render(fmt.Sprintf("%s✓", stage.Role))
		case wf.Status == workflow.StatusPending && i == wf.CurrentStage:
			mark = StyleStatusActive.Render(fmt.Sprintf("%s●", stage.Role))
		case !stage.Required:
			mark = StyleStatusPending.Render(fmt.Sprintf("%s-", stage.Role))
		default:
			mark = StyleStatusPending.Render(fmt.Sprintf("%s○", stage.Role))
		}
		markers = append(markers, mark)
	}
	return "[" + strings.Join(markers, " ") + "]"
}

// workflowStatusIcon returns a styled workflow status indicator.
func workflowStatusIcon(status workflow.Status) string {
	switch status {
	case workflow.StatusApproved:
		return StyleStatusGood.Render("✓")
	case workflow.StatusRejected:
		return StyleStatusBad.Render("✗")
	case workflow.StatusExpired:
		return StyleStatusBad.Render("~")
	default:
		return StyleStatusActive.Render("●")
	}
}

// SetSize updates the pane dimensions.
func (m *ApprovalsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ApprovalsPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
