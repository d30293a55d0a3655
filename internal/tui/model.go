package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/foreman/internal/config"
	"github.com/aristath/foreman/internal/events"
	"github.com/aristath/foreman/internal/scheduler"
	"github.com/aristath/foreman/internal/workflow"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneQueue PaneID = iota
	PaneApprovals
)

// Model is the root Bubble Tea model for the monitor: the task queue on the
// left, approval workflows on the right, and a settings overlay.
type Model struct {
	queuePane         QueuePaneModel
	approvalsPane     ApprovalsPaneModel
	settingsPane      SettingsPaneModel
	focusedPane       PaneID
	eventSub          <-chan events.Event
	width             int
	height            int
	quitting          bool
	showSettings      bool
	config            *config.ForemanConfig
	globalConfigPath  string
	projectConfigPath string
}

// New creates a new monitor model.
// It subscribes to all events from the event bus using SubscribeAll.
func New(bus *events.EventBus, sched *scheduler.Scheduler, engine *workflow.Engine, cfg *config.ForemanConfig, globalPath, projectPath string) Model {
	return Model{
		queuePane:         NewQueuePaneModel(sched),
		approvalsPane:     NewApprovalsPaneModel(engine),
		settingsPane:      NewSettingsPaneModel(cfg, engine, globalPath, projectPath),
		focusedPane:       PaneQueue,
		eventSub:          bus.SubscribeAll(256),
		config:            cfg,
		globalConfigPath:  globalPath,
		projectConfigPath: projectPath,
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// If the settings panel is open, route all keys to it (modal behavior)
		if m.showSettings {
			switch msg.String() {
			case KeySettings, "esc":
				m.showSettings = false
				m.settingsPane.SetVisible(false)
			default:
				var cmd tea.Cmd
				m.settingsPane, cmd = m.settingsPane.Update(msg)
				cmds = append(cmds, cmd)

				// The pane closes itself after a save
				if !m.settingsPane.IsVisible() {
					m.showSettings = false
				}
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyTab, KeyShiftTab:
			// Two panes, so forward and backward are the same hop
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneQueue
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneApprovals
			m.updateFocusStates()

		default:
			// Delegate to the focused pane
			switch m.focusedPane {
			case PaneQueue:
				var cmd tea.Cmd
				m.queuePane, cmd = m.queuePane.Update(msg)
				cmds = append(cmds, cmd)
			case PaneApprovals:
				var cmd tea.Cmd
				m.approvalsPane, cmd = m.approvalsPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case events.TaskQueuedEvent, events.TaskAdmittedEvent, events.TaskCompletedEvent,
		events.TaskFailedEvent, events.QueueStatsEvent:
		var cmd tea.Cmd
		m.queuePane, cmd = m.queuePane.Update(msg)
		cmds = append(cmds, cmd)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.WorkflowCreatedEvent, events.StageApprovedEvent, events.StageAdvancedEvent,
		events.WorkflowApprovedEvent, events.WorkflowRejectedEvent, events.EmergencyOverrideEvent:
		var cmd tea.Cmd
		m.approvalsPane, cmd = m.approvalsPane.Update(msg)
		cmds = append(cmds, cmd)
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the monitor.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showSettings {
		return m.settingsPane.View()
	}

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.queuePane.View(), m.approvalsPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, mainContent, HelpView())
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 55) / 100 // queue pane gets the wider half
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // reserve 1 line for the help bar

	m.queuePane.SetSize(leftWidth, availableHeight)
	m.approvalsPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.queuePane.SetFocused(m.focusedPane == PaneQueue)
	m.approvalsPane.SetFocused(m.focusedPane == PaneApprovals)
}
