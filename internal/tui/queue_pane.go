package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/foreman/internal/events"
	"github.com/aristath/foreman/internal/scheduler"
)

// QueuePaneModel shows every task the scheduler has seen: a selectable list
// on the left, a detail viewport on the right, and the live counters at the
// bottom. State is refreshed from scheduler snapshots whenever a task event
// arrives; the pane never mutates the scheduler.
type QueuePaneModel struct {
	sched       *scheduler.Scheduler
	tasks       map[string]*scheduler.Task // taskID -> latest snapshot
	taskOrder   []string                   // first-seen order for display
	stats       scheduler.Stats
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewQueuePaneModel creates a queue pane reading from the given scheduler.
func NewQueuePaneModel(sched *scheduler.Scheduler) QueuePaneModel {
	vp := viewport.New(0, 0)
	return QueuePaneModel{
		sched:    sched,
		tasks:    make(map[string]*scheduler.Task),
		viewport: vp,
	}
}

// Update handles messages for the queue pane.
func (m QueuePaneModel) Update(msg tea.Msg) (QueuePaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			// Delegate other keys to viewport for scrolling
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.QueueStatsEvent:
		m.stats = scheduler.Stats{
			Queued:    msg.Queued,
			InFlight:  msg.InFlight,
			Completed: msg.Completed,
			Failed:    msg.Failed,
			Limit:     msg.Limit,
		}

	case events.Event:
		// Any task lifecycle event: refresh that task's snapshot.
		if id := msg.TaskID(); id != "" {
			m.refreshTask(id)
		}
	}

	return m, cmd
}

// refreshTask pulls the latest snapshot for a task and keeps first-seen
// display order.
func (m *QueuePaneModel) refreshTask(taskID string) {
	task, ok := m.sched.Get(taskID)
	if !ok {
		return
	}
	if _, seen := m.tasks[taskID]; !seen {
		m.taskOrder = append(m.taskOrder, taskID)
		if len(m.taskOrder) == 1 {
			m.selectedIdx = 0
		}
	}
	m.tasks[taskID] = task
	if m.selectedTaskID() == taskID {
		m.updateViewportContent()
	}
}

// View renders the queue pane.
func (m QueuePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 28
	viewportWidth := m.width - listWidth - 4 // account for borders and padding

	listContent := m.renderTaskList(listWidth)
	viewportContent := m.viewport.View()

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		listContent,
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-3).
			Render(viewportContent),
	)

	statsLine := m.renderStats()

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, content, statsLine))
}

// renderTaskList renders the task list column.
func (m QueuePaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("No tasks yet..."))
	} else {
		for i, taskID := range m.taskOrder {
			task := m.tasks[taskID]
			icon := taskStatusIcon(task.Status)
			name := taskID
			if len(name) > width-6 {
				name = name[:width-9] + "..."
			}

			line := fmt.Sprintf("%s %s", icon, name)
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

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 3).
		Render(b.String())
}

// renderStats renders the live scheduler counters.
func (m QueuePaneModel) renderStats() string {
	return StyleHelp.Render(fmt.Sprintf(
		"queued %d | in-flight %d/%d | completed %d | failed %d",
		m.stats.Queued, m.stats.InFlight, m.stats.Limit, m.stats.Completed, m.stats.Failed,
	))
}

// taskStatusIcon returns a styled status indicator.
func taskStatusIcon(status scheduler.TaskStatus) string {
	switch status {
	case scheduler.TaskProcessing:
		return StyleStatusActive.Render("●")
	case scheduler.TaskCompleted:
		return StyleStatusGood.Render("✓")
	case scheduler.TaskFailed:
		return StyleStatusBad.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

// selectedTaskID returns the task ID of the currently selected entry.
func (m QueuePaneModel) selectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

// updateViewportContent fills the viewport with the selected task's detail.
func (m *QueuePaneModel) updateViewportContent() {
	taskID := m.selectedTaskID()
	task, exists := m.tasks[taskID]
	if taskID == "" || !exists {
		m.viewport.SetContent("Select a task...")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task:      %s\n", task.ID)
	fmt.Fprintf(&b, "Priority:  %s\n", task.Priority)
	fmt.Fprintf(&b, "Status:    %s\n", task.Status)
	if len(task.Resources) > 0 {
		fmt.Fprintf(&b, "Resources: %s\n", strings.Join(task.Resources, ", "))
	}
	if len(task.Dependencies) > 0 {
		fmt.Fprintf(&b, "Depends:   %s\n", strings.Join(task.Dependencies, ", "))
	}
	if pos := m.sched.Position(task.ID); pos > 0 {
		fmt.Fprintf(&b, "Position:  %d (est. wait %s)\n", pos, m.sched.EstimateWait(task.ID).Round(time.Second))
	}
	if task.StartedAt != nil {
		fmt.Fprintf(&b, "Started:   %s\n", task.StartedAt.Format(time.TimeOnly))
	}
	if task.CompletedAt != nil && task.StartedAt != nil {
		fmt.Fprintf(&b, "Duration:  %s\n", task.CompletedAt.Sub(*task.StartedAt).Round(time.Millisecond))
	}
	if task.Err != nil {
		fmt.Fprintf(&b, "Error:     %v\n", task.Err)
	}

	m.viewport.SetContent(b.String())
}

// resizeViewport resizes the viewport based on pane dimensions.
func (m *QueuePaneModel) resizeViewport() {
	listWidth := 28
	viewportWidth := m.width - listWidth - 4
	viewportHeight := m.height - 5 // borders plus stats line

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 5 {
		viewportHeight = 5
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
}

// SetSize updates the pane dimensions.
func (m *QueuePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *QueuePaneModel) SetFocused(focused bool) {
	m.focused = focused
}
