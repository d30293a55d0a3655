package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/foreman/internal/config"
	"github.com/aristath/foreman/internal/workflow"
)

// SettingsPaneModel manages the settings form overlay: the admission
// ceiling, the user registry, and where to persist them. A new user takes
// effect in the engine immediately; the ceiling applies on restart.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.ForemanConfig
	engine      *workflow.Engine
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget    string
	maxConcurrent string
	newUserID     string
	newUserRole   string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.ForemanConfig, engine *workflow.Engine, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		engine:      engine,
		globalPath:  globalPath,
		projectPath: projectPath,

		saveTarget:    "global",
		maxConcurrent: strconv.Itoa(cfg.MaxConcurrent),
		newUserRole:   string(workflow.RoleDeveloper),
	}

	m.buildForm()
	return m
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.foreman/config.json)", "global"),
					huh.NewOption("Project (.foreman/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("maxConcurrent").
				Title("Max Concurrent Tasks").
				Value(&m.maxConcurrent).
				Placeholder("4").
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 {
						return fmt.Errorf("must be a positive integer")
					}
					return nil
				}),
		).Title("Scheduler"),

		huh.NewGroup(
			huh.NewInput().
				Key("newUserID").
				Title("New User ID (leave empty to skip)").
				Value(&m.newUserID),

			huh.NewSelect[string]().
				Key("newUserRole").
				Title("New User Role").
				Options(
					huh.NewOption("Developer", string(workflow.RoleDeveloper)),
					huh.NewOption("Admin", string(workflow.RoleAdmin)),
					huh.NewOption("Superadmin", string(workflow.RoleSuperadmin)),
				).
				Value(&m.newUserRole),
		).Title("Users"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "esc" {
			// Cancel without saving
			m.visible = false
			m.saved = false
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.applyFormToConfig()

		targetPath := m.globalPath
		if m.saveTarget == "project" {
			targetPath = m.projectPath
		}

		if err := config.Save(m.config, targetPath); err != nil {
			m.err = err
			m.saved = false
		} else {
			m.saved = true
			m.err = nil
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies form field values back to the config struct and
// registers any new user with the engine.
func (m *SettingsPaneModel) applyFormToConfig() {
	if n, err := strconv.Atoi(m.maxConcurrent); err == nil && n > 0 {
		m.config.MaxConcurrent = n
	}

	if m.newUserID != "" {
		role, _ := workflow.ParseRole(m.newUserRole)
		m.config.Users = append(m.config.Users, config.UserConfig{ID: m.newUserID, Role: string(role)})
		m.engine.AddUser(&workflow.User{ID: m.newUserID, Role: role})
		m.newUserID = ""
	}
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	// Rebuild the form to reset state when showing
	if v {
		m.maxConcurrent = strconv.Itoa(m.config.MaxConcurrent)
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
