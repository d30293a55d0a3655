package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/aristath/foreman/internal/config"
	"github.com/aristath/foreman/internal/dispatch"
	"github.com/aristath/foreman/internal/events"
	"github.com/aristath/foreman/internal/persistence"
	"github.com/aristath/foreman/internal/scheduler"
	"github.com/aristath/foreman/internal/tui"
	"github.com/aristath/foreman/internal/workflow"
)

// simWorker stands in for a real collaborator: it sleeps for a bit and
// reports success. Useful for exercising the full admission/approval loop
// from the monitor.
type simWorker struct {
	delay time.Duration
}

func (w simWorker) Execute(ctx context.Context, a dispatch.Assignment) (dispatch.Result, error) {
	select {
	case <-ctx.Done():
		return dispatch.Result{}, ctx.Err()
	case <-time.After(w.delay):
		return dispatch.Result{Output: fmt.Sprintf("simulated work for %s", a.TaskID)}, nil
	}
}

func (w simWorker) Kind() string { return "simulated" }

func main() {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	demo := flag.Bool("demo", false, "seed a demo wave of tasks gated by approval")
	dbPath := flag.String("db", filepath.Join(".foreman", "history.db"), "task history database path")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
		os.Exit(1)
	}
	globalPath := filepath.Join(homeDir, ".foreman", "config.json")
	projectPath := filepath.Join(".foreman", "config.json")

	// Create event bus
	bus := events.NewEventBus()
	defer bus.Close()

	// Core: scheduler and workflow engine, correlated only by task IDs
	sched := scheduler.New(cfg.MaxConcurrent, bus)
	engine := workflow.NewEngine(bus)
	registerUsers(engine, cfg.Users)

	// Task history and approval audit trail
	store, err := persistence.NewSQLiteStore(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	recorder := persistence.NewRecorder(store, sched, bus)
	go func() {
		_ = recorder.Run(ctx)
	}()

	// Dispatcher: runs the simulated worker, gates demo tasks on approval
	var policy dispatch.ApprovalPolicy
	if *demo {
		requester := demoRequester(cfg)
		policy = func(taskID string) (string, bool) { return requester, true }
	}
	disp := dispatch.New(dispatch.Config{
		ConcurrencyLimit: cfg.MaxConcurrent,
		Policy:           policy,
	}, sched, engine, simWorker{delay: 2 * time.Second}, bus)
	go func() {
		_ = disp.Run(ctx)
	}()

	// Monitor TUI
	model := tui.New(bus, sched, engine, cfg, globalPath, projectPath)
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	if *demo {
		disp.Submit(demoTasks()...)
	}

	// Handle shutdown
	select {
	case err := <-errChan:
		// Normal TUI exit (user pressed 'q' or TUI finished)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		// Signal received (Ctrl+C or SIGTERM)
		// Call stop() to restore default signal handling (double Ctrl+C = force exit)
		stop()

		log.Println("Shutdown signal received, cleaning up...")
		p.Quit()

		// Wait for TUI to exit with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		select {
		case err := <-errChan:
			if err != nil {
				log.Printf("TUI exit error: %v", err)
			}
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded, forcing exit")
		}
	}

	log.Println("Shutdown complete")
}

// registerUsers seeds the engine's registry from config. Unknown role names
// fall back to developer, the least-privileged role.
func registerUsers(engine *workflow.Engine, users []config.UserConfig) {
	for _, u := range users {
		role, known := workflow.ParseRole(u.Role)
		if !known {
			log.Printf("WARNING: unknown role %q for user %q, registering as %s", u.Role, u.ID, role)
		}
		engine.AddUser(&workflow.User{ID: u.ID, Role: role})
	}
}

// demoRequester picks who demo approvals are requested on behalf of:
// preferably a developer, so the three-stage workflow shows up.
func demoRequester(cfg *config.ForemanConfig) string {
	for _, u := range cfg.Users {
		if u.Role == string(workflow.RoleDeveloper) {
			return u.ID
		}
	}
	if len(cfg.Users) > 0 {
		return cfg.Users[0].ID
	}
	return ""
}

// demoTasks builds a small release wave: contending deploys, a gating
// migration, and an independent low-priority chore.
func demoTasks() []*scheduler.Task {
	migrate := "migrate-db-" + shortID()
	return []*scheduler.Task{
		{ID: "deploy-web-" + shortID(), Priority: scheduler.PriorityHigh, Resources: []string{"web"}},
		{ID: migrate, Priority: scheduler.PriorityUrgent, Resources: []string{"db"}},
		{ID: "deploy-api-" + shortID(), Priority: scheduler.PriorityHigh, Resources: []string{"api", "db"}, Dependencies: []string{migrate}},
		{ID: "docs-refresh-" + shortID(), Priority: scheduler.PriorityLow},
	}
}

func shortID() string {
	return uuid.NewString()[:8]
}
