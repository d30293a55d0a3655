package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/foreman/internal/scheduler"
)

// SaveTask saves or updates a task snapshot.
// Uses ON CONFLICT to make saves idempotent.
func (s *SQLiteStore) SaveTask(ctx context.Context, task *scheduler.Task) error {
	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	errorStr := ""
	if task.Err != nil {
		errorStr = task.Err.Error()
	}

	// Resource and dependency sets travel as comma-separated strings;
	// the names are opaque identifiers with no commas of their own.
	resources := strings.Join(task.Resources, ",")
	dependencies := strings.Join(task.Dependencies, ",")

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, priority, resources, dependencies, status, error, created_at, started_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			priority = excluded.priority,
			resources = excluded.resources,
			dependencies = excluded.dependencies,
			status = excluded.status,
			error = excluded.error,
			created_at = excluded.created_at,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = CURRENT_TIMESTAMP
	`, task.ID, task.Priority.String(), resources, dependencies, task.Status.String(), errorStr,
		task.CreatedAt, nullableTime(task.StartedAt), nullableTime(task.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetTask retrieves a task snapshot by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*scheduler.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, priority, resources, dependencies, status, error, created_at, started_at, completed_at
		FROM tasks
		WHERE id = ?
	`, taskID)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	return task, nil
}

// ListTasks returns all task snapshots, oldest first.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*scheduler.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, priority, resources, dependencies, status, error, created_at, started_at, completed_at
		FROM tasks
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*scheduler.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// rowScanner covers both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*scheduler.Task, error) {
	task := &scheduler.Task{}
	var priority, status, errorStr string
	var resources, dependencies string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&task.ID, &priority, &resources, &dependencies, &status, &errorStr,
		&task.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	task.Priority = scheduler.ParsePriority(priority)
	task.Status = parseTaskStatus(status)
	if resources != "" {
		task.Resources = strings.Split(resources, ",")
	}
	if dependencies != "" {
		task.Dependencies = strings.Split(dependencies, ",")
	}
	if errorStr != "" {
		task.Err = errors.New(errorStr)
	}
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}

	return task, nil
}

// parseTaskStatus maps a stored status name back to its value. Unknown names
// come back as queued, the zero status.
func parseTaskStatus(name string) scheduler.TaskStatus {
	switch name {
	case "processing":
		return scheduler.TaskProcessing
	case "completed":
		return scheduler.TaskCompleted
	case "failed":
		return scheduler.TaskFailed
	default:
		return scheduler.TaskQueued
	}
}

// nullableTime converts an optional timestamp to its SQL representation.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
