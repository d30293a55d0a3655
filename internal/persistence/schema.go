package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		priority TEXT NOT NULL,
		resources TEXT,
		dependencies TEXT,
		status TEXT NOT NULL,
		error TEXT,
		created_at DATETIME,
		started_at DATETIME,
		completed_at DATETIME,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

	CREATE TABLE IF NOT EXISTS approval_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		action TEXT NOT NULL,
		stage_role TEXT,
		stage_level INTEGER NOT NULL DEFAULT 0,
		actor TEXT,
		reason TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_approval_log_task_timestamp
		ON approval_log(task_id, timestamp);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
