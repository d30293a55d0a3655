package persistence

import (
	"context"
	"fmt"
	"time"
)

// RecordApproval appends one row to a task's approval audit trail.
// Rows are append-only; the trail is never rewritten.
func (s *SQLiteStore) RecordApproval(ctx context.Context, rec ApprovalRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approval_log (task_id, action, stage_role, stage_level, actor, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.TaskID, rec.Action, rec.StageRole, rec.StageLevel, rec.Actor, rec.Reason, ts)
	if err != nil {
		return fmt.Errorf("failed to record approval action: %w", err)
	}
	return nil
}

// ApprovalLog retrieves a task's approval trail in chronological order.
// Returns an empty slice (not nil) when the task has no trail.
func (s *SQLiteStore) ApprovalLog(ctx context.Context, taskID string) ([]ApprovalRecord, error) {
	// Double sort: timestamp ASC, id ASC keeps order stable with
	// same-second timestamps
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, action, stage_role, stage_level, actor, reason, timestamp
		FROM approval_log
		WHERE task_id = ?
		ORDER BY timestamp ASC, id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval log: %w", err)
	}
	defer rows.Close()

	log := []ApprovalRecord{}
	for rows.Next() {
		var rec ApprovalRecord
		if err := rows.Scan(&rec.TaskID, &rec.Action, &rec.StageRole, &rec.StageLevel,
			&rec.Actor, &rec.Reason, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan approval record: %w", err)
		}
		log = append(log, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval log: %w", err)
	}

	return log, nil
}
