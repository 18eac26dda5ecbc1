package db

import (
	"database/sql"
	"fmt"
)

// RunEvent represents a row in the run_events table.
type RunEvent struct {
	ID        int
	RunID     string
	Event     string
	Stage     string
	Attempt   int
	Detail    string
	Timestamp string
}

// StageRun represents a row in the stage_runs table: one stage execution and
// the routing decision that followed it.
type StageRun struct {
	ID         int
	RunID      string
	Stage      string
	Attempt    int
	NextStage  string
	Forced     bool
	NoOp       bool
	DurationMs int64
	Timestamp  string
}

// LogRunEvent inserts a run lifecycle event.
func (d *DB) LogRunEvent(runID, event, stage string, attempt int, detail string) error {
	_, err := d.exec(
		`INSERT INTO run_events (run_id, event, stage, attempt, detail, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, event, stage, attempt, detail, now(),
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// LogStageRun inserts one stage execution.
func (d *DB) LogStageRun(runID, stage string, attempt int, next string, forced, noOp bool, durationMs int64) error {
	_, err := d.exec(
		`INSERT INTO stage_runs (run_id, stage, attempt, next_stage, forced, no_op, duration_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, stage, attempt, next, forced, noOp, durationMs, now(),
	)
	if err != nil {
		return fmt.Errorf("log stage run: %w", err)
	}
	return nil
}

// GetRunEvents returns all events for a run in insertion order.
func (d *DB) GetRunEvents(runID string) ([]RunEvent, error) {
	rows, err := d.query(
		`SELECT id, run_id, event, stage, attempt, detail, timestamp
		 FROM run_events WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var stage, detail sql.NullString
		var attempt sql.NullInt64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &stage, &attempt, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		e.Stage = stage.String
		e.Detail = detail.String
		e.Attempt = int(attempt.Int64)
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetStageRuns returns the stage executions of a run in order. An empty
// runID returns every run's executions.
func (d *DB) GetStageRuns(runID string) ([]StageRun, error) {
	query := `SELECT id, run_id, stage, attempt, next_stage, forced, no_op, duration_ms, timestamp FROM stage_runs`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY id ASC`

	rows, err := d.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get stage runs: %w", err)
	}
	defer rows.Close()

	var runs []StageRun
	for rows.Next() {
		var r StageRun
		if err := rows.Scan(&r.ID, &r.RunID, &r.Stage, &r.Attempt, &r.NextStage, &r.Forced, &r.NoOp, &r.DurationMs, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRunEvent returns the most recent event for a run, or nil if none.
func (d *DB) LatestRunEvent(runID string) (*RunEvent, error) {
	rows, err := d.query(
		`SELECT id, run_id, event, stage, attempt, detail, timestamp
		 FROM run_events WHERE run_id = ? ORDER BY id DESC LIMIT 1`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("latest run event: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var e RunEvent
	var stage, detail sql.NullString
	var attempt sql.NullInt64
	if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &stage, &attempt, &detail, &e.Timestamp); err != nil {
		return nil, fmt.Errorf("scan run event: %w", err)
	}
	e.Stage = stage.String
	e.Detail = detail.String
	e.Attempt = int(attempt.Int64)
	return &e, nil
}

// DeleteRun removes every event and stage execution of a run.
func (d *DB) DeleteRun(runID string) (int, error) {
	total := 0
	for _, table := range []string{"run_events", "stage_runs"} {
		res, err := d.exec(`DELETE FROM `+table+` WHERE run_id = ?`, runID)
		if err != nil {
			return total, fmt.Errorf("delete from %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}
