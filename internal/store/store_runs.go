package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storyreel/internal/item"
)

const runColumns = `id, kind, items_discovered, items_processed, items_failed,
    artifacts_created, artifacts_failed, status, current_stage,
    current_item_id, error_message, started_at, completed_at, last_heartbeat`

// CreateRun records the start of a pipeline execution.
func (s *Store) CreateRun(ctx context.Context, kind string) (*item.Run, error) {
	now := time.Now().UTC()
	run := &item.Run{
		ID:            uuid.NewString(),
		Kind:          kind,
		Status:        item.RunStatusStarted,
		StartedAt:     now,
		LastHeartbeat: now,
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO pipeline_runs (id, kind, status, started_at, last_heartbeat)
        VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Kind, string(run.Status), timestamp(now), timestamp(now))
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// RunByID fetches a single run.
func (s *Store) RunByID(ctx context.Context, id string) (*item.Run, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM pipeline_runs WHERE id = ?", id)
	return scanRun(row)
}

// UpdateRunProgress records where a run currently is, refreshing the
// heartbeat at the same time.
func (s *Store) UpdateRunProgress(ctx context.Context, run *item.Run) error {
	if run == nil {
		return errors.New("nil run")
	}
	now := time.Now().UTC()
	run.Status = item.RunStatusRunning
	run.LastHeartbeat = now

	_, err := s.db.ExecContext(ctx, `
        UPDATE pipeline_runs SET
            items_discovered = ?, items_processed = ?, items_failed = ?,
            artifacts_created = ?, artifacts_failed = ?, status = ?,
            current_stage = ?, current_item_id = ?, last_heartbeat = ?
        WHERE id = ?`,
		run.ItemsDiscovered,
		run.ItemsProcessed,
		run.ItemsFailed,
		run.ArtifactsCreated,
		run.ArtifactsFailed,
		string(run.Status),
		nullableString(run.CurrentStage),
		nullableInt64(run.CurrentItemID),
		timestamp(now),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	return nil
}

// HeartbeatRun refreshes the liveness timestamp of an active run.
func (s *Store) HeartbeatRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE pipeline_runs SET last_heartbeat = ? WHERE id = ?",
		timestamp(time.Now().UTC()), runID)
	if err != nil {
		return fmt.Errorf("heartbeat run %s: %w", runID, err)
	}
	return nil
}

// CompleteRun finalizes a run with its terminal status and counters.
func (s *Store) CompleteRun(ctx context.Context, run *item.Run, status item.RunStatus, errorMessage string) error {
	if run == nil {
		return errors.New("nil run")
	}
	if status != item.RunStatusCompleted && status != item.RunStatusFailed {
		return fmt.Errorf("%w: run %s -> %s", ErrIllegalTransition, run.ID, status)
	}
	now := time.Now().UTC()
	run.Status = status
	run.ErrorMessage = errorMessage
	run.CurrentStage = ""
	run.CurrentItemID = 0
	run.CompletedAt = &now
	run.LastHeartbeat = now

	_, err := s.db.ExecContext(ctx, `
        UPDATE pipeline_runs SET
            items_discovered = ?, items_processed = ?, items_failed = ?,
            artifacts_created = ?, artifacts_failed = ?, status = ?,
            current_stage = NULL, current_item_id = NULL,
            error_message = ?, completed_at = ?, last_heartbeat = ?
        WHERE id = ?`,
		run.ItemsDiscovered,
		run.ItemsProcessed,
		run.ItemsFailed,
		run.ArtifactsCreated,
		run.ArtifactsFailed,
		string(run.Status),
		nullableString(errorMessage),
		timestamp(now),
		timestamp(now),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("complete run %s: %w", run.ID, err)
	}
	return nil
}

// StaleRuns returns runs still marked active whose heartbeat predates the
// cutoff. These belong to crashed processes.
func (s *Store) StaleRuns(ctx context.Context, cutoff time.Time) ([]*item.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+` FROM pipeline_runs
        WHERE status IN (?, ?) AND last_heartbeat < ?`,
		string(item.RunStatusStarted),
		string(item.RunStatusRunning),
		timestamp(cutoff.UTC()))
	if err != nil {
		return nil, fmt.Errorf("query stale runs: %w", err)
	}
	defer rows.Close()
	return collectRuns(rows)
}

// ReclaimStaleRuns marks crashed runs failed and returns how many were
// reclaimed. Item statuses are untouched; transient items stay resumable.
func (s *Store) ReclaimStaleRuns(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.StaleRuns(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, run := range stale {
		if err := s.CompleteRun(ctx, run, item.RunStatusFailed, "heartbeat expired"); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// LatestRuns returns the most recent runs, newest first.
func (s *Store) LatestRuns(ctx context.Context, limit int) ([]*item.Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM pipeline_runs ORDER BY started_at DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("query latest runs: %w", err)
	}
	defer rows.Close()
	return collectRuns(rows)
}

func nullableInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func scanRun(row rowScanner) (*item.Run, error) {
	var run item.Run
	var currentStage, errorMessage sql.NullString
	var currentItemID sql.NullInt64
	var status, startedAt, lastHeartbeat string
	var completedAt sql.NullString

	err := row.Scan(
		&run.ID, &run.Kind, &run.ItemsDiscovered, &run.ItemsProcessed,
		&run.ItemsFailed, &run.ArtifactsCreated, &run.ArtifactsFailed,
		&status, &currentStage, &currentItemID, &errorMessage,
		&startedAt, &completedAt, &lastHeartbeat,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Status = item.RunStatus(status)
	run.CurrentStage = currentStage.String
	run.CurrentItemID = currentItemID.Int64
	run.ErrorMessage = errorMessage.String
	run.CompletedAt = timePointer(completedAt)
	if run.StartedAt, err = parseTimeString(startedAt); err != nil {
		return nil, fmt.Errorf("parse run started_at: %w", err)
	}
	if run.LastHeartbeat, err = parseTimeString(lastHeartbeat); err != nil {
		return nil, fmt.Errorf("parse run last_heartbeat: %w", err)
	}
	return &run, nil
}

func collectRuns(rows *sql.Rows) ([]*item.Run, error) {
	var runs []*item.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
