package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storyreel/internal/item"
)

const queueColumns = `id, artifact_id, title, description, tags, priority,
    status, external_id, external_url, error_message, retry_count,
    queued_at, uploaded_at`

// EnqueueArtifact places an artifact in the publish queue. An artifact that
// is neither on disk nor in remote storage is rejected, and enqueueing the
// same artifact twice returns the existing entry.
func (s *Store) EnqueueArtifact(ctx context.Context, artifact *item.Artifact, entry *item.QueueEntry) (*item.QueueEntry, bool, error) {
	if artifact == nil || entry == nil {
		return nil, false, errors.New("nil artifact or queue entry")
	}
	if !artifact.Reachable() {
		return nil, false, fmt.Errorf("artifact %d has no local path or remote id", artifact.ID)
	}

	existing, err := s.queueEntryByArtifact(ctx, artifact.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := time.Now().UTC()
	entry.ArtifactID = artifact.ID
	entry.Status = item.QueueStatusQueued
	entry.QueuedAt = now

	result, err := s.db.ExecContext(ctx, `
        INSERT INTO publish_queue (
            artifact_id, title, description, tags, priority, status, queued_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ArtifactID,
		entry.Title,
		nullableString(entry.Description),
		nullableString(joinTags(entry.Tags)),
		entry.Priority,
		string(entry.Status),
		timestamp(now),
	)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue artifact %d: %w", artifact.ID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("queue entry insert id: %w", err)
	}
	entry.ID = id
	return entry, true, nil
}

// QueueEntryByID fetches a single queue entry.
func (s *Store) QueueEntryByID(ctx context.Context, id int64) (*item.QueueEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+queueColumns+" FROM publish_queue WHERE id = ?", id)
	return scanQueueEntry(row)
}

// AdmissibleEntries returns up to limit queued entries in admission order:
// highest priority first, oldest first within a priority.
func (s *Store) AdmissibleEntries(ctx context.Context, limit int) ([]*item.QueueEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+queueColumns+` FROM publish_queue
        WHERE status = ?
        ORDER BY priority DESC, queued_at ASC, id ASC
        LIMIT ?`,
		string(item.QueueStatusQueued), limit)
	if err != nil {
		return nil, fmt.Errorf("query admissible entries: %w", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

// ListQueue returns queue entries, optionally filtered by status, in
// admission order.
func (s *Store) ListQueue(ctx context.Context, statuses ...item.QueueStatus) ([]*item.QueueEntry, error) {
	query := "SELECT " + queueColumns + " FROM publish_queue"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += " ORDER BY priority DESC, queued_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list publish queue: %w", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

// MarkEntryUploaded records a successful publish.
func (s *Store) MarkEntryUploaded(ctx context.Context, entry *item.QueueEntry, externalID, externalURL string) error {
	if entry == nil {
		return errors.New("nil queue entry")
	}
	now := time.Now().UTC()
	entry.Status = item.QueueStatusUploaded
	entry.ExternalID = externalID
	entry.ExternalURL = externalURL
	entry.ErrorMessage = ""
	entry.UploadedAt = &now

	_, err := s.db.ExecContext(ctx, `
        UPDATE publish_queue SET
            status = ?, external_id = ?, external_url = ?,
            error_message = NULL, uploaded_at = ?
        WHERE id = ?`,
		string(entry.Status),
		nullableString(externalID),
		nullableString(externalURL),
		timestamp(now),
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("mark queue entry %d uploaded: %w", entry.ID, err)
	}
	return nil
}

// MarkEntryFailed records a publish failure, incrementing the retry counter.
func (s *Store) MarkEntryFailed(ctx context.Context, entry *item.QueueEntry, message string) error {
	if entry == nil {
		return errors.New("nil queue entry")
	}
	entry.Status = item.QueueStatusFailed
	entry.ErrorMessage = message
	entry.RetryCount++

	_, err := s.db.ExecContext(ctx, `
        UPDATE publish_queue SET status = ?, error_message = ?, retry_count = ?
        WHERE id = ?`,
		string(entry.Status),
		nullableString(message),
		entry.RetryCount,
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("mark queue entry %d failed: %w", entry.ID, err)
	}
	return nil
}

// RetryEntry returns a failed entry to the queued state.
func (s *Store) RetryEntry(ctx context.Context, entry *item.QueueEntry) error {
	if entry == nil {
		return errors.New("nil queue entry")
	}
	if entry.Status != item.QueueStatusFailed {
		return fmt.Errorf("%w: queue entry %d %s -> %s", ErrIllegalTransition, entry.ID, entry.Status, item.QueueStatusQueued)
	}
	entry.Status = item.QueueStatusQueued
	entry.ErrorMessage = ""

	_, err := s.db.ExecContext(ctx, `
        UPDATE publish_queue SET status = ?, error_message = NULL WHERE id = ?`,
		string(entry.Status), entry.ID)
	if err != nil {
		return fmt.Errorf("retry queue entry %d: %w", entry.ID, err)
	}
	return nil
}

// RemoveEntry deletes a queue entry.
func (s *Store) RemoveEntry(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM publish_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove queue entry %d: %w", id, err)
	}
	return nil
}

// ClearQueue removes every entry in the given status and reports how many
// rows were deleted.
func (s *Store) ClearQueue(ctx context.Context, status item.QueueStatus) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM publish_queue WHERE status = ?", string(status))
	if err != nil {
		return 0, fmt.Errorf("clear %s queue entries: %w", status, err)
	}
	return result.RowsAffected()
}

func (s *Store) queueEntryByArtifact(ctx context.Context, artifactID int64) (*item.QueueEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+queueColumns+" FROM publish_queue WHERE artifact_id = ?", artifactID)
	return scanQueueEntry(row)
}

func scanQueueEntry(row rowScanner) (*item.QueueEntry, error) {
	var entry item.QueueEntry
	var description, tags, externalID, externalURL, errorMessage sql.NullString
	var status, queuedAt string
	var uploadedAt sql.NullString

	err := row.Scan(
		&entry.ID, &entry.ArtifactID, &entry.Title, &description, &tags,
		&entry.Priority, &status, &externalID, &externalURL,
		&errorMessage, &entry.RetryCount, &queuedAt, &uploadedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan queue entry: %w", err)
	}

	entry.Description = description.String
	entry.Tags = splitTags(tags.String)
	entry.Status = item.QueueStatus(status)
	entry.ExternalID = externalID.String
	entry.ExternalURL = externalURL.String
	entry.ErrorMessage = errorMessage.String
	entry.UploadedAt = timePointer(uploadedAt)
	if entry.QueuedAt, err = parseTimeString(queuedAt); err != nil {
		return nil, fmt.Errorf("parse queued_at: %w", err)
	}
	return &entry, nil
}

func collectQueueEntries(rows *sql.Rows) ([]*item.QueueEntry, error) {
	var entries []*item.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
