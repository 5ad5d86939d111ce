package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storyreel/internal/item"
)

const itemColumns = `id, external_id, origin, title, body, author, score,
    priority, rewritten_title, rewritten_body, tags, word_count,
    estimated_duration, part_count, status, error_message, retry_count,
    discovered_at, rewritten_at, completed_at, created_at, updated_at`

// IngestItem persists a newly discovered item. A second ingestion of the same
// external ID is a no-op and returns the already stored row.
func (s *Store) IngestItem(ctx context.Context, candidate *item.WorkItem) (*item.WorkItem, bool, error) {
	if candidate == nil {
		return nil, false, errors.New("nil work item")
	}
	if strings.TrimSpace(candidate.ExternalID) == "" {
		return nil, false, errors.New("work item requires an external id")
	}

	existing, err := s.ItemByExternalID(ctx, candidate.ExternalID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := time.Now().UTC()
	candidate.Status = item.StatusNew
	candidate.DiscoveredAt = now
	candidate.CreatedAt = now
	candidate.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
        INSERT INTO work_items (
            external_id, origin, title, body, author, score, priority, tags,
            word_count, status, discovered_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		candidate.ExternalID,
		candidate.Origin,
		candidate.Title,
		candidate.Body,
		nullableString(candidate.Author),
		candidate.Score,
		candidate.Priority,
		nullableString(joinTags(candidate.Tags)),
		candidate.WordCount,
		string(candidate.Status),
		timestamp(now),
		timestamp(now),
		timestamp(now),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert work item %s: %w", candidate.ExternalID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("work item insert id: %w", err)
	}
	candidate.ID = id
	return candidate, true, nil
}

// ItemByID fetches a single work item.
func (s *Store) ItemByID(ctx context.Context, id int64) (*item.WorkItem, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM work_items WHERE id = ?", id)
	return scanItem(row)
}

// ItemByExternalID fetches a work item by its source identifier.
func (s *Store) ItemByExternalID(ctx context.Context, externalID string) (*item.WorkItem, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM work_items WHERE external_id = ?", externalID)
	return scanItem(row)
}

// ItemsByStatus returns items in any of the given statuses, oldest first.
func (s *Store) ItemsByStatus(ctx context.Context, limit int, statuses ...item.Status) ([]*item.WorkItem, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(statuses)+1)
	for _, status := range statuses {
		args = append(args, string(status))
	}
	query := "SELECT " + itemColumns + " FROM work_items WHERE status IN (" +
		makePlaceholders(len(statuses)) + ") ORDER BY created_at ASC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items by status: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// ListItems returns every work item, newest first.
func (s *Store) ListItems(ctx context.Context) ([]*item.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM work_items ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// TransitionItem moves an item to a new status if the state machine allows
// it, persisting status and derived fields in one write.
func (s *Store) TransitionItem(ctx context.Context, it *item.WorkItem, to item.Status) error {
	if it == nil {
		return errors.New("nil work item")
	}
	if !item.CanTransition(it.Status, to) {
		return fmt.Errorf("%w: work item %d %s -> %s", ErrIllegalTransition, it.ID, it.Status, to)
	}

	now := time.Now().UTC()
	switch to {
	case item.StatusRewritten:
		t := now
		it.RewrittenAt = &t
	case item.StatusCompleted:
		t := now
		it.CompletedAt = &t
	}
	it.Status = to
	it.UpdatedAt = now

	return s.updateItem(ctx, it)
}

// MarkItemFailed records a failure, incrementing the retry counter.
func (s *Store) MarkItemFailed(ctx context.Context, it *item.WorkItem, message string) error {
	if it == nil {
		return errors.New("nil work item")
	}
	if !item.CanTransition(it.Status, item.StatusFailed) {
		return fmt.Errorf("%w: work item %d %s -> %s", ErrIllegalTransition, it.ID, it.Status, item.StatusFailed)
	}
	it.SetFailed(message)
	it.UpdatedAt = time.Now().UTC()
	return s.updateItem(ctx, it)
}

// ReprocessItem returns a failed item to the front of the pipeline.
func (s *Store) ReprocessItem(ctx context.Context, it *item.WorkItem) error {
	if it == nil {
		return errors.New("nil work item")
	}
	if !item.CanTransition(it.Status, item.StatusNew) {
		return fmt.Errorf("%w: work item %d %s -> %s", ErrIllegalTransition, it.ID, it.Status, item.StatusNew)
	}
	it.Status = item.StatusNew
	it.ErrorMessage = ""
	it.UpdatedAt = time.Now().UTC()
	return s.updateItem(ctx, it)
}

// TransientItems returns items stranded mid-stage by an interrupted run.
func (s *Store) TransientItems(ctx context.Context) ([]*item.WorkItem, error) {
	transient := make([]item.Status, 0, 2)
	for _, status := range item.AllStatuses() {
		if item.IsTransient(status) {
			transient = append(transient, status)
		}
	}
	return s.ItemsByStatus(ctx, 0, transient...)
}

// CountItemsByStatus returns a status histogram over all work items.
func (s *Store) CountItemsByStatus(ctx context.Context) (map[item.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM work_items GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count items by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[item.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[item.Status(status)] = count
	}
	return counts, rows.Err()
}

func (s *Store) updateItem(ctx context.Context, it *item.WorkItem) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE work_items SET
            title = ?, body = ?, author = ?, score = ?, priority = ?,
            rewritten_title = ?, rewritten_body = ?, tags = ?,
            word_count = ?, estimated_duration = ?, part_count = ?,
            status = ?, error_message = ?, retry_count = ?,
            rewritten_at = ?, completed_at = ?, updated_at = ?
        WHERE id = ?`,
		it.Title,
		it.Body,
		nullableString(it.Author),
		it.Score,
		it.Priority,
		nullableString(it.RewrittenTitle),
		nullableString(it.RewrittenBody),
		nullableString(joinTags(it.Tags)),
		it.WordCount,
		it.EstimatedDuration,
		it.PartCount,
		string(it.Status),
		nullableString(it.ErrorMessage),
		it.RetryCount,
		nullableTime(it.RewrittenAt),
		nullableTime(it.CompletedAt),
		timestamp(it.UpdatedAt),
		it.ID,
	)
	if err != nil {
		return fmt.Errorf("update work item %d: %w", it.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*item.WorkItem, error) {
	var it item.WorkItem
	var author, rewrittenTitle, rewrittenBody, tags, errorMessage sql.NullString
	var status, discoveredAt, createdAt, updatedAt string
	var rewrittenAt, completedAt sql.NullString

	err := row.Scan(
		&it.ID, &it.ExternalID, &it.Origin, &it.Title, &it.Body,
		&author, &it.Score, &it.Priority, &rewrittenTitle, &rewrittenBody, &tags,
		&it.WordCount, &it.EstimatedDuration, &it.PartCount,
		&status, &errorMessage, &it.RetryCount,
		&discoveredAt, &rewrittenAt, &completedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan work item: %w", err)
	}

	it.Author = author.String
	it.RewrittenTitle = rewrittenTitle.String
	it.RewrittenBody = rewrittenBody.String
	it.Tags = splitTags(tags.String)
	it.Status = item.Status(status)
	it.ErrorMessage = errorMessage.String
	it.RewrittenAt = timePointer(rewrittenAt)
	it.CompletedAt = timePointer(completedAt)

	if it.DiscoveredAt, err = parseTimeString(discoveredAt); err != nil {
		return nil, fmt.Errorf("parse discovered_at: %w", err)
	}
	if it.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if it.UpdatedAt, err = parseTimeString(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &it, nil
}

func collectItems(rows *sql.Rows) ([]*item.WorkItem, error) {
	var items []*item.WorkItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}
