package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storyreel/internal/item"
)

const partColumns = `id, item_id, part_number, total_parts, body, word_count,
    title, caption, status, error_message, retry_count, created_at, updated_at`

// SaveRewrite commits the rewrite stage output as one unit: the item moves to
// rewritten and its parts are created in the same transaction.
func (s *Store) SaveRewrite(ctx context.Context, it *item.WorkItem, parts []*item.Part) error {
	if it == nil {
		return errors.New("nil work item")
	}
	if len(parts) == 0 {
		return errors.New("rewrite produced no parts")
	}
	if !item.CanTransition(it.Status, item.StatusRewritten) {
		return fmt.Errorf("%w: work item %d %s -> %s", ErrIllegalTransition, it.ID, it.Status, item.StatusRewritten)
	}

	now := time.Now().UTC()
	it.Status = item.StatusRewritten
	it.PartCount = len(parts)
	it.RewrittenAt = &now
	it.UpdatedAt = now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
            UPDATE work_items SET
                rewritten_title = ?, rewritten_body = ?, tags = ?,
                word_count = ?, estimated_duration = ?, part_count = ?,
                status = ?, rewritten_at = ?, updated_at = ?
            WHERE id = ?`,
			nullableString(it.RewrittenTitle),
			nullableString(it.RewrittenBody),
			nullableString(joinTags(it.Tags)),
			it.WordCount,
			it.EstimatedDuration,
			it.PartCount,
			string(it.Status),
			nullableTime(it.RewrittenAt),
			timestamp(it.UpdatedAt),
			it.ID,
		)
		if err != nil {
			return fmt.Errorf("update rewritten item %d: %w", it.ID, err)
		}

		for _, part := range parts {
			part.ItemID = it.ID
			part.Status = item.PartStatusPending
			part.CreatedAt = now
			part.UpdatedAt = now
			result, insertErr := tx.ExecContext(ctx, `
                INSERT INTO work_item_parts (
                    item_id, part_number, total_parts, body, word_count,
                    title, caption, status, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				part.ItemID,
				part.PartNumber,
				part.TotalParts,
				part.Body,
				part.WordCount,
				part.Title,
				nullableString(part.Caption),
				string(part.Status),
				timestamp(now),
				timestamp(now),
			)
			if insertErr != nil {
				return fmt.Errorf("insert part %d of item %d: %w", part.PartNumber, it.ID, insertErr)
			}
			id, idErr := result.LastInsertId()
			if idErr != nil {
				return fmt.Errorf("part insert id: %w", idErr)
			}
			part.ID = id
		}
		return nil
	})
}

// PartsForItem returns an item's parts in narration order.
func (s *Store) PartsForItem(ctx context.Context, itemID int64) ([]*item.Part, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+partColumns+" FROM work_item_parts WHERE item_id = ? ORDER BY part_number ASC",
		itemID)
	if err != nil {
		return nil, fmt.Errorf("query parts for item %d: %w", itemID, err)
	}
	defer rows.Close()

	var parts []*item.Part
	for rows.Next() {
		part, scanErr := scanPart(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		parts = append(parts, part)
	}
	return parts, rows.Err()
}

// TransitionPart moves a part to a new status if the part state machine
// allows it.
func (s *Store) TransitionPart(ctx context.Context, part *item.Part, to item.PartStatus) error {
	if part == nil {
		return errors.New("nil part")
	}
	if !item.CanTransitionPart(part.Status, to) {
		return fmt.Errorf("%w: part %d %s -> %s", ErrIllegalTransition, part.ID, part.Status, to)
	}
	part.Status = to
	if to != item.PartStatusFailed {
		part.ErrorMessage = ""
	}
	part.UpdatedAt = time.Now().UTC()
	return s.updatePart(ctx, part)
}

// MarkPartFailed records a part failure, incrementing its retry counter.
func (s *Store) MarkPartFailed(ctx context.Context, part *item.Part, message string) error {
	if part == nil {
		return errors.New("nil part")
	}
	if !item.CanTransitionPart(part.Status, item.PartStatusFailed) {
		return fmt.Errorf("%w: part %d %s -> %s", ErrIllegalTransition, part.ID, part.Status, item.PartStatusFailed)
	}
	part.SetFailed(message)
	part.UpdatedAt = time.Now().UTC()
	return s.updatePart(ctx, part)
}

func (s *Store) updatePart(ctx context.Context, part *item.Part) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE work_item_parts SET
            title = ?, caption = ?, status = ?, error_message = ?,
            retry_count = ?, updated_at = ?
        WHERE id = ?`,
		part.Title,
		nullableString(part.Caption),
		string(part.Status),
		nullableString(part.ErrorMessage),
		part.RetryCount,
		timestamp(part.UpdatedAt),
		part.ID,
	)
	if err != nil {
		return fmt.Errorf("update part %d: %w", part.ID, err)
	}
	return nil
}

func scanPart(row rowScanner) (*item.Part, error) {
	var part item.Part
	var caption, errorMessage sql.NullString
	var status, createdAt, updatedAt string

	err := row.Scan(
		&part.ID, &part.ItemID, &part.PartNumber, &part.TotalParts,
		&part.Body, &part.WordCount, &part.Title, &caption,
		&status, &errorMessage, &part.RetryCount, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan part: %w", err)
	}

	part.Caption = caption.String
	part.Status = item.PartStatus(status)
	part.ErrorMessage = errorMessage.String
	if part.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, fmt.Errorf("parse part created_at: %w", err)
	}
	if part.UpdatedAt, err = parseTimeString(updatedAt); err != nil {
		return nil, fmt.Errorf("parse part updated_at: %w", err)
	}
	return &part, nil
}
