package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Counter names accepted by IncrementCounter, one column each in
// daily_counters.
const (
	CounterItemsDiscovered    = "items_discovered"
	CounterItemsCompleted     = "items_completed"
	CounterItemsFailed        = "items_failed"
	CounterArtifactsGenerated = "artifacts_generated"
	CounterUploadsDone        = "uploads_done"
	CounterAPIUnitsSpent      = "api_units_spent"
)

var counterColumns = map[string]struct{}{
	CounterItemsDiscovered:    {},
	CounterItemsCompleted:     {},
	CounterItemsFailed:        {},
	CounterArtifactsGenerated: {},
	CounterUploadsDone:        {},
	CounterAPIUnitsSpent:      {},
}

// DailyCounters is the ledger row for one calendar date.
type DailyCounters struct {
	Date               string
	ItemsDiscovered    int
	ItemsCompleted     int
	ItemsFailed        int
	ArtifactsGenerated int
	UploadsDone        int
	APIUnitsSpent      int
}

// CounterDate formats a time as the ledger's date key.
func CounterDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// IncrementCounter adds delta to one named counter for the given date. The
// upsert is a single statement, so concurrent increments never lose updates.
func (s *Store) IncrementCounter(ctx context.Context, date, name string, delta int) error {
	if _, ok := counterColumns[name]; !ok {
		return fmt.Errorf("unknown counter %q", name)
	}
	if delta == 0 {
		return nil
	}

	query := fmt.Sprintf(`
        INSERT INTO daily_counters (date, %s) VALUES (?, ?)
        ON CONFLICT(date) DO UPDATE SET %s = %s + excluded.%s`,
		name, name, name, name)
	if _, err := s.db.ExecContext(ctx, query, date, delta); err != nil {
		return fmt.Errorf("increment counter %s for %s: %w", name, date, err)
	}
	return nil
}

// CountersFor returns the ledger row for a date. A date with no activity
// yields a zeroed row.
func (s *Store) CountersFor(ctx context.Context, date string) (*DailyCounters, error) {
	counters := &DailyCounters{Date: date}
	err := s.db.QueryRowContext(ctx, `
        SELECT items_discovered, items_completed, items_failed,
               artifacts_generated, uploads_done, api_units_spent
        FROM daily_counters WHERE date = ?`, date).Scan(
		&counters.ItemsDiscovered,
		&counters.ItemsCompleted,
		&counters.ItemsFailed,
		&counters.ArtifactsGenerated,
		&counters.UploadsDone,
		&counters.APIUnitsSpent,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return counters, nil
		}
		return nil, fmt.Errorf("query counters for %s: %w", date, err)
	}
	return counters, nil
}

// RecentCounters returns ledger rows for the last n dates with activity,
// newest first.
func (s *Store) RecentCounters(ctx context.Context, limit int) ([]*DailyCounters, error) {
	if limit <= 0 {
		limit = 7
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT date, items_discovered, items_completed, items_failed,
               artifacts_generated, uploads_done, api_units_spent
        FROM daily_counters ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent counters: %w", err)
	}
	defer rows.Close()

	var all []*DailyCounters
	for rows.Next() {
		counters := &DailyCounters{}
		if err := rows.Scan(
			&counters.Date,
			&counters.ItemsDiscovered,
			&counters.ItemsCompleted,
			&counters.ItemsFailed,
			&counters.ArtifactsGenerated,
			&counters.UploadsDone,
			&counters.APIUnitsSpent,
		); err != nil {
			return nil, fmt.Errorf("scan counters row: %w", err)
		}
		all = append(all, counters)
	}
	return all, rows.Err()
}
