package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CensorTerms returns the cached censor vocabulary, lowercased and sorted.
func (s *Store) CensorTerms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT term FROM censor_terms ORDER BY term ASC")
	if err != nil {
		return nil, fmt.Errorf("query censor terms: %w", err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("scan censor term: %w", err)
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}

// SaveCensorTerms stores new vocabulary entries, ignoring duplicates.
func (s *Store) SaveCensorTerms(ctx context.Context, terms []string) error {
	if len(terms) == 0 {
		return nil
	}
	now := timestamp(time.Now().UTC())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, term := range terms {
			normalized := strings.ToLower(strings.TrimSpace(term))
			if normalized == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
                INSERT INTO censor_terms (term, added_at) VALUES (?, ?)
                ON CONFLICT(term) DO NOTHING`, normalized, now); err != nil {
				return fmt.Errorf("save censor term %q: %w", normalized, err)
			}
		}
		return nil
	})
}
