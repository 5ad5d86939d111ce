package testsupport

import (
	"context"
	"testing"

	"storyreel/internal/config"
	"storyreel/internal/item"
	"storyreel/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewItem ingests a work item for tests using the provided store.
func NewItem(t testing.TB, st *store.Store, externalID, title, body string) *item.WorkItem {
	t.Helper()

	candidate := &item.WorkItem{
		ExternalID: externalID,
		Origin:     "test/origin",
		Title:      title,
		Body:       body,
		Score:      500,
	}
	stored, _, err := st.IngestItem(context.Background(), candidate)
	if err != nil {
		t.Fatalf("store.IngestItem: %v", err)
	}
	return stored
}
