package testutil

import (
	"testing"

	"contactsync/internal/contacts"
	"contactsync/internal/database"
)

// NewTestStore creates a new in-memory SQLite store with the schema applied.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T, clock contacts.Clock) *database.SQLiteStore {
	t.Helper()

	store, err := database.NewSQLiteStore(":memory:", clock, nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
