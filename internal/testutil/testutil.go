// Package testutil provides shared test helpers: a throwaway state database
// and an in-memory remote store.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/folio/internal/localstate"
)

// TestState creates a temporary SQLite state database that is automatically
// cleaned up.
func TestState(t *testing.T) *localstate.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "folio-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db, err := localstate.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
