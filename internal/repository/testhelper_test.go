package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmylchreest/sitesift/internal/database"
	"github.com/jmylchreest/sitesift/internal/logging"
)

// setupTestDB creates a migrated in-memory SQLite database that is closed
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Options{URL: ":memory:"}, logging.Discard())
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
