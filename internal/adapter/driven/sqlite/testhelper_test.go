package sqlite

import (
	"net/url"
	"testing"
)

// setupTestDB opens a named shared-cache in-memory database and migrates it.
// The name comes from t.Name() so parallel tests stay isolated.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Escape the test name so it cannot be read as DSN query parameters.
	// WAL is meaningless for in-memory databases and is left out.
	dsn := buildDSN("file:" + url.PathEscape(t.Name()) + "?mode=memory&cache=shared")

	db, err := open(dsn, 4)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func ptr[T any](v T) *T { return &v }
