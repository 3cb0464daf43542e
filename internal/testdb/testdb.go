// Package testdb opens throwaway SQLite databases for tests. Every call
// gets its own file under t.TempDir(), so parallel tests never share
// state the way a process-wide shared-cache memory database would.
package testdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/codelore/codelore/infrastructure/persistence"
	"github.com/codelore/codelore/internal/database"
)

// New opens a fresh database with the full schema migrated. It is closed
// when the test finishes.
func New(t *testing.T) database.Database {
	t.Helper()
	db := NewPlain(t)
	if err := persistence.AutoMigrate(db); err != nil {
		t.Fatalf("testdb: migrate schema: %v", err)
	}
	return db
}

// NewPlain opens a fresh database without migrating anything, for tests
// that manage their own schema.
func NewPlain(t *testing.T) database.Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDatabase(context.Background(), "sqlite:///"+path)
	if err != nil {
		t.Fatalf("testdb: open %s: %v", path, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// WithSchema opens a fresh database and applies the given DDL statements.
func WithSchema(t *testing.T, statements ...string) database.Database {
	t.Helper()
	db := NewPlain(t)
	ctx := context.Background()
	for _, stmt := range statements {
		if err := db.Session(ctx).Exec(stmt).Error; err != nil {
			t.Fatalf("testdb: apply schema: %v\nstatement: %s", err, stmt)
		}
	}
	return db
}
