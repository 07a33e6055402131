package db

import (
	"context"
	"path/filepath"
	"testing"
)

// newTestDatabase opens a migrated database in a temp dir.
func newTestDatabase(t *testing.T) *Database {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nested", "test.db")
	database, err := NewDatabase(path)
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return database
}

func TestNewDatabase_RequiresPath(t *testing.T) {
	if _, err := NewDatabase(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestNewDatabase_WALAndForeignKeys(t *testing.T) {
	database := newTestDatabase(t)

	var mode string
	if err := database.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode query: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := database.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys query: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestMigrate_CreatesTablesAndIsIdempotent(t *testing.T) {
	database := newTestDatabase(t)

	for _, table := range []string{"reports", "report_summaries", "pipeline_runs"} {
		var name string
		err := database.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	if err := database.Migrate(); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}

	version, dirty, err := MigrationVersionFromPath(database.Path())
	if err != nil {
		t.Fatalf("MigrationVersionFromPath() error = %v", err)
	}
	if version != 3 || dirty {
		t.Errorf("version = %d dirty = %v, want 3 clean", version, dirty)
	}
}

func TestMigrateDown(t *testing.T) {
	database := newTestDatabase(t)

	if err := MigrateDownFromPath(database.Path(), 1); err != nil {
		t.Fatalf("MigrateDownFromPath() error = %v", err)
	}
	version, _, err := MigrationVersionFromPath(database.Path())
	if err != nil {
		t.Fatalf("MigrationVersionFromPath() error = %v", err)
	}
	if version != 2 {
		t.Errorf("version after one step down = %d, want 2", version)
	}
}

func TestDatabase_CloseTwice(t *testing.T) {
	database := newTestDatabase(t)

	if err := database.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := database.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := database.Ping(context.Background()); err == nil {
		t.Error("Ping() after Close should fail")
	}
}
