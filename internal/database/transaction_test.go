package database

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"
)

func openTxTestDB(t *testing.T) Database {
	t.Helper()
	db := openFileDB(t)
	err := db.Session(context.Background()).
		Exec("CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT NOT NULL)").Error
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func countNotes(t *testing.T, db Database) int64 {
	t.Helper()
	var n int64
	if err := db.Session(context.Background()).Raw("SELECT COUNT(*) FROM notes").Scan(&n).Error; err != nil {
		t.Fatalf("count notes: %v", err)
	}
	return n
}

func TestWithTransaction_CommitsOnSuccess(t *testing.T) {
	db := openTxTestDB(t)
	ctx := context.Background()

	err := WithTransaction(ctx, db, func(tx *gorm.DB) error {
		return tx.Exec("INSERT INTO notes (body) VALUES ('kept')").Error
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}
	if n := countNotes(t, db); n != 1 {
		t.Errorf("notes = %d, want 1", n)
	}
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := openTxTestDB(t)
	ctx := context.Background()
	sentinel := errors.New("abandon ship")

	err := WithTransaction(ctx, db, func(tx *gorm.DB) error {
		if err := tx.Exec("INSERT INTO notes (body) VALUES ('discarded')").Error; err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the callback's own error, got %v", err)
	}
	if n := countNotes(t, db); n != 0 {
		t.Errorf("notes = %d after rollback, want 0", n)
	}
}

func TestWithTransactionResult_ReturnsValue(t *testing.T) {
	db := openTxTestDB(t)
	ctx := context.Background()

	id, err := WithTransactionResult(ctx, db, func(tx *gorm.DB) (int64, error) {
		if err := tx.Exec("INSERT INTO notes (body) VALUES ('first')").Error; err != nil {
			return 0, err
		}
		var id int64
		err := tx.Raw("SELECT id FROM notes WHERE body = 'first'").Scan(&id).Error
		return id, err
	})
	if err != nil {
		t.Fatalf("WithTransactionResult: %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}
}

func TestWithTransactionResult_ZeroValueOnRollback(t *testing.T) {
	db := openTxTestDB(t)
	ctx := context.Background()

	got, err := WithTransactionResult(ctx, db, func(tx *gorm.DB) (string, error) {
		if err := tx.Exec("INSERT INTO notes (body) VALUES ('discarded')").Error; err != nil {
			return "", err
		}
		return "partial", errors.New("nope")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got != "" {
		t.Errorf("result = %q, want zero value", got)
	}
	if n := countNotes(t, db); n != 0 {
		t.Errorf("notes = %d after rollback, want 0", n)
	}
}
