package database

import (
	"context"

	"gorm.io/gorm"
)

// WithTransaction runs fn inside a transaction. The transaction commits
// when fn returns nil and rolls back otherwise. fn's error is returned
// as-is so callers can still match sentinel errors with errors.Is.
func WithTransaction(ctx context.Context, db Database, fn func(tx *gorm.DB) error) error {
	return db.Session(ctx).Transaction(fn)
}

// WithTransactionResult is WithTransaction for callbacks that produce a
// value. On rollback the zero value is returned.
func WithTransactionResult[T any](ctx context.Context, db Database, fn func(tx *gorm.DB) (T, error)) (T, error) {
	var out T
	err := WithTransaction(ctx, db, func(tx *gorm.DB) error {
		var err error
		out, err = fn(tx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
