package core

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

type (
	// DBExecutor is the query surface shared by a DB handle and an open
	// transaction; *sqlx.DB and *sqlx.Tx both satisfy it.
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	DB interface {
		DBExecutor

		BeginTx(ctx context.Context, opts *sql.TxOptions) (DBTransactor, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}
)

// ErrUniqueViolation is returned (wrapped) by repositories when a write hits
// a unique constraint at commit time.
var ErrUniqueViolation = errors.New("unique constraint violation")

func IsUniqueViolation(err error) bool {
	return errors.Cause(err) == ErrUniqueViolation
}

// Atomic runs fn inside a transaction; fn's error rolls back, nil commits.
func Atomic(ctx context.Context, db DB, fn func(tx DBTransactor) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// RetryUnique re-runs fn as long as it fails on a unique-constraint
// violation, up to attempts times. Identifier pre-checks can never be
// race-free, so losing such a race is benign: the caller re-allocates and
// tries again rather than surfacing the collision.
func RetryUnique(attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !IsUniqueViolation(err) {
			return err
		}
	}
	return NewTransientError(errors.Wrap(err, "identifier allocation retries exhausted"))
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
