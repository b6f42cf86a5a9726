// Package inmemdb provides map-backed repositories for tests. Transactions
// are accepted but not isolated: a fake transactor commits straight to the
// shared tables.
package inmemdb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
	"github.com/basantashrestha/seepalaya/core/classroom"
)

type DB struct {
	mutex sync.RWMutex

	accounts  map[string]*account.Account
	learners  map[string]*account.LearnerProfile  // by account ID
	teachers  map[string]*account.TeacherProfile  // by account ID
	guardians map[string]*account.GuardianProfile // by account ID
	tokens    map[string][]account.VerificationToken
	edges     map[string]account.DelegationEdge // delegateID + "/" + delegatedID
	rooms     map[string]*classroom.Classroom
	members   map[string]map[string]bool // classroomID -> accountID set
}

func NewDB() *DB {
	return &DB{
		accounts:  make(map[string]*account.Account),
		learners:  make(map[string]*account.LearnerProfile),
		teachers:  make(map[string]*account.TeacherProfile),
		guardians: make(map[string]*account.GuardianProfile),
		tokens:    make(map[string][]account.VerificationToken),
		edges:     make(map[string]account.DelegationEdge),
		rooms:     make(map[string]*classroom.Classroom),
		members:   make(map[string]map[string]bool),
	}
}

var errNotSQL = errors.New("inmemdb: raw SQL is not supported")

func (db *DB) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNotSQL
}
func (db *DB) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNotSQL
}
func (db *DB) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }
func (db *DB) GetContext(context.Context, interface{}, string, ...interface{}) error {
	return errNotSQL
}
func (db *DB) SelectContext(context.Context, interface{}, string, ...interface{}) error {
	return errNotSQL
}

func (db *DB) BeginTx(context.Context, *sql.TxOptions) (core.DBTransactor, error) {
	return &fakeTx{db}, nil
}

type fakeTx struct {
	*DB
}

func (tx *fakeTx) Commit() error   { return nil }
func (tx *fakeTx) Rollback() error { return nil }

var _ core.DB = (*DB)(nil)

func edgeKey(delegateID, delegatedID string) string { return delegateID + "/" + delegatedID }
