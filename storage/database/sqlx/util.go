// Package sqlxrepos implements the repositories on PostgreSQL via sqlx.
package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/basantashrestha/seepalaya/core"
)

const pqUniqueViolation = "23505"

// getExec picks the caller's transaction when one is passed, otherwise the
// repository's own handle.
func getExec(dflt core.DBExecutor, exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 {
		return exec[0]
	}
	return dflt
}

// wrapWriteErr maps driver errors to the portable repository errors.
func wrapWriteErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return errors.Wrap(core.ErrUniqueViolation, msg)
	}
	return errors.Wrap(err, msg)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// prefixCols qualifies a comma-separated column list with a table alias.
func prefixCols(alias, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
