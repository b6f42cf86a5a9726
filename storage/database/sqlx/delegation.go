package sqlxrepos

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
	"github.com/basantashrestha/seepalaya/core/delegation"
)

type delegationRepository struct {
	db core.DBExecutor
}

var _ delegation.Repository = (*delegationRepository)(nil)

func NewDelegationRepository(db core.DBExecutor) delegation.Repository {
	return &delegationRepository{db: db}
}

func (repo *delegationRepository) CreateEdge(ctx context.Context, edge account.DelegationEdge, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	q := `INSERT INTO delegation_edge (delegate_id, delegated_id, relation) VALUES ($1, $2, $3)`
	_, err := ex.ExecContext(ctx, q, edge.DelegateID, edge.DelegatedID, edge.Relation)
	return wrapWriteErr(err, "creating delegation edge")
}

func (repo *delegationRepository) RemoveEdge(ctx context.Context, delegateID, delegatedID string, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	q := `DELETE FROM delegation_edge WHERE delegate_id = $1 AND delegated_id = $2`
	_, err := ex.ExecContext(ctx, q, delegateID, delegatedID)
	return errors.Wrap(err, "removing delegation edge")
}

func (repo *delegationRepository) EdgeExists(ctx context.Context, delegateID, delegatedID string, exec ...core.DBExecutor) (bool, error) {
	ex := getExec(repo.db, exec)
	var exists bool
	q := `SELECT EXISTS(SELECT 1 FROM delegation_edge WHERE delegate_id = $1 AND delegated_id = $2)`
	err := ex.GetContext(ctx, &exists, q, delegateID, delegatedID)
	return exists, errors.Wrap(err, "checking delegation edge")
}

func (repo *delegationRepository) QueryDelegated(ctx context.Context, delegateID string, exec ...core.DBExecutor) ([]account.Account, error) {
	ex := getExec(repo.db, exec)
	var rows []accountRow
	q := fmt.Sprintf(`
SELECT %s FROM account a
JOIN delegation_edge e ON e.delegated_id = a.id
WHERE e.delegate_id = $1
ORDER BY a.created_at DESC`, prefixCols("a", accountCols))
	if err := ex.SelectContext(ctx, &rows, q, delegateID); err != nil {
		return nil, errors.Wrap(err, "querying delegated accounts")
	}
	accts := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		accts = append(accts, row.toAccount())
	}
	return accts, nil
}
