package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
	"github.com/basantashrestha/seepalaya/core/delegation"
)

type delegationRepository struct {
	db *DB
}

var _ delegation.Repository = (*delegationRepository)(nil)

func NewDelegationRepository(db *DB) delegation.Repository {
	return &delegationRepository{db: db}
}

func (repo *delegationRepository) CreateEdge(ctx context.Context, edge account.DelegationEdge, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := edgeKey(edge.DelegateID, edge.DelegatedID)
	if _, ok := repo.db.edges[key]; ok {
		return errors.Wrap(core.ErrUniqueViolation, "creating delegation edge")
	}
	repo.db.edges[key] = edge
	return nil
}

func (repo *delegationRepository) RemoveEdge(ctx context.Context, delegateID, delegatedID string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.edges, edgeKey(delegateID, delegatedID))
	return nil
}

func (repo *delegationRepository) EdgeExists(ctx context.Context, delegateID, delegatedID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	_, ok := repo.db.edges[edgeKey(delegateID, delegatedID)]
	return ok, nil
}

func (repo *delegationRepository) QueryDelegated(ctx context.Context, delegateID string, _ ...core.DBExecutor) ([]account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var accts []account.Account
	for _, edge := range repo.db.edges {
		if edge.DelegateID != delegateID {
			continue
		}
		if a, ok := repo.db.accounts[edge.DelegatedID]; ok {
			accts = append(accts, *a)
		}
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].CreatedAt.After(accts[j].CreatedAt) })
	return accts, nil
}
