package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
)

type accountRepository struct {
	db *DB
}

var _ account.Repository = (*accountRepository)(nil)

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) query() []account.Account {
	accts := make([]account.Account, 0, len(repo.db.accounts))
	for _, a := range repo.db.accounts {
		accts = append(accts, *a)
	}
	return accts
}

func (repo *accountRepository) CheckUniqueness(ctx context.Context, username, email string, excluded []account.Account, _ ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excl := make(map[string]bool, len(excluded))
	for _, a := range excluded {
		excl[a.ID] = true
	}
	// contact conflicts are reported before handle conflicts
	for _, a := range repo.query() {
		if excl[a.ID] {
			continue
		}
		if email != "" && strings.EqualFold(a.Email, email) {
			return account.ErrEmailExists
		}
	}
	for _, a := range repo.query() {
		if excl[a.ID] {
			continue
		}
		if username != "" && strings.EqualFold(a.Username, username) {
			return account.ErrUsernameExists
		}
	}
	return nil
}

func (repo *accountRepository) UsernameExists(ctx context.Context, username string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	for _, a := range repo.query() {
		if strings.EqualFold(a.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *accountRepository) EmailExists(ctx context.Context, email string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	for _, a := range repo.query() {
		if strings.EqualFold(a.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acct account.Account, _ ...core.DBExecutor) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, a := range repo.query() {
		if strings.EqualFold(a.Username, acct.Username) || strings.EqualFold(a.Email, acct.Email) {
			return account.Account{}, errors.Wrap(core.ErrUniqueViolation, "creating account")
		}
	}
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	repo.db.accounts[acct.ID] = &acct
	return acct, nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, filter account.GetFilter, _ ...core.DBExecutor) (account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, a := range repo.query() {
		switch {
		case filter.ID != "" && a.ID == filter.ID:
			return a, nil
		case filter.Username != "" && strings.EqualFold(a.Username, filter.Username):
			return a, nil
		case filter.Email != "" && strings.EqualFold(a.Email, filter.Email):
			return a, nil
		case filter.UsernameOrEmail != "" &&
			(strings.EqualFold(a.Username, filter.UsernameOrEmail) || strings.EqualFold(a.Email, filter.UsernameOrEmail)):
			return a, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, filter *account.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var accts []account.Account
	for _, a := range repo.query() {
		if filter != nil && !filter.IsEmpty() && !matchesFilter(a, filter) {
			continue
		}
		accts = append(accts, a)
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].CreatedAt.After(accts[j].CreatedAt) })
	return accts, nil
}

func matchesFilter(a account.Account, filter *account.QueryFilter) bool {
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(a.Name), s) &&
			!strings.Contains(strings.ToLower(a.Username), s) &&
			!strings.Contains(strings.ToLower(a.Email), s) {
			return false
		}
	}
	if filter.Roles != nil {
		var hit bool
		for _, want := range filter.Roles {
			for _, have := range a.Roles {
				if have == want {
					hit = true
				}
			}
		}
		if !hit {
			return false
		}
	}
	if filter.IsVerified != nil && a.IsVerified != *filter.IsVerified {
		return false
	}
	if !filter.CreatedFrom.IsZero() && a.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && a.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, acct account.Account, _ ...core.DBExecutor) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.accounts[acct.ID]; !ok {
		return account.Account{}, account.ErrNotFound
	}
	repo.db.accounts[acct.ID] = &acct
	return acct, nil
}

func (repo *accountRepository) DeleteAccountsByID(ctx context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.accounts[id]; ok {
			delete(repo.db.accounts, id)
			n++
		}
	}
	return n, nil
}

func (repo *accountRepository) CreateLearnerProfile(ctx context.Context, prof account.LearnerProfile, _ ...core.DBExecutor) (account.LearnerProfile, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if prof.ID == "" {
		prof.ID = uuid.New().String()
	}
	repo.db.learners[prof.AccountID] = &prof
	return prof, nil
}

func (repo *accountRepository) GetLearnerProfile(ctx context.Context, accountID string, _ ...core.DBExecutor) (account.LearnerProfile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if prof, ok := repo.db.learners[accountID]; ok {
		return *prof, nil
	}
	return account.LearnerProfile{}, account.ErrNotFound
}

func (repo *accountRepository) DeleteLearnerProfile(ctx context.Context, accountID string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.learners, accountID)
	return nil
}

func (repo *accountRepository) CreateTeacherProfile(ctx context.Context, prof account.TeacherProfile, _ ...core.DBExecutor) (account.TeacherProfile, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if prof.ID == "" {
		prof.ID = uuid.New().String()
	}
	repo.db.teachers[prof.AccountID] = &prof
	return prof, nil
}

func (repo *accountRepository) GetTeacherProfile(ctx context.Context, accountID string, _ ...core.DBExecutor) (account.TeacherProfile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if prof, ok := repo.db.teachers[accountID]; ok {
		return *prof, nil
	}
	return account.TeacherProfile{}, account.ErrNotFound
}

func (repo *accountRepository) CreateGuardianProfile(ctx context.Context, prof account.GuardianProfile, _ ...core.DBExecutor) (account.GuardianProfile, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if prof.ID == "" {
		prof.ID = uuid.New().String()
	}
	repo.db.guardians[prof.AccountID] = &prof
	return prof, nil
}

func (repo *accountRepository) GetGuardianProfile(ctx context.Context, accountID string, _ ...core.DBExecutor) (account.GuardianProfile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if prof, ok := repo.db.guardians[accountID]; ok {
		return *prof, nil
	}
	return account.GuardianProfile{}, account.ErrNotFound
}
