package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
)

type tokenRepository struct {
	db *DB
}

var _ account.TokenRepository = (*tokenRepository)(nil)

func NewTokenRepository(db *DB) account.TokenRepository {
	return &tokenRepository{db: db}
}

func (repo *tokenRepository) CreateToken(ctx context.Context, tok account.VerificationToken) (account.VerificationToken, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if tok.ID == "" {
		tok.ID = uuid.New().String()
	}
	repo.db.tokens[tok.AccountID] = append(repo.db.tokens[tok.AccountID], tok)
	return tok, nil
}

func (repo *tokenRepository) LatestToken(ctx context.Context, accountID string) (account.VerificationToken, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	toks := repo.db.tokens[accountID]
	if len(toks) == 0 {
		return account.VerificationToken{}, core.NewValidationError(account.ErrInvalidToken)
	}
	latest := toks[0]
	for _, tok := range toks[1:] {
		if tok.CreatedAt.After(latest.CreatedAt) {
			latest = tok
		}
	}
	return latest, nil
}

func (repo *tokenRepository) DeleteAccountTokens(ctx context.Context, accountID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.tokens, accountID)
	return nil
}
