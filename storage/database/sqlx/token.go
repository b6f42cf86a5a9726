package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
)

type tokenRow struct {
	ID        string      `db:"id"`
	AccountID string      `db:"account_id"`
	Token     string      `db:"token"`
	Email     null.String `db:"email"`
	CreatedAt time.Time   `db:"created_at"`
}

type tokenRepository struct {
	db core.DBExecutor
}

var _ account.TokenRepository = (*tokenRepository)(nil)

func NewTokenRepository(db core.DBExecutor) account.TokenRepository {
	return &tokenRepository{db: db}
}

func (repo *tokenRepository) CreateToken(ctx context.Context, tok account.VerificationToken) (account.VerificationToken, error) {
	if tok.ID == "" {
		tok.ID = uuid.New().String()
	}
	q := `INSERT INTO verification_token (id, account_id, token, email, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := repo.db.ExecContext(ctx, q,
		tok.ID, tok.AccountID, tok.Token, null.NewString(tok.Email, tok.Email != ""), tok.CreatedAt)
	if err != nil {
		return account.VerificationToken{}, wrapWriteErr(err, "creating verification token")
	}
	return tok, nil
}

func (repo *tokenRepository) LatestToken(ctx context.Context, accountID string) (account.VerificationToken, error) {
	var row tokenRow
	q := `
SELECT id, account_id, token, email, created_at
FROM verification_token
WHERE account_id = $1
ORDER BY created_at DESC
LIMIT 1`
	if err := repo.db.GetContext(ctx, &row, q, accountID); err != nil {
		if isNoRows(err) {
			return account.VerificationToken{}, core.NewValidationError(account.ErrInvalidToken)
		}
		return account.VerificationToken{}, errors.Wrap(err, "getting verification token")
	}
	return account.VerificationToken{
		ID:        row.ID,
		AccountID: row.AccountID,
		Token:     row.Token,
		Email:     row.Email.String,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (repo *tokenRepository) DeleteAccountTokens(ctx context.Context, accountID string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM verification_token WHERE account_id = $1`, accountID)
	return errors.Wrap(err, "deleting verification tokens")
}
