// Package redisdb keeps verification tokens in Redis. Tokens carry no TTL:
// expiry is checked lazily on use so an expired-but-present token can be
// reported as expired instead of silently unknown.
package redisdb

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
)

const tokenKeyPrefix = "verification:"

type tokenRepository struct {
	client *redis.Client
}

var _ account.TokenRepository = (*tokenRepository)(nil)

func NewTokenRepository(conf *core.Config) account.TokenRepository {
	return &tokenRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Address,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		}),
	}
}

// NewTokenRepositoryWithClient is for tests.
func NewTokenRepositoryWithClient(client *redis.Client) account.TokenRepository {
	return &tokenRepository{client: client}
}

func (repo *tokenRepository) key(accountID string) string {
	return tokenKeyPrefix + accountID
}

func (repo *tokenRepository) CreateToken(ctx context.Context, tok account.VerificationToken) (account.VerificationToken, error) {
	if tok.ID == "" {
		tok.ID = uuid.New().String()
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return account.VerificationToken{}, errors.Wrap(err, "encoding verification token")
	}
	if err = repo.client.Set(ctx, repo.key(tok.AccountID), data, 0).Err(); err != nil {
		return account.VerificationToken{}, errors.Wrap(err, "storing verification token")
	}
	return tok, nil
}

func (repo *tokenRepository) LatestToken(ctx context.Context, accountID string) (account.VerificationToken, error) {
	data, err := repo.client.Get(ctx, repo.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return account.VerificationToken{}, core.NewValidationError(account.ErrInvalidToken)
		}
		return account.VerificationToken{}, errors.Wrap(err, "getting verification token")
	}
	var tok account.VerificationToken
	if err = json.Unmarshal(data, &tok); err != nil {
		return account.VerificationToken{}, errors.Wrap(err, "decoding verification token")
	}
	return tok, nil
}

func (repo *tokenRepository) DeleteAccountTokens(ctx context.Context, accountID string) error {
	return errors.Wrap(repo.client.Del(ctx, repo.key(accountID)).Err(), "deleting verification tokens")
}
