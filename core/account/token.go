package account

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/basantashrestha/seepalaya/core"
)

var (
	ErrInvalidToken = errors.New("invalid or unknown verification token")
	ErrTokenExpired = errors.New("verification token expired")
)

type (
	// VerificationToken is a single-use, opaque email confirmation secret.
	// Expiry is lazy: a token lives in the store until it is either consumed
	// or presented after its window, at which point it is purged.
	VerificationToken struct {
		ID        string    `json:"id"`
		AccountID string    `json:"account_id"`
		Token     string    `json:"token"`
		Email     string    `json:"email"` // address the token was mailed to
		CreatedAt time.Time `json:"created_at"`
	}

	TokenRepository interface {
		CreateToken(ctx context.Context, tok VerificationToken) (VerificationToken, error)
		// LatestToken returns the most recently issued token for the account,
		// or ErrInvalidToken when none is live.
		LatestToken(ctx context.Context, accountID string) (VerificationToken, error)
		DeleteAccountTokens(ctx context.Context, accountID string) error
	}
)

func (t *VerificationToken) Expired(timeout time.Duration) bool {
	return nowFunc().UTC().After(t.CreatedAt.Add(timeout))
}

// IssueVerification issues a fresh confirmation token for acct and mails it.
// Any live token for the account is discarded first; at most one token is
// outstanding per account.
func (svc *service) IssueVerification(ctx context.Context, acct Account, email string) (VerificationToken, error) {
	if email == "" {
		email = acct.Email
	}
	if email == "" {
		return VerificationToken{}, core.NewValidationError(ErrNoContactAddress)
	}

	if err := svc.tokens.DeleteAccountTokens(ctx, acct.ID); err != nil {
		return VerificationToken{}, err
	}
	tok := VerificationToken{
		AccountID: acct.ID,
		Token:     RandomString(tokenLen, tokenAlphabet),
		Email:     email,
		CreatedAt: nowFunc().UTC(),
	}
	tok, err := svc.tokens.CreateToken(ctx, tok)
	if err != nil {
		return VerificationToken{}, err
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: acct.Name, Address: email}},
		Subject:      "Verify Your Account",
		TemplateName: "account-verification",
		TemplateData: struct {
			Username string
			Token    string
		}{acct.Username, tok.Token},
	})
	return tok, nil
}

// ResendVerification reissues a confirmation token for an unverified account.
func (svc *service) ResendVerification(ctx context.Context, acct Account, email string) (VerificationToken, error) {
	if acct.IsVerified {
		return VerificationToken{}, core.NewConflictError(ErrAlreadyVerified, "is_verified")
	}
	return svc.IssueVerification(ctx, acct, email)
}

// Verify consumes a confirmation token and marks the account verified.
// A token presented after its window is purged and reported expired; the
// caller must request a fresh one.
func (svc *service) Verify(ctx context.Context, acct Account, token string) (Account, error) {
	if acct.IsVerified {
		return Account{}, core.NewConflictError(ErrAlreadyVerified, "is_verified")
	}

	tok, err := svc.tokens.LatestToken(ctx, acct.ID)
	if err != nil {
		return Account{}, err
	}
	if tok.Token != token {
		return Account{}, core.NewValidationError(ErrInvalidToken)
	}
	if tok.Expired(svc.conf.EmailConfirmationTimeout) {
		if err = svc.tokens.DeleteAccountTokens(ctx, acct.ID); err != nil {
			return Account{}, err
		}
		return Account{}, core.NewExpiredError(ErrTokenExpired)
	}

	acct.IsVerified = true
	if tok.Email != "" {
		acct.Email = tok.Email
	}
	acct.UpdatedAt = nowFunc().UTC()
	acct, err = svc.repo.UpdateAccount(ctx, acct)
	if err != nil {
		return Account{}, err
	}
	// single use
	if err = svc.tokens.DeleteAccountTokens(ctx, acct.ID); err != nil {
		return Account{}, err
	}
	return acct, nil
}
