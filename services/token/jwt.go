// Package tokensvc issues and refreshes the signed session tokens handed to
// clients after authentication.
package tokensvc

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
)

var (
	// errors
	ErrTokenInvalid   = errors.New("invalid session token")
	ErrRefreshExpired = errors.New("refresh has expired")
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OriginalIssuedAt int64    `json:"oriat,omitempty"`
	Username         string   `json:"username,omitempty"`
	IsLearner        bool     `json:"is_learner,omitempty"`
	IsTeacher        bool     `json:"is_teacher,omitempty"`
	IsGuardian       bool     `json:"is_guardian,omitempty"`
	IsAdmin          bool     `json:"is_admin,omitempty"`
	Roles            []string `json:"roles,omitempty"`
}

type JWTService struct {
	appName       string
	secretKey     []byte
	expiration    time.Duration
	refreshMaxAge time.Duration
	nowFunc       func() time.Time // mockable
	signingMethod jwt.SigningMethod
}

func NewJWTService(conf *core.Config) *JWTService {
	return &JWTService{
		appName:       conf.AppName,
		secretKey:     conf.SecretKey,
		expiration:    conf.Server.JWTExpirationDelta,
		refreshMaxAge: conf.Server.JWTRefreshExpirationDelta,
		nowFunc:       time.Now,
		signingMethod: jwt.SigningMethodHS256,
	}
}

func (svc *JWTService) claims(acct account.Account, origIat ...int64) *Claims {
	now := svc.nowFunc()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    svc.appName,
			Subject:   acct.ID,
			ExpiresAt: now.Add(svc.expiration).Unix(),
			IssuedAt:  nownix,
		},
		OriginalIssuedAt: oriat,
		Username:         acct.Username,
		IsLearner:        acct.IsLearner(),
		IsTeacher:        acct.IsTeacher(),
		IsGuardian:       acct.IsGuardian(),
		IsAdmin:          acct.IsAdmin(),
		Roles:            acct.Roles,
	}
}

// Generate signs a fresh session token for acct.
func (svc *JWTService) Generate(acct account.Account) (string, error) {
	token := jwt.NewWithClaims(svc.signingMethod, svc.claims(acct))
	ss, err := token.SignedString(svc.secretKey)
	return ss, errors.Wrap(err, "signing session token")
}

// Parse validates a session token string and returns its claims.
func (svc *JWTService) Parse(tokenStr string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != svc.signingMethod {
			return nil, ErrTokenInvalid
		}
		return svc.secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Refresh re-issues a token for acct as long as the original issue time is
// within the refresh window.
func (svc *JWTService) Refresh(claims *Claims, acct account.Account) (string, error) {
	expTime := time.Unix(claims.OriginalIssuedAt, 0).Add(svc.refreshMaxAge)
	if svc.nowFunc().After(expTime) {
		return "", ErrRefreshExpired
	}
	token := jwt.NewWithClaims(svc.signingMethod, svc.claims(acct, claims.OriginalIssuedAt))
	ss, err := token.SignedString(svc.secretKey)
	return ss, errors.Wrap(err, "signing session token")
}
