package account

import (
	"context"
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/basantashrestha/seepalaya/core"
)

// Allocation parameters. Bases are truncated to handleMaxLen; collision
// suffixes keep suffixBaseLen chars of the base so the result still fits
// in the 15-char handle column.
const (
	handleMaxLen  = 10
	suffixBaseLen = 5
	joinCodeLen   = 10
	tokenLen      = 64

	allocMaxAttempts = 20

	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
	letters      = lowerLetters + "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
	upperDigits  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	tokenAlphabet = letters + digits
)

// ErrAllocatorExhausted signals that the allocator hit its retry cap without
// finding a free identifier.
var ErrAllocatorExhausted = errors.New("could not allocate a unique identifier")

var nonWordRegex = regexp.MustCompile(`[^\w]`)

// HandleDirectory is the uniqueness pre-check surface the allocator needs.
// The pre-check only minimizes retries; the store's unique constraints are
// authoritative.
type HandleDirectory interface {
	UsernameExists(ctx context.Context, username string, exec ...core.DBExecutor) (bool, error)
	EmailExists(ctx context.Context, email string, exec ...core.DBExecutor) (bool, error)
}

// CodeTakenFunc reports whether a join code is already in use.
type CodeTakenFunc func(ctx context.Context, code string) (bool, error)

// Allocator generates collision-free handles, contact addresses and
// classroom join codes.
type Allocator struct {
	dir HandleDirectory
}

func NewAllocator(dir HandleDirectory) *Allocator {
	return &Allocator{dir: dir}
}

// Handle derives a free handle from seed: lower-cased, non-word characters
// stripped, truncated; on collision the base is cut to 5 chars and suffixed
// with '_' + 2 random letters + 2 random digits.
func (al *Allocator) Handle(ctx context.Context, seed string, exec ...core.DBExecutor) (string, error) {
	base := nonWordRegex.ReplaceAllString(strings.ToLower(strings.SplitN(seed, "@", 2)[0]), "")
	if len(base) > handleMaxLen {
		base = base[:handleMaxLen]
	}
	if base == "" {
		base = RandomString(suffixBaseLen, lowerLetters)
	}

	candidate := base
	for i := 0; i < allocMaxAttempts; i++ {
		exists, err := al.dir.UsernameExists(ctx, candidate, exec...)
		if err != nil {
			return "", errors.Wrap(err, "checking handle")
		}
		if !exists {
			return candidate, nil
		}
		short := base
		if len(short) > suffixBaseLen {
			short = short[:suffixBaseLen]
		}
		candidate = short + "_" + RandomString(2, letters) + RandomString(2, digits)
	}
	return "", core.NewTransientError(errors.Wrap(ErrAllocatorExhausted, "allocating handle"))
}

// Contact derives a free contact address for a delegated account from its
// handle and the delegator's email domain; collisions get '_' + 3 random
// letters before the '@'.
func (al *Allocator) Contact(ctx context.Context, handle, domain string, exec ...core.DBExecutor) (string, error) {
	candidate := handle + "@" + domain
	for i := 0; i < allocMaxAttempts; i++ {
		exists, err := al.dir.EmailExists(ctx, candidate, exec...)
		if err != nil {
			return "", errors.Wrap(err, "checking contact address")
		}
		if !exists {
			return candidate, nil
		}
		candidate = handle + "_" + RandomString(3, lowerLetters) + "@" + domain
	}
	return "", core.NewTransientError(errors.Wrap(ErrAllocatorExhausted, "allocating contact address"))
}

// JoinCode generates a free classroom join code: fixed-length random
// uppercase letters and digits, no base derivation.
func (al *Allocator) JoinCode(ctx context.Context, taken CodeTakenFunc) (string, error) {
	for i := 0; i < allocMaxAttempts; i++ {
		code := RandomString(joinCodeLen, upperDigits)
		exists, err := taken(ctx, code)
		if err != nil {
			return "", errors.Wrap(err, "checking join code")
		}
		if !exists {
			return code, nil
		}
	}
	return "", core.NewTransientError(errors.Wrap(ErrAllocatorExhausted, "allocating join code"))
}

// RandomPassword generates a delegate-assigned secret for bulk-provisioned
// accounts: 8 random lowercase letters and digits.
func RandomPassword() string {
	return RandomString(pwdMinLen, lowerLetters+digits)
}

// RandomString returns n random characters from alphabet.
func RandomString(n int, alphabet string) string {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err) // crypto/rand is unavailable; nothing sane to do
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b)
}
