package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
)

type accountRow struct {
	ID               string         `db:"id"`
	Name             null.String    `db:"name"`
	Username         string         `db:"username"`
	Email            string         `db:"email"`
	IsVerified       bool           `db:"is_verified"`
	Roles            pq.StringArray `db:"roles"`
	PasswordHash     []byte         `db:"password_hash"`
	ProfilePictureID null.String    `db:"profile_picture_id"`
	CreatedAt        null.Time      `db:"created_at"`
	UpdatedAt        null.Time      `db:"updated_at"`
	LastLogin        null.Time      `db:"last_login"`
}

func (r accountRow) toAccount() account.Account {
	return account.Account{
		ID:               r.ID,
		Name:             r.Name.String,
		Username:         r.Username,
		Email:            r.Email,
		IsVerified:       r.IsVerified,
		Roles:            r.Roles,
		PasswordHash:     r.PasswordHash,
		ProfilePictureID: r.ProfilePictureID,
		CreatedAt:        r.CreatedAt.Time,
		UpdatedAt:        r.UpdatedAt.Time,
		LastLogin:        r.LastLogin.Time,
	}
}

type learnerProfileRow struct {
	ID           string             `db:"id"`
	AccountID    string             `db:"account_id"`
	DateOfBirth  null.Time          `db:"date_of_birth"`
	MaintainedBy account.Maintainer `db:"maintained_by"`
	CreatedByID  null.String        `db:"created_by_id"`
}

func (r learnerProfileRow) toProfile() account.LearnerProfile {
	return account.LearnerProfile{
		ID:           r.ID,
		AccountID:    r.AccountID,
		DateOfBirth:  r.DateOfBirth,
		MaintainedBy: r.MaintainedBy,
		CreatedByID:  r.CreatedByID,
	}
}

type teacherProfileRow struct {
	ID        string      `db:"id"`
	AccountID string      `db:"account_id"`
	School    null.String `db:"school"`
}

type guardianProfileRow struct {
	ID        string `db:"id"`
	AccountID string `db:"account_id"`
}

const accountCols = `id, name, username, email, is_verified, roles, password_hash, profile_picture_id, created_at, updated_at, last_login`

type accountRepository struct {
	db core.DBExecutor
}

var _ account.Repository = (*accountRepository)(nil)

func NewAccountRepository(db core.DBExecutor) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) CheckUniqueness(ctx context.Context, username, email string, excluded []account.Account, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)

	exclIDs := make([]string, 0, len(excluded))
	for _, acct := range excluded {
		exclIDs = append(exclIDs, acct.ID)
	}

	check := func(col, val string, existsErr error) error {
		if val == "" {
			return nil
		}
		var exists bool
		q := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM account WHERE LOWER(%s) = LOWER($1) AND id != ALL($2))`, col)
		if err := ex.GetContext(ctx, &exists, q, val, pq.Array(exclIDs)); err != nil {
			return errors.Wrapf(err, "checking %s uniqueness", col)
		}
		if exists {
			return existsErr
		}
		return nil
	}

	// contact conflicts are reported before handle conflicts
	if err := check("email", email, account.ErrEmailExists); err != nil {
		return err
	}
	return check("username", username, account.ErrUsernameExists)
}

func (repo *accountRepository) UsernameExists(ctx context.Context, username string, exec ...core.DBExecutor) (bool, error) {
	ex := getExec(repo.db, exec)
	var exists bool
	q := `SELECT EXISTS(SELECT 1 FROM account WHERE LOWER(username) = LOWER($1))`
	err := ex.GetContext(ctx, &exists, q, username)
	return exists, errors.Wrap(err, "checking username")
}

func (repo *accountRepository) EmailExists(ctx context.Context, email string, exec ...core.DBExecutor) (bool, error) {
	ex := getExec(repo.db, exec)
	var exists bool
	q := `SELECT EXISTS(SELECT 1 FROM account WHERE LOWER(email) = LOWER($1))`
	err := ex.GetContext(ctx, &exists, q, email)
	return exists, errors.Wrap(err, "checking email")
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acct account.Account, exec ...core.DBExecutor) (account.Account, error) {
	ex := getExec(repo.db, exec)
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	q := `
INSERT INTO account (id, name, username, email, is_verified, roles, password_hash, profile_picture_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := ex.ExecContext(ctx, q,
		acct.ID, null.NewString(acct.Name, acct.Name != ""), acct.Username, acct.Email, acct.IsVerified,
		pq.Array(acct.Roles), acct.PasswordHash, acct.ProfilePictureID, acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		return account.Account{}, wrapWriteErr(err, "creating account")
	}
	return acct, nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, filter account.GetFilter, exec ...core.DBExecutor) (account.Account, error) {
	ex := getExec(repo.db, exec)

	var (
		where string
		arg   string
	)
	switch {
	case filter.ID != "":
		where, arg = `id = $1`, filter.ID
	case filter.Username != "":
		where, arg = `LOWER(username) = LOWER($1)`, filter.Username
	case filter.Email != "":
		where, arg = `LOWER(email) = LOWER($1)`, filter.Email
	case filter.UsernameOrEmail != "":
		where, arg = `(LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1))`, filter.UsernameOrEmail
	default:
		return account.Account{}, account.ErrNotFound
	}

	var row accountRow
	q := fmt.Sprintf(`SELECT %s FROM account WHERE %s`, accountCols, where)
	if err := ex.GetContext(ctx, &row, q, arg); err != nil {
		if isNoRows(err) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "getting account")
	}
	return row.toAccount(), nil
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, filter *account.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]account.Account, error) {
	ex := getExec(repo.db, exec)

	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil && !filter.IsEmpty() {
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			conds = append(conds, fmt.Sprintf("(name ILIKE %[1]s OR username ILIKE %[1]s OR email ILIKE %[1]s)", p))
		}
		if filter.Roles != nil {
			conds = append(conds, fmt.Sprintf("roles && %s", arg(pq.Array(filter.Roles))))
		}
		if filter.IsVerified != nil {
			conds = append(conds, fmt.Sprintf("is_verified = %s", arg(*filter.IsVerified)))
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, fmt.Sprintf("created_at >= %s", arg(filter.CreatedFrom)))
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, fmt.Sprintf("created_at <= %s", arg(filter.CreatedTo)))
		}
	}

	q := fmt.Sprintf(`SELECT %s FROM account`, accountCols)
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	if len(ordering) > 0 {
		ords := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			ords = append(ords, ord.String())
		}
		q += " ORDER BY " + strings.Join(ords, ", ")
	} else {
		q += " ORDER BY created_at DESC"
	}

	var rows []accountRow
	if err := ex.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying accounts")
	}
	accts := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		accts = append(accts, row.toAccount())
	}
	return accts, nil
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, acct account.Account, exec ...core.DBExecutor) (account.Account, error) {
	ex := getExec(repo.db, exec)
	q := `
UPDATE account
SET name = $2, username = $3, email = $4, is_verified = $5, roles = $6,
    password_hash = $7, profile_picture_id = $8, updated_at = $9, last_login = $10
WHERE id = $1`
	res, err := ex.ExecContext(ctx, q,
		acct.ID, null.NewString(acct.Name, acct.Name != ""), acct.Username, acct.Email, acct.IsVerified,
		pq.Array(acct.Roles), acct.PasswordHash, acct.ProfilePictureID, acct.UpdatedAt,
		null.NewTime(acct.LastLogin, !acct.LastLogin.IsZero()),
	)
	if err != nil {
		return account.Account{}, wrapWriteErr(err, "updating account")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return account.Account{}, account.ErrNotFound
	}
	return acct, nil
}

func (repo *accountRepository) DeleteAccountsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	ex := getExec(repo.db, exec)
	res, err := ex.ExecContext(ctx, `DELETE FROM account WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting accounts")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting accounts")
}

func (repo *accountRepository) CreateLearnerProfile(ctx context.Context, prof account.LearnerProfile, exec ...core.DBExecutor) (account.LearnerProfile, error) {
	ex := getExec(repo.db, exec)
	if prof.ID == "" {
		prof.ID = uuid.New().String()
	}
	q := `INSERT INTO learner_profile (id, account_id, date_of_birth, maintained_by, created_by_id) VALUES ($1, $2, $3, $4, $5)`
	_, err := ex.ExecContext(ctx, q, prof.ID, prof.AccountID, prof.DateOfBirth, prof.MaintainedBy, prof.CreatedByID)
	if err != nil {
		return account.LearnerProfile{}, wrapWriteErr(err, "creating learner profile")
	}
	return prof, nil
}

func (repo *accountRepository) GetLearnerProfile(ctx context.Context, accountID string, exec ...core.DBExecutor) (account.LearnerProfile, error) {
	ex := getExec(repo.db, exec)
	var row learnerProfileRow
	q := `SELECT id, account_id, date_of_birth, maintained_by, created_by_id FROM learner_profile WHERE account_id = $1`
	if err := ex.GetContext(ctx, &row, q, accountID); err != nil {
		if isNoRows(err) {
			return account.LearnerProfile{}, account.ErrNotFound
		}
		return account.LearnerProfile{}, errors.Wrap(err, "getting learner profile")
	}
	return row.toProfile(), nil
}

func (repo *accountRepository) DeleteLearnerProfile(ctx context.Context, accountID string, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	_, err := ex.ExecContext(ctx, `DELETE FROM learner_profile WHERE account_id = $1`, accountID)
	return errors.Wrap(err, "deleting learner profile")
}

func (repo *accountRepository) CreateTeacherProfile(ctx context.Context, prof account.TeacherProfile, exec ...core.DBExecutor) (account.TeacherProfile, error) {
	ex := getExec(repo.db, exec)
	if prof.ID == "" {
		prof.ID = uuid.New().String()
	}
	q := `INSERT INTO teacher_profile (id, account_id, school) VALUES ($1, $2, $3)`
	if _, err := ex.ExecContext(ctx, q, prof.ID, prof.AccountID, prof.School); err != nil {
		return account.TeacherProfile{}, wrapWriteErr(err, "creating teacher profile")
	}
	return prof, nil
}

func (repo *accountRepository) GetTeacherProfile(ctx context.Context, accountID string, exec ...core.DBExecutor) (account.TeacherProfile, error) {
	ex := getExec(repo.db, exec)
	var row teacherProfileRow
	q := `SELECT id, account_id, school FROM teacher_profile WHERE account_id = $1`
	if err := ex.GetContext(ctx, &row, q, accountID); err != nil {
		if isNoRows(err) {
			return account.TeacherProfile{}, account.ErrNotFound
		}
		return account.TeacherProfile{}, errors.Wrap(err, "getting teacher profile")
	}
	return account.TeacherProfile{ID: row.ID, AccountID: row.AccountID, School: row.School}, nil
}

func (repo *accountRepository) CreateGuardianProfile(ctx context.Context, prof account.GuardianProfile, exec ...core.DBExecutor) (account.GuardianProfile, error) {
	ex := getExec(repo.db, exec)
	if prof.ID == "" {
		prof.ID = uuid.New().String()
	}
	q := `INSERT INTO guardian_profile (id, account_id) VALUES ($1, $2)`
	if _, err := ex.ExecContext(ctx, q, prof.ID, prof.AccountID); err != nil {
		return account.GuardianProfile{}, wrapWriteErr(err, "creating guardian profile")
	}
	return prof, nil
}

func (repo *accountRepository) GetGuardianProfile(ctx context.Context, accountID string, exec ...core.DBExecutor) (account.GuardianProfile, error) {
	ex := getExec(repo.db, exec)
	var row guardianProfileRow
	q := `SELECT id, account_id FROM guardian_profile WHERE account_id = $1`
	if err := ex.GetContext(ctx, &row, q, accountID); err != nil {
		if isNoRows(err) {
			return account.GuardianProfile{}, account.ErrNotFound
		}
		return account.GuardianProfile{}, errors.Wrap(err, "getting guardian profile")
	}
	return account.GuardianProfile{ID: row.ID, AccountID: row.AccountID}, nil
}
