package account

import (
	"context"
	"net/mail"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/sync/errgroup"

	"github.com/basantashrestha/seepalaya/core"
)

var (
	// errors
	ErrNotFound         = errors.New("account not found")
	ErrEmailExists      = errors.New("an account with this email already exists")
	ErrUsernameExists   = errors.New("an account with this username already exists")
	ErrInvalidPassword  = errors.New("invalid credentials")
	ErrWeakPassword     = errors.New("password does not meet the policy")
	ErrWeakPIN          = errors.New("pin does not meet the policy")
	ErrAlreadyVerified  = errors.New("account is already verified")
	ErrNoContactAddress = errors.New("account has no email address")

	// registerRetries bounds re-allocation after a commit-time uniqueness
	// race; the allocator pre-check makes more than one loop rare.
	registerRetries = 3
)

type (
	GetFilter struct {
		ID              string
		Username        string
		Email           string
		UsernameOrEmail string
	}

	// Repository is the account directory: the single source of truth for
	// accounts, their role tags and their role extensions.
	Repository interface {
		HandleDirectory

		CheckUniqueness(ctx context.Context, username, email string, excluded []Account, exec ...core.DBExecutor) error
		CreateAccount(ctx context.Context, acct Account, exec ...core.DBExecutor) (Account, error)
		GetAccount(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Account, error)
		// QueryAccounts applies AND on available QueryFilter fields;
		// QueryFilter.Search matches name, username or email case-insensitively.
		QueryAccounts(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Account, error)
		UpdateAccount(ctx context.Context, acct Account, exec ...core.DBExecutor) (Account, error)
		DeleteAccountsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)

		CreateLearnerProfile(ctx context.Context, prof LearnerProfile, exec ...core.DBExecutor) (LearnerProfile, error)
		GetLearnerProfile(ctx context.Context, accountID string, exec ...core.DBExecutor) (LearnerProfile, error)
		DeleteLearnerProfile(ctx context.Context, accountID string, exec ...core.DBExecutor) error
		CreateTeacherProfile(ctx context.Context, prof TeacherProfile, exec ...core.DBExecutor) (TeacherProfile, error)
		GetTeacherProfile(ctx context.Context, accountID string, exec ...core.DBExecutor) (TeacherProfile, error)
		CreateGuardianProfile(ctx context.Context, prof GuardianProfile, exec ...core.DBExecutor) (GuardianProfile, error)
		GetGuardianProfile(ctx context.Context, accountID string, exec ...core.DBExecutor) (GuardianProfile, error)
	}

	// RosterWriter wires a freshly provisioned delegated account into its
	// delegator's roster within the same transaction as the creation.
	RosterWriter interface {
		CreateEdge(ctx context.Context, edge DelegationEdge, exec ...core.DBExecutor) error
		AddClassroomMember(ctx context.Context, classroomID, accountID string, exec ...core.DBExecutor) error
	}

	// SeedFailure tags one failed batch seed with its reason.
	SeedFailure struct {
		Seed string `json:"seed"`
		Err  error  `json:"error"`
	}

	// SeedResult tags one provisioned account with the seed it came from.
	SeedResult struct {
		Seed    string  `json:"seed"`
		Account Account `json:"account"`
	}

	// BatchResult aggregates a batch registration: every success and every
	// per-seed failure, each traceable to its input via the seed tag.
	BatchResult struct {
		Created  []SeedResult
		Failures []SeedFailure
	}

	Service interface {
		Register(ctx context.Context, na NewAccount, exec ...core.DBExecutor) (Account, error)
		BatchRegister(ctx context.Context, seeds []NewAccount) BatchResult

		GetByID(ctx context.Context, id string) (Account, error)
		GetByUsername(ctx context.Context, username string) (Account, error)
		GetByEmail(ctx context.Context, email string) (Account, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (Account, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Account, error)

		Authenticate(ctx context.Context, usernameOrEmail, password string) (Account, error)
		SetLastLogin(ctx context.Context, acct Account) (Account, error)
		ChangePassword(ctx context.Context, acct Account, oldPwd, newPwd, confirm string) (Account, error)
		ChangeProfilePicture(ctx context.Context, acct Account, pictureID string) (Account, error)

		IssueVerification(ctx context.Context, acct Account, email string) (VerificationToken, error)
		ResendVerification(ctx context.Context, acct Account, email string) (VerificationToken, error)
		Verify(ctx context.Context, acct Account, token string) (Account, error)

		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetPassword) error
	}

	service struct {
		db       core.DB
		repo     Repository
		tokens   TokenRepository
		roster   RosterWriter
		alloc    *Allocator
		mailSvc  core.EmailService
		logger   core.Logger
		conf     *core.Config
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	tokens TokenRepository,
	roster RosterWriter,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
	validate *validator.Validate,
) Service {
	initTokenGen(conf)
	return &service{
		db:       db,
		repo:     repo,
		tokens:   tokens,
		roster:   roster,
		alloc:    NewAllocator(repo),
		mailSvc:  mailSvc,
		logger:   logger,
		conf:     conf,
		validate: validate,
	}
}

func (svc *service) checkUniqueness(ctx context.Context, uname, email string, exclude []Account, exec ...core.DBExecutor) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, exclude, exec...); err != nil {
		switch errors.Cause(err) {
		case ErrUsernameExists:
			return core.NewConflictError(err, "username")
		case ErrEmailExists:
			return core.NewConflictError(err, "email")
		default:
			return err
		}
	}
	return nil
}

// Register provisions one account: input validation, identifier allocation,
// uniqueness checks, account + role extension + roster wiring, all in one
// transaction. When exec is given the caller owns the transaction (and its
// retry); otherwise Register opens its own and retries allocation on a
// commit-time uniqueness race.
func (svc *service) Register(ctx context.Context, na NewAccount, exec ...core.DBExecutor) (Account, error) {
	if err := na.Validate(svc.validate); err != nil {
		return Account{}, err
	}

	if len(exec) > 0 {
		return svc.register(ctx, na, exec[0])
	}

	var acct Account
	err := core.RetryUnique(registerRetries, func() error {
		return core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
			var err error
			acct, err = svc.register(ctx, na, tx)
			return err
		})
	})
	return acct, err
}

func (svc *service) register(ctx context.Context, na NewAccount, tx core.DBExecutor) (Account, error) {
	username := na.Username
	if username == "" {
		seed := na.Email
		if seed == "" {
			seed = na.Name
		}
		var err error
		if username, err = svc.alloc.Handle(ctx, seed, tx); err != nil {
			return Account{}, err
		}
	}

	email := na.Email
	if email == "" {
		domain := na.ContactDomain
		if domain == "" && na.Delegate != nil {
			domain = na.Delegate.EmailDomain()
		}
		var err error
		if email, err = svc.alloc.Contact(ctx, username, domain, tx); err != nil {
			return Account{}, err
		}
	}

	if err := svc.checkUniqueness(ctx, username, email, nil, tx); err != nil {
		return Account{}, err
	}

	now := time.Now().UTC()
	acct := Account{
		Name:       na.Name,
		Username:   username,
		Email:      email,
		IsVerified: na.BypassPolicy, // delegate-created accounts start pre-verified
		Roles:      []string{na.Role},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := acct.SetPassword(na.Password); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}

	acct, err := svc.repo.CreateAccount(ctx, acct, tx)
	if err != nil {
		return Account{}, err
	}

	// role extension
	switch na.Role {
	case RoleLearner:
		maintainer := na.Maintainer
		if maintainer == "" {
			maintainer = MaintainedByLearner
		}
		prof := LearnerProfile{
			AccountID:    acct.ID,
			DateOfBirth:  na.DateOfBirth,
			MaintainedBy: maintainer,
		}
		if na.Delegate != nil {
			prof.CreatedByID = null.StringFrom(na.Delegate.ID)
		}
		if _, err = svc.repo.CreateLearnerProfile(ctx, prof, tx); err != nil {
			return Account{}, err
		}
	case RoleTeacher:
		prof := TeacherProfile{AccountID: acct.ID, School: null.NewString(na.School, na.School != "")}
		if _, err = svc.repo.CreateTeacherProfile(ctx, prof, tx); err != nil {
			return Account{}, err
		}
	case RoleGuardian:
		if _, err = svc.repo.CreateGuardianProfile(ctx, GuardianProfile{AccountID: acct.ID}, tx); err != nil {
			return Account{}, err
		}
	}

	// roster wiring; committed or rolled back with the account itself
	if na.Delegate != nil {
		edge := DelegationEdge{
			DelegateID:  na.Delegate.ID,
			DelegatedID: acct.ID,
			Relation:    na.Maintainer,
		}
		if err = svc.roster.CreateEdge(ctx, edge, tx); err != nil {
			return Account{}, err
		}
	}
	if na.ClassroomID != "" {
		if err = svc.roster.AddClassroomMember(ctx, na.ClassroomID, acct.ID, tx); err != nil {
			return Account{}, err
		}
	}
	return acct, nil
}

// BatchRegister provisions seeds on a bounded worker pool, one independent
// transaction per seed: one seed's failure never rolls back another seed's
// success. Result order is not input order; outputs are traceable via the
// seed tag.
func (svc *service) BatchRegister(ctx context.Context, seeds []NewAccount) BatchResult {
	var (
		mu  sync.Mutex
		res BatchResult
	)

	workers := svc.conf.BatchWorkers
	if workers < 1 {
		workers = 1
	}
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, seed := range seeds {
		seed := seed
		g.Go(func() error {
			acct, err := svc.Register(ctx, seed)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				svc.logger.Warn("batch registration: seed "+seed.SeedTag()+" failed", err)
				res.Failures = append(res.Failures, SeedFailure{Seed: seed.SeedTag(), Err: err})
				return nil
			}
			res.Created = append(res.Created, SeedResult{Seed: seed.SeedTag(), Account: acct})
			return nil
		})
	}
	_ = g.Wait()
	return res
}

func (svc *service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUsername(ctx context.Context, username string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{Username: core.CleanString(username, true /* lower */)})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Account, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryAccounts(ctx, filter, ordering)
}

// Authenticate verifies credentials and records the login. A missing account
// and a wrong password are indistinguishable to the caller.
func (svc *service) Authenticate(ctx context.Context, usernameOrEmail, password string) (Account, error) {
	acct, err := svc.GetByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Account{}, core.NewValidationError(ErrInvalidPassword)
		}
		return Account{}, err
	}
	if err = acct.CheckPassword(password); err != nil {
		return Account{}, core.NewValidationError(ErrInvalidPassword)
	}
	return svc.SetLastLogin(ctx, acct)
}

func (svc *service) SetLastLogin(ctx context.Context, acct Account) (Account, error) {
	acct.LastLogin = time.Now().UTC()
	return svc.repo.UpdateAccount(ctx, acct)
}

func (svc *service) ChangePassword(ctx context.Context, acct Account, oldPwd, newPwd, confirm string) (Account, error) {
	if err := acct.CheckPassword(oldPwd); err != nil {
		return Account{}, core.NewValidationError(errors.New("old password is incorrect"),
			core.FieldError{Field: "old_password", Error: "old password is incorrect"})
	}
	if newPwd != confirm {
		return Account{}, core.NewValidationError(errors.New("password and confirm password fields do not match"),
			core.FieldError{Field: "password_confirm", Error: "password and confirm password fields do not match"})
	}
	if err := CheckPasswordPolicy(newPwd, acct); err != nil {
		return Account{}, err
	}
	if err := acct.SetPassword(newPwd); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}
	acct.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAccount(ctx, acct)
}

func (svc *service) ChangeProfilePicture(ctx context.Context, acct Account, pictureID string) (Account, error) {
	acct.ProfilePictureID = null.NewString(pictureID, pictureID != "")
	acct.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAccount(ctx, acct)
}

// RequestPasswordReset emails a reset link; the caller treats ErrNotFound as
// success to avoid leaking which addresses exist.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	acct, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	svc.sendPasswordResetMail(acct)
	return nil
}

func (svc *service) sendPasswordResetMail(acct Account) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{acct.Address()},
		Subject:      "Password Reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			Username string
			UID      string
			Token    string
		}{acct.Username, EncodeUID(acct), makeToken(acct)},
	})
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetPassword) error {
	if err := rp.Validate(svc.validate); err != nil {
		return err
	}
	id, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	acct, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(errInvalidToken)
		}
		return err
	}
	if err = verifyToken(acct, rp.Token); err != nil {
		return core.NewValidationError(err)
	}
	if err = CheckPasswordPolicy(rp.Password, acct); err != nil {
		return err
	}
	if err = acct.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	acct.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateAccount(ctx, acct)
	return err
}
