package delegation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
)

var (
	// errors
	ErrNotADelegate   = errors.New("account cannot manage delegated accounts")
	ErrNotDelegatedTo = errors.New("account is not delegated to this delegate")
	ErrNotModifiable  = errors.New("account is not maintained by this delegate")
)

type (
	// Repository persists the delegate/delegated edges and answers roster
	// queries. CreateEdge doubles as the roster hook used during
	// provisioning, in the same transaction as the account itself.
	Repository interface {
		CreateEdge(ctx context.Context, edge account.DelegationEdge, exec ...core.DBExecutor) error
		RemoveEdge(ctx context.Context, delegateID, delegatedID string, exec ...core.DBExecutor) error
		EdgeExists(ctx context.Context, delegateID, delegatedID string, exec ...core.DBExecutor) (bool, error)
		// QueryDelegated returns the accounts delegated to delegateID,
		// newest first.
		QueryDelegated(ctx context.Context, delegateID string, exec ...core.DBExecutor) ([]account.Account, error)
	}

	Service interface {
		CreateChild(ctx context.Context, guardian account.Account, nc NewChild) (account.Account, error)
		CreateStudent(ctx context.Context, teacher account.Account, ns NewStudent) (account.Account, error)
		// BatchCreateStudents provisions one learner per name with generated
		// credentials, optionally enrolling each into classroomID.
		BatchCreateStudents(ctx context.Context, teacher account.Account, names []string, classroomID string) ([]CreatedStudent, []account.SeedFailure)

		Children(ctx context.Context, guardian account.Account) ([]account.Account, error)
		Students(ctx context.Context, teacher account.Account) ([]account.Account, error)

		Modify(ctx context.Context, delegate account.Account, delegatedID string, upd UpdateDelegated) (account.Account, error)
		Delete(ctx context.Context, delegate account.Account, delegatedID string) error
	}

	service struct {
		db       core.DB
		repo     Repository
		acctSvc  account.Service
		acctRepo account.Repository
		logger   core.Logger
		conf     *core.Config
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	acctSvc account.Service,
	acctRepo account.Repository,
	logger core.Logger,
	conf *core.Config,
	validate *validator.Validate,
) Service {
	return &service{
		db:       db,
		repo:     repo,
		acctSvc:  acctSvc,
		acctRepo: acctRepo,
		logger:   logger,
		conf:     conf,
		validate: validate,
	}
}

// relationFor maps a delegate's role to the maintainer relation it creates.
func relationFor(delegate account.Account) (account.Maintainer, error) {
	switch {
	case delegate.IsGuardian():
		return account.MaintainedByGuardian, nil
	case delegate.IsTeacher():
		return account.MaintainedByTeacher, nil
	}
	return "", core.NewAuthorizationError(ErrNotADelegate)
}

func (svc *service) CreateChild(ctx context.Context, guardian account.Account, nc NewChild) (account.Account, error) {
	if !guardian.IsGuardian() {
		return account.Account{}, core.NewAuthorizationError(ErrNotADelegate)
	}
	if err := nc.Validate(svc.validate); err != nil {
		return account.Account{}, err
	}
	na := account.NewAccount{
		Name:            nc.Name,
		Username:        nc.Username,
		Password:        nc.PIN,
		PasswordConfirm: nc.PINConfirm,
		Role:            account.RoleLearner,
		BypassPolicy:    true, // PIN policy already enforced above
		Maintainer:      account.MaintainedByGuardian,
		Delegate:        &guardian,
		DateOfBirth:     nc.DateOfBirth,
	}
	return svc.acctSvc.Register(ctx, na)
}

func (svc *service) CreateStudent(ctx context.Context, teacher account.Account, ns NewStudent) (account.Account, error) {
	if !teacher.IsTeacher() {
		return account.Account{}, core.NewAuthorizationError(ErrNotADelegate)
	}
	if err := ns.Validate(svc.validate); err != nil {
		return account.Account{}, err
	}
	na := account.NewAccount{
		Name:            ns.Name,
		Username:        ns.Username,
		Password:        ns.Password,
		PasswordConfirm: ns.PasswordConfirm,
		Role:            account.RoleLearner,
		BypassPolicy:    true,
		Maintainer:      account.MaintainedByTeacher,
		Delegate:        &teacher,
	}
	return svc.acctSvc.Register(ctx, na)
}

func (svc *service) BatchCreateStudents(ctx context.Context, teacher account.Account, names []string, classroomID string) ([]CreatedStudent, []account.SeedFailure) {
	if !teacher.IsTeacher() {
		return nil, []account.SeedFailure{{Err: core.NewAuthorizationError(ErrNotADelegate)}}
	}

	// passwords are correlated back to results via the seed tag; the index
	// prefix keeps duplicate names apart
	passwords := make(map[string]string, len(names))
	seeds := make([]account.NewAccount, 0, len(names))
	for i, name := range names {
		pwd := account.RandomPassword()
		seed := fmt.Sprintf("%d:%s", i, strings.TrimSpace(name))
		passwords[seed] = pwd
		seeds = append(seeds, account.NewAccount{
			Name:            strings.TrimSpace(name),
			Password:        pwd,
			PasswordConfirm: pwd,
			Role:            account.RoleLearner,
			BypassPolicy:    true,
			Maintainer:      account.MaintainedByTeacher,
			Delegate:        &teacher,
			ContactDomain:   svc.conf.DefaultAccountDomain,
			ClassroomID:     classroomID,
			Seed:            seed,
		})
	}

	res := svc.acctSvc.BatchRegister(ctx, seeds)

	created := make([]CreatedStudent, 0, len(res.Created))
	for _, sr := range res.Created {
		created = append(created, CreatedStudent{Account: sr.Account, Password: passwords[sr.Seed]})
	}
	return created, res.Failures
}

func (svc *service) Children(ctx context.Context, guardian account.Account) ([]account.Account, error) {
	if !guardian.IsGuardian() {
		return nil, core.NewAuthorizationError(ErrNotADelegate)
	}
	return svc.repo.QueryDelegated(ctx, guardian.ID)
}

func (svc *service) Students(ctx context.Context, teacher account.Account) ([]account.Account, error) {
	if !teacher.IsTeacher() {
		return nil, core.NewAuthorizationError(ErrNotADelegate)
	}
	return svc.repo.QueryDelegated(ctx, teacher.ID)
}

// authorize loads the delegated account and checks every mutation guard in
// order: existence, delegate role, edge, then maintainer relation.
func (svc *service) authorize(ctx context.Context, delegate account.Account, delegatedID string) (account.Account, account.LearnerProfile, error) {
	acct, err := svc.acctRepo.GetAccount(ctx, account.GetFilter{ID: delegatedID})
	if err != nil {
		return account.Account{}, account.LearnerProfile{}, err
	}

	relation, err := relationFor(delegate)
	if err != nil {
		return account.Account{}, account.LearnerProfile{}, err
	}

	ok, err := svc.repo.EdgeExists(ctx, delegate.ID, acct.ID)
	if err != nil {
		return account.Account{}, account.LearnerProfile{}, err
	}
	if !ok {
		return account.Account{}, account.LearnerProfile{}, core.NewAuthorizationError(ErrNotDelegatedTo)
	}

	prof, err := svc.acctRepo.GetLearnerProfile(ctx, acct.ID)
	if err != nil {
		return account.Account{}, account.LearnerProfile{}, err
	}
	if prof.MaintainedBy != relation {
		return account.Account{}, account.LearnerProfile{}, core.NewAuthorizationError(ErrNotModifiable)
	}
	return acct, prof, nil
}

func (svc *service) Modify(ctx context.Context, delegate account.Account, delegatedID string, upd UpdateDelegated) (account.Account, error) {
	acct, prof, err := svc.authorize(ctx, delegate, delegatedID)
	if err != nil {
		return account.Account{}, err
	}
	if err = upd.Validate(svc.validate, prof.MaintainedBy); err != nil {
		return account.Account{}, err
	}
	if upd.IsEmpty() {
		return acct, nil
	}

	if upd.Name != "" {
		acct.Name = upd.Name
	}
	if upd.Username != "" && upd.Username != acct.Username {
		err = svc.acctRepo.CheckUniqueness(ctx, upd.Username, "", []account.Account{acct})
		if err != nil {
			if errors.Cause(err) == account.ErrUsernameExists {
				return account.Account{}, core.NewConflictError(err, "username")
			}
			return account.Account{}, err
		}
		acct.Username = upd.Username
	}
	if upd.Secret != "" {
		if err = acct.SetPassword(upd.Secret); err != nil {
			return account.Account{}, errors.Wrap(err, "hashing password")
		}
	}
	acct.UpdatedAt = time.Now().UTC()
	return svc.acctRepo.UpdateAccount(ctx, acct)
}

// Delete removes a delegated account entirely: edge, learner extension and
// account go in one transaction.
func (svc *service) Delete(ctx context.Context, delegate account.Account, delegatedID string) error {
	acct, _, err := svc.authorize(ctx, delegate, delegatedID)
	if err != nil {
		return err
	}
	return core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		if err := svc.repo.RemoveEdge(ctx, delegate.ID, acct.ID, tx); err != nil {
			return err
		}
		if err := svc.acctRepo.DeleteLearnerProfile(ctx, acct.ID, tx); err != nil {
			return err
		}
		n, err := svc.acctRepo.DeleteAccountsByID(ctx, []string{acct.ID}, tx)
		if err != nil {
			return err
		}
		if n == 0 {
			// lost a delete race after authorizing
			return account.ErrNotFound
		}
		return nil
	})
}
