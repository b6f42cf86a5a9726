package classroom

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
	"github.com/basantashrestha/seepalaya/core/delegation"
)

var (
	// errors
	ErrNotFound           = errors.New("classroom not found")
	ErrNotATeacher        = errors.New("account cannot manage classrooms")
	ErrNotOwner           = errors.New("classroom belongs to another teacher")
	ErrNotALearner        = errors.New("only learner accounts can join classrooms")
	ErrNotVerified        = errors.New("account must be verified to join a classroom")
	ErrAlreadyMember      = errors.New("account is already a member of this classroom")
	ErrNotATeacherStudent = errors.New("account is not a student of this teacher")

	createRetries = 3
)

type (
	Repository interface {
		CreateClassroom(ctx context.Context, room Classroom, exec ...core.DBExecutor) (Classroom, error)
		GetClassroom(ctx context.Context, id string, exec ...core.DBExecutor) (Classroom, error)
		GetClassroomByCode(ctx context.Context, code string, exec ...core.DBExecutor) (Classroom, error)
		QueryTeacherClassrooms(ctx context.Context, teacherID string, exec ...core.DBExecutor) ([]Classroom, error)
		UpdateClassroom(ctx context.Context, room Classroom, exec ...core.DBExecutor) (Classroom, error)
		DeleteClassroom(ctx context.Context, id string, exec ...core.DBExecutor) error

		CodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error)

		AddMember(ctx context.Context, classroomID, accountID string, exec ...core.DBExecutor) error
		RemoveMember(ctx context.Context, classroomID, accountID string, exec ...core.DBExecutor) error
		IsMember(ctx context.Context, classroomID, accountID string, exec ...core.DBExecutor) (bool, error)
		QueryMembers(ctx context.Context, classroomID string, exec ...core.DBExecutor) ([]account.Account, error)
	}

	Service interface {
		Create(ctx context.Context, teacher account.Account, nc NewClassroom) (Classroom, error)
		Get(ctx context.Context, id string) (Classroom, error)
		GetByCode(ctx context.Context, code string) (Classroom, error)
		Classrooms(ctx context.Context, teacher account.Account) ([]Classroom, error)
		Rename(ctx context.Context, teacher account.Account, classroomID string, uc UpdateClassroom) (Classroom, error)
		Delete(ctx context.Context, teacher account.Account, classroomID string) error

		// AddMembers enrolls existing students of teacher; re-adding a member
		// is a no-op. RemoveMembers unenrolls without touching the accounts.
		AddMembers(ctx context.Context, teacher account.Account, classroomID string, accountIDs []string) error
		RemoveMembers(ctx context.Context, teacher account.Account, classroomID string, accountIDs []string) error
		Members(ctx context.Context, teacher account.Account, classroomID string) ([]account.Account, error)

		// CreateStudents bulk-provisions learner accounts and enrolls each
		// into the classroom as part of its own creation transaction.
		CreateStudents(ctx context.Context, teacher account.Account, classroomID string, names []string) ([]delegation.CreatedStudent, []account.SeedFailure)

		// JoinByCode enrolls a verified learner via the classroom share code.
		JoinByCode(ctx context.Context, learner account.Account, code string) (Classroom, error)
	}

	service struct {
		db       core.DB
		repo     Repository
		delegSvc delegation.Service
		delegs   delegation.Repository
		alloc    *account.Allocator
		logger   core.Logger
		conf     *core.Config
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	delegSvc delegation.Service,
	delegs delegation.Repository,
	acctRepo account.Repository,
	logger core.Logger,
	conf *core.Config,
	validate *validator.Validate,
) Service {
	return &service{
		db:       db,
		repo:     repo,
		delegSvc: delegSvc,
		delegs:   delegs,
		alloc:    account.NewAllocator(acctRepo),
		logger:   logger,
		conf:     conf,
		validate: validate,
	}
}

// Create provisions a classroom with a fresh share code; a code collision at
// commit time re-runs the allocation.
func (svc *service) Create(ctx context.Context, teacher account.Account, nc NewClassroom) (Classroom, error) {
	if !teacher.IsTeacher() {
		return Classroom{}, core.NewAuthorizationError(ErrNotATeacher)
	}
	if err := nc.Validate(svc.validate); err != nil {
		return Classroom{}, err
	}

	var room Classroom
	err := core.RetryUnique(createRetries, func() error {
		code, err := svc.alloc.JoinCode(ctx, func(ctx context.Context, code string) (bool, error) {
			return svc.repo.CodeExists(ctx, code)
		})
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		room, err = svc.repo.CreateClassroom(ctx, Classroom{
			Title:     nc.Title,
			Code:      code,
			TeacherID: nullString(teacher.ID),
			CreatedAt: now,
			UpdatedAt: now,
		})
		return err
	})
	return room, err
}

func (svc *service) Get(ctx context.Context, id string) (Classroom, error) {
	return svc.repo.GetClassroom(ctx, id)
}

func (svc *service) GetByCode(ctx context.Context, code string) (Classroom, error) {
	return svc.repo.GetClassroomByCode(ctx, core.CleanString(code))
}

func (svc *service) Classrooms(ctx context.Context, teacher account.Account) ([]Classroom, error) {
	if !teacher.IsTeacher() {
		return nil, core.NewAuthorizationError(ErrNotATeacher)
	}
	return svc.repo.QueryTeacherClassrooms(ctx, teacher.ID)
}

// owned loads the classroom and checks the teacher owns it.
func (svc *service) owned(ctx context.Context, teacher account.Account, classroomID string) (Classroom, error) {
	if !teacher.IsTeacher() {
		return Classroom{}, core.NewAuthorizationError(ErrNotATeacher)
	}
	room, err := svc.repo.GetClassroom(ctx, classroomID)
	if err != nil {
		return Classroom{}, err
	}
	if room.TeacherID.String != teacher.ID {
		return Classroom{}, core.NewAuthorizationError(ErrNotOwner)
	}
	return room, nil
}

func (svc *service) Rename(ctx context.Context, teacher account.Account, classroomID string, uc UpdateClassroom) (Classroom, error) {
	room, err := svc.owned(ctx, teacher, classroomID)
	if err != nil {
		return Classroom{}, err
	}
	if err = uc.Validate(svc.validate); err != nil {
		return Classroom{}, err
	}
	room.Title = uc.Title
	room.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateClassroom(ctx, room)
}

// Delete removes the classroom and its memberships; member accounts survive.
func (svc *service) Delete(ctx context.Context, teacher account.Account, classroomID string) error {
	room, err := svc.owned(ctx, teacher, classroomID)
	if err != nil {
		return err
	}
	return svc.repo.DeleteClassroom(ctx, room.ID)
}

func (svc *service) AddMembers(ctx context.Context, teacher account.Account, classroomID string, accountIDs []string) error {
	room, err := svc.owned(ctx, teacher, classroomID)
	if err != nil {
		return err
	}
	// all or nothing: one bad ID rolls back the whole enrollment
	return core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		for _, id := range accountIDs {
			ok, err := svc.delegs.EdgeExists(ctx, teacher.ID, id, tx)
			if err != nil {
				return err
			}
			if !ok {
				return core.NewAuthorizationError(errors.Wrapf(ErrNotATeacherStudent, "account %s", id))
			}
			member, err := svc.repo.IsMember(ctx, room.ID, id, tx)
			if err != nil {
				return err
			}
			if member {
				continue
			}
			if err = svc.repo.AddMember(ctx, room.ID, id, tx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (svc *service) RemoveMembers(ctx context.Context, teacher account.Account, classroomID string, accountIDs []string) error {
	room, err := svc.owned(ctx, teacher, classroomID)
	if err != nil {
		return err
	}
	return core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		for _, id := range accountIDs {
			if err := svc.repo.RemoveMember(ctx, room.ID, id, tx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (svc *service) Members(ctx context.Context, teacher account.Account, classroomID string) ([]account.Account, error) {
	room, err := svc.owned(ctx, teacher, classroomID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryMembers(ctx, room.ID)
}

func (svc *service) CreateStudents(ctx context.Context, teacher account.Account, classroomID string, names []string) ([]delegation.CreatedStudent, []account.SeedFailure) {
	if _, err := svc.owned(ctx, teacher, classroomID); err != nil {
		return nil, []account.SeedFailure{{Err: err}}
	}
	return svc.delegSvc.BatchCreateStudents(ctx, teacher, names, classroomID)
}

func (svc *service) JoinByCode(ctx context.Context, learner account.Account, code string) (Classroom, error) {
	if !learner.IsLearner() {
		return Classroom{}, core.NewAuthorizationError(ErrNotALearner)
	}
	if !learner.IsVerified {
		return Classroom{}, core.NewAuthorizationError(ErrNotVerified)
	}
	room, err := svc.GetByCode(ctx, code)
	if err != nil {
		return Classroom{}, err
	}
	member, err := svc.repo.IsMember(ctx, room.ID, learner.ID)
	if err != nil {
		return Classroom{}, err
	}
	if member {
		return Classroom{}, core.NewConflictError(ErrAlreadyMember, "account_id")
	}
	if err = svc.repo.AddMember(ctx, room.ID, learner.ID); err != nil {
		return Classroom{}, err
	}
	return room, nil
}

func nullString(s string) null.String { return null.NewString(s, s != "") }
