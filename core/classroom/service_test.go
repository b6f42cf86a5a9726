package classroom_test

import (
	"context"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
	"github.com/basantashrestha/seepalaya/core/classroom"
	"github.com/basantashrestha/seepalaya/core/delegation"
	emailsvc "github.com/basantashrestha/seepalaya/services/email"
	inmemdb "github.com/basantashrestha/seepalaya/storage/database/inmem"
	sqlxrepos "github.com/basantashrestha/seepalaya/storage/database/sqlx"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type testEnv struct {
	svc      classroom.Service
	acctSvc  account.Service
	delegSvc delegation.Service
	rooms    classroom.Repository
	conf     *core.Config
}

func setup(t *testing.T) testEnv {
	t.Helper()

	conf := &core.Config{
		Env:                      "TEST",
		AppName:                  "Seepalaya",
		TestMode:                 true,
		SecretKey:                []byte("secret"),
		FrontendBaseURL:          "http://localhost:3000",
		DefaultFromEmail:         mail.Address{Name: "Seepalaya", Address: "noreply@localhost"},
		DefaultAccountDomain:     "seepalaya.org",
		EmailConfirmationTimeout: 5 * time.Minute,
		PasswordResetTimeout:     3 * 24 * time.Hour,
		BatchWorkers:             4,
	}
	db := inmemdb.NewDB()
	acctRepo := inmemdb.NewAccountRepository(db)
	tokens := inmemdb.NewTokenRepository(db)
	delegs := inmemdb.NewDelegationRepository(db)
	rooms := inmemdb.NewClassroomRepository(db)

	validate, trans := core.NewValidator()
	account.RegisterValidators(validate, trans)

	acctSvc := account.NewServiceMock(db, acctRepo, tokens,
		sqlxrepos.NewRosterWriter(delegs, rooms), emailsvc.NewConsoleServiceMock(conf), conf, validate)
	delegSvc := delegation.NewService(db, delegs, acctSvc, acctRepo, core.NopLogger{}, conf, validate)
	svc := classroom.NewService(db, rooms, delegSvc, delegs, acctRepo, core.NopLogger{}, conf, validate)
	return testEnv{svc: svc, acctSvc: acctSvc, delegSvc: delegSvc, rooms: rooms, conf: conf}
}

func register(t *testing.T, env testEnv, name, email, role string) account.Account {
	t.Helper()

	acct, err := env.acctSvc.Register(context.Background(), account.NewAccount{
		Name:            name,
		Email:           email,
		Password:        "v3ry secure",
		PasswordConfirm: "v3ry secure",
		Role:            role,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return acct
}

func createStudent(t *testing.T, env testEnv, teacher account.Account, name, username string) account.Account {
	t.Helper()

	student, err := env.delegSvc.CreateStudent(context.Background(), teacher, delegation.NewStudent{
		Name: name, Username: username, Password: "letmein", PasswordConfirm: "letmein",
	})
	if err != nil {
		t.Fatalf("CreateStudent() error = %v", err)
	}
	return student
}

func TestServiceCreate(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	teacher := register(t, env, "Alice Teacher", "alice@school.org", account.RoleTeacher)

	t.Run("only teachers may create classrooms", func(t *testing.T) {
		guardian := register(t, env, "Pat Jones", "pat@family.net", account.RoleGuardian)
		_, err := env.svc.Create(ctx, guardian, classroom.NewClassroom{Title: "Grade Five"})
		if !core.IsAuthorizationError(err) {
			t.Errorf("Create() error = %v, want authorization error", err)
		}
	})

	t.Run("title too short", func(t *testing.T) {
		_, err := env.svc.Create(ctx, teacher, classroom.NewClassroom{Title: "5A"})
		if !core.IsValidationError(err) {
			t.Errorf("Create() error = %v, want validation error", err)
		}
	})

	t.Run("happy path allocates a share code", func(t *testing.T) {
		room, err := env.svc.Create(ctx, teacher, classroom.NewClassroom{Title: "Grade Five"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if len(room.Code) != 10 {
			t.Errorf("Code = %q, want 10 characters", room.Code)
		}
		for _, char := range room.Code {
			if !strings.ContainsRune(codeAlphabet, char) {
				t.Errorf("Code %q contains %q outside the share-code alphabet", room.Code, char)
			}
		}
		if room.TeacherID.String != teacher.ID {
			t.Errorf("TeacherID = %q, want %q", room.TeacherID.String, teacher.ID)
		}

		got, err := env.svc.GetByCode(ctx, room.Code)
		if err != nil || got.ID != room.ID {
			t.Errorf("GetByCode() = %v, %v; want the classroom", got, err)
		}
		list, err := env.svc.Classrooms(ctx, teacher)
		if err != nil || len(list) != 1 {
			t.Errorf("Classrooms() = %v, %v; want one classroom", list, err)
		}
	})
}

func TestServiceRenameAndDelete(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	teacher := register(t, env, "Alice Teacher", "alice@school.org", account.RoleTeacher)
	other := register(t, env, "Tracy Other", "tracy@school.org", account.RoleTeacher)
	room, err := env.svc.Create(ctx, teacher, classroom.NewClassroom{Title: "Grade Five"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("only the owner may rename", func(t *testing.T) {
		_, err := env.svc.Rename(ctx, other, room.ID, classroom.UpdateClassroom{Title: "Grade Five B"})
		if !core.IsAuthorizationError(err) {
			t.Errorf("Rename() error = %v, want authorization error", err)
		}
	})

	t.Run("rename", func(t *testing.T) {
		got, err := env.svc.Rename(ctx, teacher, room.ID, classroom.UpdateClassroom{Title: "Grade Five B"})
		if err != nil {
			t.Fatalf("Rename() error = %v", err)
		}
		if got.Title != "Grade Five B" {
			t.Errorf("Title = %q, want %q", got.Title, "Grade Five B")
		}
		if got.Code != room.Code {
			t.Error("rename must not change the share code")
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := env.svc.Delete(ctx, teacher, room.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := env.svc.Get(ctx, room.ID); errors.Cause(err) != classroom.ErrNotFound {
			t.Errorf("Get() error = %v, want not found", err)
		}
	})
}

func TestServiceMembers(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	teacher := register(t, env, "Alice Teacher", "alice@school.org", account.RoleTeacher)
	other := register(t, env, "Tracy Other", "tracy@school.org", account.RoleTeacher)
	room, err := env.svc.Create(ctx, teacher, classroom.NewClassroom{Title: "Grade Five"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	bea := createStudent(t, env, teacher, "Bea Learner", "bealearner")
	cal := createStudent(t, env, teacher, "Cal Learner", "callearner")
	stranger := createStudent(t, env, other, "Dee Learner", "deelearner")

	t.Run("enrolling another teacher's student fails whole batch", func(t *testing.T) {
		err := env.svc.AddMembers(ctx, teacher, room.ID, []string{bea.ID, stranger.ID})
		if !core.IsAuthorizationError(err) {
			t.Fatalf("AddMembers() error = %v, want authorization error", err)
		}
	})

	t.Run("enroll and re-enroll", func(t *testing.T) {
		if err := env.svc.AddMembers(ctx, teacher, room.ID, []string{bea.ID, cal.ID}); err != nil {
			t.Fatalf("AddMembers() error = %v", err)
		}
		// re-adding is a no-op
		if err := env.svc.AddMembers(ctx, teacher, room.ID, []string{bea.ID}); err != nil {
			t.Fatalf("AddMembers() re-add error = %v", err)
		}

		members, err := env.svc.Members(ctx, teacher, room.ID)
		if err != nil {
			t.Fatalf("Members() error = %v", err)
		}
		if len(members) != 2 {
			t.Fatalf("Members() = %d accounts, want 2", len(members))
		}
		// sorted by username
		if members[0].Username != "bealearner" || members[1].Username != "callearner" {
			t.Errorf("Members() order = %q, %q", members[0].Username, members[1].Username)
		}
	})

	t.Run("unenroll keeps the account", func(t *testing.T) {
		if err := env.svc.RemoveMembers(ctx, teacher, room.ID, []string{cal.ID}); err != nil {
			t.Fatalf("RemoveMembers() error = %v", err)
		}
		members, err := env.svc.Members(ctx, teacher, room.ID)
		if err != nil || len(members) != 1 {
			t.Fatalf("Members() = %v, %v; want one member", members, err)
		}
		if _, err = env.acctSvc.GetByID(ctx, cal.ID); err != nil {
			t.Errorf("GetByID() error = %v, account must survive unenrollment", err)
		}
	})

	t.Run("only the owner may list members", func(t *testing.T) {
		if _, err := env.svc.Members(ctx, other, room.ID); !core.IsAuthorizationError(err) {
			t.Errorf("Members() error = %v, want authorization error", err)
		}
	})
}

func TestServiceCreateStudents(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	teacher := register(t, env, "Alice Teacher", "alice@school.org", account.RoleTeacher)
	room, err := env.svc.Create(ctx, teacher, classroom.NewClassroom{Title: "Grade Five"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	created, failures := env.svc.CreateStudents(ctx, teacher, room.ID, []string{"Bea Learner", "Cal Learner"})
	if len(failures) != 0 {
		t.Fatalf("failures = %+v, want none", failures)
	}
	if len(created) != 2 {
		t.Fatalf("created = %d students, want 2", len(created))
	}
	members, err := env.svc.Members(ctx, teacher, room.ID)
	if err != nil || len(members) != 2 {
		t.Errorf("Members() = %v, %v; want both students enrolled", members, err)
	}

	t.Run("ownership is checked first", func(t *testing.T) {
		other := register(t, env, "Tracy Other", "tracy@school.org", account.RoleTeacher)
		created, failures := env.svc.CreateStudents(ctx, other, room.ID, []string{"Dee Learner"})
		if len(created) != 0 || len(failures) != 1 || !core.IsAuthorizationError(failures[0].Err) {
			t.Errorf("CreateStudents() = %v, %v; want a single authorization failure", created, failures)
		}
	})
}

func TestServiceJoinByCode(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	teacher := register(t, env, "Alice Teacher", "alice@school.org", account.RoleTeacher)
	room, err := env.svc.Create(ctx, teacher, classroom.NewClassroom{Title: "Grade Five"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	learner := register(t, env, "Lena Learner", "lena@school.org", account.RoleLearner)

	t.Run("non-learners are refused", func(t *testing.T) {
		if _, err := env.svc.JoinByCode(ctx, teacher, room.Code); !core.IsAuthorizationError(err) {
			t.Errorf("JoinByCode() error = %v, want authorization error", err)
		}
	})

	t.Run("unverified learners are refused", func(t *testing.T) {
		if _, err := env.svc.JoinByCode(ctx, learner, room.Code); !core.IsAuthorizationError(err) {
			t.Errorf("JoinByCode() error = %v, want authorization error", err)
		}
	})

	// verify the learner
	tok, err := env.acctSvc.IssueVerification(ctx, learner, "")
	if err != nil {
		t.Fatalf("IssueVerification() error = %v", err)
	}
	learner, err = env.acctSvc.Verify(ctx, learner, tok.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	t.Run("unknown code", func(t *testing.T) {
		if _, err := env.svc.JoinByCode(ctx, learner, "NOPE123456"); errors.Cause(err) != classroom.ErrNotFound {
			t.Errorf("JoinByCode() error = %v, want not found", err)
		}
	})

	t.Run("join and re-join", func(t *testing.T) {
		got, err := env.svc.JoinByCode(ctx, learner, room.Code)
		if err != nil {
			t.Fatalf("JoinByCode() error = %v", err)
		}
		if got.ID != room.ID {
			t.Errorf("JoinByCode() = %q, want classroom %q", got.ID, room.ID)
		}
		if _, err = env.svc.JoinByCode(ctx, learner, room.Code); !core.IsConflictError(err) {
			t.Errorf("JoinByCode() error = %v, want conflict on re-join", err)
		}
	})
}
