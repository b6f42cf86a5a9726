package account_test

import (
	"context"
	"fmt"
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

type testEnv struct {
	svc    account.Service
	repo   account.Repository
	tokens account.TokenRepository
	delegs delegation.Repository
	rooms  classroom.Repository
	conf   *core.Config
}

func testConfig() *core.Config {
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
	return conf
}

func setup(t *testing.T) testEnv {
	t.Helper()

	conf := testConfig()
	db := inmemdb.NewDB()
	repo := inmemdb.NewAccountRepository(db)
	tokens := inmemdb.NewTokenRepository(db)
	delegs := inmemdb.NewDelegationRepository(db)
	rooms := inmemdb.NewClassroomRepository(db)

	validate, trans := core.NewValidator()
	account.RegisterValidators(validate, trans)

	emailsvc.ClearSentMessages()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	svc := account.NewServiceMock(db, repo, tokens, sqlxrepos.NewRosterWriter(delegs, rooms), mailSvc, conf, validate)
	return testEnv{svc: svc, repo: repo, tokens: tokens, delegs: delegs, rooms: rooms, conf: conf}
}

func registerTeacher(t *testing.T, env testEnv, name, email string) account.Account {
	t.Helper()

	acct, err := env.svc.Register(context.Background(), account.NewAccount{
		Name:            name,
		Email:           email,
		Password:        "v3ry secure",
		PasswordConfirm: "v3ry secure",
		Role:            account.RoleTeacher,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return acct
}

func TestServiceRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("self registration derives handle from email", func(t *testing.T) {
		env := setup(t)

		acct := registerTeacher(t, env, "Jane Doe", "jane.doe@school.org")
		if acct.Username != "janedoe" {
			t.Errorf("Username = %q, want %q", acct.Username, "janedoe")
		}
		if acct.IsVerified {
			t.Error("self-registered accounts must not start verified")
		}
		if !acct.IsTeacher() {
			t.Errorf("Roles = %v, want teacher", acct.Roles)
		}
		if _, err := env.repo.GetTeacherProfile(ctx, acct.ID); err != nil {
			t.Errorf("GetTeacherProfile() error = %v", err)
		}
	})

	t.Run("weak password is rejected", func(t *testing.T) {
		env := setup(t)

		_, err := env.svc.Register(ctx, account.NewAccount{
			Name:            "Jane Doe",
			Email:           "jane@school.org",
			Password:        "nodigits",
			PasswordConfirm: "nodigits",
			Role:            account.RoleTeacher,
		})
		if !core.IsValidationError(err) {
			t.Fatalf("Register() error = %v, want validation error", err)
		}
	})

	t.Run("mismatched confirmation is rejected", func(t *testing.T) {
		env := setup(t)

		_, err := env.svc.Register(ctx, account.NewAccount{
			Name:            "Jane Doe",
			Email:           "jane@school.org",
			Password:        "v3ry secure",
			PasswordConfirm: "v3ry secured",
			Role:            account.RoleTeacher,
		})
		if !core.IsValidationError(err) {
			t.Fatalf("Register() error = %v, want validation error", err)
		}
	})

	t.Run("self registration requires an email", func(t *testing.T) {
		env := setup(t)

		_, err := env.svc.Register(ctx, account.NewAccount{
			Name:            "Jane Doe",
			Password:        "v3ry secure",
			PasswordConfirm: "v3ry secure",
			Role:            account.RoleTeacher,
		})
		if !core.IsValidationError(err) {
			t.Fatalf("Register() error = %v, want validation error", err)
		}
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		env := setup(t)

		registerTeacher(t, env, "Jane Doe", "jane.doe@school.org")
		_, err := env.svc.Register(ctx, account.NewAccount{
			Name:            "Other Jane",
			Username:        "otherjane",
			Email:           "Jane.Doe@School.org", // same address, different case
			Password:        "v3ry secure",
			PasswordConfirm: "v3ry secure",
			Role:            account.RoleTeacher,
		})
		if !core.IsConflictError(err) {
			t.Fatalf("Register() error = %v, want conflict", err)
		}
	})

	t.Run("contact conflict wins over handle conflict", func(t *testing.T) {
		env := setup(t)

		registerTeacher(t, env, "Jane Doe", "jane.doe@school.org")
		_, err := env.svc.Register(ctx, account.NewAccount{
			Name:            "Other Jane",
			Username:        "janedoe", // both taken; the email must be reported
			Email:           "jane.doe@school.org",
			Password:        "v3ry secure",
			PasswordConfirm: "v3ry secure",
			Role:            account.RoleTeacher,
		})
		conflict, ok := errors.Cause(err).(*core.ConflictError)
		if !ok {
			t.Fatalf("Register() error = %v, want conflict", err)
		}
		if conflict.Field != "email" {
			t.Errorf("conflict Field = %q, want %q", conflict.Field, "email")
		}
	})

	t.Run("delegated creation derives contact and wires the edge", func(t *testing.T) {
		env := setup(t)

		delegate := registerTeacher(t, env, "Pat Jones", "pat@family.net")
		child, err := env.svc.Register(ctx, account.NewAccount{
			Name:            "Kiddo Jones",
			Username:        "kiddo123",
			Password:        "123456",
			PasswordConfirm: "123456",
			Role:            account.RoleLearner,
			BypassPolicy:    true,
			Maintainer:      account.MaintainedByGuardian,
			Delegate:        &delegate,
		})
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if child.Email != "kiddo123@family.net" {
			t.Errorf("Email = %q, want %q", child.Email, "kiddo123@family.net")
		}
		if !child.IsVerified {
			t.Error("delegate-created accounts must start verified")
		}
		prof, err := env.repo.GetLearnerProfile(ctx, child.ID)
		if err != nil {
			t.Fatalf("GetLearnerProfile() error = %v", err)
		}
		if prof.MaintainedBy != account.MaintainedByGuardian {
			t.Errorf("MaintainedBy = %q, want %q", prof.MaintainedBy, account.MaintainedByGuardian)
		}
		if prof.CreatedByID.String != delegate.ID {
			t.Errorf("CreatedByID = %q, want %q", prof.CreatedByID.String, delegate.ID)
		}
		ok, err := env.delegs.EdgeExists(ctx, delegate.ID, child.ID)
		if err != nil || !ok {
			t.Errorf("EdgeExists() = %v, %v; want edge", ok, err)
		}
	})
}

func TestServiceBatchRegister(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	teacher := registerTeacher(t, env, "Alice Teacher", "alice@school.org")

	room, err := env.rooms.CreateClassroom(ctx, classroom.Classroom{Title: "Grade Five", Code: "ABCDEF1234"})
	if err != nil {
		t.Fatalf("CreateClassroom() error = %v", err)
	}

	names := []string{"Bea Learner", "Cal Learner", "Bea Learner", "Bob", "Dee Learner"}
	seeds := make([]account.NewAccount, 0, len(names))
	for i, name := range names {
		seeds = append(seeds, account.NewAccount{
			Name:            name,
			Password:        "pwd",
			PasswordConfirm: "pwd",
			Role:            account.RoleLearner,
			BypassPolicy:    true,
			Maintainer:      account.MaintainedByTeacher,
			Delegate:        &teacher,
			ContactDomain:   env.conf.DefaultAccountDomain,
			ClassroomID:     room.ID,
			Seed:            fmt.Sprintf("%d:%s", i, name),
		})
	}

	res := env.svc.BatchRegister(ctx, seeds)

	if len(res.Created) != 4 {
		t.Fatalf("Created = %d accounts, want 4 (failures: %+v)", len(res.Created), res.Failures)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("Failures = %d, want 1", len(res.Failures))
	}
	if res.Failures[0].Seed != "3:Bob" {
		t.Errorf("failed seed = %q, want %q", res.Failures[0].Seed, "3:Bob")
	}

	// duplicate names must still get distinct handles and contacts
	seen := make(map[string]bool)
	for _, sr := range res.Created {
		if seen[sr.Account.Username] {
			t.Errorf("duplicate username %q", sr.Account.Username)
		}
		seen[sr.Account.Username] = true
		if !strings.HasSuffix(sr.Account.Email, "@"+env.conf.DefaultAccountDomain) {
			t.Errorf("Email = %q, want domain %q", sr.Account.Email, env.conf.DefaultAccountDomain)
		}
		member, err := env.rooms.IsMember(ctx, room.ID, sr.Account.ID)
		if err != nil || !member {
			t.Errorf("IsMember() = %v, %v; want member", member, err)
		}
	}
}

func TestServiceBatchRegisterZeroWorkers(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	env.conf.BatchWorkers = 0

	teacher := registerTeacher(t, env, "Alice Teacher", "alice@school.org")

	seeds := []account.NewAccount{{
		Name:            "Bea Learner",
		Password:        "pwd",
		PasswordConfirm: "pwd",
		Role:            account.RoleLearner,
		BypassPolicy:    true,
		Maintainer:      account.MaintainedByTeacher,
		Delegate:        &teacher,
		ContactDomain:   env.conf.DefaultAccountDomain,
	}}

	done := make(chan account.BatchResult, 1)
	go func() { done <- env.svc.BatchRegister(ctx, seeds) }()

	select {
	case res := <-done:
		if len(res.Created) != 1 || len(res.Failures) != 0 {
			t.Fatalf("BatchRegister() = %d created, %+v failures; want 1, none", len(res.Created), res.Failures)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("BatchRegister() did not complete")
	}
}

func TestServiceAuthenticate(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	acct := registerTeacher(t, env, "Jane Doe", "jane@school.org")

	t.Run("valid credentials", func(t *testing.T) {
		got, err := env.svc.Authenticate(ctx, "jane@school.org", "v3ry secure")
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if got.ID != acct.ID {
			t.Errorf("ID = %q, want %q", got.ID, acct.ID)
		}
		if got.LastLogin.IsZero() {
			t.Error("LastLogin not recorded")
		}
	})

	t.Run("username works too", func(t *testing.T) {
		if _, err := env.svc.Authenticate(ctx, acct.Username, "v3ry secure"); err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := env.svc.Authenticate(ctx, "jane@school.org", "nope"); !core.IsValidationError(err) {
			t.Errorf("Authenticate() error = %v, want validation error", err)
		}
	})

	t.Run("unknown account looks the same", func(t *testing.T) {
		if _, err := env.svc.Authenticate(ctx, "ghost@school.org", "nope"); !core.IsValidationError(err) {
			t.Errorf("Authenticate() error = %v, want validation error", err)
		}
	})
}

func TestServiceChangePassword(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	acct := registerTeacher(t, env, "Jane Doe", "jane@school.org")

	if _, err := env.svc.ChangePassword(ctx, acct, "wrong", "an0ther pwd", "an0ther pwd"); !core.IsValidationError(err) {
		t.Errorf("ChangePassword() error = %v, want validation error on old password", err)
	}
	if _, err := env.svc.ChangePassword(ctx, acct, "v3ry secure", "an0ther pwd", "mismatch"); !core.IsValidationError(err) {
		t.Errorf("ChangePassword() error = %v, want validation error on confirm", err)
	}
	if _, err := env.svc.ChangePassword(ctx, acct, "v3ry secure", "nodigits", "nodigits"); !core.IsValidationError(err) {
		t.Errorf("ChangePassword() error = %v, want policy error", err)
	}

	updated, err := env.svc.ChangePassword(ctx, acct, "v3ry secure", "an0ther pwd", "an0ther pwd")
	if err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if err := updated.CheckPassword("an0ther pwd"); err != nil {
		t.Error("new password does not verify")
	}
}

func TestServiceVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("issue and verify", func(t *testing.T) {
		env := setup(t)
		acct := registerTeacher(t, env, "Jane Doe", "jane@school.org")

		emailsvc.ClearSentMessages()
		tok, err := env.svc.IssueVerification(ctx, acct, "")
		if err != nil {
			t.Fatalf("IssueVerification() error = %v", err)
		}
		if len(tok.Token) != 64 {
			t.Errorf("Token length = %d, want 64", len(tok.Token))
		}
		msg, ok := emailsvc.LastSentMessage()
		if !ok {
			t.Fatal("no verification mail sent")
		}
		if !strings.Contains(msg.TextContent, tok.Token) {
			t.Error("mail does not contain the token")
		}

		if _, err = env.svc.Verify(ctx, acct, "not-the-token"); !core.IsValidationError(err) {
			t.Fatalf("Verify() error = %v, want validation error", err)
		}

		verified, err := env.svc.Verify(ctx, acct, tok.Token)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if !verified.IsVerified {
			t.Error("account not marked verified")
		}

		// single use
		if _, err = env.svc.Verify(ctx, verified, tok.Token); !core.IsConflictError(err) {
			t.Errorf("Verify() error = %v, want conflict on verified account", err)
		}
	})

	t.Run("reissue discards the previous token", func(t *testing.T) {
		env := setup(t)
		acct := registerTeacher(t, env, "Jane Doe", "jane@school.org")

		first, err := env.svc.IssueVerification(ctx, acct, "")
		if err != nil {
			t.Fatalf("IssueVerification() error = %v", err)
		}
		second, err := env.svc.ResendVerification(ctx, acct, "")
		if err != nil {
			t.Fatalf("ResendVerification() error = %v", err)
		}
		if first.Token == second.Token {
			t.Error("reissued token should differ")
		}
		if _, err = env.svc.Verify(ctx, acct, first.Token); !core.IsValidationError(err) {
			t.Errorf("Verify() with stale token error = %v, want validation error", err)
		}
	})

	t.Run("expired token is purged", func(t *testing.T) {
		env := setup(t)
		acct := registerTeacher(t, env, "Jane Doe", "jane@school.org")

		stale := account.VerificationToken{
			AccountID: acct.ID,
			Token:     strings.Repeat("a", 64),
			Email:     acct.Email,
			CreatedAt: time.Now().UTC().Add(-env.conf.EmailConfirmationTimeout - time.Second),
		}
		if _, err := env.tokens.CreateToken(ctx, stale); err != nil {
			t.Fatalf("CreateToken() error = %v", err)
		}

		_, err := env.svc.Verify(ctx, acct, stale.Token)
		if !core.IsExpiredError(err) {
			t.Fatalf("Verify() error = %v, want expired error", err)
		}
		// the stale token is gone; presenting it again is just invalid
		if _, err = env.svc.Verify(ctx, acct, stale.Token); !core.IsValidationError(err) {
			t.Errorf("Verify() error = %v, want validation error after purge", err)
		}
	})

	t.Run("resend on verified account conflicts", func(t *testing.T) {
		env := setup(t)
		acct := registerTeacher(t, env, "Jane Doe", "jane@school.org")
		tok, _ := env.svc.IssueVerification(ctx, acct, "")
		verified, err := env.svc.Verify(ctx, acct, tok.Token)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if _, err = env.svc.ResendVerification(ctx, verified, ""); !core.IsConflictError(err) {
			t.Errorf("ResendVerification() error = %v, want conflict", err)
		}
	})
}

func TestServicePasswordReset(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	registerTeacher(t, env, "Jane Doe", "jane@school.org")

	emailsvc.ClearSentMessages()
	if err := env.svc.RequestPasswordReset(ctx, "jane@school.org"); err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	msg, ok := emailsvc.LastSentMessage()
	if !ok {
		t.Fatal("no reset mail sent")
	}
	data, ok := msg.TemplateData.(struct {
		Username string
		UID      string
		Token    string
	})
	if !ok {
		t.Fatalf("unexpected template data %T", msg.TemplateData)
	}

	t.Run("unknown email errors", func(t *testing.T) {
		if err := env.svc.RequestPasswordReset(ctx, "ghost@school.org"); err == nil {
			t.Error("RequestPasswordReset() expected error")
		}
	})

	t.Run("weak new password rejected", func(t *testing.T) {
		err := env.svc.ResetPassword(ctx, account.ResetPassword{
			UID: data.UID, Token: data.Token, Password: "nodigits", PasswordConfirm: "nodigits",
		})
		if !core.IsValidationError(err) {
			t.Errorf("ResetPassword() error = %v, want policy error", err)
		}
	})

	t.Run("happy path and single use", func(t *testing.T) {
		err := env.svc.ResetPassword(ctx, account.ResetPassword{
			UID: data.UID, Token: data.Token, Password: "fresh pwd 42", PasswordConfirm: "fresh pwd 42",
		})
		if err != nil {
			t.Fatalf("ResetPassword() error = %v", err)
		}
		if _, err = env.svc.Authenticate(ctx, "jane@school.org", "fresh pwd 42"); err != nil {
			t.Errorf("Authenticate() with new password error = %v", err)
		}
		if _, err = env.svc.Authenticate(ctx, "jane@school.org", "v3ry secure"); err == nil {
			t.Error("old password still works")
		}

		// the hash changed; the token no longer verifies
		err = env.svc.ResetPassword(ctx, account.ResetPassword{
			UID: data.UID, Token: data.Token, Password: "other pwd 43", PasswordConfirm: "other pwd 43",
		})
		if !core.IsValidationError(err) {
			t.Errorf("ResetPassword() error = %v, want validation error on reuse", err)
		}
	})

	t.Run("garbage uid rejected", func(t *testing.T) {
		err := env.svc.ResetPassword(ctx, account.ResetPassword{
			UID: "%%%", Token: data.Token, Password: "fresh pwd 42", PasswordConfirm: "fresh pwd 42",
		})
		if !core.IsValidationError(err) {
			t.Errorf("ResetPassword() error = %v, want validation error", err)
		}
	})
}
