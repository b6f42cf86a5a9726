package account

import (
	"net/mail"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/basantashrestha/seepalaya/core"
)

// Roles. A role is a named capability grant; an account may hold several.
const (
	RoleAdmin    = "admin:"
	RoleTeacher  = "teacher:"
	RoleGuardian = "guardian:"
	RoleLearner  = "learner:"
)

var (
	AllRoles = []string{RoleAdmin, RoleTeacher, RoleGuardian, RoleLearner}

	Roles = []Role{
		{Name: "Learner", Value: RoleLearner},
		{Name: "Guardian", Value: RoleGuardian},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Maintainer states who is entitled to reset a learner's secret and mutate
// its profile. It is set once at creation and gates all later mutation.
type Maintainer string

const (
	MaintainedByLearner  Maintainer = "LEARNER"
	MaintainedByGuardian Maintainer = "GUARDIAN"
	MaintainedByTeacher  Maintainer = "TEACHER"
)

func (m Maintainer) Valid() bool {
	switch m {
	case MaintainedByLearner, MaintainedByGuardian, MaintainedByTeacher:
		return true
	}
	return false
}

type Account struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Username         string      `json:"username"`
	Email            string      `json:"email"`
	IsVerified       bool        `json:"is_verified"`
	Roles            []string    `json:"roles"`
	PasswordHash     []byte      `json:"-"`
	ProfilePictureID null.String `json:"profile_picture_id"`
	CreatedAt        time.Time   `json:"created_at"` // UTC
	UpdatedAt        time.Time   `json:"updated_at"` // UTC
	LastLogin        time.Time   `json:"last_login"` // UTC
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

func (a *Account) RoleStartsWith(prefix string) bool {
	for _, role := range a.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (a *Account) IsAdmin() bool    { return a.RoleStartsWith(RoleAdmin) }
func (a *Account) IsTeacher() bool  { return a.RoleStartsWith(RoleTeacher) }
func (a *Account) IsGuardian() bool { return a.RoleStartsWith(RoleGuardian) }
func (a *Account) IsLearner() bool  { return a.RoleStartsWith(RoleLearner) }

func (a *Account) Address() mail.Address { return mail.Address{Name: a.Name, Address: a.Email} }

// EmailDomain returns the part after '@', or "" when the address is unset.
func (a *Account) EmailDomain() string {
	if i := strings.LastIndex(a.Email, "@"); i >= 0 {
		return a.Email[i+1:]
	}
	return ""
}

// LearnerProfile is the role extension of a learner account.
type LearnerProfile struct {
	ID           string      `json:"id"`
	AccountID    string      `json:"account_id"`
	DateOfBirth  null.Time   `json:"date_of_birth"`
	MaintainedBy Maintainer  `json:"account_maintained_by"`
	CreatedByID  null.String `json:"created_by_id"` // delegator account; non-owning
}

// TeacherProfile is the role extension of a teacher account.
type TeacherProfile struct {
	ID        string      `json:"id"`
	AccountID string      `json:"account_id"`
	School    null.String `json:"school"`
}

// GuardianProfile is the role extension of a guardian account.
type GuardianProfile struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
}

// DelegationEdge links a delegate (guardian/teacher) to a delegated learner
// account. Its existence grants the delegate administration rights over the
// learner, provided the learner's maintainer matches Relation.
type DelegationEdge struct {
	DelegateID  string     `json:"delegate_id"`
	DelegatedID string     `json:"delegated_id"`
	Relation    Maintainer `json:"relation"`
}

// NewAccount contains the information needed to provision an Account.
//
// Self-registration provides Email + Password/PasswordConfirm and leaves
// Username empty (it is derived from the email). Delegated creation sets
// BypassPolicy, Maintainer, Delegate, and either a chosen Username + empty
// Email (derived from the delegate's domain) or, for bulk intake, only Name
// (handle and contact both derived).
type NewAccount struct {
	Name            string `json:"name" validate:"omitempty,min=5,fullname"`
	Username        string `json:"username" validate:"omitempty,min=1,max=15,alphanum_"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"required,role"`

	// delegated-creation fields; never bound from user input
	Seed          string     `json:"-"` // traceability tag for batch results
	BypassPolicy  bool       `json:"-"`
	Maintainer    Maintainer `json:"-"`
	Delegate      *Account   `json:"-"`
	ContactDomain string     `json:"-"`
	ClassroomID   string     `json:"-"`
	DateOfBirth   null.Time  `json:"-"`
	School        string     `json:"-"`
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	na.Username = core.CleanString(na.Username, true /* lower */)
	na.Email = core.CleanString(na.Email, true /* lower */)
	if na.Email == "" && na.Delegate == nil {
		return core.NewValidationError(ErrNoContactAddress,
			core.FieldError{Field: "email", Error: "an email address is required"})
	}
	if err := validate.Struct(na); err != nil {
		return core.NewValidationError(err)
	}
	return nil
}

// SeedTag identifies this seed in batch results.
func (na *NewAccount) SeedTag() string {
	for _, tag := range []string{na.Seed, na.Username, na.Email, na.Name} {
		if tag != "" {
			return tag
		}
	}
	return ""
}

// UpdateAccount defines what information may be provided to modify an
// existing Account. Empty fields keep their current value.
type UpdateAccount struct {
	Name     string `json:"name" validate:"omitempty,min=5,fullname"`
	Username string `json:"username" validate:"omitempty,min=1,max=15,alphanum_"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func (ua *UpdateAccount) Validate(orig Account, validate *validator.Validate) error {
	if name := core.CleanString(ua.Name); name != "" {
		ua.Name = name
	} else {
		ua.Name = orig.Name
	}
	if uname := core.CleanString(ua.Username, true /* lower */); uname != "" {
		ua.Username = uname
	} else {
		ua.Username = orig.Username
	}
	if email := core.CleanString(ua.Email, true /* lower */); email != "" {
		ua.Email = email
	} else {
		ua.Email = orig.Email
	}
	if err := validate.Struct(ua); err != nil {
		return core.NewValidationError(err)
	}
	return nil
}

// ResetPassword carries a password-reset confirmation.
type ResetPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetPassword) Validate(validate *validator.Validate) error {
	if err := validate.Struct(rp); err != nil {
		return core.NewValidationError(err)
	}
	return nil
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsVerified  *bool     `query:"is_verified"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsVerified == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
