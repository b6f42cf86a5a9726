package delegation

import (
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
)

type (
	// NewChild is a guardian's request to provision a learner account it will
	// maintain. The child authenticates with a numeric PIN.
	NewChild struct {
		Name        string    `json:"name" validate:"required,min=5,fullname"`
		Username    string    `json:"username" validate:"required,min=6,max=15,alphanum_"`
		PIN         string    `json:"pin" validate:"required"`
		PINConfirm  string    `json:"pin_confirm" validate:"required,eqfield=PIN"`
		DateOfBirth null.Time `json:"date_of_birth"`
	}

	// NewStudent is a teacher's request to provision a single learner account.
	NewStudent struct {
		Name            string `json:"name" validate:"required,min=5,fullname"`
		Username        string `json:"username" validate:"required,min=6,max=15,alphanum_"`
		Password        string `json:"password" validate:"required"`
		PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	}

	// UpdateDelegated edits a delegated account. Zero-valued fields are left
	// untouched; Secret resets the PIN or password depending on the relation.
	UpdateDelegated struct {
		Name     string `json:"name" validate:"omitempty,min=5,fullname"`
		Username string `json:"username" validate:"omitempty,min=6,max=15,alphanum_"`
		Secret   string `json:"secret"`
	}

	// CreatedStudent pairs a provisioned account with its generated password
	// so the teacher can hand out credentials. The password is never stored
	// in clear anywhere else.
	CreatedStudent struct {
		Account  account.Account `json:"account"`
		Password string          `json:"password"`
	}
)

func (nc *NewChild) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Username = core.CleanString(nc.Username, true /* lower */)
	if err := validate.Struct(nc); err != nil {
		return core.NewValidationError(err)
	}
	return account.ValidatePIN(nc.PIN, true /* digitsOnly */)
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Username = core.CleanString(ns.Username, true /* lower */)
	if err := validate.Struct(ns); err != nil {
		return core.NewValidationError(err)
	}
	return account.ValidatePIN(ns.Password, false)
}

func (ud *UpdateDelegated) Validate(validate *validator.Validate, relation account.Maintainer) error {
	ud.Name = core.CleanString(ud.Name)
	ud.Username = core.CleanString(ud.Username, true /* lower */)
	if err := validate.Struct(ud); err != nil {
		return core.NewValidationError(err)
	}
	if ud.Secret != "" {
		return account.ValidatePIN(ud.Secret, relation == account.MaintainedByGuardian)
	}
	return nil
}

func (ud *UpdateDelegated) IsEmpty() bool {
	return ud.Name == "" && ud.Username == "" && ud.Secret == ""
}
