package account

import (
	"fmt"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/basantashrestha/seepalaya/core"
)

const (
	pwdMinLen = 8
	pinMinLen = 6

	// everything else ('@', '$', '=', ...) is allowed
	pwdDisallowedChars = "|!#%^&*()_+-[]/{}:;\"'<>,.?\\`~"

	pwdMaxSim = .7
)

var (
	roleTag  = "role"
	roleText = "invalid role"

	// password policy tags
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoDigitTag  = "pwdnodigit"
	pwdNoDigitText = "password must contain at least one numeric value"

	pwdBadCharTag  = "pwdbadchar"
	pwdBadCharText = "password contains a disallowed special character"

	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to account attributes"

	pwdPolicyTexts = map[string]string{
		pwdMinLenTag:  pwdMinLenText,
		pwdNoDigitTag: pwdNoDigitText,
		pwdBadCharTag: pwdBadCharText,
		pwdAttrSimTag: pwdAttrSimText,
	}
)

// RegisterValidators wires this package's custom validations into the app
// validator.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)

	validate.RegisterStructValidation(newAccountStructValidation, NewAccount{})
	for tag, text := range pwdPolicyTexts {
		core.RegisterCustomTranslation(validate, translator, tag, text)
	}
}

// roleValidation checks that the provided role is one of AllRoles.
func roleValidation(fl validator.FieldLevel) bool {
	role := fl.Field().String()
	for _, known := range AllRoles {
		if role == known {
			return true
		}
	}
	return false
}

// newAccountStructValidation applies the password policy to self-chosen
// secrets. Delegate-assigned secrets (BypassPolicy) are exempt; their own
// PIN rules are enforced by the delegation service.
func newAccountStructValidation(sl validator.StructLevel) {
	na, ok := sl.Current().Interface().(NewAccount)
	if !ok || na.BypassPolicy {
		return
	}
	if tag := checkPolicy(na.Password, na.Name, na.Username, na.Email); tag != "" {
		sl.ReportError(na.Password, "password", "Password", tag, "")
	}
}

// checkPolicy returns the tag of the first violated password rule, or "".
//
// Policy: min length 8, at least one digit, no disallowed special
// characters, not too similar to account attributes.
func checkPolicy(pwd string, attrs ...string) string {
	if len(pwd) < pwdMinLen {
		return pwdMinLenTag
	}
	var hasDigit bool
	for _, char := range pwd {
		if unicode.IsDigit(char) {
			hasDigit = true
		}
		if strings.ContainsRune(pwdDisallowedChars, char) {
			return pwdBadCharTag
		}
	}
	if !hasDigit {
		return pwdNoDigitTag
	}

	getRatio := func(pass, attr string) float64 {
		if attr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(pass, ""), strings.Split(attr, "")).QuickRatio()
	}
	for _, attr := range attrs {
		if getRatio(strings.ToLower(pwd), strings.ToLower(attr)) >= pwdMaxSim {
			return pwdAttrSimTag
		}
	}
	return ""
}

// CheckPasswordPolicy applies the self-chosen secret policy outside struct
// validation (password change/reset).
func CheckPasswordPolicy(pwd string, acct Account) error {
	if tag := checkPolicy(pwd, acct.Name, acct.Username, acct.Email); tag != "" {
		return core.NewValidationError(ErrWeakPassword,
			core.FieldError{Field: "password", Error: pwdPolicyTexts[tag]})
	}
	return nil
}

// ValidatePIN applies the delegated-secret policy: at least 6 characters,
// and digits only when digitsOnly is set (guardian-maintained child PINs).
func ValidatePIN(pin string, digitsOnly bool) error {
	if len(pin) < pinMinLen {
		return core.NewValidationError(ErrWeakPIN,
			core.FieldError{Field: "pin", Error: fmt.Sprintf("pin must be at least %d characters long", pinMinLen)})
	}
	if digitsOnly {
		for _, char := range pin {
			if !unicode.IsDigit(char) {
				return core.NewValidationError(ErrWeakPIN,
					core.FieldError{Field: "pin", Error: "pin must be a number"})
			}
		}
	}
	return nil
}
