package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	alphaNumUnderTag   = "alphanum_"
	alphaNumUnderText  = "only alphanumeric characters and underscores are allowed"
	alphaNumUnderRegex = regexp.MustCompile(`^\w+$`)

	fullNameTag   = "fullname"
	fullNameText  = "full name can only contain letters, spaces, hyphens and apostrophes"
	fullNameRegex = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)

	classTitleTag   = "classtitle"
	classTitleText  = "title can only contain letters, numbers, spaces, hyphens and apostrophes, and cannot be entirely numeric"
	classTitleRegex = regexp.MustCompile(`^[a-zA-Z0-9\s'-]+$`)
	allDigitsRegex  = regexp.MustCompile(`^[0-9]+$`)

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// NewValidator instantiates the app validator and its translator.
func NewValidator() (*validator.Validate, ut.Translator) {
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(alphaNumUnderTag, alphaNumUnderValidation)
	RegisterCustomTranslation(validate, translator, alphaNumUnderTag, alphaNumUnderText)

	_ = validate.RegisterValidation(fullNameTag, fullNameValidation)
	RegisterCustomTranslation(validate, translator, fullNameTag, fullNameText)

	_ = validate.RegisterValidation(classTitleTag, classTitleValidation)
	RegisterCustomTranslation(validate, translator, classTitleTag, classTitleText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)

	return validate, translator
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// alphaNumUnderValidation only allows alphanumeric characters and underscores.
func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}

// fullNameValidation only allows letters, spaces, hyphens and apostrophes.
func fullNameValidation(fl validator.FieldLevel) bool {
	return fullNameRegex.MatchString(fl.Field().String())
}

// classTitleValidation allows letters, digits, spaces, hyphens and
// apostrophes; rejects purely numeric titles.
func classTitleValidation(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	return classTitleRegex.MatchString(val) && !allDigitsRegex.MatchString(val)
}
