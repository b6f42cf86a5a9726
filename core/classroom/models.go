package classroom

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/basantashrestha/seepalaya/core"
)

// Classroom is a teacher-owned group of learner accounts, joinable via its
// share code.
type Classroom struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Code      string      `json:"code"` // share code; unique, case-sensitive
	TeacherID null.String `json:"teacher_id"`
	CreatedAt time.Time   `json:"created_at"` // UTC
	UpdatedAt time.Time   `json:"updated_at"` // UTC
}

type NewClassroom struct {
	Title string `json:"title" validate:"required,min=5,classtitle"`
}

func (nc *NewClassroom) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	if err := validate.Struct(nc); err != nil {
		return core.NewValidationError(err)
	}
	return nil
}

// UpdateClassroom renames a classroom; the share code never changes.
type UpdateClassroom struct {
	Title string `json:"title" validate:"required,min=5,classtitle"`
}

func (uc *UpdateClassroom) Validate(validate *validator.Validate) error {
	uc.Title = core.CleanString(uc.Title)
	if err := validate.Struct(uc); err != nil {
		return core.NewValidationError(err)
	}
	return nil
}
