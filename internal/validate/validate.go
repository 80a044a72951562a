// Package validate checks form input locally, before anything is sent.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"collab/internal/domain"
)

// MinPasswordLength is the shortest password registration accepts.
const MinPasswordLength = 6

// FieldError is one failed field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every failed field of a form, in declaration order.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return strings.Join(parts, "; ")
}

// Field returns the message for name, or "".
func (e *ValidationError) Field(name string) string {
	for _, f := range e.Fields {
		if f.Field == name {
			return f.Message
		}
	}
	return ""
}

var (
	once sync.Once
	v    *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return v
}

// Struct runs the struct's validate tags and converts failures to a ValidationError.
func Struct(s any) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "gt":
		return "is required"
	case "email":
		return "must be a valid e-mail address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "eqfield":
		return "does not match " + strings.ToLower(fe.Param())
	default:
		return "is invalid"
	}
}

type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (f LoginForm) Validate() error { return Struct(f) }

type RegisterForm struct {
	FirstName       string `json:"firstName" validate:"required"`
	LastName        string `json:"lastName" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

func (f RegisterForm) Validate() error { return Struct(f) }

// ProjectForm is the raw project creation input; MemberEmails is the
// comma-separated text the user typed.
type ProjectForm struct {
	Name         string `json:"name" validate:"required"`
	Subject      string `json:"subject" validate:"required"`
	Deadline     string `json:"deadline"`
	MemberEmails string `json:"memberEmails"`
}

// ProjectInput is a ProjectForm after validation.
type ProjectInput struct {
	Name         string
	Subject      string
	Deadline     *domain.Date
	MemberEmails []string
}

type memberEmails struct {
	Emails []string `json:"memberEmails" validate:"dive,email"`
}

// Parse validates the form and returns its typed values.
func (f ProjectForm) Parse() (ProjectInput, error) {
	f.Name, f.Subject = strings.TrimSpace(f.Name), strings.TrimSpace(f.Subject)
	verr := &ValidationError{}
	if err := collect(verr, Struct(f)); err != nil {
		return ProjectInput{}, err
	}

	in := ProjectInput{Name: f.Name, Subject: f.Subject, MemberEmails: ParseMemberEmails(f.MemberEmails)}
	deadline, err := parseDeadline(f.Deadline)
	if err != nil {
		verr.Fields = append(verr.Fields, FieldError{Field: "deadline", Message: "must be a date (YYYY-MM-DD)"})
	}
	in.Deadline = deadline
	if err := collect(verr, Struct(memberEmails{Emails: in.MemberEmails})); err != nil {
		return ProjectInput{}, err
	}

	if len(verr.Fields) > 0 {
		return ProjectInput{}, verr
	}
	return in, nil
}

type TaskForm struct {
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description"`
	Deadline     string `json:"deadline"`
	ProjectID    int64  `json:"projectId" validate:"gt=0"`
	AssignedToID int64  `json:"assignedToId" validate:"gt=0"`
}

// TaskInput is a TaskForm after validation.
type TaskInput struct {
	Title        string
	Description  string
	Deadline     *domain.Date
	ProjectID    int64
	AssignedToID int64
}

func (f TaskForm) Parse() (TaskInput, error) {
	f.Title = strings.TrimSpace(f.Title)
	verr := &ValidationError{}
	if err := collect(verr, Struct(f)); err != nil {
		return TaskInput{}, err
	}
	deadline, err := parseDeadline(f.Deadline)
	if err != nil {
		verr.Fields = append(verr.Fields, FieldError{Field: "deadline", Message: "must be a date (YYYY-MM-DD)"})
	}
	if len(verr.Fields) > 0 {
		return TaskInput{}, verr
	}
	return TaskInput{
		Title:        f.Title,
		Description:  strings.TrimSpace(f.Description),
		Deadline:     deadline,
		ProjectID:    f.ProjectID,
		AssignedToID: f.AssignedToID,
	}, nil
}

// ParseMemberEmails splits comma-separated addresses, trims each and drops
// empty entries, keeping input order.
func ParseMemberEmails(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if email := strings.TrimSpace(part); email != "" {
			out = append(out, email)
		}
	}
	return out
}

func parseDeadline(s string) (*domain.Date, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// collect merges field failures into into; any other error is returned.
func collect(into *ValidationError, err error) error {
	if err == nil {
		return nil
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	into.Fields = append(into.Fields, verr.Fields...)
	return nil
}
