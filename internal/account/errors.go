package account

import (
	"errors"
	"strings"

	"github.com/geocoder89/userhub/internal/domain/user"
)

var (
	// ErrInvalidCredentials is returned for both unknown usernames and wrong
	// passwords so callers cannot tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoChanges          = errors.New("no changes to apply")
	ErrForbidden          = errors.New("forbidden")
)

// FieldViolation describes one rejected input field.
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

type ValidationError struct {
	Fields []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictError reports a uniqueness clash on a single field.
type ConflictError struct {
	Field string
	Err   error
}

func (e *ConflictError) Error() string {
	return e.Err.Error()
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// Code is the stable machine-readable name of the conflict.
func (e *ConflictError) Code() string {
	switch {
	case errors.Is(e.Err, user.ErrEmailTaken):
		return "email_taken"
	case errors.Is(e.Err, user.ErrUsernameTaken):
		return "username_taken"
	default:
		return "conflict"
	}
}

func emailConflict() error {
	return &ConflictError{Field: "correo", Err: user.ErrEmailTaken}
}

func usernameConflict() error {
	return &ConflictError{Field: "usuario", Err: user.ErrUsernameTaken}
}

// conflictFromStore turns a store-level uniqueness error into a ConflictError.
func conflictFromStore(err error) (error, bool) {
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		return emailConflict(), true
	case errors.Is(err, user.ErrUsernameTaken):
		return usernameConflict(), true
	default:
		return nil, false
	}
}
