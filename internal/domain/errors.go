package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrSessionNotFound  = errors.New("session not found")
)

// FieldError is used to indicate an error with a specific field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports bad caller input. No network call is attempted.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(msg string, flds ...FieldError) error {
	return &ValidationError{Err: errors.New(msg), Fields: flds}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return ""
	}
	if len(e.Fields) == 0 {
		return e.Err.Error()
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Error
	}
	return e.Err.Error() + " (" + strings.Join(parts, "; ") + ")"
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransportError reports that a stream or request failed to reach the backend
// or was interrupted mid-flight.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RoutingError reports a mutation on a question that carries no session id.
type RoutingError struct {
	QuestionID string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("question %s has no session context", e.QuestionID)
}

// BackendRejection reports a mutation the backend received and refused.
type BackendRejection struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *BackendRejection) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	return fmt.Sprintf("%s rejected by backend (%d): %s", e.Op, e.Status, msg)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}

func IsRouting(err error) bool {
	var r *RoutingError
	return errors.As(err, &r)
}

func IsBackendRejection(err error) bool {
	var b *BackendRejection
	return errors.As(err, &b)
}
