package protocol

import (
	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

// Error codes
const (
	ErrorCodeInvalidMessage    = "invalid_message"
	ErrorCodeUnauthorized      = "unauthorized"
	ErrorCodeWorkspaceRequired = "workspace_required"
	ErrorCodeValidation        = "validation_error"
	ErrorCodeTransport         = "transport_error"
	ErrorCodeRouting           = "routing_error"
	ErrorCodeBackendRejected   = "backend_rejected"
	ErrorCodeNotFound          = "not_found"
	ErrorCodeInternalError     = "internal_error"
)

// ErrorCode classifies an engine error for clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case domain.IsValidation(err):
		return ErrorCodeValidation
	case domain.IsRouting(err):
		return ErrorCodeRouting
	case domain.IsBackendRejection(err):
		return ErrorCodeBackendRejected
	case domain.IsTransport(err):
		return ErrorCodeTransport
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		return ErrorCodeNotFound
	}
	return ErrorCodeInternalError
}
