package protocol

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/orchestrator"
	"github.com/johnmikel306/learntrack-sub002/internal/review"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "validation", err: domain.NewValidationError("bad"), want: ErrorCodeValidation},
		{name: "routing", err: &domain.RoutingError{QuestionID: "q1"}, want: ErrorCodeRouting},
		{name: "rejection", err: &domain.BackendRejection{Op: "approve", Status: 409}, want: ErrorCodeBackendRejected},
		{
			name: "rejection inside transport",
			err:  &domain.TransportError{Op: "generate", Err: &domain.BackendRejection{Op: "generate", Status: 503}},
			want: ErrorCodeBackendRejected,
		},
		{name: "transport", err: &domain.TransportError{Op: "generate", Err: errors.New("reset")}, want: ErrorCodeTransport},
		{name: "not found", err: errors.Wrap(domain.ErrQuestionNotFound, "question q9"), want: ErrorCodeNotFound},
		{name: "other", err: errors.New("boom"), want: ErrorCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestNewViewAndItemResults(t *testing.T) {
	v := NewView(orchestrator.View{Mode: orchestrator.ModeLive, LastError: errors.New("stream cut")})
	assert.Equal(t, "stream cut", v.LastError)
	assert.Equal(t, orchestrator.ModeLive, v.Mode)

	results := NewItemResults([]review.ItemResult{
		{QuestionID: "q1"},
		{QuestionID: "q2", Err: &domain.RoutingError{QuestionID: "q2"}},
	})
	assert.Equal(t, []ItemResult{
		{QuestionID: "q1", OK: true},
		{QuestionID: "q2", Code: ErrorCodeRouting, Message: "question q2 has no session context"},
	}, results)
}
