package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

// ErrStatusConflict is returned when a conditional status update finds the
// question no longer pending.
var ErrStatusConflict = errors.New("question is no longer pending")

// Store persists generation sessions, their questions and source materials.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session, req *domain.GenerateRequest) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListSessionsWithQuestions(ctx context.Context, limit int) ([]domain.Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus, errMsg string) error
	DeleteSession(ctx context.Context, sessionID string) (bool, error)

	// Question operations
	AppendQuestion(ctx context.Context, q *domain.Question) error
	GetQuestion(ctx context.Context, sessionID, questionID string) (*domain.Question, error)
	UpdateQuestionStatus(ctx context.Context, sessionID, questionID string, status domain.QuestionStatus) error
	UpdateQuestion(ctx context.Context, q *domain.Question) error

	// Material operations
	CreateMaterial(ctx context.Context, m *domain.Material) error
	GetMaterial(ctx context.Context, materialID string) (*domain.Material, error)

	Close() error
}
