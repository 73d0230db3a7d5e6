package service

import (
	"context"

	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/repository"
)

// ListSessions returns every session, newest first, with its questions.
func (s *Service) ListSessions(ctx context.Context) ([]domain.Session, error) {
	sessions, err := s.store.ListSessionsWithQuestions(ctx, 0)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	return sessions, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "get session")
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	deleted, err := s.store.DeleteSession(ctx, sessionID)
	if err != nil {
		return errors.Wrap(err, "delete session")
	}
	if !deleted {
		return domain.ErrSessionNotFound
	}
	s.log.Info("session deleted", "session_id", sessionID)
	return nil
}

// ApproveQuestion approves a pending question. Approving an approved
// question succeeds without change.
func (s *Service) ApproveQuestion(ctx context.Context, sessionID, questionID string) (*domain.Question, error) {
	return s.decide(ctx, sessionID, questionID, domain.QuestionStatusApproved)
}

// RejectQuestion rejects a pending question. Rejecting a rejected question
// succeeds without change.
func (s *Service) RejectQuestion(ctx context.Context, sessionID, questionID string) (*domain.Question, error) {
	return s.decide(ctx, sessionID, questionID, domain.QuestionStatusRejected)
}

func (s *Service) decide(ctx context.Context, sessionID, questionID string, to domain.QuestionStatus) (*domain.Question, error) {
	q, err := s.getQuestion(ctx, sessionID, questionID)
	if err != nil {
		return nil, err
	}
	if q.Status == to {
		return q, nil
	}
	if !domain.CanTransition(q.Status, to) {
		return nil, errors.Wrapf(ErrConflict, "question is %s", q.Status)
	}

	if err := s.store.UpdateQuestionStatus(ctx, sessionID, questionID, to); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, errors.Wrap(ErrConflict, "question was decided concurrently")
		}
		return nil, errors.Wrap(err, "update question status")
	}
	q.Status = to
	s.log.Info("question decided", "session_id", sessionID, "question_id", questionID, "status", to)
	return q, nil
}

// UpdateQuestion merges patch into a question. Status is never changed.
func (s *Service) UpdateQuestion(ctx context.Context, sessionID, questionID string, patch domain.QuestionPatch) (*domain.Question, error) {
	q, err := s.getQuestion(ctx, sessionID, questionID)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return q, nil
	}

	patch.ApplyTo(q)
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return nil, errors.Wrap(err, "update question")
	}
	return q, nil
}

func (s *Service) getQuestion(ctx context.Context, sessionID, questionID string) (*domain.Question, error) {
	q, err := s.store.GetQuestion(ctx, sessionID, questionID)
	if err != nil {
		return nil, errors.Wrap(err, "get question")
	}
	if q == nil {
		return nil, domain.ErrQuestionNotFound
	}
	return q, nil
}
