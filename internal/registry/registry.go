// Package registry keeps the list of past generation sessions and hydrates
// the one selected for review.
package registry

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
)

// Backend is the subset of the backend client used by the registry.
type Backend interface {
	ListSessions(ctx context.Context) ([]domain.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Registry caches session summaries and tracks the selected session.
type Registry struct {
	backend Backend
	log     *logger.Logger

	mu       sync.Mutex
	sessions []domain.Session
	selected string
}

func New(backend Backend, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{backend: backend, log: log.With("component", "registry")}
}

// List refreshes the cache and returns session summaries in backend order.
func (r *Registry) List(ctx context.Context) ([]domain.Session, error) {
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Session, len(r.sessions))
	for i := range r.sessions {
		out[i] = r.sessions[i].Summary()
	}
	return out, nil
}

func (r *Registry) refresh(ctx context.Context) error {
	sessions, err := r.backend.ListSessions(ctx)
	if err != nil {
		return errors.Wrap(err, "list sessions")
	}
	for i := range sessions {
		sessions[i].StampQuestions()
		sessions[i].Recount()
	}

	r.mu.Lock()
	r.sessions = sessions
	r.mu.Unlock()
	r.log.Debug("session list refreshed", "count", len(sessions))
	return nil
}

// Select returns a copy of the session with its questions hydrated, every
// question stamped with the session id and counts recomputed. The cache is
// refreshed once when the session is unknown or has no embedded questions.
func (r *Registry) Select(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, ok := r.cached(sessionID)
	if !ok || s.Questions == nil {
		if err := r.refresh(ctx); err != nil {
			return nil, err
		}
		s, ok = r.cached(sessionID)
	}
	if !ok {
		return nil, errors.Wrapf(domain.ErrSessionNotFound, "session %s", sessionID)
	}
	if s.Questions == nil {
		s.Questions = []*domain.Question{}
	}
	s.StampQuestions()
	s.Recount()

	r.mu.Lock()
	r.selected = sessionID
	r.mu.Unlock()
	return &s, nil
}

func (r *Registry) cached(sessionID string) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sessions {
		if r.sessions[i].SessionID == sessionID {
			return r.sessions[i].Clone(), true
		}
	}
	return domain.Session{}, false
}

// Delete removes the session on the backend and from the cache. It reports
// whether the deleted session was the selected one; the selection is cleared
// in that case.
func (r *Registry) Delete(ctx context.Context, sessionID string) (bool, error) {
	if err := r.backend.DeleteSession(ctx, sessionID); err != nil {
		return false, errors.Wrapf(err, "delete session %s", sessionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sessions {
		if r.sessions[i].SessionID == sessionID {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			break
		}
	}
	wasSelected := r.selected == sessionID
	if wasSelected {
		r.selected = ""
	}
	r.log.Info("session deleted", "session_id", sessionID, "was_selected", wasSelected)
	return wasSelected, nil
}

// Update replaces a cached question with q, keeping the cached session's
// counts in step with review mutations made elsewhere.
func (r *Registry) Update(q domain.Question) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sessions {
		s := &r.sessions[i]
		if s.SessionID != q.SessionID {
			continue
		}
		for j, cur := range s.Questions {
			if cur.QuestionID == q.QuestionID {
				c := q.Clone()
				s.Questions[j] = &c
				s.Recount()
				return
			}
		}
		return
	}
}

// Selected returns the id of the selected session, or "".
func (r *Registry) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Forget clears the selection.
func (r *Registry) Forget() {
	r.mu.Lock()
	r.selected = ""
	r.mu.Unlock()
}

