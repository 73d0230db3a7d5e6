package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/adapter/llm"
	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/policy"
)

// Emitter receives generation events in order. An error stops the generation.
type Emitter func(ev domain.GenerationEvent) error

const sourceExcerptLen = 160

// CheckGenerate validates a request and runs it through the policy. It is
// called before any stream is opened so refusals can be plain HTTP errors.
func (s *Service) CheckGenerate(ctx context.Context, req *domain.GenerateRequest) error {
	if err := domain.ValidateGenerateRequest(req, s.config.MaxQuestionsPerCall); err != nil {
		return err
	}
	if s.policyEngine == nil {
		return nil
	}
	decision, reason, err := s.policyEngine.Evaluate(ctx, policy.InputFor(req, s.config.MaxQuestionsPerCall))
	if err != nil {
		return errors.Wrap(err, "evaluate generation policy")
	}
	if decision == policy.DecisionDeny {
		s.log.Warn("generation denied by policy", "reason", reason)
		return errors.Wrap(ErrPolicyDenied, reason)
	}
	return nil
}

// Generate runs a whole generation session, emitting events as it goes.
// Questions are persisted before they are emitted. Cancelling ctx ends the
// session with the questions written so far.
func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest, emit Emitter) error {
	if err := s.CheckGenerate(ctx, &req); err != nil {
		return err
	}

	materials := s.resolveMaterials(ctx, req.MaterialIDs)

	session := &domain.Session{
		SessionID: "sess_" + uuid.New().String()[:8],
		Prompt:    req.Prompt,
		Status:    domain.SessionStatusInProgress,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateSession(ctx, session, &req); err != nil {
		return errors.Wrap(err, "create session")
	}
	log := s.log.With("session_id", session.SessionID)
	log.Info("generation session started", "question_count", req.QuestionCount, "materials", len(materials))

	written, err := s.run(ctx, session.SessionID, req, materials, emit)

	// The session outlives the request that produced it.
	bg := context.WithoutCancel(ctx)
	switch {
	case err == nil:
		if uerr := s.store.UpdateSessionStatus(bg, session.SessionID, domain.SessionStatusCompleted, ""); uerr != nil {
			log.Error("failed to complete session", "error", uerr)
		}
		log.Info("generation session completed", "questions", written)
		return emit(domain.GenerationEvent{Type: domain.EventStreamDone, SessionID: session.SessionID})

	case ctx.Err() != nil:
		if uerr := s.store.UpdateSessionStatus(bg, session.SessionID, domain.SessionStatusCompleted, "cancelled"); uerr != nil {
			log.Error("failed to close cancelled session", "error", uerr)
		}
		log.Info("generation session cancelled", "questions", written)
		return ctx.Err()

	default:
		if uerr := s.store.UpdateSessionStatus(bg, session.SessionID, domain.SessionStatusFailed, err.Error()); uerr != nil {
			log.Error("failed to mark session failed", "error", uerr)
		}
		log.Error("generation session failed", "questions", written, "error", err)
		_ = emit(domain.GenerationEvent{Type: domain.EventError, SessionID: session.SessionID, Message: err.Error()})
		return err
	}
}

func (s *Service) run(ctx context.Context, sessionID string, req domain.GenerateRequest, materials []domain.Material, emit Emitter) (int, error) {
	if err := emit(domain.GenerationEvent{Type: domain.EventSessionStarted, SessionID: sessionID}); err != nil {
		return 0, err
	}
	if err := emit(thinking("Analyzing the request")); err != nil {
		return 0, err
	}
	for i := range materials {
		src := materials[i].Source(sourceExcerptLen)
		if err := emit(domain.GenerationEvent{Type: domain.EventSourceFound, Source: &src}); err != nil {
			return 0, err
		}
	}
	if err := emit(thinking(fmt.Sprintf("Planning %d questions", req.QuestionCount))); err != nil {
		return 0, err
	}

	var previous []string
	for i := 1; i <= req.QuestionCount; i++ {
		if err := ctx.Err(); err != nil {
			return i - 1, err
		}

		brief := llm.QuestionBrief{
			Prompt:      req.Prompt,
			Type:        questionTypeAt(req.QuestionTypes, i-1),
			Difficulty:  req.Difficulty,
			BloomsLevel: stringAt(req.BloomsLevels, i-1),
			Model:       req.Model,
			Index:       i,
			Total:       req.QuestionCount,
			Materials:   materials,
			Previous:    previous,
		}
		if err := emit(domain.GenerationEvent{
			Type: domain.EventActionStarted,
			Text: fmt.Sprintf("Writing question %d of %d", i, req.QuestionCount),
		}); err != nil {
			return i - 1, err
		}

		q, err := s.generator.GenerateQuestion(ctx, brief, func(delta string) error {
			return emit(domain.GenerationEvent{Type: domain.EventContentChunk, Text: delta})
		})
		if err != nil {
			return i - 1, errors.Wrapf(err, "generate question %d", i)
		}

		q.QuestionID = "q_" + uuid.New().String()[:8]
		q.SessionID = sessionID
		q.Status = domain.QuestionStatusPending
		q.CreatedAt = time.Now()
		if err := s.store.AppendQuestion(ctx, q); err != nil {
			return i - 1, errors.Wrap(err, "save question")
		}
		if err := emit(domain.GenerationEvent{Type: domain.EventQuestionCompleted, SessionID: sessionID, Question: q}); err != nil {
			return i, err
		}
		previous = append(previous, q.Text)
	}
	return req.QuestionCount, nil
}

// resolveMaterials loads the requested materials. Unknown ids are kept as
// bare sources so the stream still reports them.
func (s *Service) resolveMaterials(ctx context.Context, ids []string) []domain.Material {
	materials := make([]domain.Material, 0, len(ids))
	for _, id := range ids {
		m, err := s.store.GetMaterial(ctx, id)
		if err != nil {
			s.log.Warn("failed to load material", "material_id", id, "error", err)
		}
		if m == nil {
			m = &domain.Material{MaterialID: id, Title: id}
		}
		materials = append(materials, *m)
	}
	return materials
}

func thinking(step string) domain.GenerationEvent {
	return domain.GenerationEvent{Type: domain.EventThinkingStep, Text: step}
}

func questionTypeAt(types []domain.QuestionType, i int) domain.QuestionType {
	if len(types) == 0 {
		return domain.QuestionTypeMultipleChoice
	}
	return types[i%len(types)]
}

func stringAt(values []string, i int) string {
	if len(values) == 0 {
		return ""
	}
	return values[i%len(values)]
}
