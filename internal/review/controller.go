// Package review applies approve, reject and edit decisions to generated
// questions and reconciles them with the backend.
package review

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/metrics"
	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
)

// QuestionStore is the question list currently under review.
type QuestionStore interface {
	// Question returns a copy of the question with the given id.
	Question(id string) (domain.Question, bool)
	// UpdateQuestion applies fn to the stored question in place. It reports
	// false when the question is no longer present.
	UpdateQuestion(id string, fn func(*domain.Question)) bool
	// PendingQuestionIDs lists pending questions in list order.
	PendingQuestionIDs() []string
}

// Mutator sends review decisions to the backend.
type Mutator interface {
	ApproveQuestion(ctx context.Context, sessionID, questionID string) error
	RejectQuestion(ctx context.Context, sessionID, questionID string) error
	UpdateQuestion(ctx context.Context, sessionID, questionID string, patch domain.QuestionPatch) (*domain.Question, error)
}

// ItemResult is the outcome of one question in a bulk approval.
type ItemResult struct {
	QuestionID string `json:"question_id"`
	Err        error  `json:"-"`
}

// Failures returns the results that carry an error.
func Failures(results []ItemResult) []ItemResult {
	var out []ItemResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Controller runs review mutations against a QuestionStore.
type Controller struct {
	store   QuestionStore
	backend Mutator
	log     *logger.Logger
	metrics *metrics.Metrics
	workers int
}

// Option configures a Controller.
type Option func(*Controller)

// WithConcurrency bounds the number of approvals ApproveAll runs at once.
func WithConcurrency(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithMetrics records mutation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func New(store QuestionStore, backend Mutator, log *logger.Logger, opts ...Option) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	c := &Controller{
		store:   store,
		backend: backend,
		log:     log.With("component", "review.Controller"),
		workers: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Approve marks a pending question approved once the backend accepts it.
func (c *Controller) Approve(ctx context.Context, questionID string) error {
	return c.transition(ctx, "approve", questionID, domain.QuestionStatusApproved, c.backend.ApproveQuestion)
}

// Reject marks a pending question rejected once the backend accepts it.
func (c *Controller) Reject(ctx context.Context, questionID string) error {
	return c.transition(ctx, "reject", questionID, domain.QuestionStatusRejected, c.backend.RejectQuestion)
}

func (c *Controller) transition(
	ctx context.Context,
	op, questionID string,
	to domain.QuestionStatus,
	send func(ctx context.Context, sessionID, questionID string) error,
) error {
	q, err := c.resolve(questionID)
	if err != nil {
		c.record(op, err)
		return err
	}
	if q.Status == to {
		return nil
	}
	if !domain.CanTransition(q.Status, to) {
		err := domain.NewValidationError("cannot "+op+" question",
			domain.FieldError{Field: "status", Error: "question is " + string(q.Status)})
		c.record(op, err)
		return err
	}

	if err := send(ctx, q.SessionID, q.QuestionID); err != nil {
		c.log.Warn("review mutation failed", "op", op, "question_id", questionID, "session_id", q.SessionID, "error", err)
		c.record(op, err)
		return err
	}

	applied := c.store.UpdateQuestion(questionID, func(cur *domain.Question) {
		if domain.CanTransition(cur.Status, to) {
			cur.Status = to
		}
	})
	if !applied {
		c.log.Warn("question left the active view during review, local state not updated",
			"op", op, "question_id", questionID, "session_id", q.SessionID)
	}
	c.record(op, nil)
	return nil
}

// Edit sends the fields of patch that differ from the stored question and
// merges the result. Status never changes.
func (c *Controller) Edit(ctx context.Context, questionID string, patch domain.QuestionPatch) error {
	const op = "edit"

	q, err := c.resolve(questionID)
	if err != nil {
		c.record(op, err)
		return err
	}
	diff := patch.Diff(&q)
	if diff.Empty() {
		return nil
	}

	merged := q.Clone()
	diff.ApplyTo(&merged)
	if err := merged.Validate(); err != nil {
		c.record(op, err)
		return err
	}

	updated, err := c.backend.UpdateQuestion(ctx, q.SessionID, q.QuestionID, diff)
	if err != nil {
		c.log.Warn("question edit failed", "question_id", questionID, "session_id", q.SessionID, "error", err)
		c.record(op, err)
		return err
	}

	// The backend version may echo only some fields; it overrides the
	// submitted ones it carries.
	var echoed domain.QuestionPatch
	if updated != nil {
		echoed = domain.PatchFrom(updated)
		check := merged.Clone()
		echoed.ApplyTo(&check)
		if err := check.Validate(); err != nil {
			c.log.Warn("backend returned an inconsistent question, keeping submitted fields",
				"question_id", questionID, "error", err)
			echoed = domain.QuestionPatch{}
		}
	}
	applied := c.store.UpdateQuestion(questionID, func(cur *domain.Question) {
		diff.ApplyTo(cur)
		echoed.ApplyTo(cur)
	})
	if !applied {
		c.log.Warn("question left the active view during review, local state not updated",
			"op", op, "question_id", questionID, "session_id", q.SessionID)
	}
	c.record(op, nil)
	return nil
}

// ApproveAll approves every question pending at call time. Each question
// succeeds or fails on its own; results follow list order.
func (c *Controller) ApproveAll(ctx context.Context) []ItemResult {
	ids := c.store.PendingQuestionIDs()
	results := make([]ItemResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, id := range ids {
		results[i].QuestionID = id
		g.Go(func() error {
			results[i].Err = c.Approve(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	if failed := len(Failures(results)); failed > 0 {
		c.log.Warn("bulk approval finished with failures", "total", len(ids), "failed", failed)
	}
	return results
}

func (c *Controller) resolve(questionID string) (domain.Question, error) {
	q, ok := c.store.Question(questionID)
	if !ok {
		return domain.Question{}, errors.Wrapf(domain.ErrQuestionNotFound, "question %s", questionID)
	}
	if q.SessionID == "" {
		return domain.Question{}, &domain.RoutingError{QuestionID: questionID}
	}
	return q, nil
}

func (c *Controller) record(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case domain.IsValidation(err), domain.IsRouting(err), errors.Is(err, domain.ErrQuestionNotFound):
		outcome = "invalid"
	case domain.IsBackendRejection(err):
		outcome = "rejected"
	default:
		outcome = "transport"
	}
	c.metrics.ReviewMutation(op, outcome)
}
