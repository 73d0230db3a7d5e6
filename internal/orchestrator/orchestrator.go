// Package orchestrator owns the generation lifecycle: it opens backend
// streams, folds them into the live draft, switches between the live draft
// and historical sessions, and routes review commands to whichever view is
// active.
package orchestrator

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/draft"
	"github.com/johnmikel306/learntrack-sub002/internal/metrics"
	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
	"github.com/johnmikel306/learntrack-sub002/internal/registry"
	"github.com/johnmikel306/learntrack-sub002/internal/review"
	"github.com/johnmikel306/learntrack-sub002/internal/stream"
)

// Backend is everything the orchestrator needs from the generation backend.
type Backend interface {
	registry.Backend
	review.Mutator
	GenerateStream(ctx context.Context, req *domain.GenerateRequest) (io.ReadCloser, error)
}

// Mode names the view currently shown.
type Mode string

const (
	ModeIdle       Mode = "idle"
	ModeLive       Mode = "live"
	ModeHistorical Mode = "historical"
)

// View is a point-in-time copy of the orchestrator state.
type View struct {
	// Version increases with every change delivered to subscribers.
	Version      uint64          `json:"version"`
	Mode         Mode            `json:"mode"`
	IsGenerating bool            `json:"is_generating"`
	Draft        *draft.State    `json:"draft,omitempty"`
	Session      *domain.Session `json:"session,omitempty"`
	LastError    error           `json:"-"`
}

// Deps holds the orchestrator's collaborators and limits.
type Deps struct {
	Backend           Backend
	Log               *logger.Logger
	Metrics           *metrics.Metrics
	MaxQuestions      int
	ApproveAllWorkers int
	// StreamTimeout bounds a whole generation stream. Zero means no bound.
	StreamTimeout time.Duration
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	backend       Backend
	registry      *registry.Registry
	review        *review.Controller
	log           *logger.Logger
	metrics       *metrics.Metrics
	maxQuestions  int
	streamTimeout time.Duration

	mu         sync.Mutex
	epoch      uint64
	cancel     context.CancelFunc
	done       chan struct{}
	generating bool
	mode       Mode
	draft      *draft.State
	session    *domain.Session
	lastErr    error
	version    uint64

	// notifyMu serializes snapshot and delivery so subscribers see views
	// in version order.
	notifyMu sync.Mutex
	subMu    sync.Mutex
	nextSub int
	subs    map[int]func(View)
}

func New(deps Deps) *Orchestrator {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "orchestrator")

	o := &Orchestrator{
		backend:       deps.Backend,
		registry:      registry.New(deps.Backend, log),
		log:           log,
		metrics:       deps.Metrics,
		maxQuestions:  deps.MaxQuestions,
		streamTimeout: deps.StreamTimeout,
		mode:          ModeIdle,
		subs:          make(map[int]func(View)),
	}
	o.review = review.New(viewStore{o}, deps.Backend, log,
		review.WithConcurrency(deps.ApproveAllWorkers),
		review.WithMetrics(deps.Metrics),
	)
	return o
}

// Generate starts a new generation, replacing any generation in flight.
// It returns once the stream is open; events are consumed in the
// background. Validation failures send nothing.
func (o *Orchestrator) Generate(ctx context.Context, req domain.GenerateRequest) error {
	if err := domain.ValidateGenerateRequest(&req, o.maxQuestions); err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if o.streamTimeout > 0 {
		var cancelTimeout context.CancelFunc
		streamCtx, cancelTimeout = context.WithTimeout(streamCtx, o.streamTimeout)
		parent := cancel
		cancel = func() {
			cancelTimeout()
			parent()
		}
	}
	done := make(chan struct{})

	o.mu.Lock()
	o.endLocked("superseded")
	o.epoch++
	epoch := o.epoch
	o.cancel = cancel
	o.done = done
	o.generating = true
	o.mode = ModeLive
	o.draft = draft.New(req.QuestionCount)
	o.session = nil
	o.lastErr = nil
	o.mu.Unlock()

	o.registry.Forget()
	o.metrics.GenerationStarted()
	o.log.Info("generation started", "question_count", req.QuestionCount, "materials", len(req.MaterialIDs))
	o.notify()

	body, err := o.backend.GenerateStream(streamCtx, &req)
	if err != nil {
		if !domain.IsTransport(err) {
			err = &domain.TransportError{Op: "generate", Err: err}
		}
		o.mu.Lock()
		if o.epoch == epoch {
			o.lastErr = err
			o.draft.Fail(err.Error())
			o.endLocked("failed")
		}
		o.mu.Unlock()
		close(done)
		cancel()
		o.log.Error("generation stream failed to open", "error", err)
		o.notify()
		return err
	}

	go o.consume(epoch, body, cancel, done)
	return nil
}

func (o *Orchestrator) consume(epoch uint64, body io.ReadCloser, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()
	defer body.Close()

	dec := stream.NewDecoder(o.log, o.metrics)
	var readErr error
	for ev, err := range dec.Events(body) {
		if err != nil {
			readErr = err
			break
		}
		if !o.apply(epoch, ev) {
			return
		}
	}
	o.finish(epoch, readErr)
}

// apply folds one event into the live draft. It reports false once the
// generation has been replaced or stopped.
func (o *Orchestrator) apply(epoch uint64, ev domain.GenerationEvent) bool {
	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return false
	}
	if err := o.draft.Apply(ev); err != nil {
		o.log.Debug("event not applied", "type", ev.Type, "error", err)
	}
	o.mu.Unlock()

	o.notify()
	return true
}

func (o *Orchestrator) finish(epoch uint64, readErr error) {
	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return
	}

	outcome := "completed"
	switch {
	case o.draft.Failed:
		outcome = "failed"
		o.lastErr = errors.New(o.draft.Error)
	case o.draft.Done:
		if o.draft.Partial {
			outcome = "partial"
		}
	default:
		if readErr == nil {
			readErr = io.ErrUnexpectedEOF
		}
		outcome = "interrupted"
		o.lastErr = &domain.TransportError{Op: "generate stream", Err: readErr}
		o.draft.Fail(o.lastErr.Error())
	}
	sessionID := o.draft.SessionID
	count := len(o.draft.Questions)
	lastErr := o.lastErr
	o.endLocked(outcome)
	o.mu.Unlock()

	if lastErr != nil {
		o.log.Warn("generation ended", "outcome", outcome, "session_id", sessionID, "questions", count, "error", lastErr)
	} else {
		o.log.Info("generation ended", "outcome", outcome, "session_id", sessionID, "questions", count)
	}
	o.notify()
}

// endLocked marks the in-flight generation finished. Events still arriving
// on its stream are dropped. o.mu must be held.
func (o *Orchestrator) endLocked(outcome string) {
	if !o.generating {
		return
	}
	o.generating = false
	o.epoch++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.metrics.GenerationFinished(outcome)
}

// Stop cancels the generation in flight. Questions already completed stay
// in the draft. Calling Stop when nothing is generating does nothing.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.generating {
		o.mu.Unlock()
		return
	}
	o.draft.Stop()
	count := len(o.draft.Questions)
	o.endLocked("stopped")
	o.mu.Unlock()

	o.log.Info("generation stopped", "questions", count)
	o.notify()
}

// Wait blocks until the most recent generation's stream goroutine exits.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close stops any generation and waits for its stream to be released.
func (o *Orchestrator) Close() {
	o.Stop()
	o.Wait()
}

// Sessions lists past sessions, newest first.
func (o *Orchestrator) Sessions(ctx context.Context) ([]domain.Session, error) {
	return o.registry.List(ctx)
}

// SelectHistorical shows a past session for review. A live generation keeps
// streaming into its draft in the background.
func (o *Orchestrator) SelectHistorical(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	generating := o.generating
	o.mu.Unlock()
	if generating {
		o.log.Warn("selecting a past session while a generation is running", "session_id", sessionID)
	}

	s, err := o.registry.Select(ctx, sessionID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.mode = ModeHistorical
	o.session = s
	o.lastErr = nil
	o.mu.Unlock()

	o.notify()
	return nil
}

// DeleteSession deletes a session. When it is the session on screen, the
// view is cleared; a generation still writing to it is stopped first.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) error {
	wasSelected, err := o.registry.Delete(ctx, sessionID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if wasSelected || (o.session != nil && o.session.SessionID == sessionID) {
		o.session = nil
		if o.mode == ModeHistorical {
			o.mode = ModeIdle
		}
	}
	if o.draft != nil && o.draft.SessionID == sessionID {
		o.draft.Stop()
		o.endLocked("stopped")
		o.draft = nil
		if o.mode == ModeLive {
			o.mode = ModeIdle
		}
	}
	o.mu.Unlock()

	o.notify()
	return nil
}

func (o *Orchestrator) Approve(ctx context.Context, questionID string) error {
	return o.review.Approve(ctx, questionID)
}

func (o *Orchestrator) Reject(ctx context.Context, questionID string) error {
	return o.review.Reject(ctx, questionID)
}

func (o *Orchestrator) Edit(ctx context.Context, questionID string, patch domain.QuestionPatch) error {
	return o.review.Edit(ctx, questionID, patch)
}

func (o *Orchestrator) ApproveAll(ctx context.Context) []review.ItemResult {
	return o.review.ApproveAll(ctx)
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() View {
	v := View{Version: o.version, Mode: o.mode, IsGenerating: o.generating, LastError: o.lastErr}
	if o.draft != nil {
		d := o.draft.Snapshot()
		v.Draft = &d
	}
	if o.session != nil {
		s := o.session.Clone()
		v.Session = &s
	}
	return v
}

// Subscribe registers fn to receive a snapshot after every state change.
// Calls are made one at a time in version order, outside the state lock;
// fn may read Snapshot but must not call methods that change state. The
// returned function removes the subscription.
func (o *Orchestrator) Subscribe(fn func(View)) func() {
	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.subMu.Unlock()

	return func() {
		o.subMu.Lock()
		delete(o.subs, id)
		o.subMu.Unlock()
	}
}

func (o *Orchestrator) notify() {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	o.version++
	v := o.snapshotLocked()
	o.mu.Unlock()

	o.subMu.Lock()
	fns := make([]func(View), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.subMu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// activeQuestionsLocked returns the question list of the active view.
func (o *Orchestrator) activeQuestionsLocked() []*domain.Question {
	switch o.mode {
	case ModeLive:
		if o.draft != nil {
			return o.draft.Questions
		}
	case ModeHistorical:
		if o.session != nil {
			return o.session.Questions
		}
	}
	return nil
}

// viewStore exposes the active view to the review controller.
type viewStore struct{ o *Orchestrator }

func (s viewStore) Question(id string) (domain.Question, bool) {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	for _, q := range s.o.activeQuestionsLocked() {
		if q.QuestionID == id {
			return q.Clone(), true
		}
	}
	return domain.Question{}, false
}

func (s viewStore) UpdateQuestion(id string, fn func(*domain.Question)) bool {
	s.o.mu.Lock()
	var updated *domain.Question
	for _, q := range s.o.activeQuestionsLocked() {
		if q.QuestionID == id {
			fn(q)
			c := q.Clone()
			updated = &c
			break
		}
	}
	if updated != nil && s.o.mode == ModeHistorical {
		s.o.session.Recount()
	}
	s.o.mu.Unlock()

	if updated == nil {
		return false
	}
	s.o.registry.Update(*updated)
	s.o.notify()
	return true
}

func (s viewStore) PendingQuestionIDs() []string {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	var ids []string
	for _, q := range s.o.activeQuestionsLocked() {
		if q.Status == domain.QuestionStatusPending || q.Status == "" {
			ids = append(ids, q.QuestionID)
		}
	}
	return ids
}
