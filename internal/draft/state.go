// Package draft folds a generation event stream into the in-memory draft
// shown while a generation runs.
package draft

import (
	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

// MaxThinkingSteps is the number of thinking steps kept in the trace.
const MaxThinkingSteps = 5

var (
	// ErrStreamClosed is returned for events applied after the terminal state.
	ErrStreamClosed = errors.New("draft: stream already finished")
	// ErrDuplicateSession is returned for a second session_started naming another session.
	ErrDuplicateSession = errors.New("draft: stream already bound to a session")
)

// Progress counts completed questions against the requested total.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// State is the draft of one generation.
type State struct {
	SessionID     string             `json:"session_id,omitempty"`
	ThinkingSteps []string           `json:"thinking_steps"`
	CurrentAction string             `json:"current_action,omitempty"`
	FoundSources  []domain.Source    `json:"found_sources"`
	StreamingText string             `json:"streaming_text"`
	Questions     []*domain.Question `json:"questions"`
	Progress      Progress           `json:"progress"`

	// Done is set once the stream has ended for any reason.
	Done bool `json:"done"`
	// Partial is set when the stream ended before Progress.Total questions arrived.
	Partial bool   `json:"partial"`
	Failed  bool   `json:"failed"`
	Error   string `json:"error,omitempty"`
}

// New returns an empty draft expecting total questions. A non-positive
// total means the count is unknown and progress is not clamped.
func New(total int) *State {
	if total < 0 {
		total = 0
	}
	return &State{
		ThinkingSteps: []string{},
		FoundSources:  []domain.Source{},
		Questions:     []*domain.Question{},
		Progress:      Progress{Total: total},
	}
}

// Fold applies events in order to a fresh draft. Events rejected by Apply
// are skipped.
func Fold(total int, events []domain.GenerationEvent) *State {
	s := New(total)
	for _, ev := range events {
		_ = s.Apply(ev)
	}
	return s
}

// Apply folds one event into the draft.
func (s *State) Apply(ev domain.GenerationEvent) error {
	if s.Done {
		return ErrStreamClosed
	}

	switch ev.Type {
	case domain.EventSessionStarted:
		if s.SessionID != "" && ev.SessionID != s.SessionID {
			return ErrDuplicateSession
		}
		s.SessionID = ev.SessionID

	case domain.EventThinkingStep:
		s.ThinkingSteps = append(s.ThinkingSteps, ev.Text)
		if n := len(s.ThinkingSteps); n > MaxThinkingSteps {
			s.ThinkingSteps = append([]string(nil), s.ThinkingSteps[n-MaxThinkingSteps:]...)
		}

	case domain.EventActionStarted:
		s.CurrentAction = ev.Text

	case domain.EventSourceFound:
		if ev.Source != nil {
			s.FoundSources = append(s.FoundSources, *ev.Source)
		}

	case domain.EventContentChunk:
		s.StreamingText += ev.Text

	case domain.EventQuestionCompleted:
		s.appendQuestion(ev)

	case domain.EventStreamDone:
		s.CurrentAction = ""
		s.finish()

	case domain.EventError:
		msg := ev.Message
		if msg == "" {
			msg = "generation failed"
		}
		s.Fail(msg)
	}
	return nil
}

func (s *State) appendQuestion(ev domain.GenerationEvent) {
	var q domain.Question
	if ev.Question != nil {
		q = ev.Question.Clone()
	}
	if q.SessionID == "" {
		q.SessionID = firstNonEmpty(s.SessionID, ev.SessionID)
	}
	q.Status = domain.QuestionStatusPending

	s.Questions = append(s.Questions, &q)
	s.StreamingText = ""
	s.CurrentAction = ""
	if s.Progress.Total == 0 || s.Progress.Current < s.Progress.Total {
		s.Progress.Current++
	}
}

func (s *State) finish() {
	s.Done = true
	s.Partial = s.Progress.Total > 0 && s.Progress.Current < s.Progress.Total
}

// Fail ends the draft after a backend-reported or transport failure. Every
// question materialised so far is kept.
func (s *State) Fail(msg string) {
	if s.Done {
		return
	}
	s.CurrentAction = ""
	s.Failed = true
	s.Error = msg
	s.finish()
}

// Stop ends the draft after a caller cancellation. It is not a failure.
func (s *State) Stop() {
	if s.Done {
		return
	}
	s.CurrentAction = ""
	s.finish()
}

// Question returns the draft's question with the given id.
func (s *State) Question(id string) *domain.Question {
	for _, q := range s.Questions {
		if q.QuestionID == id {
			return q
		}
	}
	return nil
}

// Snapshot returns a deep copy of the draft.
func (s *State) Snapshot() State {
	c := *s
	c.ThinkingSteps = append([]string{}, s.ThinkingSteps...)
	c.FoundSources = append([]domain.Source{}, s.FoundSources...)
	c.Questions = make([]*domain.Question, len(s.Questions))
	for i, q := range s.Questions {
		qc := q.Clone()
		c.Questions[i] = &qc
	}
	return c
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
