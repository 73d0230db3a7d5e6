package domain

// GenerationEvent is one decoded event of a generation stream.
type GenerationEvent struct {
	Type      GenerationEventType
	SessionID string
	// Text carries the thinking step, the action label or the content chunk.
	Text     string
	Source   *Source
	Question *Question
	Message  string
}

// EventRecord is the JSON payload of one "data: " record on the wire.
type EventRecord struct {
	Type          string    `json:"type,omitempty"`
	EventType     string    `json:"event_type,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	Step          string    `json:"step,omitempty"`
	Action        string    `json:"action,omitempty"`
	Label         string    `json:"label,omitempty"`
	SourceID      string    `json:"source_id,omitempty"`
	SourceTitle   string    `json:"source_title,omitempty"`
	SourceExcerpt string    `json:"source_excerpt,omitempty"`
	Content       string    `json:"content,omitempty"`
	QuestionData  *Question `json:"question_data,omitempty"`
	Message       string    `json:"message,omitempty"`
}

// Event converts the record into a typed event. It reports false when the
// tag is unknown or the record lacks the payload its tag requires.
func (r *EventRecord) Event() (GenerationEvent, bool) {
	typ, ok := ParseEventType(firstNonEmpty(r.EventType, r.Type))
	if !ok {
		return GenerationEvent{}, false
	}

	ev := GenerationEvent{Type: typ, SessionID: r.SessionID}
	switch typ {
	case EventSessionStarted:
		if r.SessionID == "" {
			return GenerationEvent{}, false
		}
	case EventThinkingStep:
		ev.Text = firstNonEmpty(r.Step, r.Content)
	case EventActionStarted:
		ev.Text = firstNonEmpty(r.Label, r.Action, r.Step)
	case EventSourceFound:
		ev.Source = &Source{ID: r.SourceID, Title: r.SourceTitle, Excerpt: r.SourceExcerpt}
	case EventContentChunk:
		ev.Text = r.Content
	case EventQuestionCompleted:
		if r.QuestionData == nil {
			return GenerationEvent{}, false
		}
		ev.Question = r.QuestionData
	case EventError:
		ev.Message = firstNonEmpty(r.Message, r.Content)
	}
	return ev, true
}

// NewEventRecord builds the wire record for an event.
func NewEventRecord(ev GenerationEvent) EventRecord {
	r := EventRecord{Type: string(ev.Type), SessionID: ev.SessionID}
	switch ev.Type {
	case EventThinkingStep:
		r.Step = ev.Text
	case EventActionStarted:
		r.Action = ev.Text
	case EventSourceFound:
		if ev.Source != nil {
			r.SourceID = ev.Source.ID
			r.SourceTitle = ev.Source.Title
			r.SourceExcerpt = ev.Source.Excerpt
		}
	case EventContentChunk:
		r.Content = ev.Text
	case EventQuestionCompleted:
		r.QuestionData = ev.Question
	case EventError:
		r.Message = ev.Message
	}
	return r
}
