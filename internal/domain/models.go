package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Question is one generated item under review.
type Question struct {
	QuestionID    string         `json:"question_id"`
	SessionID     string         `json:"session_id,omitempty"`
	Type          QuestionType   `json:"question_type"`
	Difficulty    Difficulty     `json:"difficulty"`
	Text          string         `json:"question_text"`
	Options       []string       `json:"options,omitempty"`
	CorrectAnswer string         `json:"correct_answer"`
	Explanation   string         `json:"explanation,omitempty"`
	BloomsLevel   string         `json:"blooms_level,omitempty"`
	Points        int            `json:"points,omitempty"`
	Status        QuestionStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at,omitzero"`
}

// wireQuestion accepts the field spellings seen on the generation stream.
type wireQuestion struct {
	ID            string          `json:"id"`
	QuestionID    string          `json:"question_id"`
	SessionID     string          `json:"session_id"`
	Type          string          `json:"type"`
	QuestionType  string          `json:"question_type"`
	Difficulty    string          `json:"difficulty"`
	Text          string          `json:"text"`
	QuestionText  string          `json:"question_text"`
	Options       []string        `json:"options"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	Explanation   string          `json:"explanation"`
	BloomsLevel   string          `json:"blooms_level"`
	Points        int             `json:"points"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// UnmarshalJSON decodes a question, tolerating alias field names and a
// numeric correct_answer that indexes into options.
func (q *Question) UnmarshalJSON(data []byte) error {
	var w wireQuestion
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*q = Question{
		QuestionID:  firstNonEmpty(w.QuestionID, w.ID),
		SessionID:   w.SessionID,
		Type:        ParseQuestionType(firstNonEmpty(w.QuestionType, w.Type)),
		Difficulty:  ParseDifficulty(w.Difficulty),
		Text:        firstNonEmpty(w.QuestionText, w.Text),
		Options:     w.Options,
		Explanation: w.Explanation,
		BloomsLevel: w.BloomsLevel,
		Points:      w.Points,
		Status:      QuestionStatus(strings.ToLower(w.Status)),
		CreatedAt:   w.CreatedAt,
	}
	answer, err := decodeAnswer(w.CorrectAnswer, w.Options)
	if err != nil {
		return err
	}
	q.CorrectAnswer = answer
	return nil
}

func decodeAnswer(raw json.RawMessage, options []string) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var idx int
	if err := json.Unmarshal(raw, &idx); err == nil {
		if idx >= 0 && idx < len(options) {
			return options[idx], nil
		}
		return strconv.Itoa(idx), nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return "", err
	}
	if b {
		return "True", nil
	}
	return "False", nil
}

// Validate checks the structural invariants of a question.
func (q *Question) Validate() error {
	var fields []FieldError
	if strings.TrimSpace(q.Text) == "" {
		fields = append(fields, FieldError{Field: "question_text", Error: "this field is required"})
	}
	if len(q.Options) > 0 && !q.hasOption(q.CorrectAnswer) {
		fields = append(fields, FieldError{Field: "correct_answer", Error: "must match one of the options"})
	}
	if len(fields) > 0 {
		return NewValidationError("invalid question", fields...)
	}
	return nil
}

func (q *Question) hasOption(answer string) bool {
	for _, opt := range q.Options {
		if opt == answer {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the question.
func (q *Question) Clone() Question {
	c := *q
	if q.Options != nil {
		c.Options = append([]string(nil), q.Options...)
	}
	return c
}

// Source is a reference material excerpt discovered during generation.
type Source struct {
	ID      string `json:"source_id"`
	Title   string `json:"source_title"`
	Excerpt string `json:"source_excerpt,omitempty"`
}

// Session is the durable record of a single generation request.
type Session struct {
	SessionID      string        `json:"session_id"`
	Prompt         string        `json:"prompt"`
	CreatedAt      time.Time     `json:"created_at"`
	Status         SessionStatus `json:"status"`
	TotalQuestions int           `json:"total_questions"`
	ApprovedCount  int           `json:"approved_count"`
	PendingCount   int           `json:"pending_count"`
	RejectedCount  int           `json:"rejected_count"`
	Questions      []*Question   `json:"questions,omitempty"`
}

// Recount derives the cached counts from the question list. Sessions without
// an embedded question list keep the counts the backend reported.
func (s *Session) Recount() {
	if s.Questions == nil {
		return
	}
	s.TotalQuestions = len(s.Questions)
	s.ApprovedCount, s.PendingCount, s.RejectedCount = 0, 0, 0
	for _, q := range s.Questions {
		switch q.Status {
		case QuestionStatusApproved:
			s.ApprovedCount++
		case QuestionStatusRejected:
			s.RejectedCount++
		default:
			s.PendingCount++
		}
	}
}

// StampQuestions propagates the session id onto every question.
func (s *Session) StampQuestions() {
	for _, q := range s.Questions {
		q.SessionID = s.SessionID
		if q.Status == "" {
			q.Status = QuestionStatusPending
		}
	}
}

// Summary returns a copy of the session without its question list.
func (s *Session) Summary() Session {
	c := *s
	c.Questions = nil
	return c
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() Session {
	c := *s
	if s.Questions != nil {
		c.Questions = make([]*Question, len(s.Questions))
		for i, q := range s.Questions {
			qc := q.Clone()
			c.Questions[i] = &qc
		}
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

// Material is reference content a generation can draw questions from.
type Material struct {
	MaterialID string    `json:"material_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Source returns the material as a generation source with a short excerpt.
func (m *Material) Source(excerptLen int) Source {
	excerpt := m.Content
	if r := []rune(excerpt); excerptLen > 0 && len(r) > excerptLen {
		excerpt = strings.TrimSpace(string(r[:excerptLen])) + "..."
	}
	return Source{ID: m.MaterialID, Title: m.Title, Excerpt: excerpt}
}
