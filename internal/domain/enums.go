// Package domain defines the core domain models for question generation and review.
package domain

import "strings"

// QuestionType is the kind of a generated question.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple-choice"
	QuestionTypeTrueFalse      QuestionType = "true-false"
	QuestionTypeShortAnswer    QuestionType = "short-answer"
	QuestionTypeEssay          QuestionType = "essay"
)

// ParseQuestionType normalises the spellings the backend and the UI use.
// Unknown values are returned lowercased and hyphenated rather than dropped.
func ParseQuestionType(s string) QuestionType {
	key := normaliseTag(s)
	switch key {
	case "multiple-choice", "mcq", "multiplechoice", "choice", "mc":
		return QuestionTypeMultipleChoice
	case "true-false", "truefalse", "tf", "boolean":
		return QuestionTypeTrueFalse
	case "short-answer", "shortanswer", "short", "sa":
		return QuestionTypeShortAnswer
	case "essay", "long-answer":
		return QuestionTypeEssay
	}
	return QuestionType(key)
}

// Known reports whether t is one of the closed set of question types.
func (t QuestionType) Known() bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeTrueFalse, QuestionTypeShortAnswer, QuestionTypeEssay:
		return true
	}
	return false
}

// HasOptions reports whether questions of this type carry an options list.
func (t QuestionType) HasOptions() bool {
	return t == QuestionTypeMultipleChoice || t == QuestionTypeTrueFalse
}

// Difficulty is the requested or assigned difficulty of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty normalises a difficulty string.
func ParseDifficulty(s string) Difficulty {
	return Difficulty(normaliseTag(s))
}

// Known reports whether d is one of the closed set of difficulties.
func (d Difficulty) Known() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// QuestionStatus is the review status of a question.
type QuestionStatus string

const (
	QuestionStatusPending  QuestionStatus = "pending"
	QuestionStatusApproved QuestionStatus = "approved"
	QuestionStatusRejected QuestionStatus = "rejected"
)

// CanTransition reports whether a question may move from one status to another.
// Approved and rejected are terminal; the only self-loops allowed on them are no-ops.
func CanTransition(from, to QuestionStatus) bool {
	if from == "" {
		from = QuestionStatusPending
	}
	if from == to {
		return true
	}
	return from == QuestionStatusPending && (to == QuestionStatusApproved || to == QuestionStatusRejected)
}

// SessionStatus represents the status of a generation session.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// Terminal reports whether the session will not receive more questions.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// GenerationEventType is the tag of a streamed generation event.
type GenerationEventType string

const (
	EventSessionStarted    GenerationEventType = "session_started"
	EventThinkingStep      GenerationEventType = "thinking_step"
	EventActionStarted     GenerationEventType = "action_started"
	EventSourceFound       GenerationEventType = "source_found"
	EventContentChunk      GenerationEventType = "content_chunk"
	EventQuestionCompleted GenerationEventType = "question_completed"
	EventStreamDone        GenerationEventType = "stream_done"
	EventError             GenerationEventType = "error"
)

// ParseEventType maps a wire tag onto a known event type.
func ParseEventType(s string) (GenerationEventType, bool) {
	switch strings.ReplaceAll(normaliseTag(s), "-", "_") {
	case "session_started", "session_start", "session":
		return EventSessionStarted, true
	case "thinking_step", "thinking":
		return EventThinkingStep, true
	case "action_started", "action":
		return EventActionStarted, true
	case "source_found", "source":
		return EventSourceFound, true
	case "content_chunk", "content", "delta":
		return EventContentChunk, true
	case "question_completed", "question_complete", "question":
		return EventQuestionCompleted, true
	case "stream_done", "done", "complete", "completed":
		return EventStreamDone, true
	case "error":
		return EventError, true
	}
	return "", false
}

func normaliseTag(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "_", "-")
}
