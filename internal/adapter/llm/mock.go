package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

// MockGenerator writes deterministic questions without calling a model.
type MockGenerator struct {
	// Delay is slept between streamed chunks.
	Delay time.Duration
}

var _ QuestionGenerator = (*MockGenerator)(nil)

func NewMockGenerator(delay time.Duration) *MockGenerator {
	return &MockGenerator{Delay: delay}
}

// GenerateQuestion streams a canned question in chunks.
func (m *MockGenerator) GenerateQuestion(ctx context.Context, brief QuestionBrief, onDelta func(string) error) (*domain.Question, error) {
	topic := brief.Prompt
	if topic == "" && len(brief.Materials) > 0 {
		topic = brief.Materials[0].Title
	}
	if topic == "" {
		topic = "the material"
	}

	q := domain.Question{
		Text:        fmt.Sprintf("[MOCK] Question %d about %s?", brief.Index, truncate(topic, 60)),
		Explanation: "This is a mock explanation.",
	}
	switch brief.Type {
	case domain.QuestionTypeMultipleChoice:
		q.Options = []string{"Option A", "Option B", "Option C", "Option D"}
		q.CorrectAnswer = q.Options[(brief.Index-1+len(q.Options))%len(q.Options)]
	case domain.QuestionTypeTrueFalse:
		q.Options = []string{"True", "False"}
		q.CorrectAnswer = "True"
	default:
		q.CorrectAnswer = "A model answer."
	}

	raw, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	for _, chunk := range splitIntoChunks(string(raw), 24) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if onDelta != nil {
			if err := onDelta(chunk); err != nil {
				return nil, err
			}
		}
		if m.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.Delay):
			}
		}
	}

	finalize(&q, brief)
	return &q, nil
}

// splitIntoChunks splits a string into chunks of approximately the given size.
func splitIntoChunks(s string, chunkSize int) []string {
	if len(s) == 0 {
		return []string{""}
	}

	var chunks []string
	for i := 0; i < len(s); i += chunkSize {
		end := min(i+chunkSize, len(s))
		chunks = append(chunks, s[i:end])
	}
	return chunks
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
