// Package llm provides the language model question generators.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

// QuestionGenerator writes one question at a time.
type QuestionGenerator interface {
	// GenerateQuestion produces the question described by brief. onDelta is
	// called with each fragment of raw model output as it arrives.
	GenerateQuestion(ctx context.Context, brief QuestionBrief, onDelta func(string) error) (*domain.Question, error)
}

// QuestionBrief describes the question to write.
type QuestionBrief struct {
	Prompt      string
	Type        domain.QuestionType
	Difficulty  domain.Difficulty
	BloomsLevel string
	Model       string
	// Index is the 1-based position of the question in the session.
	Index int
	Total int
	// Materials supply reference content.
	Materials []domain.Material
	// Previous holds the texts of questions already written, to avoid repeats.
	Previous []string
}

const systemPrompt = "You are an expert teacher writing assessment questions. " +
	"Reply with a single JSON object and nothing else."

func buildPrompt(brief QuestionBrief) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Write question %d of %d", brief.Index, brief.Total)
	if brief.Prompt != "" {
		fmt.Fprintf(&sb, " about: %s", brief.Prompt)
	}
	sb.WriteString("\n\n")

	for _, m := range brief.Materials {
		fmt.Fprintf(&sb, "Reference material %q:\n%s\n\n", m.Title, m.Content)
	}

	fmt.Fprintf(&sb, "Question type: %s\n", brief.Type)
	if brief.Difficulty != "" {
		fmt.Fprintf(&sb, "Difficulty level: %s\n", brief.Difficulty)
	}
	if brief.BloomsLevel != "" {
		fmt.Fprintf(&sb, "Bloom's taxonomy level: %s\n", brief.BloomsLevel)
	}
	if len(brief.Previous) > 0 {
		sb.WriteString("\nDo not repeat any of these questions:\n")
		for _, p := range brief.Previous {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}

	sb.WriteString("\nRequirements:\n")
	switch brief.Type {
	case domain.QuestionTypeMultipleChoice:
		sb.WriteString("- Give exactly 4 options; correct_answer must be the text of one of them\n")
	case domain.QuestionTypeTrueFalse:
		sb.WriteString("- options must be [\"True\", \"False\"]; correct_answer is one of them\n")
	default:
		sb.WriteString("- Leave options empty; correct_answer is a model answer\n")
	}
	sb.WriteString("- Provide a brief explanation for why the answer is right\n")
	sb.WriteString("- Respond with JSON: {\"question_text\": string, \"options\": [string], \"correct_answer\": string, \"explanation\": string}\n")

	return sb.String()
}

// finalize fills the fields the model is not asked for.
func finalize(q *domain.Question, brief QuestionBrief) {
	q.Type = brief.Type
	if q.Difficulty == "" {
		q.Difficulty = brief.Difficulty
	}
	if q.BloomsLevel == "" {
		q.BloomsLevel = brief.BloomsLevel
	}
	if q.Points == 0 {
		q.Points = 1
	}
	q.Status = domain.QuestionStatusPending
}
