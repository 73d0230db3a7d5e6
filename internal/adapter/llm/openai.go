package llm

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
)

// OpenAIGenerator writes questions with the OpenAI chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	log    *logger.Logger
}

var _ QuestionGenerator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates a generator. An empty baseURL uses the public API.
func NewOpenAIGenerator(apiKey, baseURL, model string, log *logger.Logger) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if model == "" {
		model = openai.GPT4o
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    log.With("component", "llm.OpenAIGenerator"),
	}
}

// GenerateQuestion streams one JSON question from the model.
func (g *OpenAIGenerator) GenerateQuestion(ctx context.Context, brief QuestionBrief, onDelta func(string) error) (*domain.Question, error) {
	model := g.model
	if brief.Model != "" {
		model = brief.Model
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(brief)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Stream: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open completion stream")
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read completion stream")
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return nil, err
			}
		}
	}

	g.log.Debug("completion received", "model", model, "index", brief.Index, "bytes", sb.Len())
	return parseQuestion(sb.String(), brief)
}

func parseQuestion(raw string, brief QuestionBrief) (*domain.Question, error) {
	raw = strings.TrimSpace(raw)
	// Some models wrap JSON in a fenced block despite the response format.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var q domain.Question
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, errors.Wrap(err, "parse model output")
	}
	finalize(&q, brief)
	if err := q.Validate(); err != nil {
		return nil, errors.Wrap(err, "model produced an invalid question")
	}
	return &q, nil
}
