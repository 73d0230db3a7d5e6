package llm

import (
	"strings"
	"time"

	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
)

const (
	// ModeMock selects the canned generator.
	ModeMock = "MOCK"
	// ModeOpenAI selects the OpenAI generator.
	ModeOpenAI = "OPENAI"
)

// Options configure NewGenerator.
type Options struct {
	Mode      string
	APIKey    string
	BaseURL   string
	Model     string
	MockDelay time.Duration
}

// NewGenerator picks a generator by mode. Without an API key the mock is
// used whatever the mode.
func NewGenerator(opts Options, log *logger.Logger) QuestionGenerator {
	if log == nil {
		log = logger.Nop()
	}
	mode := strings.ToUpper(strings.TrimSpace(opts.Mode))
	if mode == ModeMock || opts.APIKey == "" {
		log.Info("using mock question generator", "mode", mode)
		return NewMockGenerator(opts.MockDelay)
	}
	log.Info("using OpenAI question generator", "model", opts.Model)
	return NewOpenAIGenerator(opts.APIKey, opts.BaseURL, opts.Model, log)
}
