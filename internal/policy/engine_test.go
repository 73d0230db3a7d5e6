package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name     string
		req      domain.GenerateRequest
		decision string
		reason   string
	}{
		{"within limit", domain.GenerateRequest{Prompt: "cells", QuestionCount: 5}, DecisionAllow, ""},
		{"known provider", domain.GenerateRequest{Prompt: "cells", QuestionCount: 5, Provider: "OpenAI"}, DecisionAllow, ""},
		{"over limit", domain.GenerateRequest{Prompt: "cells", QuestionCount: 30}, DecisionDeny, "question_count 30 exceeds the maximum of 20"},
		{"unknown provider", domain.GenerateRequest{Prompt: "cells", QuestionCount: 1, Provider: "acme"}, DecisionDeny, "unknown provider acme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, reason, err := engine.Evaluate(ctx, InputFor(&tt.req, 20))
			require.NoError(t, err)
			assert.Equal(t, tt.decision, decision)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestBothDenialsAreReported(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	decision, reason, err := engine.Evaluate(ctx, InputFor(&domain.GenerateRequest{QuestionCount: 9, Provider: "acme"}, 5))
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, decision)
	assert.Contains(t, reason, "unknown provider")
	assert.Contains(t, reason, "exceeds")
}

func TestStringDecision(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, `
package generation_policy

default decision = "allow"

decision = "deny" {
	input.material_count == 0
}
`)
	require.NoError(t, err)

	decision, _, err := engine.Evaluate(ctx, InputFor(&domain.GenerateRequest{Prompt: "x", QuestionCount: 1}, 0))
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, decision)
}

func TestLoadEngine(t *testing.T) {
	ctx := context.Background()

	_, err := LoadEngine(ctx, "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "policy.rego")
	require.NoError(t, os.WriteFile(path, []byte("package generation_policy\n\ndecision = \"deny\"\n"), 0o600))
	engine, err := LoadEngine(ctx, path)
	require.NoError(t, err)
	decision, _, err := engine.Evaluate(ctx, Input{})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, decision)

	_, err = LoadEngine(ctx, filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)

	_, err = NewEngine(ctx, "package generation_policy\n\ndecision = {")
	assert.Error(t, err)
}
