// Package policy evaluates generation requests against a rego policy.
package policy

import (
	"context"
	"os"

	"github.com/open-policy-agent/opa/rego"
	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a policy engine from rego source defining
// data.generation_policy.decision.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.generation_policy.decision"),
		rego.Module("generation_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "prepare rego")
	}
	return &Engine{query: query}, nil
}

// LoadEngine reads the policy from path, or uses DefaultPolicy when path is empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read policy %s", path)
	}
	return NewEngine(ctx, string(b))
}

// Input is the document a generation request is judged on.
type Input struct {
	Prompt        string   `json:"prompt"`
	QuestionCount int      `json:"question_count"`
	QuestionTypes []string `json:"question_types"`
	Difficulty    string   `json:"difficulty"`
	MaterialCount int      `json:"material_count"`
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	MaxQuestions  int      `json:"max_questions"`
}

// InputFor builds the policy input for a request.
func InputFor(req *domain.GenerateRequest, maxQuestions int) Input {
	types := make([]string, len(req.QuestionTypes))
	for i, t := range req.QuestionTypes {
		types[i] = string(t)
	}
	return Input{
		Prompt:        req.Prompt,
		QuestionCount: req.QuestionCount,
		QuestionTypes: types,
		Difficulty:    string(req.Difficulty),
		MaterialCount: len(req.MaterialIDs),
		Provider:      req.Provider,
		Model:         req.Model,
		MaxQuestions:  maxQuestions,
	}
}

// Evaluate returns the decision (allow or deny) and an optional reason.
// The rule may yield a plain string or an object {decision, reason}.
func (e *Engine) Evaluate(ctx context.Context, input any) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", errors.Wrap(err, "evaluate policy")
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return val, "", nil
	case map[string]any:
		decision, _ := val["decision"].(string)
		reason, _ := val["reason"].(string)
		if decision == "" {
			decision = DecisionAllow
		}
		return decision, reason, nil
	}
	return DecisionAllow, "unexpected return type", nil
}

// DefaultPolicy denies over-limit counts and unknown providers.
const DefaultPolicy = `
package generation_policy

known_providers = {"", "openai", "mock"}

deny_reasons[msg] {
	input.max_questions > 0
	input.question_count > input.max_questions
	msg := sprintf("question_count %d exceeds the maximum of %d", [input.question_count, input.max_questions])
}

deny_reasons[msg] {
	not known_providers[lower(input.provider)]
	msg := sprintf("unknown provider %s", [input.provider])
}

default decision = {"decision": "allow", "reason": ""}

decision = {"decision": "deny", "reason": concat("; ", deny_reasons)} {
	count(deny_reasons) > 0
}
`
