// Package policy screens chat input with an OPA/Rego content policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
	"github.com/riyak972/capstone-chat/internal/domain"
)

// Decisions returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Reasons a message is blocked.
const (
	ReasonTooLong         = "too_long"
	ReasonPromptInjection = "prompt_injection"
	ReasonUnsafeContent   = "unsafe_content"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine compiles policyContent. The module must define data.chat_policy.verdict.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.chat_policy.verdict"),
		rego.Module("chat_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate runs the policy against input and returns the decision and reason.
func (e *Engine) Evaluate(ctx context.Context, input any) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "", nil
	}

	verdict, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return "", "", fmt.Errorf("unexpected policy result: %v", results[0].Expressions[0].Value)
	}
	decision, _ := verdict["decision"].(string)
	reason, _ := verdict["reason"].(string)
	if decision == "" {
		decision = DecisionAllow
	}
	return decision, reason, nil
}

// CheckMessage returns a ValidationFailed error when content is blocked.
func (e *Engine) CheckMessage(ctx context.Context, content string, maxLength int) error {
	decision, reason, err := e.Evaluate(ctx, map[string]any{
		"content":    content,
		"max_length": maxLength,
	})
	if err != nil {
		return err
	}
	if decision != DecisionBlock {
		return nil
	}
	switch reason {
	case ReasonTooLong:
		return domain.NewError(domain.CodeValidationFailed, "Message too long. Maximum length: %d characters", maxLength)
	case ReasonUnsafeContent:
		return domain.NewError(domain.CodeValidationFailed,
			"I cannot assist with that request. Please contact a mental health professional if you need support.")
	default:
		return domain.NewError(domain.CodeValidationFailed, "Invalid input detected. Please rephrase your message.")
	}
}

// DefaultPolicy blocks overlong input, common prompt injection phrasing and
// self-harm keywords.
const DefaultPolicy = `
package chat_policy

injection_patterns = [
	"(?i)ignore\\s+(previous|all|above)\\s+(instructions|prompts?|system)",
	"(?i)forget\\s+(all|everything|previous)",
	"(?i)system\\s*:\\s*you\\s+are",
	"(?i)you\\s+are\\s+now",
	"(?i)override",
]

unsafe_patterns = [
	"(?i)\\b(kill|harm|hurt|suicide|self[- ]harm)\\b",
]

too_long {
	input.max_length > 0
	count(input.content) > input.max_length
}

injection {
	regex.match(injection_patterns[_], input.content)
}

unsafe {
	regex.match(unsafe_patterns[_], input.content)
}

default reason = ""

reason = "too_long" {
	too_long
} else = "prompt_injection" {
	injection
} else = "unsafe_content" {
	unsafe
}

default decision = "allow"

decision = "block" {
	reason != ""
}

verdict = {"decision": decision, "reason": reason}
`
