package toolregistry

import (
	"context"
	"errors"
	"fmt"

	"github.com/mberto10/researchctl/internal/evidence"
	"github.com/mberto10/researchctl/internal/orcherr"
	"github.com/mberto10/researchctl/internal/toolregistry/llm"
)

// LLMAdapter wraps an llm.Completer (anthropicadapter, openaiadapter,
// bedrockadapter, or llm.AdaptiveRateLimiter.Wrap(...) around one of those)
// as a toolregistry.Adapter. Every LLM provider adapter registers under the
// same CapabilityLLMCompletion tag so a step naming "llm_completion" (or a
// specific provider key that has gone Unavailable) resolves to whichever
// provider adapter is actually registered — the capability-fallback
// mechanic from spec §4.1.
type LLMAdapter struct {
	key       string
	completer llm.Completer
	costHint  float64
}

// NewLLMAdapter builds an Adapter for a named provider (e.g.
// "llm.anthropic", "llm.openai", "llm.bedrock").
func NewLLMAdapter(key string, completer llm.Completer, costHint float64) *LLMAdapter {
	return &LLMAdapter{key: key, completer: completer, costHint: costHint}
}

// Call translates params (prompt, system, model, max_tokens, temperature)
// into an llm.Request and wraps the completion text in a single Evidence
// record so callers (the Fill resolver, the Finalize sub-stages) can read
// it the same way they read search results — Evidence.Snippet carries the
// generated text, Evidence.SourceTool identifies the provider.
func (a *LLMAdapter) Call(ctx context.Context, params map[string]any) ([]evidence.Evidence, *Usage, error) {
	req := llm.Request{
		Prompt: stringParam(params, "prompt"),
		System: stringParam(params, "system"),
		Model:  stringParam(params, "model"),
	}
	if v, ok := params["max_tokens"]; ok {
		req.MaxTokens = intParam(v)
	}
	if v, ok := params["temperature"]; ok {
		req.Temperature = floatParam(v)
	}
	if req.Prompt == "" {
		return nil, nil, fmt.Errorf("toolregistry: %s: prompt is required", a.key)
	}

	resp, err := a.completer.Complete(ctx, req)
	if err != nil {
		return nil, nil, classifyLLMError(a.key, err)
	}
	usage := &Usage{
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		TotalTokens:  resp.InputTokens + resp.OutputTokens,
	}
	ev := evidence.Evidence{
		Snippet:    resp.Text,
		SourceTool: a.key,
		Raw:        resp,
	}
	return []evidence.Evidence{ev}, usage, nil
}

// Capabilities reports CapabilityLLMCompletion only — every LLM adapter
// shares this one tag so steps can address "llm_completion" generically.
func (a *LLMAdapter) Capabilities() []Capability { return []Capability{CapabilityLLMCompletion} }

// CostHint returns the configured soft per-call cost bound.
func (a *LLMAdapter) CostHint() float64 { return a.costHint }

// Key returns the adapter's registration key.
func (a *LLMAdapter) Key() string { return a.key }

// ParamsSchema requires a non-empty string "prompt" and tolerates the
// optional system/model/max_tokens/temperature fields every provider
// adapter accepts.
func (a *LLMAdapter) ParamsSchema() []byte { return llmParamsSchema }

var llmParamsSchema = []byte(`{
	"type": "object",
	"properties": {
		"prompt": {"type": "string", "minLength": 1},
		"system": {"type": "string"},
		"model": {"type": "string"},
		"max_tokens": {"type": "integer", "minimum": 1},
		"temperature": {"type": "number", "minimum": 0, "maximum": 2}
	},
	"required": ["prompt"]
}`)

// classifyLLMError maps a provider error into the orcherr taxonomy so the
// Step Executor's retry policy can branch on Kind.Retryable() (spec §4.1:
// "error: a structured error with kind ∈ {...}").
func classifyLLMError(key string, err error) error {
	op := fmt.Sprintf("toolregistry.%s", key)
	if errors.Is(err, context.DeadlineExceeded) {
		return orcherr.Wrap(orcherr.KindTimeout, op, err)
	}
	if errors.Is(err, llm.ErrRateLimited) {
		return orcherr.Wrap(orcherr.KindRateLimited, op, err)
	}
	return orcherr.Wrap(orcherr.KindTransient, op, err)
}

func stringParam(params map[string]any, name string) string {
	v, ok := params[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func intParam(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

func floatParam(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}
