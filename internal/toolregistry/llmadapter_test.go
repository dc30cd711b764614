package toolregistry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mberto10/researchctl/internal/orcherr"
	"github.com/mberto10/researchctl/internal/toolregistry/llm"
)

type stubCompleter struct {
	resp llm.Response
	err  error
	got  llm.Request
}

func (c *stubCompleter) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	c.got = req
	return c.resp, c.err
}

func TestLLMAdapterCallTranslatesParamsAndWrapsResultAsEvidence(t *testing.T) {
	completer := &stubCompleter{resp: llm.Response{Text: "answer", InputTokens: 10, OutputTokens: 5}}
	a := NewLLMAdapter("llm.stub", completer, 0.01)

	results, usage, err := a.Call(context.Background(), map[string]any{
		"prompt":      "say hi",
		"max_tokens":  float64(256),
		"temperature": 0.5,
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "answer", results[0].Snippet)
	require.Equal(t, "llm.stub", results[0].SourceTool)
	require.Equal(t, 15, usage.TotalTokens)
	require.Equal(t, "say hi", completer.got.Prompt)
	require.Equal(t, 256, completer.got.MaxTokens)
}

func TestLLMAdapterCallMissingPromptIsError(t *testing.T) {
	a := NewLLMAdapter("llm.stub", &stubCompleter{}, 0)
	_, _, err := a.Call(context.Background(), map[string]any{})
	require.Error(t, err)
}

func TestLLMAdapterClassifiesRateLimitedError(t *testing.T) {
	completer := &stubCompleter{err: llm.ErrRateLimited}
	a := NewLLMAdapter("llm.stub", completer, 0)

	_, _, err := a.Call(context.Background(), map[string]any{"prompt": "hi"})
	require.Error(t, err)
	require.Equal(t, orcherr.KindRateLimited, orcherr.KindOf(err))
}

func TestLLMAdapterClassifiesDeadlineExceededAsTimeout(t *testing.T) {
	completer := &stubCompleter{err: context.DeadlineExceeded}
	a := NewLLMAdapter("llm.stub", completer, 0)

	_, _, err := a.Call(context.Background(), map[string]any{"prompt": "hi"})
	require.Error(t, err)
	require.Equal(t, orcherr.KindTimeout, orcherr.KindOf(err))
}

func TestLLMAdapterClassifiesOtherErrorsAsTransient(t *testing.T) {
	completer := &stubCompleter{err: errors.New("boom")}
	a := NewLLMAdapter("llm.stub", completer, 0)

	_, _, err := a.Call(context.Background(), map[string]any{"prompt": "hi"})
	require.Error(t, err)
	require.Equal(t, orcherr.KindTransient, orcherr.KindOf(err))
}

func TestLLMAdapterCapabilitiesAndKey(t *testing.T) {
	a := NewLLMAdapter("llm.stub", &stubCompleter{}, 0)
	require.Equal(t, []Capability{CapabilityLLMCompletion}, a.Capabilities())
	require.Equal(t, "llm.stub", a.Key())
}
