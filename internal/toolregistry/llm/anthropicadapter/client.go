// Package anthropicadapter implements llm.Completer against the Anthropic
// Claude Messages API, adapted from features/model/anthropic/client.go: the
// same MessagesClient seam (so a mock satisfies it in tests), the same
// rate-limit error translation, but collapsed from the teacher's full
// tool-calling/thinking/streaming surface down to single-turn text
// completion, which is all SPEC_FULL.md's scope/fill/cluster/analyze/write
// call sites need.
package anthropicadapter

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mberto10/researchctl/internal/toolregistry/llm"
)

// MessagesClient captures the subset of the Anthropic SDK used here.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Client implements llm.Completer on top of Anthropic Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTok       int
	temp         float64
}

// New builds a Client from an already-configured Anthropic Messages client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropicadapter: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropicadapter: default model is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, defaultModel: opts.DefaultModel, maxTok: maxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP
// transport, reading ANTHROPIC_API_KEY conventions via the SDK's own
// option handling.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropicadapter: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// Complete issues a single Messages.New call and returns the concatenated
// text blocks of the response.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	modelID := llm.EffectiveModel(req, c.defaultModel)
	maxTokens := llm.EffectiveMaxTokens(req, c.maxTok)

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Model:     sdk.Model(modelID),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = c.temp
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return llm.Response{}, fmt.Errorf("%w: %w", llm.ErrRateLimited, err)
		}
		return llm.Response{}, fmt.Errorf("anthropicadapter: messages.new: %w", err)
	}
	return translate(msg), nil
}

func translate(msg *sdk.Message) llm.Response {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return llm.Response{
		Text:         text,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
}

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
