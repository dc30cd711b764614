// Package openaiadapter implements llm.Completer against the OpenAI Chat
// Completions API, adapted from features/model/openai/client.go's
// ChatClient seam and Options/New/NewFromAPIKey shape, retargeted at
// github.com/openai/openai-go (the official SDK already present in the
// teacher's go.mod) and collapsed to single-turn completion.
package openaiadapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mberto10/researchctl/internal/toolregistry/llm"
)

// ChatClient captures the subset of the openai-go client used here.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures the adapter.
type Options struct {
	Client       ChatClient
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Client implements llm.Completer via OpenAI Chat Completions.
type Client struct {
	chat         ChatClient
	defaultModel string
	maxTok       int
	temp         float64
}

// New builds a Client from an already-configured chat completions client.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openaiadapter: client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("openaiadapter: default model is required")
	}
	return &Client{chat: opts.Client, defaultModel: modelID, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a Client using the default openai-go HTTP
// client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openaiadapter: api key is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return New(Options{Client: &chatService{inner: client.Chat.Completions}, DefaultModel: defaultModel})
}

// chatService adapts the concrete openai.ChatCompletionService to the
// narrow ChatClient seam.
type chatService struct {
	inner openai.ChatCompletionService
}

func (s *chatService) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	return s.inner.New(ctx, body, opts...)
}

// Complete issues a single chat completion request.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	modelID := llm.EffectiveModel(req, c.defaultModel)
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: messages,
	}
	if maxTokens := llm.EffectiveMaxTokens(req, c.maxTok); maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = c.temp
	}
	if temp > 0 {
		params.Temperature = openai.Float(temp)
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return llm.Response{}, fmt.Errorf("%w: %w", llm.ErrRateLimited, err)
		}
		return llm.Response{}, fmt.Errorf("openaiadapter: chat completion: %w", err)
	}
	return translate(resp), nil
}

func translate(resp *openai.ChatCompletion) llm.Response {
	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	return llm.Response{
		Text:         text,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
}

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
