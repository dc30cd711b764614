// Package bedrockadapter implements llm.Completer against the AWS Bedrock
// Converse API, adapted from features/model/bedrock/client.go's
// RuntimeClient seam and Options shape. Dropped relative to the teacher:
// the ledgerSource transcript-continuity hook (tied to its Temporal
// workflow runtime, out of scope per spec §5's plain-goroutine concurrency
// model) and tool-call/streaming encoding, since SPEC_FULL.md's LLM call
// sites are single-turn text completions.
package bedrockadapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/mberto10/researchctl/internal/toolregistry/llm"
)

// RuntimeClient captures the subset of the Bedrock runtime client used
// here. Satisfied by *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the adapter.
type Options struct {
	Runtime      RuntimeClient
	DefaultModel string
	MaxTokens    int
	Temperature  float32
}

// Client implements llm.Completer on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	maxTok       int
	temp         float32
}

// New builds a Client from an already-configured Bedrock runtime client.
func New(opts Options) (*Client, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrockadapter: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrockadapter: default model is required")
	}
	return &Client{runtime: opts.Runtime, defaultModel: opts.DefaultModel, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// Complete issues a single Converse call and returns its text content.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	modelID := llm.EffectiveModel(req, c.defaultModel)

	msg := brtypes.Message{
		Role: brtypes.ConversationRoleUser,
		Content: []brtypes.ContentBlock{
			&brtypes.ContentBlockMemberText{Value: req.Prompt},
		},
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  &modelID,
		Messages: []brtypes.Message{msg},
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: req.System},
		}
	}
	cfg := &brtypes.InferenceConfiguration{}
	hasCfg := false
	if maxTokens := llm.EffectiveMaxTokens(req, c.maxTok); maxTokens > 0 {
		mt := int32(maxTokens)
		cfg.MaxTokens = &mt
		hasCfg = true
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = float64(c.temp)
	}
	if temp > 0 {
		t := float32(temp)
		cfg.Temperature = &t
		hasCfg = true
	}
	if hasCfg {
		input.InferenceConfig = cfg
	}

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isRateLimited(err) {
			return llm.Response{}, fmt.Errorf("%w: %w", llm.ErrRateLimited, err)
		}
		return llm.Response{}, fmt.Errorf("bedrockadapter: converse: %w", err)
	}
	return translate(out), nil
}

func translate(out *bedrockruntime.ConverseOutput) llm.Response {
	var text string
	if msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msgOut.Value.Content {
			if t, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text += t.Value
			}
		}
	}
	resp := llm.Response{Text: text}
	if out.Usage != nil {
		resp.InputTokens = int(derefInt32(out.Usage.InputTokens))
		resp.OutputTokens = int(derefInt32(out.Usage.OutputTokens))
	}
	return resp
}

func derefInt32(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}

func isRateLimited(err error) bool {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 429
	}
	return false
}
