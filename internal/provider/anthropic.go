package provider

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicError = anthropic.Error

const defaultAnthropicMaxTokens = 1024

// AnthropicOptions configures the Anthropic Messages provider.
type AnthropicOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// AnthropicBatch sends one Messages API request through the official SDK and
// yields the full reply as a single fragment.
type AnthropicBatch struct {
	client  anthropic.Client
	model   string
	apiKey  string
	timeout time.Duration
}

var _ Provider = (*AnthropicBatch)(nil)

// NewAnthropicBatch creates an Anthropic batch provider with SDK retries disabled.
func NewAnthropicBatch(opts AnthropicOptions) *AnthropicBatch {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &AnthropicBatch{
		client:  anthropic.NewClient(reqOpts...),
		model:   opts.Model,
		apiKey:  opts.APIKey,
		timeout: orDefault(opts.Timeout),
	}
}

// Name implements Provider.
func (p *AnthropicBatch) Name() string { return "anthropic" }

// Kind implements Provider.
func (p *AnthropicBatch) Kind() Kind { return KindBatch }

// Configured implements Provider.
func (p *AnthropicBatch) Configured() bool { return p.apiKey != "" && p.model != "" }

// Stream implements Provider.
func (p *AnthropicBatch) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model),
			MaxTokens: defaultAnthropicMaxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			yield("", classifySDKError(ctx, p.Name(), err))
			return
		}

		var b strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				b.WriteString(block.AsText().Text)
			}
		}
		if b.Len() == 0 {
			yield("", &ProtocolError{Provider: p.Name(), Reason: "response has no text content", Raw: resp.RawJSON()})
			return
		}
		yield(b.String(), nil)
	}
}
