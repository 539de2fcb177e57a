package provider

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIOptions configures the OpenAI chat-completions provider.
type OpenAIOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAIStream streams chat completions through the official OpenAI SDK.
// Any OpenAI-compatible endpoint works when BaseURL is set.
type OpenAIStream struct {
	client  openai.Client
	model   string
	apiKey  string
	timeout time.Duration
}

var _ Provider = (*OpenAIStream)(nil)

// NewOpenAIStream creates an OpenAI streaming provider. SDK-level retries are
// disabled; a failed call fails the execution.
func NewOpenAIStream(opts OpenAIOptions) *OpenAIStream {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &OpenAIStream{
		client:  openai.NewClient(reqOpts...),
		model:   opts.Model,
		apiKey:  opts.APIKey,
		timeout: orDefault(opts.Timeout),
	}
}

// Name implements Provider.
func (p *OpenAIStream) Name() string { return "openai" }

// Kind implements Provider.
func (p *OpenAIStream) Kind() Kind { return KindStreaming }

// Configured implements Provider.
func (p *OpenAIStream) Configured() bool { return p.apiKey != "" && p.model != "" }

// Stream implements Provider.
func (p *OpenAIStream) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		stream := p.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model: p.model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
		})
		defer stream.Close()

		for stream.Next() {
			for _, choice := range stream.Current().Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !yield(choice.Delta.Content, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", classifySDKError(ctx, p.Name(), err))
		}
	}
}

// classifySDKError maps SDK errors onto the provider error taxonomy. Both the
// OpenAI and Anthropic SDKs return an *Error carrying the HTTP status for
// non-2xx responses. A body or stream event that fails to decode is a
// protocol error.
func classifySDKError(ctx context.Context, name string, err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &ProtocolError{Provider: name, Reason: "malformed response: " + err.Error(), Raw: err.Error()}
	}
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return &HTTPError{Provider: name, StatusCode: oaErr.StatusCode, Body: oaErr.Error()}
	}
	var antErr *anthropicError
	if errors.As(err, &antErr) {
		return &HTTPError{Provider: name, StatusCode: antErr.StatusCode, Body: antErr.Error()}
	}
	return newTransportError(ctx, name, err)
}
