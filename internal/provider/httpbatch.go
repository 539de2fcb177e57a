package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"
)

const defaultHuggingFaceBaseURL = "https://api-inference.huggingface.co"

// HTTPBatchOptions configures an HTTPBatch provider.
type HTTPBatchOptions struct {
	Name       string
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTPBatch calls the HuggingFace inference API with one blocking request and
// yields the generated text as a single fragment.
type HTTPBatch struct {
	opts   HTTPBatchOptions
	client *http.Client
}

var _ Provider = (*HTTPBatch)(nil)

// NewHTTPBatch creates a batch provider. Name defaults to "huggingface".
func NewHTTPBatch(opts HTTPBatchOptions) *HTTPBatch {
	if opts.Name == "" {
		opts.Name = "huggingface"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultHuggingFaceBaseURL
	}
	opts.Timeout = orDefault(opts.Timeout)

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPBatch{opts: opts, client: client}
}

// Name implements Provider.
func (p *HTTPBatch) Name() string { return p.opts.Name }

// Kind implements Provider.
func (p *HTTPBatch) Kind() Kind { return KindBatch }

// Configured implements Provider.
func (p *HTTPBatch) Configured() bool { return p.opts.APIKey != "" && p.opts.Model != "" }

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

type hfGeneration struct {
	GeneratedText *string `json:"generated_text"`
}

// Stream implements Provider.
func (p *HTTPBatch) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text, err := p.generate(ctx, prompt)
		if err != nil {
			yield("", err)
			return
		}
		yield(text, nil)
	}
}

func (p *HTTPBatch) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	body, err := json.Marshal(hfRequest{
		Inputs:     prompt,
		Parameters: hfParameters{MaxNewTokens: 200, Temperature: 0.7},
	})
	if err != nil {
		return "", &ProtocolError{Provider: p.opts.Name, Reason: fmt.Sprintf("marshal request: %v", err)}
	}

	url := fmt.Sprintf("%s/models/%s", strings.TrimRight(p.opts.BaseURL, "/"), p.opts.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &ProtocolError{Provider: p.opts.Name, Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", newTransportError(ctx, p.opts.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newTransportError(ctx, p.opts.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return "", &HTTPError{Provider: p.opts.Name, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var gens []hfGeneration
	if err := json.Unmarshal(raw, &gens); err != nil {
		// Some text-generation deployments answer with a bare object.
		var single hfGeneration
		if json.Unmarshal(raw, &single) != nil {
			return "", &ProtocolError{Provider: p.opts.Name, Reason: "response is not JSON", Raw: string(raw)}
		}
		gens = []hfGeneration{single}
	}
	if len(gens) == 0 || gens[0].GeneratedText == nil {
		return "", &ProtocolError{Provider: p.opts.Name, Reason: "response has no generated_text", Raw: string(raw)}
	}
	return *gens[0].GeneratedText, nil
}
