package provider

import (
	"bufio"
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

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	scannerMaxLine       = 2 << 20
)

// HTTPStreamOptions configures an HTTPStream provider.
type HTTPStreamOptions struct {
	Name    string
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration

	// Parser classifies response lines. Defaults to SSEParser.
	Parser LineParser

	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client
}

// HTTPStream calls a streaming text-generation endpoint over plain HTTP and
// yields each text piece as soon as its line has been read. The request shape
// follows the Gemini streamGenerateContent API.
type HTTPStream struct {
	opts   HTTPStreamOptions
	client *http.Client
}

var _ Provider = (*HTTPStream)(nil)

// NewHTTPStream creates a streaming provider. Name defaults to "gemini".
func NewHTTPStream(opts HTTPStreamOptions) *HTTPStream {
	if opts.Name == "" {
		opts.Name = "gemini"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultGeminiBaseURL
	}
	if opts.Parser == nil {
		opts.Parser = SSEParser{}
	}
	opts.Timeout = orDefault(opts.Timeout)

	client := opts.HTTPClient
	if client == nil {
		// No client-level timeout: the per-call context bounds the whole
		// stream, including time spent reading the body.
		client = &http.Client{}
	}
	return &HTTPStream{opts: opts, client: client}
}

// Name implements Provider.
func (p *HTTPStream) Name() string { return p.opts.Name }

// Kind implements Provider.
func (p *HTTPStream) Kind() Kind { return KindStreaming }

// Configured implements Provider.
func (p *HTTPStream) Configured() bool { return p.opts.APIKey != "" && p.opts.Model != "" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

func (p *HTTPStream) newRequest(ctx context.Context, prompt string) (*http.Request, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.2,
			MaxOutputTokens: 1024,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse",
		strings.TrimRight(p.opts.BaseURL, "/"), p.opts.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-goog-api-key", p.opts.APIKey)
	return req, nil
}

// Stream implements Provider.
func (p *HTTPStream) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()

		req, err := p.newRequest(ctx, prompt)
		if err != nil {
			yield("", &ProtocolError{Provider: p.opts.Name, Reason: err.Error()})
			return
		}

		resp, err := p.client.Do(req)
		if err != nil {
			yield("", newTransportError(ctx, p.opts.Name, err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			yield("", &HTTPError{Provider: p.opts.Name, StatusCode: resp.StatusCode, Body: string(body)})
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), scannerMaxLine)
		for scanner.Scan() {
			piece := p.opts.Parser.ParseLine(scanner.Text())
			switch piece.Kind {
			case PieceSkip:
				continue
			case PieceEnd:
				return
			case PieceStructured:
				if _, failed := piece.Data["error"]; failed {
					yield("", &ProtocolError{
						Provider: p.opts.Name,
						Reason:   "provider reported an error mid-stream",
						Raw:      scanner.Text(),
					})
					return
				}
			}
			if piece.Text == "" {
				continue
			}
			if !yield(piece.Text, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", newTransportError(ctx, p.opts.Name, err))
		}
	}
}
