package provider

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"time"
)

// DefaultTimeout bounds a single provider call when no timeout is configured.
const DefaultTimeout = 120 * time.Second

// maxErrorBody caps how much of a non-2xx response body is kept for diagnostics.
const maxErrorBody = 64 << 10

// Kind distinguishes providers that stream fragments from those that return
// the whole completion in one response.
type Kind string

// Provider kinds.
const (
	KindStreaming Kind = "streaming"
	KindBatch     Kind = "batch"
)

// Provider produces text for a prompt.
type Provider interface {
	// Name identifies the provider in logs, metrics and the API.
	Name() string

	// Kind reports whether the provider streams.
	Kind() Kind

	// Configured reports whether credentials are present. Unconfigured
	// providers are never selected.
	Configured() bool

	// Stream sends prompt and returns a single-pass sequence of text
	// fragments in arrival order. A non-nil error is always the last element
	// and is one of *HTTPError, *ProtocolError or *TransportError.
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// Info describes a registered provider.
type Info struct {
	Name       string `json:"name"`
	Kind       Kind   `json:"kind"`
	Configured bool   `json:"configured"`
}

// ErrNotConfigured is returned by Registry.Select when no provider has credentials.
var ErrNotConfigured = errors.New("no LLM provider configured")

// HTTPError reports a non-2xx response from a provider.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.Provider, e.StatusCode)
}

// ProtocolError reports a response that could not be understood.
type ProtocolError struct {
	Provider string
	Reason   string
	Raw      string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

// TransportError reports a network failure or a timeout.
type TransportError struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: request timed out: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// newTransportError wraps err, flagging it as a timeout when either the
// request context's deadline passed or the network layer reports one.
func newTransportError(ctx context.Context, provider string, err error) *TransportError {
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &TransportError{Provider: provider, Timeout: timeout, Err: err}
}

func orDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}
