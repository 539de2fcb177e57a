package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains seq, returning the fragments and the terminal error.
func collect(seq func(func(string, error) bool)) ([]string, error) {
	var frags []string
	for frag, err := range seq {
		if err != nil {
			return frags, err
		}
		frags = append(frags, frag)
	}
	return frags, nil
}

func newStreamServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestHTTPStreamYieldsFragmentsInOrder(t *testing.T) {
	var gotPath, gotKey, gotBody string
	ts := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n\n")
		w.(http.Flusher).Flush()
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"text\":\"after end\"}\n\n")
	})

	p := NewHTTPStream(HTTPStreamOptions{APIKey: "k", Model: "gemini-test", BaseURL: ts.URL})
	frags, err := collect(p.Stream(context.Background(), "say hello"))

	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, frags)
	assert.Equal(t, "/v1beta/models/gemini-test:streamGenerateContent", gotPath)
	assert.Equal(t, "k", gotKey)
	assert.Contains(t, gotBody, `"text":"say hello"`)
}

func TestHTTPStreamPassesRawLinesThrough(t *testing.T) {
	ts := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "first line\n\nsecond line\n")
	})

	p := NewHTTPStream(HTTPStreamOptions{APIKey: "k", Model: "m", BaseURL: ts.URL})
	frags, err := collect(p.Stream(context.Background(), "x"))

	require.NoError(t, err)
	assert.Equal(t, []string{"first line", "second line"}, frags)
}

func TestHTTPStreamCustomParser(t *testing.T) {
	ts := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[\n{\"text\":\"a\"},\n{\"text\":\"b\"}\n]\n")
	})

	p := NewHTTPStream(HTTPStreamOptions{APIKey: "k", Model: "m", BaseURL: ts.URL, Parser: JSONLinesParser{}})
	frags, err := collect(p.Stream(context.Background(), "x"))

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, frags)
}

func TestHTTPStreamHTTPError(t *testing.T) {
	ts := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal failure", http.StatusInternalServerError)
	})

	p := NewHTTPStream(HTTPStreamOptions{APIKey: "k", Model: "m", BaseURL: ts.URL})
	frags, err := collect(p.Stream(context.Background(), "x"))

	assert.Empty(t, frags)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr), "want *HTTPError, got %T", err)
	assert.Equal(t, 500, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "internal failure")
	assert.Equal(t, "gemini", httpErr.Provider)
}

func TestHTTPStreamMidStreamError(t *testing.T) {
	ts := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"text\":\"partial\"}\n\n")
		fmt.Fprint(w, "data: {\"error\":{\"code\":503,\"message\":\"overloaded\"}}\n\n")
	})

	p := NewHTTPStream(HTTPStreamOptions{APIKey: "k", Model: "m", BaseURL: ts.URL})
	frags, err := collect(p.Stream(context.Background(), "x"))

	assert.Equal(t, []string{"partial"}, frags)
	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr), "want *ProtocolError, got %T", err)
	assert.Contains(t, protoErr.Raw, "overloaded")
}

func TestHTTPStreamTimeout(t *testing.T) {
	ts := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	p := NewHTTPStream(HTTPStreamOptions{APIKey: "k", Model: "m", BaseURL: ts.URL, Timeout: 50 * time.Millisecond})
	_, err := collect(p.Stream(context.Background(), "x"))

	var tErr *TransportError
	require.True(t, errors.As(err, &tErr), "want *TransportError, got %T", err)
	assert.True(t, tErr.Timeout)
}

func TestHTTPStreamConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	p := NewHTTPStream(HTTPStreamOptions{APIKey: "k", Model: "m", BaseURL: url})
	_, err := collect(p.Stream(context.Background(), "x"))

	var tErr *TransportError
	require.True(t, errors.As(err, &tErr), "want *TransportError, got %T", err)
	assert.False(t, tErr.Timeout)
}

func TestHTTPStreamStopsWhenConsumerBreaks(t *testing.T) {
	ts := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		for i := range 5 {
			fmt.Fprintf(w, "data: \"%d\"\n\n", i)
		}
	})

	p := NewHTTPStream(HTTPStreamOptions{APIKey: "k", Model: "m", BaseURL: ts.URL})
	var got []string
	for frag, err := range p.Stream(context.Background(), "x") {
		require.NoError(t, err)
		got = append(got, frag)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"0", "1"}, got)
}

func TestHTTPStreamConfigured(t *testing.T) {
	assert.False(t, NewHTTPStream(HTTPStreamOptions{Model: "m"}).Configured())
	assert.True(t, NewHTTPStream(HTTPStreamOptions{APIKey: "k", Model: "m"}).Configured())
	assert.Equal(t, KindStreaming, NewHTTPStream(HTTPStreamOptions{}).Kind())
	assert.True(t, strings.HasPrefix(NewHTTPStream(HTTPStreamOptions{}).opts.BaseURL, "https://"))
}
