package provider

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// PieceKind tags what a single response line resolved to.
type PieceKind int

// Piece kinds.
const (
	// PieceSkip is a line that carries nothing (blank lines, SSE comments,
	// JSON array punctuation).
	PieceSkip PieceKind = iota
	// PieceText is a framed payload that decoded to a plain string.
	PieceText
	// PieceStructured is a framed payload that decoded to a JSON object.
	PieceStructured
	// PieceRaw is an unframed or undecodable line passed through verbatim.
	PieceRaw
	// PieceEnd is a provider-level end-of-stream marker.
	PieceEnd
)

// Piece is one resolved unit of a streaming response.
type Piece struct {
	Kind PieceKind
	Text string
	Data map[string]any
}

// LineParser classifies one line of a streaming response body. Providers use
// different framings, so each streaming provider is constructed with its own.
type LineParser interface {
	ParseLine(line string) Piece
}

// SSEParser understands "data:"-framed lines as used by most streaming APIs.
// Framed payloads are decoded as JSON when possible; unframed lines are passed
// through as raw text. The event, id and retry fields are skipped only when
// their value is a single token (digits only for retry), so prose such as
// "id: 42 is the answer" stays raw text.
type SSEParser struct{}

// ParseLine implements LineParser.
func (SSEParser) ParseLine(line string) Piece {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, ":") {
		return Piece{Kind: PieceSkip}
	}
	if isSSEField(trimmed) {
		return Piece{Kind: PieceSkip}
	}

	content, framed := strings.CutPrefix(trimmed, "data:")
	if !framed {
		return Piece{Kind: PieceRaw, Text: line}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Piece{Kind: PieceSkip}
	}
	if content == "[DONE]" {
		return Piece{Kind: PieceEnd}
	}
	return decodePayload(content)
}

func isSSEField(line string) bool {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return false
	}
	value = strings.TrimSpace(value)
	switch name {
	case "event", "id":
		return !strings.ContainsAny(value, " \t")
	case "retry":
		return value != "" && strings.Trim(value, "0123456789") == ""
	}
	return false
}

// JSONLinesParser treats every line as a standalone JSON document, as in
// newline-delimited JSON streams or pretty-printed JSON arrays.
type JSONLinesParser struct{}

// ParseLine implements LineParser.
func (JSONLinesParser) ParseLine(line string) Piece {
	trimmed := strings.Trim(strings.TrimSpace(line), ",")
	switch trimmed {
	case "", "[", "]":
		return Piece{Kind: PieceSkip}
	}
	return decodePayload(trimmed)
}

// decodePayload resolves a framed payload to text, a structured object, or an
// opaque raw value. Payloads that look like truncated or sloppy JSON objects
// are repaired before giving up on them. A repaired object is kept only if
// it has one of the known payload keys; otherwise the line was text that
// happened to start with a brace.
func decodePayload(content string) Piece {
	var v any
	repaired := false
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		if !strings.HasPrefix(content, "{") {
			return Piece{Kind: PieceRaw, Text: content}
		}
		fixed, rerr := jsonrepair.JSONRepair(content)
		if rerr != nil || json.Unmarshal([]byte(fixed), &v) != nil {
			return Piece{Kind: PieceRaw, Text: content}
		}
		repaired = true
	}

	switch val := v.(type) {
	case string:
		return Piece{Kind: PieceText, Text: val}
	case map[string]any:
		if repaired && !hasKnownKey(val) {
			return Piece{Kind: PieceRaw, Text: content}
		}
		return Piece{Kind: PieceStructured, Text: extractText(val), Data: val}
	default:
		return Piece{Kind: PieceRaw, Text: content}
	}
}

var knownKeys = []string{"text", "candidates", "choices", "generated_text", "error"}

func hasKnownKey(m map[string]any) bool {
	for _, k := range knownKeys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// extractText pulls generated text out of the payload shapes we know about:
// a flat {"text": ...}, Gemini candidates, and OpenAI-style chat deltas.
func extractText(m map[string]any) string {
	if s, ok := m["text"].(string); ok {
		return s
	}

	var b strings.Builder
	for _, c := range asSlice(m["candidates"]) {
		content, _ := asMap(c)["content"].(map[string]any)
		for _, part := range asSlice(content["parts"]) {
			if s, ok := asMap(part)["text"].(string); ok {
				b.WriteString(s)
			}
		}
	}
	for _, c := range asSlice(m["choices"]) {
		choice := asMap(c)
		if delta, ok := choice["delta"].(map[string]any); ok {
			if s, ok := delta["content"].(string); ok {
				b.WriteString(s)
			}
		}
		if s, ok := choice["text"].(string); ok {
			b.WriteString(s)
		}
	}
	if s, ok := m["generated_text"].(string); ok {
		b.WriteString(s)
	}
	return b.String()
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
