package model

import (
	"encoding/json"
	"time"
)

// Execution status constants.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// validTransitions maps each status to the set of statuses it may transition to.
// Completed and failed have no entry and are therefore absorbing.
var validTransitions = map[string]map[string]bool{
	StatusQueued: {
		StatusRunning: true,
		StatusFailed:  true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is completed or failed.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Execution is one request for an agent to process an input and produce a result.
type Execution struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agent_id,omitempty"`
	Status     string     `json:"status"`
	Input      string     `json:"input"`
	Result     *string    `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Agent is a named configuration that executions can be attributed to.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Error kinds stored in ErrorPayload.Kind.
const (
	ErrorKindInput            = "input_error"
	ErrorKindConfig           = "config_error"
	ErrorKindProviderHTTP     = "provider_http_error"
	ErrorKindProviderProtocol = "provider_protocol_error"
	ErrorKindTransport        = "transport_error"
	ErrorKindInternal         = "internal_error"
)

// ErrorPayload is the structured result persisted for failed executions.
type ErrorPayload struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Status int    `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
	Raw    string `json:"raw,omitempty"`
}

// String encodes the payload as JSON for storage in Execution.Result.
func (p ErrorPayload) String() string {
	b, err := json.Marshal(p)
	if err != nil {
		// Only string and int fields; Marshal cannot fail in practice.
		return `{"error":"unencodable error payload"}`
	}
	return string(b)
}
