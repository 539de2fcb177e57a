package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/taskforge/internal/model"
)

// ErrInvalidTransition is returned when an execution status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// ExecutionUpdate carries the fields to change on an execution. Nil fields are
// left untouched. StartedAt is only applied when the stored value is still NULL.
type ExecutionUpdate struct {
	Status     *string
	Result     *string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// ExecutionStats holds aggregate execution statistics.
type ExecutionStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for executions and agents.
type Store interface {
	CreateExecution(ctx context.Context, e *model.Execution) error
	GetExecution(ctx context.Context, id string) (*model.Execution, error)
	ListExecutions(ctx context.Context, limit, offset int) ([]*model.Execution, int, error)
	UpdateExecution(ctx context.Context, id string, u ExecutionUpdate) (*model.Execution, error)
	GetExecutionStats(ctx context.Context) (*ExecutionStats, error)
	CreateAgent(ctx context.Context, a *model.Agent) error
	GetAgent(ctx context.Context, id string) (*model.Agent, error)
	ListAgents(ctx context.Context) ([]*model.Agent, error)
	Close() error
}
