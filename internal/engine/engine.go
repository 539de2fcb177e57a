package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/seantiz/taskforge/internal/model"
	"github.com/seantiz/taskforge/internal/provider"
	"github.com/seantiz/taskforge/internal/store"
)

// DefaultPersistWorkers is the default number of concurrent store calls the
// engine allows across all workers.
const DefaultPersistWorkers = 4

// Engine orchestrates asynchronous execution of agent requests.
type Engine struct {
	store     store.Store
	providers *provider.Registry
	bus       *EventBus
	logger    *slog.Logger
	persist   *semaphore.Weighted
	wg        sync.WaitGroup
}

// NewEngine creates a new execution engine. persistWorkers bounds concurrent
// store calls; values below 1 use DefaultPersistWorkers.
func NewEngine(s store.Store, providers *provider.Registry, bus *EventBus, logger *slog.Logger, persistWorkers int) *Engine {
	if persistWorkers < 1 {
		persistWorkers = DefaultPersistWorkers
	}
	return &Engine{
		store:     s,
		providers: providers,
		bus:       bus,
		logger:    logger,
		persist:   semaphore.NewWeighted(int64(persistWorkers)),
	}
}

// Bus returns the event bus the engine publishes to.
func (e *Engine) Bus() *EventBus {
	return e.bus
}

// Submit stores the execution with status "queued" and launches its worker
// in a goroutine. The worker runs to completion whether or not anyone reads
// the stream.
func (e *Engine) Submit(ctx context.Context, exec *model.Execution) error {
	if exec.ID == "" {
		exec.ID = model.NewID()
	}
	exec.Status = model.StatusQueued
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now().UTC()
	}

	if err := e.withStore(ctx, func(ctx context.Context) error {
		return e.store.CreateExecution(ctx, exec)
	}); err != nil {
		return fmt.Errorf("create execution: %w", err)
	}

	id := exec.ID
	e.wg.Go(func() {
		e.Execute(context.Background(), id)
	})
	return nil
}

// Wait blocks until all in-flight workers complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Execute drives one execution from queued to a terminal status. An id that
// is not in the store is logged and ignored: no channel is opened and nothing
// is published.
func (e *Engine) Execute(ctx context.Context, id string) {
	var exec *model.Execution
	err := e.withStore(ctx, func(ctx context.Context) error {
		var err error
		exec, err = e.store.GetExecution(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("execution not found, skipping", "execution_id", id)
		return
	}
	if err != nil {
		e.logger.Error("failed to load execution", "execution_id", id, "error", err)
		return
	}
	if model.IsTerminal(exec.Status) {
		e.logger.Warn("execution already finished, skipping", "execution_id", id, "status", exec.Status)
		return
	}

	e.bus.OpenOrGet(id)

	started := time.Now().UTC()
	if _, err := e.update(ctx, id, store.ExecutionUpdate{
		Status:    ptr(model.StatusRunning),
		StartedAt: &started,
	}); err != nil {
		e.finish(ctx, id, "", fmt.Errorf("mark running: %w", err))
		return
	}

	result, err := e.run(ctx, exec)
	e.finish(ctx, id, result, err)
}

// run selects a provider and relays its fragments to the execution channel,
// returning the concatenated text.
func (e *Engine) run(ctx context.Context, exec *model.Execution) (string, error) {
	if strings.TrimSpace(exec.Input) == "" {
		return "", errEmptyInput
	}

	p, err := e.providers.Select()
	if err != nil {
		return "", err
	}

	start := time.Now()
	defer func() {
		providerCallDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	}()

	e.logger.Info("calling provider", "execution_id", exec.ID, "provider", p.Name(), "kind", p.Kind())

	var b strings.Builder
	for frag, err := range p.Stream(ctx, exec.Input) {
		if err != nil {
			return "", err
		}
		b.WriteString(frag)
		e.bus.Publish(exec.ID, Fragment(frag))
		fragmentsPublished.Inc()
	}

	if b.Len() == 0 {
		return "", errEmptyResponse
	}
	return b.String(), nil
}

// finish persists the terminal state, publishes at most one error event
// followed by Done, and schedules the channel for reclaim.
func (e *Engine) finish(ctx context.Context, id, result string, runErr error) {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()

	status := model.StatusCompleted
	var errMsg string
	if runErr != nil {
		payload := errorPayload(runErr)
		status = model.StatusFailed
		result = payload.String()
		errMsg = payload.Error
		e.logger.Warn("execution failed", "execution_id", id, "kind", payload.Kind, "error", runErr)
	}

	if _, err := e.update(ctx, id, store.ExecutionUpdate{
		Status:     &status,
		Result:     &result,
		FinishedAt: &now,
	}); err != nil {
		e.logger.Error("failed to persist terminal state", "execution_id", id, "status", status, "error", err)
	}
	executionsTotal.WithLabelValues(status).Inc()

	if runErr != nil {
		e.bus.Publish(id, ErrorEvent(errMsg))
	}
	e.bus.Publish(id, Done())
	e.bus.ScheduleReclaim(id)

	e.logger.Info("execution finished", "execution_id", id, "status", status)
}

func (e *Engine) update(ctx context.Context, id string, u store.ExecutionUpdate) (*model.Execution, error) {
	var updated *model.Execution
	err := e.withStore(ctx, func(ctx context.Context) error {
		var err error
		updated, err = e.store.UpdateExecution(ctx, id, u)
		return err
	})
	return updated, err
}

// withStore runs fn while holding a slot of the persistence pool.
func (e *Engine) withStore(ctx context.Context, fn func(context.Context) error) error {
	if err := e.persist.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.persist.Release(1)
	return fn(ctx)
}

func ptr[T any](v T) *T { return &v }
