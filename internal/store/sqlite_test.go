package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/taskforge/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestExecution() *model.Execution {
	return &model.Execution{
		ID:        model.NewID(),
		AgentID:   "agent-1",
		Status:    model.StatusQueued,
		Input:     "write a haiku about queues",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreateAndGetExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := makeTestExecution()

	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	got, err := s.GetExecution(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}

	if got.ID != e.ID {
		t.Errorf("ID = %q, want %q", got.ID, e.ID)
	}
	if got.Status != model.StatusQueued {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusQueued)
	}
	if got.Input != e.Input {
		t.Errorf("Input = %q, want %q", got.Input, e.Input)
	}
	if got.AgentID != e.AgentID {
		t.Errorf("AgentID = %q, want %q", got.AgentID, e.AgentID)
	}
	if got.Result != nil {
		t.Errorf("Result = %q, want nil", *got.Result)
	}
	if got.StartedAt != nil || got.FinishedAt != nil {
		t.Error("StartedAt/FinishedAt should be nil for a queued execution")
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, e.CreatedAt)
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetExecution(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetExecution error = %v, want ErrNotFound", err)
	}
}

func TestListExecutionsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := makeTestExecution()
		e.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second).Truncate(time.Second)
		if err := s.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution[%d]: %v", i, err)
		}
	}

	page1, total, err := s.ListExecutions(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page1) != 2 {
		t.Errorf("len(page1) = %d, want 2", len(page1))
	}

	page3, _, err := s.ListExecutions(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListExecutions page 3: %v", err)
	}
	if len(page3) != 1 {
		t.Errorf("len(page3) = %d, want 1", len(page3))
	}
}

func TestListExecutionsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := makeTestExecution()
		e.CreatedAt = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		if err := s.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution[%d]: %v", i, err)
		}
	}

	executions, _, err := s.ListExecutions(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}

	for i := 1; i < len(executions); i++ {
		if executions[i].CreatedAt.After(executions[i-1].CreatedAt) {
			t.Errorf("executions not in DESC order at index %d", i)
		}
	}
}

func TestListExecutionsEmpty(t *testing.T) {
	s := newTestStore(t)

	executions, total, err := s.ListExecutions(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
	if executions != nil {
		t.Errorf("executions = %v, want nil", executions)
	}
}

func TestUpdateExecutionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := makeTestExecution()
	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	started := time.Now().UTC().Truncate(time.Millisecond)
	running, err := s.UpdateExecution(ctx, e.ID, ExecutionUpdate{
		Status:    ptr(model.StatusRunning),
		StartedAt: &started,
	})
	if err != nil {
		t.Fatalf("UpdateExecution running: %v", err)
	}
	if running.Status != model.StatusRunning {
		t.Errorf("Status = %q, want running", running.Status)
	}
	if running.StartedAt == nil || !running.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", running.StartedAt, started)
	}

	finished := started.Add(150 * time.Millisecond)
	done, err := s.UpdateExecution(ctx, e.ID, ExecutionUpdate{
		Status:     ptr(model.StatusCompleted),
		Result:     ptr("Hello"),
		FinishedAt: &finished,
	})
	if err != nil {
		t.Fatalf("UpdateExecution completed: %v", err)
	}
	if done.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want completed", done.Status)
	}
	if done.Result == nil || *done.Result != "Hello" {
		t.Errorf("Result = %v, want Hello", done.Result)
	}
	if done.FinishedAt == nil || done.StartedAt.After(*done.FinishedAt) {
		t.Errorf("expected started_at <= finished_at, got %v / %v", done.StartedAt, done.FinishedAt)
	}
}

func TestUpdateExecutionKeepsFirstStartedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := makeTestExecution()
	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := s.UpdateExecution(ctx, e.ID, ExecutionUpdate{StartedAt: &first}); err != nil {
		t.Fatalf("UpdateExecution: %v", err)
	}
	later := first.Add(time.Hour)
	got, err := s.UpdateExecution(ctx, e.ID, ExecutionUpdate{
		Status:    ptr(model.StatusRunning),
		StartedAt: &later,
	})
	if err != nil {
		t.Fatalf("UpdateExecution: %v", err)
	}
	if !got.StartedAt.Equal(first) {
		t.Errorf("StartedAt = %v, want %v (must not be overwritten)", got.StartedAt, first)
	}
}

func TestUpdateExecutionInvalidTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := makeTestExecution()
	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	tests := []struct {
		name string
		path []string
		bad  string
	}{
		{"queued to completed", nil, model.StatusCompleted},
		{"completed to running", []string{model.StatusRunning, model.StatusCompleted}, model.StatusRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, st := range tt.path {
				if _, err := s.UpdateExecution(ctx, e.ID, ExecutionUpdate{Status: ptr(st)}); err != nil {
					t.Fatalf("UpdateExecution(%s): %v", st, err)
				}
			}
			_, err := s.UpdateExecution(ctx, e.ID, ExecutionUpdate{Status: ptr(tt.bad)})
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("error = %v, want ErrInvalidTransition", err)
			}
		})
	}

	got, _ := s.GetExecution(ctx, e.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want completed (rejected updates must not write)", got.Status)
	}
}

func TestUpdateExecutionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpdateExecution(context.Background(), "missing", ExecutionUpdate{Status: ptr(model.StatusRunning)})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdateExecutionConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := make([]string, 10)
	for i := range ids {
		e := makeTestExecution()
		ids[i] = e.ID
		if err := s.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution: %v", err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Go(func() {
			for _, st := range []string{model.StatusRunning, model.StatusCompleted} {
				if _, err := s.UpdateExecution(ctx, id, ExecutionUpdate{Status: ptr(st)}); err != nil {
					errs <- fmt.Errorf("%s -> %s: %w", id, st, err)
					return
				}
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestGetExecutionStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	statuses := []string{model.StatusQueued, model.StatusCompleted, model.StatusCompleted, model.StatusFailed}
	for _, st := range statuses {
		e := makeTestExecution()
		if err := s.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution: %v", err)
		}
		if st == model.StatusQueued {
			continue
		}
		start := time.Now().UTC()
		end := start.Add(100 * time.Millisecond)
		if _, err := s.UpdateExecution(ctx, e.ID, ExecutionUpdate{Status: ptr(model.StatusRunning), StartedAt: &start}); err != nil {
			t.Fatalf("UpdateExecution: %v", err)
		}
		if _, err := s.UpdateExecution(ctx, e.ID, ExecutionUpdate{Status: ptr(st), FinishedAt: &end}); err != nil {
			t.Fatalf("UpdateExecution: %v", err)
		}
	}

	stats, err := s.GetExecutionStats(ctx)
	if err != nil {
		t.Fatalf("GetExecutionStats: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.CountByStatus[model.StatusCompleted] != 2 {
		t.Errorf("completed = %d, want 2", stats.CountByStatus[model.StatusCompleted])
	}
	if stats.CountByStatus[model.StatusFailed] != 1 {
		t.Errorf("failed = %d, want 1", stats.CountByStatus[model.StatusFailed])
	}
	if stats.AvgDurationMS != 100 {
		t.Errorf("AvgDurationMS = %f, want 100", stats.AvgDurationMS)
	}
}

func TestAgentsCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetAgent(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAgent error = %v, want ErrNotFound", err)
	}

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"summarizer", "translator"} {
		a := &model.Agent{ID: model.NewID(), Name: name, Description: "test agent", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.CreateAgent(ctx, a); err != nil {
			t.Fatalf("CreateAgent: %v", err)
		}
		got, err := s.GetAgent(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetAgent: %v", err)
		}
		if got.Name != name {
			t.Errorf("Name = %q, want %q", got.Name, name)
		}
	}

	agents, err := s.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 2 || agents[0].Name != "summarizer" {
		t.Errorf("ListAgents = %v, want [summarizer translator]", agents)
	}
}
