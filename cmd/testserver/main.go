// testserver starts a Taskforge API server with stub providers for E2E testing.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"iter"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/seantiz/taskforge/internal/api"
	"github.com/seantiz/taskforge/internal/engine"
	"github.com/seantiz/taskforge/internal/gateway"
	"github.com/seantiz/taskforge/internal/provider"
	"github.com/seantiz/taskforge/internal/store"
)

// stubProvider echoes the prompt back word by word.
type stubProvider struct {
	name  string
	kind  provider.Kind
	delay time.Duration
}

func (s *stubProvider) Name() string        { return s.name }
func (s *stubProvider) Kind() provider.Kind { return s.kind }
func (s *stubProvider) Configured() bool    { return true }

func (s *stubProvider) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, word := range strings.Fields(prompt) {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
			if i > 0 {
				word = " " + word
			}
			if !yield(word, nil) {
				return
			}
		}
	}
}

func main() {
	addr := ":8080"
	if v := os.Getenv("TASKFORGE_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reg := provider.NewRegistry()
	reg.Register(&stubProvider{name: "stub-stream", kind: provider.KindStreaming, delay: 200 * time.Millisecond})

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	bus := engine.NewEventBus(2 * time.Second)
	defer bus.Close()

	eng := engine.NewEngine(db, reg, bus, logger, engine.DefaultPersistWorkers)
	gw := gateway.New(bus, 5*time.Second, logger)
	srv := api.NewServer(addr, db, reg, eng, gw, logger)

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(context.Background()); err != nil {
		log.Fatalf("server error: %v", err)
	}
	eng.Wait()
}
