// Package gateway relays an execution's event channel to one HTTP reader as a
// Server-Sent Events stream.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/taskforge/internal/engine"
)

// DefaultHeartbeat is the idle interval after which a heartbeat comment is sent.
const DefaultHeartbeat = 25 * time.Second

var activeStreams = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "taskforge_active_streams",
		Help: "Number of SSE readers currently attached to execution channels.",
	},
)

func init() {
	prometheus.MustRegister(activeStreams)
}

// Gateway adapts EventBus channels into SSE responses.
type Gateway struct {
	bus       *engine.EventBus
	heartbeat time.Duration
	logger    *slog.Logger
}

// New creates a gateway reading from bus. A heartbeat of zero or less uses
// DefaultHeartbeat.
func New(bus *engine.EventBus, heartbeat time.Duration, logger *slog.Logger) *Gateway {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Gateway{bus: bus, heartbeat: heartbeat, logger: logger}
}

// Serve streams the channel for id to w until Done is relayed or ctx is
// done. Events not yet read when the reader disconnects stay queued. A
// disconnect is not an error; a failed write is.
func (g *Gateway) Serve(ctx context.Context, w http.ResponseWriter, id string) error {
	rc := g.begin(w)

	activeStreams.Inc()
	defer activeStreams.Dec()

	sub := g.bus.Subscribe(id)
	for {
		if ctx.Err() != nil {
			return nil
		}

		ev, err := sub.Next(ctx, g.heartbeat)
		switch {
		case errors.Is(err, engine.ErrWaitTimeout) && sub.Drained():
			// Another reader took Done; nothing more will arrive here.
			if err := writeEvent(w, "done", doneData); err != nil {
				return fmt.Errorf("write done event: %w", err)
			}
			_ = rc.Flush()
			return nil
		case errors.Is(err, engine.ErrWaitTimeout):
			err = writeHeartbeat(w)
		case err != nil:
			return nil
		case ev.Kind == engine.EventFragment:
			err = writeData(w, ev.Text)
		case ev.Kind == engine.EventError:
			err = writeEvent(w, "error", ev.Text)
		case ev.Kind == engine.EventDone:
			if err := writeEvent(w, "done", doneData); err != nil {
				return fmt.Errorf("write done event: %w", err)
			}
			_ = rc.Flush()
			return nil
		}
		if err != nil {
			return fmt.Errorf("write sse: %w", err)
		}
		_ = rc.Flush()
	}
}

// ServeTerminal writes a stream holding only the done event. It serves
// readers of executions that finished and whose channel is already gone or
// drained.
func (g *Gateway) ServeTerminal(w http.ResponseWriter) error {
	rc := g.begin(w)
	if err := writeEvent(w, "done", doneData); err != nil {
		return fmt.Errorf("write done event: %w", err)
	}
	_ = rc.Flush()
	return nil
}

// begin writes SSE headers, lifts the server write deadline for the
// long-lived response, and flushes.
func (g *Gateway) begin(w http.ResponseWriter) *http.ResponseController {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		g.logger.Error("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()
	return rc
}
