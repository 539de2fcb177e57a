package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/taskforge/internal/model"
	"github.com/seantiz/taskforge/internal/store"
)

func (s *Server) handleStreamExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	exec, err := s.store.GetExecution(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		s.logger.Error("get execution for stream", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}

	// A finished execution whose channel was reclaimed, or whose Done was
	// already read, has nothing left to relay.
	if model.IsTerminal(exec.Status) {
		if ch, ok := s.engine.Bus().Lookup(id); !ok || ch.Drained() {
			if err := s.gateway.ServeTerminal(w); err != nil {
				s.logger.Debug("write terminal stream", "execution_id", id, "error", err)
			}
			return
		}
	}

	if err := s.gateway.Serve(r.Context(), w, id); err != nil {
		s.logger.Debug("stream ended", "execution_id", id, "error", err)
	}
}
