package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/botrunner/internal/model"
	"github.com/seantiz/botrunner/internal/store"
)

func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job for events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Finished jobs have nothing left to stream; the history endpoint has
	// their events.
	if model.IsTerminal(job.Status) {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// A job that finished since the status check has a closed topic, so
	// Subscribe returns a closed channel and the loop exits at once.
	ch, unsub := s.engine.Broker().Subscribe(id)
	defer unsub()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("encode job event", "error", err)
				continue
			}
			if err := writeSSEEvent(w, ev.Kind, string(payload)); err != nil {
				return // Client gone.
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// eventHistoryResponse is the JSON response for GET /v1/jobs/{id}/events/history.
type eventHistoryResponse struct {
	JobID  string           `json:"job_id"`
	Events []model.JobEvent `json:"events"`
}

func (s *Server) handleGetEventHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	_, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job for event history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	events, err := s.store.GetEvents(r.Context(), id)
	if err != nil {
		s.logger.Error("get job events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job events")
		return
	}
	if events == nil {
		events = []model.JobEvent{}
	}

	s.writeJSON(w, http.StatusOK, eventHistoryResponse{
		JobID:  id,
		Events: events,
	})
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
// data must not contain newlines; JSON from encoding/json never does.
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
