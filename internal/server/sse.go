package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ideascope/ideascope/internal/logger"
	"github.com/ideascope/ideascope/internal/models"
	"github.com/ideascope/ideascope/internal/sources"
)

// handleEvents streams a validation's status transitions as
// server-sent events: one data frame per transition, a final frame
// when the validation completes, and heartbeat comments to keep the
// connection alive.
// GET /v1/validations/{id}/events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	events, unsubscribe, err := s.aggregator.Subscribe(sessionID)
	if errors.Is(err, sources.ErrSessionNotFound) {
		http.Error(w, "Validation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("Failed to subscribe to %s: %v", sessionID, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	defer unsubscribe()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Replay the current per-source state first so a subscriber that
	// joins mid-validation is not blind until the next transition.
	// Every frame on the stream is a StatusEvent, snapshot included.
	if results, err := s.aggregator.Results(sessionID); err == nil {
		card, _ := s.aggregator.Scorecard(sessionID)
		completed := true
		for _, source := range models.AllSources() {
			res, ok := results[source]
			if !ok {
				continue
			}
			if !res.Status.Terminal() {
				completed = false
			}
			writeEventFrame(w, models.StatusEvent{
				SessionID: sessionID,
				Source:    source,
				Status:    res.Status,
				Composite: card.Composite,
				At:        res.FetchedAt,
			})
		}
		if completed {
			writeEventFrame(w, models.StatusEvent{
				SessionID: sessionID,
				Composite: card.Composite,
				Completed: true,
				At:        time.Now(),
			})
		}
		flusher.Flush()
	}

	heartbeat := time.NewTicker(s.config.SSEHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				logger.Debug("SSE client disconnected during heartbeat: %v", err)
				return
			}
			flusher.Flush()

		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeEventFrame(w, event); err != nil {
				logger.Debug("SSE client disconnected: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEventFrame(w http.ResponseWriter, event models.StatusEvent) error {
	frame, err := json.Marshal(event)
	if err != nil {
		logger.Warn("Failed to encode status event: %v", err)
		return nil
	}
	_, err = w.Write([]byte("data: " + string(frame) + "\n\n"))
	return err
}
