package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ideascope/ideascope/internal/advisor"
	"github.com/ideascope/ideascope/internal/logger"
	"github.com/ideascope/ideascope/internal/models"
	"github.com/ideascope/ideascope/internal/sources"
	"github.com/ideascope/ideascope/internal/storage"
)

// CreateValidationRequest is the body for POST /v1/validations.
type CreateValidationRequest struct {
	Idea        string            `json:"idea"`
	Assumptions map[string]string `json:"assumptions,omitempty"`
}

// ValidationResponse is the full state of one validation session.
type ValidationResponse struct {
	Session   models.Session                        `json:"session"`
	Results   map[models.Source]models.SourceResult `json:"results"`
	Scorecard models.Scorecard                      `json:"scorecard"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateValidation starts a new validation.
// POST /v1/validations
func (s *Server) handleCreateValidation(w http.ResponseWriter, r *http.Request) {
	var req CreateValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := s.aggregator.Start(r.Context(), req.Idea, req.Assumptions)
	if errors.Is(err, models.ErrEmptyIdea) {
		http.Error(w, "idea required", http.StatusBadRequest)
		return
	}
	if err != nil {
		logger.Error("Failed to start validation: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	s.writeValidation(w, http.StatusAccepted, session.ID)
}

// handleGetValidation returns a validation's current state.
// GET /v1/validations/{id}
func (s *Server) handleGetValidation(w http.ResponseWriter, r *http.Request) {
	s.writeValidation(w, http.StatusOK, chi.URLParam(r, "id"))
}

func (s *Server) writeValidation(w http.ResponseWriter, status int, sessionID string) {
	session, err := s.aggregator.Session(sessionID)
	if errors.Is(err, sources.ErrSessionNotFound) {
		http.Error(w, "Validation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("Failed to load session %s: %v", sessionID, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	results, err := s.aggregator.Results(sessionID)
	if err != nil {
		logger.Error("Failed to load results for %s: %v", sessionID, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	card, err := s.aggregator.Scorecard(sessionID)
	if err != nil {
		logger.Error("Failed to load scorecard for %s: %v", sessionID, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, ValidationResponse{Session: session, Results: results, Scorecard: card})
}

// handleRefresh re-fetches one source. Aliases like "forums" are
// accepted and mapped to their canonical source.
// POST /v1/validations/{id}/sources/{source}/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	source, err := models.ParseSource(chi.URLParam(r, "source"))
	if err != nil {
		http.Error(w, "Unknown source", http.StatusBadRequest)
		return
	}

	err = s.aggregator.Refresh(r.Context(), chi.URLParam(r, "id"), source)
	switch {
	case errors.Is(err, sources.ErrSessionNotFound):
		http.Error(w, "Validation not found", http.StatusNotFound)
	case errors.Is(err, sources.ErrFetchInProgress):
		http.Error(w, "Fetch already in progress", http.StatusConflict)
	case errors.Is(err, models.ErrUnknownSource):
		http.Error(w, "Unknown source", http.StatusBadRequest)
	case err != nil:
		logger.Error("Failed to refresh %s: %v", source, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"source": string(source),
			"status": string(models.StatusFetching),
		})
	}
}

// handlePutRefinement installs refinement parameters and returns the
// recomputed scorecard.
// PUT /v1/validations/{id}/refinements
func (s *Server) handlePutRefinement(w http.ResponseWriter, r *http.Request) {
	var refinement models.Refinement
	if err := json.NewDecoder(r.Body).Decode(&refinement); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	card, err := s.aggregator.SetRefinement(chi.URLParam(r, "id"), refinement)
	if errors.Is(err, sources.ErrSessionNotFound) {
		http.Error(w, "Validation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// handleImprovements returns the ordered improvement list for a
// validation's current state.
// GET /v1/validations/{id}/improvements
func (s *Server) handleImprovements(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	card, err := s.aggregator.Scorecard(sessionID)
	if errors.Is(err, sources.ErrSessionNotFound) {
		http.Error(w, "Validation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("Failed to load scorecard for %s: %v", sessionID, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	results, err := s.aggregator.Results(sessionID)
	if err != nil {
		logger.Error("Failed to load results for %s: %v", sessionID, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	improvements := advisor.Recommend(card, results, s.config.AdvisorTarget)
	if improvements == nil {
		improvements = []models.Improvement{}
	}
	writeJSON(w, http.StatusOK, improvements)
}

// LatestResponse points at the most recent completed validation.
type LatestResponse struct {
	SessionID string           `json:"sessionId"`
	Idea      string           `json:"idea"`
	Scorecard models.Scorecard `json:"scorecard"`
}

// handleLatest returns the last completed validation from the KV cache.
// GET /v1/validations/latest
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	sessionID, err := s.store.GetKV("last_session_id")
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "No validation yet", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("Failed to read latest pointer: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	idea, err := s.store.GetKV("last_idea")
	if err != nil {
		idea = ""
	}
	resp := LatestResponse{SessionID: sessionID, Idea: idea}
	if raw, err := s.store.GetKV("last_scorecard"); err == nil {
		if err := json.Unmarshal([]byte(raw), &resp.Scorecard); err != nil {
			logger.Warn("Failed to decode cached scorecard: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}
