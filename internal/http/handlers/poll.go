package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tunesmith/internal/domain"
	"tunesmith/internal/generation"
	"tunesmith/internal/middleware"
)

type pollRequest struct {
	// PersistFailureOnTerminal records a provider-reported failure on the
	// track. The reconciler sweep sets it; interactive polls default to
	// report-only.
	PersistFailureOnTerminal bool `json:"persistFailureOnTerminal"`
	// Family selects a derived-asset poll (e.g. "wav", "video").
	Family string `json:"family,omitempty"`
	// RecordID optionally pins the poll to a specific track record. A
	// mismatch with the record behind the correlation id is a 404.
	RecordID string `json:"recordId,omitempty"`
}

type pollResponse struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Hint       string `json:"hint,omitempty"`
	Attempted  int    `json:"attempted"`
	Succeeded  int    `json:"succeeded"`
	Mutated    bool   `json:"mutated"`
}

// GenerationPoll reconciles one correlation id against the provider's current
// state on demand. It shares the completion core with the callback receiver,
// so polling a record the callback already settled is a safe no-op.
func (a *App) GenerationPoll(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "external_id")
	if externalID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "external_id required")
		return
	}

	var req pollRequest
	if r.Body != nil {
		// An empty or absent body means default flags.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
			return
		}
	}
	if req.Family != "" && !generation.KnownDerivedFamily(req.Family) {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown asset family")
		return
	}

	if !middleware.IsInternalCaller(r.Context()) {
		userID := a.currentUserID(r)
		if userID == "" {
			a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
			return
		}
		track, err := a.Tracks.GetByExternalID(r.Context(), externalID)
		if err != nil {
			a.error(w, http.StatusNotFound, "not_found", "track not found")
			return
		}
		if track.UserID != userID {
			a.error(w, http.StatusNotFound, "not_found", "track not found")
			return
		}
		if req.RecordID != "" && track.ID != req.RecordID {
			a.error(w, http.StatusNotFound, "not_found", "track not found")
			return
		}
	} else if req.RecordID != "" {
		track, err := a.Tracks.GetByExternalID(r.Context(), externalID)
		if err != nil || track.ID != req.RecordID {
			a.error(w, http.StatusNotFound, "not_found", "track not found")
			return
		}
	}

	result, err := a.Reconciler.Poll(r.Context(), externalID, generation.PollFlags{
		PersistFailureOnTerminal: req.PersistFailureOnTerminal,
		Family:                   req.Family,
	})
	if err != nil {
		if errors.Is(err, domain.ErrProviderFailure) {
			a.error(w, http.StatusBadGateway, "provider_unavailable", "generation provider is unreachable")
			return
		}
		a.Logger.Error().Err(err).Str("external_id", externalID).Msg("poll: reconciliation failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to reconcile generation")
		return
	}

	locale := middleware.LocaleFromContext(r.Context())
	a.json(w, http.StatusOK, pollResponse{
		ExternalID: externalID,
		Status:     string(result.Status),
		Message:    result.Message,
		Hint:       statusHint(locale, result.Status),
		Attempted:  result.Attempted,
		Succeeded:  result.Succeeded,
		Mutated:    result.Mutated,
	})
}
