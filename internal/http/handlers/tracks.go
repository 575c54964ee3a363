package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tunesmith/internal/domain"
	"tunesmith/internal/middleware"
	"tunesmith/internal/provider/museapi"
	"tunesmith/pkg/zip"
)

type trackSubmitRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	Instrumental bool   `json:"instrumental,omitempty"`
}

// TrackSubmit enqueues one generation with the provider, records a processing
// track, and arms the deferred fallback poll. The callback URL handed to the
// provider points back at our public receiver.
func (a *App) TrackSubmit(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	var req trackSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}

	submission := museapi.SubmitRequest{
		Prompt:       req.Prompt,
		Style:        req.Style,
		Title:        req.Title,
		Instrumental: req.Instrumental,
		CallbackURL:  strings.TrimRight(a.Config.PublicBaseURL, "/") + "/v1/callbacks/muse",
	}
	resp, err := a.Provider.Submit(r.Context(), submission)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("tracks: submission failed")
		a.error(w, http.StatusBadGateway, "provider_unavailable", "failed to submit generation")
		return
	}

	promptJSON, _ := json.Marshal(req)
	track := &domain.Track{
		ID:         uuid.NewString(),
		UserID:     userID,
		ExternalID: resp.GenerationID,
		Title:      req.Title,
		Status:     domain.TrackStatusProcessing,
		PromptJSON: promptJSON,
	}
	if err := a.Tracks.Create(r.Context(), track); err != nil {
		a.Logger.Error().Err(err).Str("external_id", resp.GenerationID).Msg("tracks: failed to persist record")
		a.error(w, http.StatusInternalServerError, "internal", "failed to record submission")
		return
	}

	a.Scheduler.Schedule(resp.GenerationID)

	a.Logger.Info().
		Str("track_id", track.ID).
		Str("external_id", resp.GenerationID).
		Str("user_id", userID).
		Msg("tracks: generation submitted")

	a.json(w, http.StatusAccepted, map[string]any{
		"track_id":    track.ID,
		"external_id": resp.GenerationID,
		"status":      track.Status,
	})
}

// TrackList returns the caller's tracks, newest first.
func (a *App) TrackList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	tracks, err := a.Tracks.ListByUser(r.Context(), userID, limit)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load tracks")
		return
	}

	locale := middleware.LocaleFromContext(r.Context())
	items := make([]map[string]any, 0, len(tracks))
	for i := range tracks {
		items = append(items, a.trackView(&tracks[i], locale))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// TrackGet returns one track with its variants and derived assets.
func (a *App) TrackGet(w http.ResponseWriter, r *http.Request) {
	track, ok := a.loadOwnedTrack(w, r)
	if !ok {
		return
	}

	locale := middleware.LocaleFromContext(r.Context())
	view := a.trackView(track, locale)

	variants, err := a.Tracks.ListVariants(r.Context(), track.ID)
	if err == nil {
		items := make([]map[string]any, 0, len(variants))
		for i := range variants {
			items = append(items, a.trackView(&variants[i], locale))
		}
		view["variants"] = items
	}

	assets, err := a.Assets.ListByTrackID(r.Context(), track.ID)
	if err == nil {
		items := make([]map[string]any, 0, len(assets))
		for _, asset := range assets {
			entry := map[string]any{
				"id":         asset.ID,
				"kind":       asset.Kind,
				"bytes":      asset.Bytes,
				"created_at": asset.CreatedAt,
			}
			if asset.StorageKey != "" {
				if signed, err := a.Store.SignedPath(asset.StorageKey, a.Config.MediaURLTTL); err == nil {
					entry["url"] = signed
				}
			}
			items = append(items, entry)
		}
		view["assets"] = items
	}

	a.json(w, http.StatusOK, view)
}

// TrackDelete removes a track and its variants.
func (a *App) TrackDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	trackID := chi.URLParam(r, "id")
	if trackID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	if err := a.Tracks.Delete(r.Context(), trackID, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "track not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete track")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TrackBundle streams a zip of the track's audio, its variants, and any
// derived assets.
func (a *App) TrackBundle(w http.ResponseWriter, r *http.Request) {
	track, ok := a.loadOwnedTrack(w, r)
	if !ok {
		return
	}

	var entries []zip.Asset
	appendEntry := func(storageKey, name string) {
		if storageKey == "" {
			return
		}
		data, err := a.Store.Read(r.Context(), storageKey)
		if err != nil {
			a.Logger.Warn().Err(err).Str("storage_key", storageKey).Msg("tracks: bundle entry skipped")
			return
		}
		entries = append(entries, zip.Asset{Filename: name, Data: data})
	}

	appendEntry(track.StorageKey, bundleName(track.Title, "track", track.StorageKey))
	variants, err := a.Tracks.ListVariants(r.Context(), track.ID)
	if err == nil {
		for i := range variants {
			appendEntry(variants[i].StorageKey, bundleName(variants[i].Title, fmt.Sprintf("variant-%d", i+1), variants[i].StorageKey))
		}
	}
	assets, err := a.Assets.ListByTrackID(r.Context(), track.ID)
	if err == nil {
		for _, asset := range assets {
			appendEntry(asset.StorageKey, bundleName(string(asset.Kind), string(asset.Kind), asset.StorageKey))
		}
	}

	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no artifacts available")
		return
	}

	archive := zip.ArchiveAssets(entries)
	if len(archive) == 0 {
		a.error(w, http.StatusInternalServerError, "internal", "failed to build bundle")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", track.ID+".zip"))
	_, _ = w.Write(archive)
}

func (a *App) loadOwnedTrack(w http.ResponseWriter, r *http.Request) (*domain.Track, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, false
	}
	trackID := chi.URLParam(r, "id")
	if trackID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return nil, false
	}
	track, err := a.Tracks.GetByID(r.Context(), trackID)
	if err != nil || track.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "track not found")
		return nil, false
	}
	return track, true
}

// trackView shapes one track for API responses. The signed media URL is
// re-issued on every read so stored references never go stale.
func (a *App) trackView(track *domain.Track, locale string) map[string]any {
	view := map[string]any{
		"id":         track.ID,
		"title":      track.Title,
		"status":     track.Status,
		"hint":       statusHint(locale, track.Status),
		"created_at": track.CreatedAt,
		"updated_at": track.UpdatedAt,
	}
	if track.ExternalID != "" {
		view["external_id"] = track.ExternalID
	}
	if track.ParentID != "" {
		view["parent_id"] = track.ParentID
	}
	if track.ErrorMessage != "" {
		view["error_message"] = track.ErrorMessage
	}
	if len(track.PromptJSON) > 0 {
		view["prompt"] = json.RawMessage(track.PromptJSON)
	}
	if track.StorageKey != "" {
		if signed, err := a.Store.SignedPath(track.StorageKey, a.Config.MediaURLTTL); err == nil {
			view["audio_url"] = signed
		}
	}
	return view
}

func bundleName(title, fallback, storageKey string) string {
	name := strings.TrimSpace(title)
	if name == "" {
		name = fallback
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '-'
		}
		return r
	}, name)
	ext := path.Ext(storageKey)
	if ext == "" {
		ext = ".mp3"
	}
	return name + ext
}
