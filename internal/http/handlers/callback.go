package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"tunesmith/internal/domain"
	"tunesmith/internal/generation"
	"tunesmith/internal/middleware"
)

// maxCallbackBody bounds an inbound notification body (1 MB).
const maxCallbackBody = 1 << 20

type callbackResponse struct {
	Status        string `json:"status"`
	CorrelationID string `json:"correlationId"`
	Processed     bool   `json:"processed"`
}

// MuseCallback receives push notifications from the provider. The contract is
// strict: respond 200 no matter what, so the provider never retries into an
// error loop. Processing failures are retried a bounded number of times and
// then abandoned; the deferred poll picks the record up later. Every inbound
// body is audited, including ones that match no known shape.
func (a *App) MuseCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		a.Logger.Warn().Err(err).Msg("callback: failed to read body")
		a.json(w, http.StatusOK, callbackResponse{Status: "received"})
		return
	}

	payload := generation.ClassifyPayload(body)

	result := domain.CallbackProcessed
	processed := true
	if payload.Kind == generation.PayloadUnknown {
		a.Logger.Warn().
			Int("bytes", len(body)).
			Msg("callback: unrecognized payload dropped")
		result = domain.CallbackDropped
		processed = false
	} else if err := a.processCallback(r, payload); err != nil {
		// Out of retries. The record stays live; the deferred poll and the
		// reconciler sweep are the backstop.
		a.Logger.Error().
			Err(err).
			Str("external_id", payload.ExternalID).
			Str("kind", string(payload.Kind)).
			Msg("callback: processing abandoned after retries")
		result = domain.CallbackFailed
		processed = false
	}

	a.auditCallback(r, payload, body, result)

	a.json(w, http.StatusOK, callbackResponse{
		Status:        "received",
		CorrelationID: payload.ExternalID,
		Processed:     processed,
	})
}

func (a *App) processCallback(r *http.Request, payload generation.CallbackPayload) error {
	ctx := r.Context()
	attempts, delay := a.retryPolicy()

	switch payload.Kind {
	case generation.PayloadTrackResult:
		return generation.WithRetry(ctx, attempts, delay, a.Logger, func() error {
			_, err := a.Generation.HandleCompleted(ctx, payload.ExternalID, payload.Items)
			return err
		})

	case generation.PayloadDerivedAsset:
		return generation.WithRetry(ctx, attempts, delay, a.Logger, func() error {
			return a.Generation.HandleDerivedAsset(ctx, payload.ExternalID, *payload.Derived)
		})

	case generation.PayloadError:
		return generation.WithRetry(ctx, attempts, delay, a.Logger, func() error {
			_, _, err := a.Generation.HandleProviderError(ctx, payload.ExternalID, payload.ErrorText)
			return err
		})

	case generation.PayloadCatchAll:
		// Recognized correlation id, unrecognized shape. Routing through the
		// completion handler with no items touches nothing on a live record
		// but still exercises the unknown-id and terminal guards.
		return generation.WithRetry(ctx, attempts, delay, a.Logger, func() error {
			_, err := a.Generation.HandleCompleted(ctx, payload.ExternalID, nil)
			return err
		})
	}
	return nil
}

// auditCallback appends one append-only audit row. Audit failures are logged
// and swallowed; the audit trail never affects the response or the record.
func (a *App) auditCallback(r *http.Request, payload generation.CallbackPayload, body []byte, result string) {
	raw := body
	if !json.Valid(raw) {
		wrapped, err := json.Marshal(map[string]string{"raw": string(body)})
		if err != nil {
			wrapped = []byte("{}")
		}
		raw = wrapped
	}

	event := &domain.CallbackEvent{
		ID:               uuid.NewString(),
		ExternalID:       payload.ExternalID,
		DetectedType:     string(payload.Kind),
		RawPayload:       raw,
		ProcessingStatus: result,
		OriginCountry:    middleware.ResolveCountry(r, a.Geo),
	}
	if err := a.Audit.Append(r.Context(), event); err != nil {
		a.Logger.Error().Err(err).Str("external_id", payload.ExternalID).Msg("callback: audit append failed")
	}
}
