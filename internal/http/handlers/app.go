package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"tunesmith/internal/domain"
	"tunesmith/internal/generation"
	"tunesmith/internal/infra"
	"tunesmith/internal/middleware"
	"tunesmith/internal/provider/museapi"
	"tunesmith/internal/schedule"
	"tunesmith/internal/storage"
)

// Submitter is the slice of the Muse client the submit handler needs.
type Submitter interface {
	Submit(ctx context.Context, req museapi.SubmitRequest) (*museapi.SubmitResponse, error)
}

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Config     *infra.Config
	Logger     infra.Logger
	Tracks     domain.TrackRepository
	Assets     domain.AssetRepository
	Audit      domain.AuditRepository
	Store      *storage.FileStore
	Provider   Submitter
	Generation *generation.Service
	Reconciler *generation.Reconciler
	Scheduler  *schedule.DeferredPoller
	Geo        middleware.CountryLookup

	// RetryAttempts and RetryDelay bound callback processing retries before
	// the receiver abandons the notification to the deferred poll. Zero
	// values select the defaults.
	RetryAttempts int
	RetryDelay    time.Duration
}

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = time.Second
)

func (a *App) retryPolicy() (int, time.Duration) {
	attempts := a.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	delay := a.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	return attempts, delay
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error":   errCode,
		"message": message,
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
