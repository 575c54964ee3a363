package domain

import (
	"context"
	"time"
)

// TrackRepository defines persistence for track records.
//
// CompleteIfActive and FailIfActive are conditional updates guarded by the
// current status: they only apply while the row is still pending or
// processing and report whether any row changed. A false return means
// another notification channel already drove the record to a terminal state
// and the caller must treat the invocation as a no-op.
type TrackRepository interface {
	Create(ctx context.Context, track *Track) error
	GetByID(ctx context.Context, id string) (*Track, error)
	GetByExternalID(ctx context.Context, externalID string) (*Track, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Track, error)
	ListVariants(ctx context.Context, parentID string) ([]Track, error)
	ListStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]Track, error)
	CompleteIfActive(ctx context.Context, externalID, title, sourceURL, storageKey, audioURL string) (bool, error)
	FailIfActive(ctx context.Context, externalID string, status TrackStatus, errMsg string) (bool, error)
	Delete(ctx context.Context, id, userID string) error
}

// AssetRepository handles persistence for derived track artifacts.
type AssetRepository interface {
	Create(ctx context.Context, asset *TrackAsset) error
	ListByTrackID(ctx context.Context, trackID string) ([]TrackAsset, error)
}

// AuditRepository appends raw notification records. Append-only by contract.
type AuditRepository interface {
	Append(ctx context.Context, event *CallbackEvent) error
}
