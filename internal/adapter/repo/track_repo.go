package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tunesmith/internal/domain"
)

// trackColumns is the scan order shared by every track SELECT.
const trackColumns = `
id, user_id, COALESCE(external_id, ''), COALESCE(parent_id::text, ''), title, status,
source_url, storage_key, audio_url, prompt_json, error_message, created_at, updated_at`

// TrackRepositoryPG implements domain.TrackRepository.
type TrackRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewTrackRepository creates a new track repository backed by PostgreSQL.
func NewTrackRepository(pool *pgxpool.Pool) *TrackRepositoryPG {
	return &TrackRepositoryPG{pool: pool}
}

// Create inserts a new track record.
func (r *TrackRepositoryPG) Create(ctx context.Context, track *domain.Track) error {
	query := `
INSERT INTO tracks (id, user_id, external_id, parent_id, title, status, source_url, storage_key, audio_url, prompt_json, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10::jsonb, '{}'::jsonb), $11);
`
	_, err := r.pool.Exec(ctx, query,
		track.ID,
		track.UserID,
		nullableString(track.ExternalID),
		nullableString(track.ParentID),
		track.Title,
		track.Status,
		track.SourceURL,
		track.StorageKey,
		track.AudioURL,
		nullableBytes(track.PromptJSON),
		track.ErrorMessage,
	)
	return err
}

// GetByID fetches a track by its identifier.
func (r *TrackRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Track, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = $1;`, id)
	return scanTrack(row)
}

// GetByExternalID fetches the track owning a provider correlation id.
func (r *TrackRepositoryPG) GetByExternalID(ctx context.Context, externalID string) (*domain.Track, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+trackColumns+` FROM tracks WHERE external_id = $1;`, externalID)
	return scanTrack(row)
}

// ListByUser returns the user's most recent tracks, newest first.
func (r *TrackRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Track, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
SELECT `+trackColumns+`
FROM tracks
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;
`, userID, limit)
	if err != nil {
		return nil, err
	}
	return scanTracks(rows)
}

// ListVariants returns the fan-out variant rows of a primary track.
func (r *TrackRepositoryPG) ListVariants(ctx context.Context, parentID string) ([]domain.Track, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+trackColumns+`
FROM tracks
WHERE parent_id = $1
ORDER BY created_at ASC;
`, parentID)
	if err != nil {
		return nil, err
	}
	return scanTracks(rows)
}

// ListStaleProcessing returns non-terminal tracks not updated since olderThan.
// Only rows with a correlation id qualify; variants are never reconciled.
func (r *TrackRepositoryPG) ListStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]domain.Track, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
SELECT `+trackColumns+`
FROM tracks
WHERE status IN ('pending', 'processing')
  AND external_id IS NOT NULL
  AND updated_at < $1
ORDER BY updated_at ASC
LIMIT $2;
`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	return scanTracks(rows)
}

// CompleteIfActive marks the track completed with its primary artifact, but
// only while it is still pending or processing. The status predicate makes the
// update atomic: when two notification channels race, exactly one sees a row
// change and the other gets false.
func (r *TrackRepositoryPG) CompleteIfActive(ctx context.Context, externalID, title, sourceURL, storageKey, audioURL string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE tracks
SET status = 'completed',
    title = CASE WHEN $2 <> '' THEN $2 ELSE title END,
    source_url = $3,
    storage_key = $4,
    audio_url = $5,
    error_message = '',
    updated_at = NOW()
WHERE external_id = $1
  AND status IN ('pending', 'processing');
`, externalID, title, sourceURL, storageKey, audioURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FailIfActive records a terminal failure status under the same guard as
// CompleteIfActive.
func (r *TrackRepositoryPG) FailIfActive(ctx context.Context, externalID string, status domain.TrackStatus, errMsg string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE tracks
SET status = $2,
    error_message = $3,
    updated_at = NOW()
WHERE external_id = $1
  AND status IN ('pending', 'processing');
`, externalID, status, errMsg)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a track owned by userID. Variant rows cascade.
func (r *TrackRepositoryPG) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tracks WHERE id = $1 AND user_id = $2;`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTrack(row pgx.Row) (*domain.Track, error) {
	var track domain.Track
	if err := row.Scan(
		&track.ID,
		&track.UserID,
		&track.ExternalID,
		&track.ParentID,
		&track.Title,
		&track.Status,
		&track.SourceURL,
		&track.StorageKey,
		&track.AudioURL,
		&track.PromptJSON,
		&track.ErrorMessage,
		&track.CreatedAt,
		&track.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &track, nil
}

func scanTracks(rows pgx.Rows) ([]domain.Track, error) {
	defer rows.Close()
	var tracks []domain.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, *track)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tracks, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
