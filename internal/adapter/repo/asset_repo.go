package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"tunesmith/internal/domain"
)

// AssetRepositoryPG implements domain.AssetRepository using PostgreSQL.
type AssetRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(pool *pgxpool.Pool) *AssetRepositoryPG {
	return &AssetRepositoryPG{pool: pool}
}

// Create persists one derived asset row.
func (r *AssetRepositoryPG) Create(ctx context.Context, asset *domain.TrackAsset) error {
	query := `
INSERT INTO track_assets (id, track_id, kind, source_url, storage_key, url, bytes)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err := r.pool.Exec(ctx, query,
		asset.ID,
		asset.TrackID,
		asset.Kind,
		asset.SourceURL,
		asset.StorageKey,
		asset.URL,
		asset.Bytes,
	)
	return err
}

// ListByTrackID returns all derived assets belonging to the track.
func (r *AssetRepositoryPG) ListByTrackID(ctx context.Context, trackID string) ([]domain.TrackAsset, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, track_id, kind, source_url, storage_key, url, bytes, created_at
FROM track_assets
WHERE track_id = $1
ORDER BY created_at ASC;
`, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.TrackAsset
	for rows.Next() {
		var asset domain.TrackAsset
		if err := rows.Scan(&asset.ID, &asset.TrackID, &asset.Kind, &asset.SourceURL, &asset.StorageKey, &asset.URL, &asset.Bytes, &asset.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}
