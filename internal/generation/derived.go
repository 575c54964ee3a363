package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tunesmith/internal/domain"
)

// derivedFamily describes one derived-asset job family: which payload field
// carries the source URL and where the artifact lands in storage. Adding a
// family means adding an entry here, not another handler.
type derivedFamily struct {
	Field     string
	Namespace string
	Ext       string
	AssetKind domain.AssetKind
}

var derivedFamilies = map[string]derivedFamily{
	"video": {Field: "video_url", Namespace: "video", Ext: ".mp4", AssetKind: domain.AssetKindVideo},
	"wav":   {Field: "wav_url", Namespace: "wav", Ext: ".wav", AssetKind: domain.AssetKindWav},
}

// derivedFamilyOrder fixes the evaluation order during payload
// classification.
var derivedFamilyOrder = []string{"video", "wav"}

// KnownDerivedFamily reports whether family names a configured descriptor.
func KnownDerivedFamily(family string) bool {
	_, ok := derivedFamilies[family]
	return ok
}

// HandleDerivedAsset materializes a secondary render for an existing
// generation and attaches it to the parent track. A duplicate notification
// for a family that already has an asset is a no-op.
func (s *Service) HandleDerivedAsset(ctx context.Context, externalID string, result DerivedResult) error {
	descriptor, ok := derivedFamilies[result.Family]
	if !ok {
		return fmt.Errorf("unknown derived asset family %q: %w", result.Family, domain.ErrInvalidPayload)
	}

	track, err := s.tracks.GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().
				Str("external_id", externalID).
				Str("family", result.Family).
				Msg("generation: derived asset for unknown track")
			return nil
		}
		return fmt.Errorf("load track %s: %w", externalID, err)
	}

	existing, err := s.assets.ListByTrackID(ctx, track.ID)
	if err != nil {
		return fmt.Errorf("list assets for %s: %w", track.ID, err)
	}
	for _, asset := range existing {
		if asset.Kind == descriptor.AssetKind {
			s.logger.Info().
				Str("track_id", track.ID).
				Str("family", result.Family).
				Msg("generation: derived asset already persisted, skipping")
			return nil
		}
	}

	key := derivedKey(track.UserID, track.ID, descriptor.Namespace, descriptor.Ext)
	artifact, err := s.materializer.Materialize(ctx, result.SourceURL, key)
	if err != nil {
		return fmt.Errorf("derived asset for %s: %w", track.ID, err)
	}

	asset := &domain.TrackAsset{
		ID:         uuid.NewString(),
		TrackID:    track.ID,
		Kind:       descriptor.AssetKind,
		SourceURL:  artifact.SourceURL,
		StorageKey: artifact.StorageKey,
		URL:        artifact.SignedURL,
		Bytes:      artifact.Bytes,
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		return fmt.Errorf("persist derived asset for %s: %w", track.ID, err)
	}

	s.logger.Info().
		Str("track_id", track.ID).
		Str("family", result.Family).
		Str("storage_key", artifact.StorageKey).
		Msg("generation: derived asset persisted")
	return nil
}
