package generation

import (
	"context"
	"errors"
	"fmt"

	"tunesmith/internal/domain"
	"tunesmith/internal/infra"
)

// failureArtifactRetrieval is recorded when a notification carried artifacts
// but none of them could be persisted.
const failureArtifactRetrieval = "artifact retrieval failure"

// Service is the shared completion core used by both notification channels.
// The push callback and the pull poll race freely; the conditional updates in
// TrackRepository resolve that race, so a second invocation against a track
// that already reached a terminal state is a no-op.
type Service struct {
	tracks       domain.TrackRepository
	assets       domain.AssetRepository
	materializer *Materializer
	logger       infra.Logger
}

// NewService wires the completion core.
func NewService(tracks domain.TrackRepository, assets domain.AssetRepository, materializer *Materializer, logger infra.Logger) *Service {
	return &Service{tracks: tracks, assets: assets, materializer: materializer, logger: logger}
}

// CompletionOutcome summarizes one invocation of the completion handler.
type CompletionOutcome struct {
	Status    domain.TrackStatus
	Attempted int
	Succeeded int
	Variants  int
	Mutated   bool
}

// HandleCompleted reconciles a success notification for the given correlation
// id against the track record.
//
//   - Unknown correlation id: logged, no-op (orphan or late notification).
//   - Already terminal: logged, no-op.
//   - Non-empty items: each is materialized independently; individual
//     failures are skipped. At least one success completes the track with the
//     first artifact as primary and fans the rest out as variant records; zero
//     successes fail the track.
//   - Empty items: the record is left in processing. Metadata can lag
//     artifact availability and an empty success signal must not count as a
//     failure.
func (s *Service) HandleCompleted(ctx context.Context, externalID string, items []ResultItem) (*CompletionOutcome, error) {
	track, err := s.tracks.GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Str("external_id", externalID).Msg("generation: notification for unknown track")
			return &CompletionOutcome{Status: "", Attempted: len(items)}, nil
		}
		return nil, fmt.Errorf("load track %s: %w", externalID, err)
	}

	if track.Status.Terminal() {
		s.logger.Info().
			Str("track_id", track.ID).
			Str("status", string(track.Status)).
			Msg("generation: track already terminal, skipping")
		return &CompletionOutcome{Status: track.Status, Attempted: len(items)}, nil
	}

	if len(items) == 0 {
		s.logger.Info().Str("track_id", track.ID).Msg("generation: success notification without artifacts, keeping processing")
		return &CompletionOutcome{Status: track.Status}, nil
	}

	materialized := s.materializeAll(ctx, track, items)

	if len(materialized) == 0 {
		applied, err := s.tracks.FailIfActive(ctx, externalID, domain.TrackStatusFailed, failureArtifactRetrieval)
		if err != nil {
			return nil, fmt.Errorf("fail track %s: %w", track.ID, err)
		}
		if !applied {
			s.logger.Info().Str("track_id", track.ID).Msg("generation: failure update lost the race, skipping")
			return &CompletionOutcome{Status: track.Status, Attempted: len(items)}, nil
		}
		s.logger.Error().
			Str("track_id", track.ID).
			Int("attempted", len(items)).
			Msg("generation: all artifacts failed to materialize")
		return &CompletionOutcome{Status: domain.TrackStatusFailed, Attempted: len(items), Mutated: true}, nil
	}

	primary := materialized[0]
	title := primary.item.Title
	if title == "" {
		title = track.Title
	}

	applied, err := s.tracks.CompleteIfActive(ctx, externalID, title, primary.artifact.SourceURL, primary.artifact.StorageKey, primary.artifact.SignedURL)
	if err != nil {
		return nil, fmt.Errorf("complete track %s: %w", track.ID, err)
	}
	if !applied {
		// The other channel won between our status read and this update.
		// Artifacts already on disk stay put; nothing references them.
		s.logger.Info().
			Str("track_id", track.ID).
			Str("external_id", externalID).
			Msg("generation: completion update lost the race, skipping")
		return &CompletionOutcome{Status: domain.TrackStatusCompleted, Attempted: len(items), Succeeded: len(materialized)}, nil
	}

	variants := s.fanOutVariants(ctx, track, title, materialized[1:])

	s.logger.Info().
		Str("track_id", track.ID).
		Int("attempted", len(items)).
		Int("succeeded", len(materialized)).
		Int("variants", variants).
		Msg("generation: track completed")

	return &CompletionOutcome{
		Status:    domain.TrackStatusCompleted,
		Attempted: len(items),
		Succeeded: len(materialized),
		Variants:  variants,
		Mutated:   true,
	}, nil
}

// HandleProviderError records a provider-reported failure, classified into
// rejected or failed. Terminal records are never overwritten; the returned
// bool reports whether the record actually changed.
func (s *Service) HandleProviderError(ctx context.Context, externalID, message string) (domain.TrackStatus, bool, error) {
	status := ClassifyFailure(message)
	applied, err := s.tracks.FailIfActive(ctx, externalID, status, message)
	if err != nil {
		return status, false, fmt.Errorf("record provider error for %s: %w", externalID, err)
	}
	if !applied {
		s.logger.Info().Str("external_id", externalID).Msg("generation: no active track for provider error, ignoring")
		return status, false, nil
	}
	s.logger.Info().
		Str("external_id", externalID).
		Str("status", string(status)).
		Str("reason", message).
		Msg("generation: provider failure recorded")
	return status, true, nil
}

type materializedItem struct {
	item     ResultItem
	artifact *Materialized
}

// materializeAll persists each artifact independently. One item's failure is
// logged and skipped; it never aborts the batch.
func (s *Service) materializeAll(ctx context.Context, track *domain.Track, items []ResultItem) []materializedItem {
	out := make([]materializedItem, 0, len(items))
	for i, item := range items {
		key := artifactKey(track.UserID, track.ID, i, item.SourceURL)
		artifact, err := s.materializer.Materialize(ctx, item.SourceURL, key)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("track_id", track.ID).
				Int("index", i).
				Msg("generation: artifact skipped")
			continue
		}
		out = append(out, materializedItem{item: item, artifact: artifact})
	}
	return out
}
