package generation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"tunesmith/internal/domain"
)

// fanOutVariants writes one sibling completed record per materialized item
// beyond the first. Variant rows clone the parent's prompt parameters, carry
// a back-reference to the parent and no external id, so they are never the
// target of provider notifications and never mutate again.
func (s *Service) fanOutVariants(ctx context.Context, parent *domain.Track, parentTitle string, rest []materializedItem) int {
	created := 0
	for k, entry := range rest {
		title := entry.item.Title
		if title == "" {
			title = fmt.Sprintf("%s (Variant %d)", parentTitle, k+1)
		}
		variant := &domain.Track{
			ID:         uuid.NewString(),
			UserID:     parent.UserID,
			ParentID:   parent.ID,
			Title:      title,
			Status:     domain.TrackStatusCompleted,
			SourceURL:  entry.artifact.SourceURL,
			StorageKey: entry.artifact.StorageKey,
			AudioURL:   entry.artifact.SignedURL,
			PromptJSON: parent.PromptJSON,
		}
		if err := s.tracks.Create(ctx, variant); err != nil {
			s.logger.Error().
				Err(err).
				Str("parent_id", parent.ID).
				Int("variant", k+1).
				Msg("generation: variant insert failed")
			continue
		}
		created++
	}
	return created
}
