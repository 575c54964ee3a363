package generation

import (
	"context"
	"fmt"

	"tunesmith/internal/domain"
	"tunesmith/internal/infra"
	"tunesmith/internal/provider/museapi"
)

// StatusQuerier is the slice of the Muse client the reconciler needs.
type StatusQuerier interface {
	Status(ctx context.Context, generationID string) (*museapi.StatusResponse, error)
}

// PollFlags tune one reconciliation pass.
type PollFlags struct {
	// PersistFailureOnTerminal records a provider-reported failure on the
	// track. When false the failure is only reported to the caller.
	PersistFailureOnTerminal bool
	// Family selects the derived-asset descriptor when the polled id belongs
	// to a derived job rather than a primary generation.
	Family string
}

// PollResult is what a reconciliation pass reports upstream.
type PollResult struct {
	Status    domain.TrackStatus
	Message   string
	Attempted int
	Succeeded int
	Mutated   bool
}

// Reconciler drives the pull channel: it queries the provider's coarse
// status and funnels outcomes through the same completion core the callback
// uses. Ambiguous states (running, success without artifacts) are reported
// as processing and never mutate the record.
type Reconciler struct {
	provider StatusQuerier
	service  *Service
	logger   infra.Logger
}

// NewReconciler builds a Reconciler.
func NewReconciler(provider StatusQuerier, service *Service, logger infra.Logger) *Reconciler {
	return &Reconciler{provider: provider, service: service, logger: logger}
}

// Poll reconciles the current provider state for one correlation id. The
// returned error marks a provider or persistence problem the caller may
// retry; a successful no-op is not an error.
func (r *Reconciler) Poll(ctx context.Context, externalID string, flags PollFlags) (*PollResult, error) {
	resp, err := r.provider.Status(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}

	switch resp.State {
	case museapi.StateComplete:
		return r.reconcileComplete(ctx, externalID, flags, resp)

	case museapi.StateFailed, museapi.StateRejected:
		status := ClassifyFailure(resp.ErrorMessage)
		result := &PollResult{Status: status, Message: resp.ErrorMessage}
		if flags.PersistFailureOnTerminal {
			persisted, applied, err := r.service.HandleProviderError(ctx, externalID, resp.ErrorMessage)
			if err != nil {
				return nil, err
			}
			result.Status = persisted
			result.Mutated = applied
		}
		return result, nil

	default:
		// pending, processing, or anything unrecognized: report processing
		// and leave the record alone.
		r.logger.Debug().
			Str("external_id", externalID).
			Str("state", resp.State).
			Msg("reconciler: generation still in flight")
		return &PollResult{Status: domain.TrackStatusProcessing}, nil
	}
}

func (r *Reconciler) reconcileComplete(ctx context.Context, externalID string, flags PollFlags, resp *museapi.StatusResponse) (*PollResult, error) {
	if flags.Family != "" {
		if resp.AssetURL == "" {
			return &PollResult{Status: domain.TrackStatusProcessing}, nil
		}
		err := r.service.HandleDerivedAsset(ctx, externalID, DerivedResult{Family: flags.Family, SourceURL: resp.AssetURL})
		if err != nil {
			return nil, err
		}
		return &PollResult{Status: domain.TrackStatusCompleted, Mutated: true}, nil
	}

	if len(resp.Tracks) == 0 {
		// Success without artifacts: metadata lagging availability.
		return &PollResult{Status: domain.TrackStatusProcessing}, nil
	}

	items := make([]ResultItem, 0, len(resp.Tracks))
	for _, track := range resp.Tracks {
		if track.AudioURL == "" {
			continue
		}
		items = append(items, ResultItem{
			SourceURL: track.AudioURL,
			Title:     track.Title,
			Tags:      track.Tags,
			Duration:  track.Duration,
		})
	}

	outcome, err := r.service.HandleCompleted(ctx, externalID, items)
	if err != nil {
		return nil, err
	}
	status := outcome.Status
	if status == "" {
		status = domain.TrackStatusProcessing
	}
	return &PollResult{
		Status:    status,
		Attempted: outcome.Attempted,
		Succeeded: outcome.Succeeded,
		Mutated:   outcome.Mutated,
	}, nil
}
