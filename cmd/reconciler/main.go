package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tunesmith/internal/adapter/repo"
	"tunesmith/internal/domain"
	"tunesmith/internal/infra"
)

// The sweeper finds tracks stuck in a non-terminal state past the staleness
// window and drives them through the API's poll endpoint. Going through HTTP
// instead of calling the reconciler directly keeps one process owning the
// completion path and its locking behavior.
type sweeper struct {
	ctx      context.Context
	tracks   domain.TrackRepository
	client   *http.Client
	logger   infra.Logger
	baseURL  string
	token    string
	stale    time.Duration
	interval time.Duration
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.InternalAPIToken == "" {
		logger.Fatal().Msg("reconciler: INTERNAL_API_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("reconciler: db connection failed")
	}
	defer pool.Close()

	s := &sweeper{
		ctx:      ctx,
		tracks:   repo.NewTrackRepository(pool),
		client:   &http.Client{Timeout: 5 * time.Minute},
		logger:   logger,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		token:    cfg.InternalAPIToken,
		stale:    cfg.StaleAfter,
		interval: cfg.SweepInterval,
	}

	if err := s.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("reconciler: stopped with error")
	}
	logger.Info().Msg("reconciler: stopped")
}

func (s *sweeper) Run() error {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("stale_after", s.stale).
		Msg("reconciler: started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep()
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *sweeper) sweep() {
	cutoff := time.Now().Add(-s.stale)
	stale, err := s.tracks.ListStaleProcessing(s.ctx, cutoff, 100)
	if err != nil {
		s.logger.Error().Err(err).Msg("reconciler: failed to list stale tracks")
		return
	}
	if len(stale) == 0 {
		return
	}
	s.logger.Info().Int("count", len(stale)).Msg("reconciler: sweeping stale tracks")

	for _, track := range stale {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		if err := s.poll(track.ExternalID); err != nil {
			s.logger.Warn().
				Err(err).
				Str("track_id", track.ID).
				Str("external_id", track.ExternalID).
				Msg("reconciler: poll failed")
		}
	}
}

func (s *sweeper) poll(externalID string) error {
	// Stale records get failures persisted: by the time the sweep reaches a
	// track, both the callback and the deferred poll have had their chance.
	body, _ := json.Marshal(map[string]any{"persistFailureOnTerminal": true})
	endpoint := fmt.Sprintf("%s/v1/generation/%s/poll", s.baseURL, externalID)

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-Service-Token", "1")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poll returned status %d", resp.StatusCode)
	}

	var result struct {
		Status  string `json:"status"`
		Mutated bool   `json:"mutated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if result.Mutated {
		s.logger.Info().
			Str("external_id", externalID).
			Str("status", result.Status).
			Msg("reconciler: track settled")
	}
	return nil
}
