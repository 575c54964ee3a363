package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tunesmith/internal/domain"
	"tunesmith/internal/generation"
	"tunesmith/internal/infra"
	"tunesmith/internal/provider/museapi"
	"tunesmith/internal/schedule"
	"tunesmith/internal/storage"
)

type memTrackRepo struct {
	mu       sync.Mutex
	byID     map[string]*domain.Track
	byExt    map[string]*domain.Track
	variants []domain.Track
}

func newMemTrackRepo(tracks ...*domain.Track) *memTrackRepo {
	repo := &memTrackRepo{byID: make(map[string]*domain.Track), byExt: make(map[string]*domain.Track)}
	for _, track := range tracks {
		repo.byID[track.ID] = track
		if track.ExternalID != "" {
			repo.byExt[track.ExternalID] = track
		}
	}
	return repo
}

func (r *memTrackRepo) Create(ctx context.Context, track *domain.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *track
	r.byID[track.ID] = &copied
	if track.ExternalID != "" {
		r.byExt[track.ExternalID] = &copied
	}
	if track.ParentID != "" {
		r.variants = append(r.variants, copied)
	}
	return nil
}

func (r *memTrackRepo) GetByID(ctx context.Context, id string) (*domain.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	track, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *track
	return &copied, nil
}

func (r *memTrackRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	track, ok := r.byExt[externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *track
	return &copied, nil
}

func (r *memTrackRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Track
	for _, track := range r.byID {
		if track.UserID == userID {
			out = append(out, *track)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memTrackRepo) ListVariants(ctx context.Context, parentID string) ([]domain.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Track
	for _, v := range r.variants {
		if v.ParentID == parentID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *memTrackRepo) ListStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]domain.Track, error) {
	return nil, nil
}

func (r *memTrackRepo) CompleteIfActive(ctx context.Context, externalID, title, sourceURL, storageKey, audioURL string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	track, ok := r.byExt[externalID]
	if !ok || track.Status.Terminal() {
		return false, nil
	}
	track.Status = domain.TrackStatusCompleted
	track.Title = title
	track.SourceURL = sourceURL
	track.StorageKey = storageKey
	track.AudioURL = audioURL
	return true, nil
}

func (r *memTrackRepo) FailIfActive(ctx context.Context, externalID string, status domain.TrackStatus, errMsg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	track, ok := r.byExt[externalID]
	if !ok || track.Status.Terminal() {
		return false, nil
	}
	track.Status = status
	track.ErrorMessage = errMsg
	return true, nil
}

func (r *memTrackRepo) Delete(ctx context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	track, ok := r.byID[id]
	if !ok || track.UserID != userID {
		return domain.ErrNotFound
	}
	delete(r.byID, id)
	if track.ExternalID != "" {
		delete(r.byExt, track.ExternalID)
	}
	return nil
}

func (r *memTrackRepo) track(externalID string) domain.Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.byExt[externalID]
}

type memAssetRepo struct {
	mu     sync.Mutex
	assets []domain.TrackAsset
}

func (r *memAssetRepo) Create(ctx context.Context, asset *domain.TrackAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets = append(r.assets, *asset)
	return nil
}

func (r *memAssetRepo) ListByTrackID(ctx context.Context, trackID string) ([]domain.TrackAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TrackAsset
	for _, a := range r.assets {
		if a.TrackID == trackID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memAuditRepo struct {
	mu     sync.Mutex
	events []domain.CallbackEvent
}

func (r *memAuditRepo) Append(ctx context.Context, event *domain.CallbackEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *memAuditRepo) last(t *testing.T) domain.CallbackEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		t.Fatal("no audit events recorded")
	}
	return r.events[len(r.events)-1]
}

type stubSubmitter struct {
	resp *museapi.SubmitResponse
	err  error
	last museapi.SubmitRequest
}

func (s *stubSubmitter) Submit(ctx context.Context, req museapi.SubmitRequest) (*museapi.SubmitResponse, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type stubQuerier struct {
	resp *museapi.StatusResponse
	err  error
}

func (s *stubQuerier) Status(ctx context.Context, generationID string) (*museapi.StatusResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type appFixture struct {
	app    *App
	tracks *memTrackRepo
	assets *memAssetRepo
	audit  *memAuditRepo
}

func newTestApp(t *testing.T, tracks *memTrackRepo, querier generation.StatusQuerier, submitter Submitter) *appFixture {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), "media-key")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	logger := infra.Logger(zerolog.Nop())
	materializer := generation.NewMaterializer(store, nil, time.Hour, logger)
	assets := &memAssetRepo{}
	audit := &memAuditRepo{}
	service := generation.NewService(tracks, assets, materializer, logger)

	app := &App{
		Config: &infra.Config{
			JWTSecret:        "test-secret",
			InternalAPIToken: "svc-token",
			MediaURLTTL:      time.Hour,
			PublicBaseURL:    "http://api.test",
			DefaultLocale:    "en",
			RateLimitPerMin:  1000,
		},
		Logger:        logger,
		Tracks:        tracks,
		Assets:        assets,
		Audit:         audit,
		Store:         store,
		Provider:      submitter,
		Generation:    service,
		Scheduler:     schedule.NewDeferredPoller(time.Hour, func(ctx context.Context, externalID string) {}, logger),
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}
	if querier != nil {
		app.Reconciler = generation.NewReconciler(querier, service, logger)
	}
	t.Cleanup(app.Scheduler.Stop)
	return &appFixture{app: app, tracks: tracks, assets: assets, audit: audit}
}

func newMediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("media-" + r.URL.Path))
	}))
	t.Cleanup(server.Close)
	return server
}

func processingTrack(externalID string) *domain.Track {
	return &domain.Track{
		ID:         "track-" + externalID,
		UserID:     "user-1",
		ExternalID: externalID,
		Title:      "Night Drive",
		Status:     domain.TrackStatusProcessing,
		PromptJSON: []byte(`{"prompt":"synthwave"}`),
	}
}
