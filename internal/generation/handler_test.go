package generation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tunesmith/internal/domain"
	"tunesmith/internal/storage"
)

type stubTrackRepo struct {
	mu       sync.Mutex
	byExt    map[string]*domain.Track
	variants []domain.Track
	// loseRace forces conditional updates to report zero rows affected,
	// simulating the other notification channel winning first.
	loseRace bool
}

func newStubTrackRepo(tracks ...*domain.Track) *stubTrackRepo {
	repo := &stubTrackRepo{byExt: make(map[string]*domain.Track)}
	for _, track := range tracks {
		repo.byExt[track.ExternalID] = track
	}
	return repo
}

func (r *stubTrackRepo) Create(ctx context.Context, track *domain.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if track.ParentID != "" {
		r.variants = append(r.variants, *track)
	}
	return nil
}

func (r *stubTrackRepo) GetByID(ctx context.Context, id string) (*domain.Track, error) {
	return nil, domain.ErrNotFound
}

func (r *stubTrackRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	track, ok := r.byExt[externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *track
	return &copied, nil
}

func (r *stubTrackRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Track, error) {
	return nil, nil
}

func (r *stubTrackRepo) ListVariants(ctx context.Context, parentID string) ([]domain.Track, error) {
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

func (r *stubTrackRepo) ListStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]domain.Track, error) {
	return nil, nil
}

func (r *stubTrackRepo) CompleteIfActive(ctx context.Context, externalID, title, sourceURL, storageKey, audioURL string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	track, ok := r.byExt[externalID]
	if !ok || r.loseRace || track.Status.Terminal() {
		return false, nil
	}
	track.Status = domain.TrackStatusCompleted
	track.Title = title
	track.SourceURL = sourceURL
	track.StorageKey = storageKey
	track.AudioURL = audioURL
	return true, nil
}

func (r *stubTrackRepo) FailIfActive(ctx context.Context, externalID string, status domain.TrackStatus, errMsg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	track, ok := r.byExt[externalID]
	if !ok || r.loseRace || track.Status.Terminal() {
		return false, nil
	}
	track.Status = status
	track.ErrorMessage = errMsg
	return true, nil
}

func (r *stubTrackRepo) Delete(ctx context.Context, id, userID string) error { return nil }

func (r *stubTrackRepo) track(externalID string) domain.Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.byExt[externalID]
}

type stubAssetRepo struct {
	mu     sync.Mutex
	assets []domain.TrackAsset
}

func (r *stubAssetRepo) Create(ctx context.Context, asset *domain.TrackAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets = append(r.assets, *asset)
	return nil
}

func (r *stubAssetRepo) ListByTrackID(ctx context.Context, trackID string) ([]domain.TrackAsset, error) {
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

// newArtifactServer serves fake media bytes; paths listed in missing return 404.
func newArtifactServer(t *testing.T, missing map[string]bool) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if missing[r.URL.Path] {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("bytes-for-" + r.URL.Path))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestService(t *testing.T, tracks *stubTrackRepo, assets *stubAssetRepo) *Service {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), "test-key")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	materializer := NewMaterializer(store, nil, time.Hour, zerolog.Nop())
	return NewService(tracks, assets, materializer, zerolog.Nop())
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

func TestHandleCompletedPartialFailure(t *testing.T) {
	// Scenario: two descriptors, A materializes, B's source returns 404.
	server := newArtifactServer(t, map[string]bool{"/b.mp3": true})
	repo := newStubTrackRepo(processingTrack("gen-1"))
	service := newTestService(t, repo, &stubAssetRepo{})

	outcome, err := service.HandleCompleted(context.Background(), "gen-1", []ResultItem{
		{SourceURL: server.URL + "/a.mp3", Title: "Take A"},
		{SourceURL: server.URL + "/b.mp3", Title: "Take B"},
	})
	if err != nil {
		t.Fatalf("HandleCompleted: %v", err)
	}

	if outcome.Status != domain.TrackStatusCompleted {
		t.Errorf("Status = %s, want completed", outcome.Status)
	}
	if outcome.Attempted != 2 || outcome.Succeeded != 1 {
		t.Errorf("attempted/succeeded = %d/%d, want 2/1", outcome.Attempted, outcome.Succeeded)
	}
	if outcome.Variants != 0 {
		t.Errorf("Variants = %d, want 0", outcome.Variants)
	}

	track := repo.track("gen-1")
	if track.Status != domain.TrackStatusCompleted {
		t.Errorf("track status = %s", track.Status)
	}
	if track.StorageKey == "" || track.AudioURL == "" {
		t.Error("primary artifact reference not set")
	}
	if track.Title != "Take A" {
		t.Errorf("track title = %q, want primary item title", track.Title)
	}
}

func TestHandleCompletedFansOutVariants(t *testing.T) {
	server := newArtifactServer(t, nil)
	repo := newStubTrackRepo(processingTrack("gen-1"))
	service := newTestService(t, repo, &stubAssetRepo{})

	outcome, err := service.HandleCompleted(context.Background(), "gen-1", []ResultItem{
		{SourceURL: server.URL + "/a.mp3", Title: "Take A"},
		{SourceURL: server.URL + "/b.mp3"},
		{SourceURL: server.URL + "/c.mp3"},
	})
	if err != nil {
		t.Fatalf("HandleCompleted: %v", err)
	}
	if outcome.Succeeded != 3 || outcome.Variants != 2 {
		t.Fatalf("succeeded/variants = %d/%d, want 3/2", outcome.Succeeded, outcome.Variants)
	}

	variants, _ := repo.ListVariants(context.Background(), "track-gen-1")
	if len(variants) != 2 {
		t.Fatalf("variant rows = %d, want 2", len(variants))
	}
	for k, variant := range variants {
		if variant.Status != domain.TrackStatusCompleted {
			t.Errorf("variant %d status = %s", k, variant.Status)
		}
		if variant.ExternalID != "" {
			t.Errorf("variant %d carries external id %q", k, variant.ExternalID)
		}
		if variant.StorageKey == "" {
			t.Errorf("variant %d has no artifact", k)
		}
		if string(variant.PromptJSON) != `{"prompt":"synthwave"}` {
			t.Errorf("variant %d prompt = %s", k, variant.PromptJSON)
		}
	}
	if variants[0].Title != "Take A (Variant 1)" {
		t.Errorf("variant title = %q", variants[0].Title)
	}
}

func TestHandleCompletedTotalFailure(t *testing.T) {
	server := newArtifactServer(t, map[string]bool{"/a.mp3": true, "/b.mp3": true})
	repo := newStubTrackRepo(processingTrack("gen-1"))
	service := newTestService(t, repo, &stubAssetRepo{})

	outcome, err := service.HandleCompleted(context.Background(), "gen-1", []ResultItem{
		{SourceURL: server.URL + "/a.mp3"},
		{SourceURL: server.URL + "/b.mp3"},
	})
	if err != nil {
		t.Fatalf("HandleCompleted: %v", err)
	}
	if outcome.Status != domain.TrackStatusFailed {
		t.Errorf("Status = %s, want failed", outcome.Status)
	}

	track := repo.track("gen-1")
	if track.Status != domain.TrackStatusFailed {
		t.Errorf("track status = %s", track.Status)
	}
	if track.ErrorMessage != "artifact retrieval failure" {
		t.Errorf("error message = %q", track.ErrorMessage)
	}
	if track.StorageKey != "" {
		t.Error("failed track must not carry an artifact reference")
	}
}

func TestHandleCompletedEmptyItemsKeepsProcessing(t *testing.T) {
	repo := newStubTrackRepo(processingTrack("gen-1"))
	service := newTestService(t, repo, &stubAssetRepo{})

	outcome, err := service.HandleCompleted(context.Background(), "gen-1", nil)
	if err != nil {
		t.Fatalf("HandleCompleted: %v", err)
	}
	if outcome.Mutated {
		t.Error("empty payload must not mutate")
	}
	if track := repo.track("gen-1"); track.Status != domain.TrackStatusProcessing {
		t.Errorf("track status = %s, want processing", track.Status)
	}
}

func TestHandleCompletedUnknownTrack(t *testing.T) {
	repo := newStubTrackRepo()
	service := newTestService(t, repo, &stubAssetRepo{})

	outcome, err := service.HandleCompleted(context.Background(), "gen-missing", []ResultItem{
		{SourceURL: "https://cdn.example.com/a.mp3"},
	})
	if err != nil {
		t.Fatalf("HandleCompleted: %v", err)
	}
	if outcome.Mutated {
		t.Error("unknown track must be a no-op")
	}
}

func TestHandleCompletedIdempotentOnTerminalTrack(t *testing.T) {
	server := newArtifactServer(t, nil)
	repo := newStubTrackRepo(processingTrack("gen-1"))
	service := newTestService(t, repo, &stubAssetRepo{})

	items := []ResultItem{
		{SourceURL: server.URL + "/a.mp3", Title: "Take A"},
		{SourceURL: server.URL + "/b.mp3", Title: "Take B"},
	}
	if _, err := service.HandleCompleted(context.Background(), "gen-1", items); err != nil {
		t.Fatalf("first HandleCompleted: %v", err)
	}
	first := repo.track("gen-1")
	variantsBefore, _ := repo.ListVariants(context.Background(), "track-gen-1")

	outcome, err := service.HandleCompleted(context.Background(), "gen-1", items)
	if err != nil {
		t.Fatalf("second HandleCompleted: %v", err)
	}
	if outcome.Mutated {
		t.Error("second invocation must not mutate")
	}

	second := repo.track("gen-1")
	if second.StorageKey != first.StorageKey || second.AudioURL != first.AudioURL {
		t.Error("primary artifact reference changed on replay")
	}
	variantsAfter, _ := repo.ListVariants(context.Background(), "track-gen-1")
	if len(variantsAfter) != len(variantsBefore) {
		t.Errorf("variant rows grew from %d to %d on replay", len(variantsBefore), len(variantsAfter))
	}
}

func TestHandleCompletedLosesRaceAtUpdate(t *testing.T) {
	// Both channels read "processing"; the conditional update decides the
	// winner. The loser must not fan out variants.
	server := newArtifactServer(t, nil)
	repo := newStubTrackRepo(processingTrack("gen-1"))
	repo.loseRace = true
	service := newTestService(t, repo, &stubAssetRepo{})

	outcome, err := service.HandleCompleted(context.Background(), "gen-1", []ResultItem{
		{SourceURL: server.URL + "/a.mp3"},
		{SourceURL: server.URL + "/b.mp3"},
	})
	if err != nil {
		t.Fatalf("HandleCompleted: %v", err)
	}
	if outcome.Mutated {
		t.Error("losing channel must report no mutation")
	}
	variants, _ := repo.ListVariants(context.Background(), "track-gen-1")
	if len(variants) != 0 {
		t.Errorf("losing channel created %d variant rows", len(variants))
	}
}

func TestHandleProviderError(t *testing.T) {
	repo := newStubTrackRepo(processingTrack("gen-1"))
	service := newTestService(t, repo, &stubAssetRepo{})

	status, applied, err := service.HandleProviderError(context.Background(), "gen-1", "Content rejected: forbidden lyrics detected")
	if err != nil {
		t.Fatalf("HandleProviderError: %v", err)
	}
	if status != domain.TrackStatusRejected {
		t.Errorf("status = %s, want rejected", status)
	}
	if !applied {
		t.Error("applied = false, want true")
	}
	if track := repo.track("gen-1"); track.Status != domain.TrackStatusRejected {
		t.Errorf("track status = %s", track.Status)
	}
}

func TestHandleProviderErrorSkipsTerminal(t *testing.T) {
	track := processingTrack("gen-1")
	track.Status = domain.TrackStatusCompleted
	repo := newStubTrackRepo(track)
	service := newTestService(t, repo, &stubAssetRepo{})

	_, applied, err := service.HandleProviderError(context.Background(), "gen-1", "late failure")
	if err != nil {
		t.Fatalf("HandleProviderError: %v", err)
	}
	if applied {
		t.Error("applied = true on a terminal track")
	}
	if got := repo.track("gen-1"); got.Status != domain.TrackStatusCompleted {
		t.Errorf("terminal track overwritten to %s", got.Status)
	}
}

func TestHandleDerivedAsset(t *testing.T) {
	server := newArtifactServer(t, nil)
	track := processingTrack("gen-1")
	track.Status = domain.TrackStatusCompleted
	repo := newStubTrackRepo(track)
	assets := &stubAssetRepo{}
	service := newTestService(t, repo, assets)

	result := DerivedResult{Family: "video", SourceURL: server.URL + "/render.mp4"}
	if err := service.HandleDerivedAsset(context.Background(), "gen-1", result); err != nil {
		t.Fatalf("HandleDerivedAsset: %v", err)
	}

	stored, _ := assets.ListByTrackID(context.Background(), "track-gen-1")
	if len(stored) != 1 {
		t.Fatalf("assets = %d, want 1", len(stored))
	}
	if stored[0].Kind != domain.AssetKindVideo {
		t.Errorf("kind = %s", stored[0].Kind)
	}

	// A duplicate notification for the same family is a no-op.
	if err := service.HandleDerivedAsset(context.Background(), "gen-1", result); err != nil {
		t.Fatalf("duplicate HandleDerivedAsset: %v", err)
	}
	stored, _ = assets.ListByTrackID(context.Background(), "track-gen-1")
	if len(stored) != 1 {
		t.Errorf("duplicate created asset rows: %d", len(stored))
	}
}
