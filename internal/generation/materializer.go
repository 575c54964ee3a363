package generation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"tunesmith/internal/infra"
	"tunesmith/internal/storage"
)

// maxArtifactBytes bounds a single artifact download (256 MB).
const maxArtifactBytes = 256 << 20

// MaterializeError wraps a failed download or storage write for one artifact.
// Callers treat it as a per-item skip, never a batch abort.
type MaterializeError struct {
	URL string
	Err error
}

func (e *MaterializeError) Error() string {
	return fmt.Sprintf("materialize %s: %v", e.URL, e.Err)
}

func (e *MaterializeError) Unwrap() error { return e.Err }

// Materialized is the stable result of persisting one remote artifact.
type Materialized struct {
	SourceURL  string
	StorageKey string
	SignedURL  string
	Bytes      int64
}

// Materializer downloads remote media and persists it into owner-scoped
// durable storage. The store's write-then-rename discipline guarantees no
// reader ever sees a reference to unwritten data.
type Materializer struct {
	store      *storage.FileStore
	httpClient *http.Client
	urlTTL     time.Duration
	logger     infra.Logger
}

// NewMaterializer builds a Materializer. A nil HTTP client gets a default
// with a generous timeout suited to media downloads.
func NewMaterializer(store *storage.FileStore, client *http.Client, urlTTL time.Duration, logger infra.Logger) *Materializer {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	if urlTTL <= 0 {
		urlTTL = 24 * time.Hour
	}
	return &Materializer{store: store, httpClient: client, urlTTL: urlTTL, logger: logger}
}

// Materialize fetches sourceURL and persists it under the given storage key,
// returning the stable key plus a time-bounded retrievable reference.
func (m *Materializer) Materialize(ctx context.Context, sourceURL, key string) (*Materialized, error) {
	data, err := m.download(ctx, sourceURL)
	if err != nil {
		return nil, &MaterializeError{URL: sourceURL, Err: err}
	}

	savedKey, err := m.store.Write(ctx, key, data)
	if err != nil {
		return nil, &MaterializeError{URL: sourceURL, Err: err}
	}

	signed, err := m.store.SignedPath(savedKey, m.urlTTL)
	if err != nil {
		return nil, &MaterializeError{URL: sourceURL, Err: err}
	}

	m.logger.Debug().
		Str("source_url", sourceURL).
		Str("storage_key", savedKey).
		Int("bytes", len(data)).
		Msg("materializer: artifact persisted")

	return &Materialized{
		SourceURL:  sourceURL,
		StorageKey: savedKey,
		SignedURL:  signed,
		Bytes:      int64(len(data)),
	}, nil
}

func (m *Materializer) download(ctx context.Context, sourceURL string) ([]byte, error) {
	parsed, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid source url %q", sourceURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxArtifactBytes {
		return nil, fmt.Errorf("artifact exceeds %d bytes", maxArtifactBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty artifact body")
	}
	return data, nil
}

// artifactKey derives the deterministic owner/track/index storage key for a
// primary generation artifact.
func artifactKey(userID, trackID string, index int, sourceURL string) string {
	return fmt.Sprintf("tracks/%s/%s/%02d%s", userID, trackID, index+1, extensionForURL(sourceURL, ".mp3"))
}

// derivedKey derives the storage key for a derived asset namespace.
func derivedKey(userID, trackID, namespace, ext string) string {
	return fmt.Sprintf("tracks/%s/%s/%s/01%s", userID, trackID, namespace, ext)
}

func extensionForURL(sourceURL, fallback string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return fallback
	}
	switch ext := strings.ToLower(path.Ext(parsed.Path)); ext {
	case ".mp3", ".wav", ".ogg", ".flac", ".mp4", ".m4a":
		return ext
	default:
		return fallback
	}
}
