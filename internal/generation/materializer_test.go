package generation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tunesmith/internal/storage"
)

func newTestMaterializer(t *testing.T) (*Materializer, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir, "test-key")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewMaterializer(store, nil, time.Hour, zerolog.Nop()), dir
}

func TestMaterializePersistsArtifact(t *testing.T) {
	server := newArtifactServer(t, nil)
	materializer, dir := newTestMaterializer(t)

	key := artifactKey("user-1", "track-1", 0, server.URL+"/take.mp3")
	artifact, err := materializer.Materialize(context.Background(), server.URL+"/take.mp3", key)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if artifact.StorageKey != "tracks/user-1/track-1/01.mp3" {
		t.Errorf("StorageKey = %q", artifact.StorageKey)
	}
	if !strings.HasPrefix(artifact.SignedURL, "/media/tracks/user-1/track-1/01.mp3?exp=") {
		t.Errorf("SignedURL = %q", artifact.SignedURL)
	}

	data, err := os.ReadFile(filepath.Join(dir, "tracks", "user-1", "track-1", "01.mp3"))
	if err != nil {
		t.Fatalf("read persisted artifact: %v", err)
	}
	if int64(len(data)) != artifact.Bytes || len(data) == 0 {
		t.Errorf("persisted %d bytes, reported %d", len(data), artifact.Bytes)
	}
}

func TestMaterializeUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()
	materializer, dir := newTestMaterializer(t)

	_, err := materializer.Materialize(context.Background(), server.URL+"/take.mp3", "tracks/u/t/01.mp3")
	var materr *MaterializeError
	if !errors.As(err, &materr) {
		t.Fatalf("err = %v, want MaterializeError", err)
	}

	// No partial file may be linked into place.
	if _, err := os.Stat(filepath.Join(dir, "tracks", "u", "t", "01.mp3")); !os.IsNotExist(err) {
		t.Error("failed download left a linked file behind")
	}
}

func TestMaterializeRejectsEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	materializer, _ := newTestMaterializer(t)

	if _, err := materializer.Materialize(context.Background(), server.URL+"/take.mp3", "tracks/u/t/01.mp3"); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestMaterializeRejectsBadScheme(t *testing.T) {
	materializer, _ := newTestMaterializer(t)
	for _, src := range []string{"ftp://host/take.mp3", "file:///etc/passwd", "not a url"} {
		if _, err := materializer.Materialize(context.Background(), src, "tracks/u/t/01.mp3"); err == nil {
			t.Errorf("Materialize(%q) accepted an invalid source", src)
		}
	}
}

func TestArtifactKeyExtensions(t *testing.T) {
	tests := []struct {
		source string
		index  int
		want   string
	}{
		{"https://cdn.example.com/a.mp3", 0, "tracks/u/t/01.mp3"},
		{"https://cdn.example.com/a.wav?sig=abc", 1, "tracks/u/t/02.wav"},
		{"https://cdn.example.com/stream", 2, "tracks/u/t/03.mp3"},
		{"https://cdn.example.com/a.exe", 0, "tracks/u/t/01.mp3"},
	}
	for _, tc := range tests {
		if got := artifactKey("u", "t", tc.index, tc.source); got != tc.want {
			t.Errorf("artifactKey(%q, %d) = %q, want %q", tc.source, tc.index, got, tc.want)
		}
	}
}

func TestDerivedKey(t *testing.T) {
	if got := derivedKey("u", "t", "video", ".mp4"); got != "tracks/u/t/video/01.mp4" {
		t.Errorf("derivedKey = %q", got)
	}
}
