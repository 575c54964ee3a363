package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileStore persists artifacts onto the local filesystem and issues
// time-bounded signed references for reading them back.
//
// Writes go to a temporary file in the destination directory and are renamed
// into place only after the bytes are fully flushed, so a reader holding a
// storage key never observes partially written data.
type FileStore struct {
	basePath   string
	signingKey []byte
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath, signingKey string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if signingKey == "" {
		return nil, errors.New("storage: signing key is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, signingKey: []byte(signingKey)}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write persists the provided bytes at the given relative key and returns the
// canonicalized storage key. Keys are cleaned to prevent directory traversal.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".write-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: close file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: link file: %w", err)
	}
	return cleanKey, nil
}

// Read returns the bytes stored at key.
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	if s == nil {
		return nil, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil {
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

// FilePath resolves a storage key to an absolute path under the store root.
func (s *FileStore) FilePath(key string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleanKey)), nil
}

// SignedPath returns a relative media URL for the key, valid for ttl. The
// signature covers the key and the expiry deadline.
func (s *FileStore) SignedPath(key string, ttl time.Duration) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	exp := time.Now().Add(ttl).Unix()
	sig := s.sign(cleanKey, exp)
	return fmt.Sprintf("/media/%s?exp=%d&sig=%s", cleanKey, exp, sig), nil
}

// VerifySignedKey checks the signature and expiry attached to a media
// request. exp and sig are the raw query parameter values.
func (s *FileStore) VerifySignedKey(key, expParam, sigParam string) error {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	exp, err := strconv.ParseInt(expParam, 10, 64)
	if err != nil {
		return errors.New("storage: invalid expiry")
	}
	if time.Now().Unix() > exp {
		return errors.New("storage: reference expired")
	}
	expected := s.sign(cleanKey, exp)
	if !hmac.Equal([]byte(expected), []byte(sigParam)) {
		return errors.New("storage: invalid signature")
	}
	return nil
}

func (s *FileStore) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	fmt.Fprintf(mac, "%s|%d", key, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
