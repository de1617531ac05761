package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/pagenode-backend/internal/logger"
)

// FileStore holds uploaded documents and rendered covers. Keys are
// slash-separated relative paths ("documents/<id>.pdf", "covers/<id>.png").
type FileStore interface {
	Save(ctx context.Context, key string, r io.Reader) (url string, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

type localStore struct {
	log     *logger.Logger
	baseDir string
}

// NewLocalStore keeps files on disk under baseDir (UPLOAD_DIR, default
// ./data/uploads).
func NewLocalStore(log *logger.Logger, baseDir string) (FileStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		baseDir = "./data/uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &localStore{
		log:     log.With("service", "LocalFileStore"),
		baseDir: baseDir,
	}, nil
}

func (s *localStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

func (s *localStore) Save(ctx context.Context, key string, r io.Reader) (string, error) {
	dst, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return s.PublicURL(key), nil
}

func (s *localStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	src, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(src)
}

func (s *localStore) Delete(ctx context.Context, key string) error {
	src, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(src)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *localStore) PublicURL(key string) string {
	return "/files/" + strings.TrimPrefix(key, "/")
}

// FetchToTemp copies a stored object to a temp file for tools that need a
// real path (pdftotext, pdfinfo). Callers must invoke cleanup.
func FetchToTemp(ctx context.Context, fs FileStore, key string) (string, func(), error) {
	rc, err := fs.Open(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "pagenode-*"+filepath.Ext(key))
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	return tmp.Name(), cleanup, nil
}
