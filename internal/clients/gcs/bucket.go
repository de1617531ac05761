package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	gstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/storage"
)

type bucketStore struct {
	log    *logger.Logger
	client *gstorage.Client
	bucket string
	cdn    string
}

// NewBucketStoreFromEnv returns (nil, nil) when GCS_BUCKET is unset; callers
// fall back to local disk.
func NewBucketStoreFromEnv(log *logger.Logger) (storage.FileStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucket == "" {
		return nil, nil
	}
	cdn := strings.TrimSpace(os.Getenv("GCS_CDN_DOMAIN"))

	opts := clientOptionsFromEnv()
	opts = append(opts, option.WithScopes(gstorage.ScopeReadWrite))
	client, err := gstorage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &bucketStore{
		log:    log.With("service", "GCSFileStore"),
		client: client,
		bucket: bucket,
		cdn:    cdn,
	}, nil
}

func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	opts := []option.ClientOption{}
	if creds == "" {
		return opts
	}
	if strings.HasPrefix(creds, "{") {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return opts
}

func (s *bucketStore) Save(ctx context.Context, key string, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return s.PublicURL(key), nil
}

func (s *bucketStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
}

func (s *bucketStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err == gstorage.ErrObjectNotExist {
		return nil
	}
	return err
}

func (s *bucketStore) PublicURL(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.cdn != "" {
		return "https://" + s.cdn + "/" + key
	}
	return "https://storage.googleapis.com/" + s.bucket + "/" + key
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	default:
		return ""
	}
}
