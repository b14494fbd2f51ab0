// Package storage uploads run artifacts (transcripts, reports) to object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

var ErrNotConfigured = errors.New("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")

// Uploader stores an object under key and returns its public location.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// SupabaseStorage implements Uploader using Supabase's Storage API.
type SupabaseStorage struct {
	// The storage client keeps upload options in shared headers, so uploads are serialized.
	mu      sync.Mutex
	client  *supabase.Client
	baseURL string
	bucket  string
}

// NewSupabaseStorage constructs a new Supabase storage client.
func NewSupabaseStorage(cfg Config) (*SupabaseStorage, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "transcripts"
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseStorage{
		client:  client,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		bucket:  cfg.Bucket,
	}, nil
}

func (s *SupabaseStorage) Upload(ctx context.Context, key, contentType string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = strings.TrimLeft(key, "/")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	upsert := true
	opts := storage_go.FileOptions{ContentType: &contentType, Upsert: &upsert}

	s.mu.Lock()
	_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(body), opts)
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("upload %s (%s) to Supabase: %w", key, contentType, err)
	}
	return ObjectURL(s.baseURL, s.bucket, key), nil
}

// ObjectURL is the public URL of an object in a Supabase bucket.
func ObjectURL(baseURL, bucket, key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", strings.TrimRight(baseURL, "/"), bucket, strings.TrimLeft(key, "/"))
}
