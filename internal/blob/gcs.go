// Copyright (c) 2026 Vedvix
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/vedvix/syncledger-ingestion/internal/models"
)

// GCSStore keeps documents in a Google Cloud Storage bucket.
type GCSStore struct {
	client    *storage.Client
	bucket    string
	urlExpiry time.Duration
}

// NewGCSStore opens a GCS client for the given bucket. credentialsFile may
// be empty, in which case application default credentials are used.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string, urlExpiry time.Duration) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	if urlExpiry <= 0 {
		urlExpiry = time.Hour
	}
	slog.Info("GCS blob store initialised", "bucket", bucket)
	return &GCSStore{
		client:    client,
		bucket:    bucket,
		urlExpiry: urlExpiry,
	}, nil
}

func (s *GCSStore) Upload(ctx context.Context, tenant *models.Tenant, fileName string, content []byte, contentType string) (string, error) {
	key := ObjectKey(tenant, fileName, time.Now())

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{
		"tenant-id":         tenant.ID,
		"tenant-alias":      tenant.Alias,
		"original-filename": fileName,
	}

	if _, err := io.Copy(w, bytes.NewReader(content)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write GCS object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize GCS object %s: %w", key, err)
	}

	slog.Info("uploaded document to GCS", "tenant", tenant.Alias, "key", key, "bytes", len(content))
	return key, nil
}

func (s *GCSStore) PresignedURL(ctx context.Context, key string) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.urlExpiry),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("sign URL for %s: %w", key, err)
	}
	return url, nil
}

func (s *GCSStore) Download(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object %s: %w", key, err)
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object %s: %w", key, err)
	}
	return content, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete GCS object %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat GCS object %s: %w", key, err)
	}
	return true, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
