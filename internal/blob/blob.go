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

// Package blob abstracts document storage behind a small capability
// interface with a local-filesystem adapter for development and a GCS
// adapter for production. Keys are tenant-scoped and date-partitioned so
// one tenant's documents never collide with another's.
package blob

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/vedvix/syncledger-ingestion/internal/models"
)

// Store is the document storage capability the pipeline depends on.
type Store interface {
	// Upload stores content under a freshly generated tenant-scoped key
	// and returns that key.
	Upload(ctx context.Context, tenant *models.Tenant, fileName string, content []byte, contentType string) (string, error)

	// PresignedURL returns a time-limited download URL for the key,
	// suitable for handing to the extraction service.
	PresignedURL(ctx context.Context, key string) (string, error)

	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SanitizeFileName replaces characters that are unsafe in object keys.
func SanitizeFileName(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}

// ObjectKey builds a tenant-scoped, date-partitioned, randomized key:
//
//	{prefix}/files/{yyyy}/{MM}/{dd}/{rand8}_{sanitizedName}
//
// The random component prevents collisions when the same file name arrives
// twice on the same day.
func ObjectKey(tenant *models.Tenant, fileName string, now time.Time) string {
	return fmt.Sprintf("%s/files/%s/%s_%s",
		tenant.BlobPrefix(),
		now.UTC().Format("2006/01/02"),
		uuid.NewString()[:8],
		SanitizeFileName(fileName),
	)
}
