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
	"regexp"
	"testing"
	"time"

	"github.com/vedvix/syncledger-ingestion/internal/models"
)

func testTenant() *models.Tenant {
	return &models.Tenant{
		ID:            "t1",
		Alias:         "acme",
		StoragePrefix: "acme",
	}
}

// TestObjectKey_Format verifies keys are tenant-prefixed, date-partitioned,
// and carry a sanitized file name.
func TestObjectKey_Format(t *testing.T) {
	now := time.Date(2026, 7, 15, 10, 30, 0, 0, time.UTC)
	key := ObjectKey(testTenant(), "July Invoice #42.pdf", now)

	pattern := regexp.MustCompile(`^acme/files/2026/07/15/[0-9a-f]{8}_July_Invoice__42\.pdf$`)
	if !pattern.MatchString(key) {
		t.Errorf("key %q does not match expected layout", key)
	}
}

// TestObjectKey_Unique verifies two uploads of the same file name on the
// same day get distinct keys.
func TestObjectKey_Unique(t *testing.T) {
	now := time.Now()
	a := ObjectKey(testTenant(), "scan.pdf", now)
	b := ObjectKey(testTenant(), "scan.pdf", now)
	if a == b {
		t.Errorf("expected distinct keys, got %q twice", a)
	}
}

// TestObjectKey_PrefixFallback verifies the alias is used when no storage
// prefix is configured.
func TestObjectKey_PrefixFallback(t *testing.T) {
	tenant := &models.Tenant{ID: "t2", Alias: "globex"}
	key := ObjectKey(tenant, "a.pdf", time.Now())
	if key[:7] != "globex/" {
		t.Errorf("key %q should start with the alias", key)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"invoice.pdf", "invoice.pdf"},
		{"July Invoice #42.pdf", "July_Invoice__42.pdf"},
		{"receipt (1).jpg", "receipt__1_.jpg"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"fällig.pdf", "f_llig.pdf"},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.in); got != tt.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestLocalStore_RoundTrip verifies upload, existence, download, and delete
// against a temp directory.
func TestLocalStore_RoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ctx := context.Background()
	content := []byte("%PDF-1.7 fake")

	key, err := store.Upload(ctx, testTenant(), "invoice.pdf", content, "application/pdf")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	exists, err := store.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("exists = %v, %v; want true", exists, err)
	}

	got, err := store.Download(ctx, key)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("downloaded content differs from upload")
	}

	url, err := store.PresignedURL(ctx, key)
	if err != nil {
		t.Fatalf("presigned URL: %v", err)
	}
	if url != "http://localhost:8080/files/"+key {
		t.Errorf("url = %q", url)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	exists, err = store.Exists(ctx, key)
	if err != nil || exists {
		t.Errorf("exists after delete = %v, %v; want false", exists, err)
	}

	// Deleting a missing key is not an error.
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

// TestLocalStore_RejectsEscapingKeys verifies path traversal in a key is
// refused.
func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	for _, key := range []string{"../outside.txt", "/etc/passwd", "a/../../b"} {
		if _, err := store.Download(context.Background(), key); err == nil {
			t.Errorf("Download(%q) should be rejected", key)
		}
	}
}
