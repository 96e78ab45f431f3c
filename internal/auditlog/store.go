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

// Package auditlog records every source email the pipeline has seen, keyed
// by the provider message id. The log is the durable idempotency check: an
// email whose id already has a row is never processed again, regardless of
// what the mail server or the Redis fast path says.
package auditlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedvix/syncledger-ingestion/internal/models"
)

// Store is the Postgres-backed audit log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates the audit log store and ensures its table exists.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure audit log schema: %w", err)
	}
	slog.Info("audit log store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS source_messages (
			id                  TEXT PRIMARY KEY,
			tenant_id           TEXT NOT NULL,
			internet_message_id TEXT DEFAULT '',
			from_address        TEXT DEFAULT '',
			from_name           TEXT DEFAULT '',
			to_addresses        TEXT DEFAULT '',
			subject             TEXT DEFAULT '',
			body_preview        TEXT DEFAULT '',
			received_at         TIMESTAMPTZ,
			has_attachments     BOOLEAN DEFAULT FALSE,
			attachment_count    INTEGER DEFAULT 0,
			attachment_names    TEXT DEFAULT '',
			processed           BOOLEAN DEFAULT FALSE,
			has_error           BOOLEAN DEFAULT FALSE,
			error_message       TEXT DEFAULT '',
			invoices_extracted  INTEGER DEFAULT 0,
			processing_time_ms  BIGINT DEFAULT 0,
			created_at          TIMESTAMPTZ DEFAULT NOW(),
			updated_at          TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_source_messages_tenant ON source_messages(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_source_messages_error ON source_messages(tenant_id, has_error);
	`)
	return err
}

// Exists reports whether the message id has already been recorded.
func (s *Store) Exists(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM source_messages WHERE id = $1)
	`, messageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check source message %s: %w", messageID, err)
	}
	return exists, nil
}

// Create records a message at the start of processing.
func (s *Store) Create(ctx context.Context, tenantID string, msg models.MessageSummary) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO source_messages
			(id, tenant_id, internet_message_id, from_address, from_name,
			 to_addresses, subject, body_preview, received_at, has_attachments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, msg.ID, tenantID, msg.InternetMessageID, msg.FromAddress, msg.FromName,
		strings.Join(msg.ToAddresses, ", "), msg.Subject, msg.BodyPreview,
		msg.ReceivedAt, msg.HasAttachments)
	if err != nil {
		return fmt.Errorf("record source message %s: %w", msg.ID, err)
	}
	return nil
}

// SetAttachments records what was found on the message after fetching.
func (s *Store) SetAttachments(ctx context.Context, messageID string, count int, names []string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE source_messages SET
			attachment_count = $2,
			attachment_names = $3,
			updated_at       = NOW()
		WHERE id = $1
	`, messageID, count, strings.Join(names, ", "))
	if err != nil {
		return fmt.Errorf("record attachments for %s: %w", messageID, err)
	}
	return nil
}

// MarkProcessed moves the entry to its processed terminal state.
func (s *Store) MarkProcessed(ctx context.Context, messageID string, invoicesExtracted int, took time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE source_messages SET
			processed          = TRUE,
			invoices_extracted = $2,
			processing_time_ms = $3,
			updated_at         = NOW()
		WHERE id = $1
	`, messageID, invoicesExtracted, took.Milliseconds())
	if err != nil {
		return fmt.Errorf("mark source message %s processed: %w", messageID, err)
	}
	return nil
}

// MarkFailed records a message-level failure. The entry stays, so the
// message will not be retried; failures surface via the error stats.
func (s *Store) MarkFailed(ctx context.Context, messageID, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE source_messages SET
			has_error     = TRUE,
			error_message = $2,
			updated_at    = NOW()
		WHERE id = $1
	`, messageID, errMsg)
	if err != nil {
		return fmt.Errorf("mark source message %s failed: %w", messageID, err)
	}
	return nil
}

// Stats summarises the audit log for one tenant.
type Stats struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Invoices  int `json:"invoices_extracted"`
}

// TenantStats returns audit counters for the status endpoint.
func (s *Store) TenantStats(ctx context.Context, tenantID string) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE processed),
		       COUNT(*) FILTER (WHERE has_error),
		       COALESCE(SUM(invoices_extracted), 0)
		FROM source_messages
		WHERE tenant_id = $1
	`, tenantID).Scan(&st.Total, &st.Processed, &st.Failed, &st.Invoices)
	if err != nil {
		return nil, fmt.Errorf("audit stats for %s: %w", tenantID, err)
	}
	return &st, nil
}

// Get fetches one audit entry, or nil.
func (s *Store) Get(ctx context.Context, messageID string) (*models.SourceMessage, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, internet_message_id, from_address, from_name,
		       to_addresses, subject, body_preview, received_at, has_attachments,
		       attachment_count, attachment_names, processed, has_error,
		       error_message, invoices_extracted, processing_time_ms,
		       created_at, updated_at
		FROM source_messages WHERE id = $1
	`, messageID)

	var m models.SourceMessage
	var ms int64
	err := row.Scan(
		&m.ID, &m.TenantID, &m.InternetMessageID, &m.FromAddress, &m.FromName,
		&m.ToAddresses, &m.Subject, &m.BodyPreview, &m.ReceivedAt, &m.HasAttachments,
		&m.AttachmentCount, &m.AttachmentNames, &m.Processed, &m.HasError,
		&m.ErrorMessage, &m.InvoicesExtracted, &ms,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.ProcessingTime = time.Duration(ms) * time.Millisecond
	return &m, nil
}
