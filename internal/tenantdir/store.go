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

// Package tenantdir is the tenant directory: the Postgres registry of
// tenants the poller iterates over. Rows are seeded from configuration at
// startup and keyed by alias, so operators can suspend a tenant in the
// database without a config change.
package tenantdir

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedvix/syncledger-ingestion/internal/models"
)

// Store is the Postgres-backed tenant directory.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates the tenant directory and ensures its table exists.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure tenant schema: %w", err)
	}
	slog.Info("tenant directory initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tenants (
			id              TEXT PRIMARY KEY,
			alias           TEXT NOT NULL UNIQUE,
			name            TEXT DEFAULT '',
			mailbox_address TEXT DEFAULT '',
			mail_provider   TEXT DEFAULT '',
			storage_prefix  TEXT DEFAULT '',
			status          TEXT DEFAULT 'ACTIVE',
			created_at      TIMESTAMPTZ DEFAULT NOW(),
			updated_at      TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// Upsert seeds or refreshes a tenant row keyed by alias. Existing status is
// preserved so an operator-set SUSPENDED survives restarts.
func (s *Store) Upsert(ctx context.Context, t *models.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TenantActive
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (id, alias, name, mailbox_address, mail_provider, storage_prefix, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (alias) DO UPDATE SET
			name            = EXCLUDED.name,
			mailbox_address = EXCLUDED.mailbox_address,
			mail_provider   = EXCLUDED.mail_provider,
			storage_prefix  = EXCLUDED.storage_prefix,
			updated_at      = NOW()
	`, t.ID, t.Alias, t.Name, t.MailboxAddress, t.MailProvider, t.StoragePrefix, string(t.Status))
	if err != nil {
		return fmt.Errorf("upsert tenant %s: %w", t.Alias, err)
	}
	return nil
}

// ListForPolling returns active tenants that have a mailbox configured.
func (s *Store) ListForPolling(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, alias, name, mailbox_address, mail_provider, storage_prefix,
		       status, created_at, updated_at
		FROM tenants
		WHERE status = 'ACTIVE' AND mailbox_address <> ''
		ORDER BY alias
	`)
	if err != nil {
		return nil, fmt.Errorf("list pollable tenants: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

// GetByAlias fetches one tenant, or nil.
func (s *Store) GetByAlias(ctx context.Context, alias string) (*models.Tenant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, alias, name, mailbox_address, mail_provider, storage_prefix,
		       status, created_at, updated_at
		FROM tenants WHERE alias = $1
	`, alias)
	t, err := scanTenant(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	var status string
	err := row.Scan(
		&t.ID, &t.Alias, &t.Name, &t.MailboxAddress, &t.MailProvider,
		&t.StoragePrefix, &status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = models.TenantStatus(status)
	return &t, nil
}
