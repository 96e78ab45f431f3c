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

// SyncLedger poll control command.
//
// Standalone CLI tool that runs a one-off intake poll for a single tenant,
// or checks the tenant's mailbox connectivity. Intended for onboarding new
// tenants and for draining a mailbox outside the schedule.
//
// Usage:
//
//	go run ./cmd/pollctl/ --tenant <alias> [--test-connection]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/vedvix/syncledger-ingestion/internal/auditlog"
	"github.com/vedvix/syncledger-ingestion/internal/blob"
	"github.com/vedvix/syncledger-ingestion/internal/config"
	"github.com/vedvix/syncledger-ingestion/internal/dedup"
	"github.com/vedvix/syncledger-ingestion/internal/extraction"
	"github.com/vedvix/syncledger-ingestion/internal/invoice"
	"github.com/vedvix/syncledger-ingestion/internal/mailbox"
	"github.com/vedvix/syncledger-ingestion/internal/models"
	"github.com/vedvix/syncledger-ingestion/internal/poller"
	"github.com/vedvix/syncledger-ingestion/internal/tenantdir"
	"github.com/vedvix/syncledger-ingestion/internal/vendor"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	tenantFlag := flag.String("tenant", "", "Tenant alias to poll (required)")
	testFlag := flag.Bool("test-connection", false, "Only check mailbox connectivity, do not poll")
	flag.Parse()

	if *tenantFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --tenant is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	tc := cfg.Tenant(*tenantFlag)
	if tc == nil {
		slog.Error("tenant not found in configuration", "alias", *tenantFlag)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Mailbox client for the tenant ---
	registry := mailbox.NewRegistry()
	switch tc.Provider {
	case "graph":
		creds := &clientcredentials.Config{
			ClientID:     tc.ClientID,
			ClientSecret: tc.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tc.TenantID),
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		}
		registry.Register(tc.Alias, mailbox.NewGraphClient(creds.Client(ctx), graphBaseURL))
	case "imap":
		registry.Register(tc.Alias, mailbox.NewIMAPClient(tc.IMAPHost, tc.IMAPUsername, tc.IMAPPassword))
	}

	if *testFlag {
		client, err := registry.ClientFor(&models.Tenant{Alias: tc.Alias})
		if err != nil {
			slog.Error("no mailbox client", "error", err)
			os.Exit(1)
		}
		ok, err := client.TestConnection(ctx, tc.MailboxAddress)
		if err != nil || !ok {
			slog.Error("mailbox unreachable", "tenant", tc.Alias, "error", err)
			os.Exit(1)
		}
		slog.Info("mailbox reachable", "tenant", tc.Alias, "mailbox", tc.MailboxAddress)
		return
	}

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	filter := dedup.NewFilter(rdb)
	if err := filter.Ping(ctx); err != nil {
		slog.Warn("Redis unavailable, dedup falls back to the audit log", "error", err)
	}

	// --- Blob Storage ---
	blobs, err := buildBlobStore(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to initialise blob storage", "error", err)
		os.Exit(1)
	}

	// --- Stores ---
	tenants, err := tenantdir.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise tenant directory", "error", err)
		os.Exit(1)
	}
	invoices, err := invoice.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise invoice store", "error", err)
		os.Exit(1)
	}
	vendors, err := vendor.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise vendor store", "error", err)
		os.Exit(1)
	}
	audit, err := auditlog.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise audit log", "error", err)
		os.Exit(1)
	}

	// Make sure the tenant row exists before polling it.
	if err := tenants.Upsert(ctx, &models.Tenant{
		Alias:          tc.Alias,
		Name:           tc.Name,
		MailboxAddress: tc.MailboxAddress,
		MailProvider:   tc.Provider,
		StoragePrefix:  tc.StoragePrefix,
	}); err != nil {
		slog.Error("failed to seed tenant", "tenant", tc.Alias, "error", err)
		os.Exit(1)
	}

	// --- One-shot Poll ---
	p := poller.New(poller.Config{
		Tenants:             tenants,
		Clients:             registry,
		Blobs:               blobs,
		Extractor:           extraction.NewClient(cfg.Extraction.BaseURL, cfg.Extraction.Timeout),
		Invoices:            invoices,
		Vendors:             vendor.NewMatcher(vendors),
		Audit:               audit,
		Dedup:               filter,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxPerBatch:         cfg.MaxEmailsPerBatch,
	})

	stats, err := p.PollTenantByAlias(ctx, tc.Alias)
	if err != nil {
		slog.Error("poll failed", "tenant", tc.Alias, "error", err)
		os.Exit(1)
	}

	slog.Info("poll complete",
		"tenant", tc.Alias,
		"seen", stats.MessagesSeen,
		"processed", stats.MessagesProcessed,
		"skipped", stats.MessagesSkipped,
		"failed", stats.MessagesFailed,
		"invoices", stats.InvoicesCreated,
		"elapsed", stats.Duration,
	)
}

// buildBlobStore selects the storage backend from configuration.
func buildBlobStore(ctx context.Context, sc config.StorageConfig) (blob.Store, error) {
	switch sc.Type {
	case "gcs":
		return blob.NewGCSStore(ctx, sc.GCSBucket, sc.CredentialsFile, sc.URLExpiry)
	case "local":
		return blob.NewLocalStore(sc.LocalBasePath, sc.LocalBaseURL)
	default:
		return nil, fmt.Errorf("unknown storage type %q", sc.Type)
	}
}
