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

// SyncLedger invoice intake service.
//
// Entry point for the invoice intake service. It:
//  1. Loads multi-tenant configuration from config.yaml
//  2. Connects to PostgreSQL, Redis, and blob storage
//  3. Seeds the tenant directory and builds per-tenant mailbox clients
//  4. Runs the scheduled mailbox poller
//  5. Serves the ops API (poll status, manual triggers, connection checks)
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	"github.com/vedvix/syncledger-ingestion/internal/ops"
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

	slog.Info("starting SyncLedger invoice intake service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"tenants", len(cfg.Tenants),
		"poll_interval", cfg.PollInterval,
		"poll_enabled", cfg.PollEnabled,
		"confidence_threshold", cfg.ConfidenceThreshold,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis (dedup fast path) ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	filter := dedup.NewFilter(rdb)
	if err := filter.Ping(ctx); err != nil {
		// Redis is an optimisation here; the audit log is authoritative.
		slog.Warn("Redis unavailable, dedup falls back to the audit log", "error", err)
	} else {
		slog.Info("connected to Redis")
	}

	// --- Blob Storage ---
	blobs, err := buildBlobStore(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to initialise blob storage", "error", err)
		os.Exit(1)
	}

	// --- Extraction Client ---
	extractor := extraction.NewClient(cfg.Extraction.BaseURL, cfg.Extraction.Timeout)

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

	// --- Seed tenant directory + build per-tenant mailbox clients ---
	registry := mailbox.NewRegistry()
	for _, tc := range cfg.Tenants {
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
	}
	slog.Info("tenant directory seeded", "tenants", len(cfg.Tenants))

	// --- Poller ---
	p := poller.New(poller.Config{
		Tenants:             tenants,
		Clients:             registry,
		Blobs:               blobs,
		Extractor:           extractor,
		Invoices:            invoices,
		Vendors:             vendor.NewMatcher(vendors),
		Audit:               audit,
		Dedup:               filter,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxPerBatch:         cfg.MaxEmailsPerBatch,
		Interval:            cfg.PollInterval,
	})

	if cfg.PollEnabled {
		go p.Run(ctx)
	} else {
		slog.Warn("scheduled polling disabled, only manual triggers will run")
	}

	// --- Ops API ---
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      ops.NewServer(p),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop the poller

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("intake service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("intake service stopped")
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
