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

// Package poller drives the invoice intake pipeline: on a fixed schedule it
// walks every pollable tenant, reads unread mail with attachments, stores
// the documents, runs extraction, and routes the resulting invoices by
// confidence. One failing email or tenant never stops the others.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vedvix/syncledger-ingestion/internal/blob"
	"github.com/vedvix/syncledger-ingestion/internal/extraction"
	"github.com/vedvix/syncledger-ingestion/internal/invoice"
	"github.com/vedvix/syncledger-ingestion/internal/mailbox"
	"github.com/vedvix/syncledger-ingestion/internal/models"
	"github.com/vedvix/syncledger-ingestion/internal/vendor"
)

var (
	// ErrTenantNotFound reports an alias with no tenant record.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrTenantNotPollable reports a tenant that is suspended or has no
	// mailbox configured.
	ErrTenantNotPollable = errors.New("tenant is not pollable")
	// ErrCycleRunning reports that a polling cycle already holds the guard.
	ErrCycleRunning = errors.New("a polling cycle is already running")
)

// TenantDirectory lists the tenants to poll.
type TenantDirectory interface {
	ListForPolling(ctx context.Context) ([]models.Tenant, error)
	GetByAlias(ctx context.Context, alias string) (*models.Tenant, error)
}

// ClientResolver maps a tenant to its mailbox client.
type ClientResolver interface {
	ClientFor(tenant *models.Tenant) (mailbox.Client, error)
}

// Extractor is the document extraction call.
type Extractor interface {
	Extract(ctx context.Context, req extraction.Request) (*extraction.Result, error)
}

// InvoiceStore is the invoice persistence surface the poller needs.
type InvoiceStore interface {
	CreatePlaceholder(ctx context.Context, p invoice.PlaceholderParams) (*models.InvoiceRecord, error)
	ApplyExtraction(ctx context.Context, invoiceID string, u *invoice.Update) error
	MarkExtractionFailed(ctx context.Context, invoiceID, reason string) error
	SetVendor(ctx context.Context, invoiceID, vendorID string) error
}

// VendorMatcher resolves extracted vendor names to vendor records.
type VendorMatcher interface {
	FindOrCreate(ctx context.Context, tenantID, name string, contacts vendor.Contacts) (*models.Vendor, error)
}

// AuditLog is the durable per-message processing record.
type AuditLog interface {
	Exists(ctx context.Context, messageID string) (bool, error)
	Create(ctx context.Context, tenantID string, msg models.MessageSummary) error
	SetAttachments(ctx context.Context, messageID string, count int, names []string) error
	MarkProcessed(ctx context.Context, messageID string, invoicesExtracted int, took time.Duration) error
	MarkFailed(ctx context.Context, messageID, errMsg string) error
}

// DedupFilter is the optional fast-path seen check in front of the audit
// log. The poller calls MarkSeen only after the audit row is durably
// created, so a Seen hit always has a backing audit entry.
type DedupFilter interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	MarkSeen(ctx context.Context, messageID string) error
}

// Config wires the poller's collaborators and tuning.
type Config struct {
	Tenants   TenantDirectory
	Clients   ClientResolver
	Blobs     blob.Store
	Extractor Extractor
	Invoices  InvoiceStore
	Vendors   VendorMatcher
	Audit     AuditLog
	Dedup     DedupFilter // optional

	ConfidenceThreshold float64
	MaxPerBatch         int
	Interval            time.Duration
}

// Poller runs the scheduled intake cycles.
type Poller struct {
	cfg   Config
	guard Guard

	mu      sync.Mutex
	lastRun *RunStats
}

// RunStats summarises one completed polling cycle.
type RunStats struct {
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	TenantsPolled     int           `json:"tenants_polled"`
	MessagesSeen      int           `json:"messages_seen"`
	MessagesProcessed int           `json:"messages_processed"`
	MessagesSkipped   int           `json:"messages_skipped"`
	MessagesFailed    int           `json:"messages_failed"`
	InvoicesCreated   int           `json:"invoices_created"`
}

// Status is the snapshot served by the ops API.
type Status struct {
	Running  bool          `json:"running"`
	Interval time.Duration `json:"interval"`
	LastRun  *RunStats     `json:"last_run,omitempty"`
}

func New(cfg Config) *Poller {
	if cfg.MaxPerBatch <= 0 {
		cfg.MaxPerBatch = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Poller{cfg: cfg}
}

// Run polls immediately, then on every interval tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("poller started", "interval", p.cfg.Interval, "max_per_batch", p.cfg.MaxPerBatch)

	p.PollAllTenants(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopped")
			return
		case <-ticker.C:
			p.PollAllTenants(ctx)
		}
	}
}

// Status returns the poller's current snapshot.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Running:  p.guard.Running(),
		Interval: p.cfg.Interval,
		LastRun:  p.lastRun,
	}
}

// PollAllTenants runs one full cycle and returns its stats. Overlapping
// cycles are skipped and return nil.
func (p *Poller) PollAllTenants(ctx context.Context) *RunStats {
	if !p.guard.TryAcquire() {
		slog.Warn("polling cycle still in progress, skipping")
		return nil
	}
	defer p.guard.Release()

	stats := &RunStats{StartedAt: time.Now()}

	tenants, err := p.cfg.Tenants.ListForPolling(ctx)
	if err != nil {
		slog.Error("list tenants for polling", "error", err)
		return nil
	}

	for i := range tenants {
		if ctx.Err() != nil {
			return stats
		}
		p.pollTenant(ctx, &tenants[i], stats)
		stats.TenantsPolled++
	}

	stats.Duration = time.Since(stats.StartedAt)
	p.mu.Lock()
	p.lastRun = stats
	p.mu.Unlock()

	slog.Info("polling cycle complete",
		"tenants", stats.TenantsPolled,
		"seen", stats.MessagesSeen,
		"processed", stats.MessagesProcessed,
		"skipped", stats.MessagesSkipped,
		"failed", stats.MessagesFailed,
		"invoices", stats.InvoicesCreated,
		"took", stats.Duration)

	return stats
}

// PollTenantByAlias runs a single-tenant poll on demand (ops API). Unlike
// the scheduled cycle it reports errors to the caller, but it shares the
// same guard so it cannot overlap a running cycle.
func (p *Poller) PollTenantByAlias(ctx context.Context, alias string) (*RunStats, error) {
	tenant, err := p.cfg.Tenants.GetByAlias(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("look up tenant %s: %w", alias, err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("tenant %s: %w", alias, ErrTenantNotFound)
	}
	if !tenant.Pollable() {
		return nil, fmt.Errorf("tenant %s (status %s): %w", alias, tenant.Status, ErrTenantNotPollable)
	}

	if !p.guard.TryAcquire() {
		return nil, ErrCycleRunning
	}
	defer p.guard.Release()

	stats := &RunStats{StartedAt: time.Now(), TenantsPolled: 1}
	p.pollTenant(ctx, tenant, stats)
	stats.Duration = time.Since(stats.StartedAt)
	return stats, nil
}

// TestConnection checks mailbox reachability for one tenant (ops API).
func (p *Poller) TestConnection(ctx context.Context, alias string) (bool, error) {
	tenant, err := p.cfg.Tenants.GetByAlias(ctx, alias)
	if err != nil {
		return false, fmt.Errorf("look up tenant %s: %w", alias, err)
	}
	if tenant == nil {
		return false, fmt.Errorf("tenant %s: %w", alias, ErrTenantNotFound)
	}
	client, err := p.cfg.Clients.ClientFor(tenant)
	if err != nil {
		return false, err
	}
	return client.TestConnection(ctx, tenant.MailboxAddress)
}

func (p *Poller) pollTenant(ctx context.Context, tenant *models.Tenant, stats *RunStats) {
	log := slog.With("tenant", tenant.Alias)

	client, err := p.cfg.Clients.ClientFor(tenant)
	if err != nil {
		log.Error("resolve mailbox client", "error", err)
		return
	}

	messages, err := client.ListUnreadWithAttachments(ctx, tenant.MailboxAddress, p.cfg.MaxPerBatch)
	if err != nil {
		log.Error("list unread messages", "error", err)
		return
	}
	if len(messages) == 0 {
		return
	}
	log.Info("found unread messages with attachments", "count", len(messages))

	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		stats.MessagesSeen++
		p.processMessage(ctx, tenant, client, msg, stats)
	}
}

// processMessage handles one email end to end. Failures are recorded on the
// audit entry and the message is still marked read: a poison message must
// not be re-fetched forever.
func (p *Poller) processMessage(ctx context.Context, tenant *models.Tenant, client mailbox.Client, msg models.MessageSummary, stats *RunStats) {
	log := slog.With("tenant", tenant.Alias, "message_id", msg.ID)
	started := time.Now()

	// The filter is marked only after the audit row exists, so a hit is
	// safe to skip without consulting Postgres.
	if p.cfg.Dedup != nil {
		seen, err := p.cfg.Dedup.Seen(ctx, msg.ID)
		if err != nil {
			// Redis down degrades to the audit log check.
			log.Warn("dedup filter unavailable", "error", err)
		} else if seen {
			stats.MessagesSkipped++
			p.markRead(ctx, client, tenant, msg.ID, log)
			return
		}
	}

	seen, err := p.cfg.Audit.Exists(ctx, msg.ID)
	if err != nil {
		log.Error("check audit log", "error", err)
		return
	}
	if seen {
		stats.MessagesSkipped++
		p.markRead(ctx, client, tenant, msg.ID, log)
		return
	}

	if err := p.cfg.Audit.Create(ctx, tenant.ID, msg); err != nil {
		// Leave the message unread and unmarked in the filter so the
		// next cycle retries it; the audit log stays the authority.
		log.Error("create audit entry", "error", err)
		return
	}
	if p.cfg.Dedup != nil {
		if err := p.cfg.Dedup.MarkSeen(ctx, msg.ID); err != nil {
			log.Warn("dedup filter update failed", "error", err)
		}
	}

	attachments, err := client.FetchAttachments(ctx, tenant.MailboxAddress, msg.ID)
	if err != nil {
		log.Error("fetch attachments", "error", err)
		stats.MessagesFailed++
		p.auditFail(ctx, msg.ID, fmt.Sprintf("fetch attachments: %v", err), log)
		p.markRead(ctx, client, tenant, msg.ID, log)
		return
	}

	names := make([]string, 0, len(attachments))
	var processable []models.Attachment
	for _, a := range attachments {
		names = append(names, a.Name)
		if a.Processable() {
			processable = append(processable, a)
		}
	}
	if err := p.cfg.Audit.SetAttachments(ctx, msg.ID, len(attachments), names); err != nil {
		log.Error("record attachments", "error", err)
	}

	invoices := 0
	for _, att := range processable {
		if p.processAttachment(ctx, tenant, msg, att, log) {
			invoices++
		}
	}
	stats.InvoicesCreated += invoices

	if err := p.cfg.Audit.MarkProcessed(ctx, msg.ID, invoices, time.Since(started)); err != nil {
		log.Error("mark audit entry processed", "error", err)
	}
	stats.MessagesProcessed++

	p.markRead(ctx, client, tenant, msg.ID, log)
	if err := client.MoveToProcessedFolder(ctx, tenant.MailboxAddress, msg.ID); err != nil {
		log.Warn("move to processed folder", "error", err)
	}

	log.Info("processed message", "attachments", len(attachments), "invoices", invoices, "took", time.Since(started))
}

// processAttachment stores one document and runs extraction on it. It
// reports whether an invoice record was created; an extraction failure
// still counts, because the placeholder exists and is routed to review.
func (p *Poller) processAttachment(ctx context.Context, tenant *models.Tenant, msg models.MessageSummary, att models.Attachment, log *slog.Logger) bool {
	log = log.With("attachment", att.Name)

	key, err := p.cfg.Blobs.Upload(ctx, tenant, att.Name, att.Content, att.ContentType)
	if err != nil {
		log.Error("upload attachment", "error", err)
		return false
	}

	rec, err := p.cfg.Invoices.CreatePlaceholder(ctx, invoice.PlaceholderParams{
		TenantID:              tenant.ID,
		OriginalFileName:      att.Name,
		BlobKey:               key,
		FileSizeBytes:         int64(len(att.Content)),
		MimeType:              att.ContentType,
		SourceEmailID:         msg.ID,
		SourceEmailFrom:       msg.FromAddress,
		SourceEmailSubject:    msg.Subject,
		SourceEmailReceivedAt: msg.ReceivedAt,
	})
	if err != nil {
		log.Error("create placeholder invoice", "error", err)
		return false
	}
	log = log.With("invoice_id", rec.ID)

	fileURL, err := p.cfg.Blobs.PresignedURL(ctx, key)
	if err != nil {
		log.Error("presign document URL", "error", err)
		p.failExtraction(ctx, rec.ID, err, log)
		return true
	}

	result, err := p.cfg.Extractor.Extract(ctx, extraction.Request{
		FileURL:   fileURL,
		FileName:  att.Name,
		TenantID:  tenant.ID,
		InvoiceID: rec.ID,
	})
	if err != nil {
		log.Warn("extraction failed", "error", err)
		p.failExtraction(ctx, rec.ID, err, log)
		return true
	}

	update, err := invoice.BuildUpdate(result, p.cfg.ConfidenceThreshold)
	if err != nil {
		log.Warn("extraction result unusable", "error", err)
		p.failExtraction(ctx, rec.ID, err, log)
		return true
	}

	if err := p.cfg.Invoices.ApplyExtraction(ctx, rec.ID, update); err != nil {
		log.Error("apply extraction", "error", err)
		p.failExtraction(ctx, rec.ID, err, log)
		return true
	}

	p.matchVendor(ctx, tenant, rec.ID, update, log)

	log.Info("invoice extracted", "status", update.Status, "invoice_number", update.InvoiceNumber)
	return true
}

func (p *Poller) matchVendor(ctx context.Context, tenant *models.Tenant, invoiceID string, u *invoice.Update, log *slog.Logger) {
	v, err := p.cfg.Vendors.FindOrCreate(ctx, tenant.ID, u.VendorName, vendor.Contacts{
		Address: u.VendorAddress,
		Email:   u.VendorEmail,
		Phone:   u.VendorPhone,
		TaxID:   u.VendorTaxID,
	})
	if err != nil {
		log.Warn("vendor match failed", "error", err)
		return
	}
	if v == nil {
		return
	}
	if err := p.cfg.Invoices.SetVendor(ctx, invoiceID, v.ID); err != nil {
		log.Warn("link vendor", "vendor_id", v.ID, "error", err)
	}
}

func (p *Poller) auditFail(ctx context.Context, messageID, errMsg string, log *slog.Logger) {
	if err := p.cfg.Audit.MarkFailed(ctx, messageID, errMsg); err != nil {
		log.Error("mark audit entry failed", "error", err)
	}
}

func (p *Poller) failExtraction(ctx context.Context, invoiceID string, cause error, log *slog.Logger) {
	if err := p.cfg.Invoices.MarkExtractionFailed(ctx, invoiceID, cause.Error()); err != nil {
		log.Error("mark extraction failed", "error", err)
	}
}

func (p *Poller) markRead(ctx context.Context, client mailbox.Client, tenant *models.Tenant, messageID string, log *slog.Logger) {
	if err := client.MarkRead(ctx, tenant.MailboxAddress, messageID); err != nil {
		log.Warn("mark message read", "error", err)
	}
}
