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

// Package invoice persists invoice records in Postgres and maps extraction
// results onto them. A record starts life as a placeholder created the
// moment its document reaches blob storage, so a crash between upload and
// extraction leaves a visible row rather than a lost file.
package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vedvix/syncledger-ingestion/internal/models"
)

// Store provides invoice persistence backed by Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an invoice store and ensures its tables exist.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure invoice schema: %w", err)
	}
	slog.Info("invoice store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS invoices (
			id                       TEXT PRIMARY KEY,
			tenant_id                TEXT NOT NULL,
			vendor_id                TEXT DEFAULT '',
			invoice_number           TEXT NOT NULL,
			po_number                TEXT DEFAULT '',
			vendor_name              TEXT DEFAULT '',
			vendor_address           TEXT DEFAULT '',
			vendor_email             TEXT DEFAULT '',
			vendor_phone             TEXT DEFAULT '',
			vendor_tax_id            TEXT DEFAULT '',
			subtotal                 NUMERIC(18,4) NOT NULL DEFAULT 0,
			tax_amount               NUMERIC(18,4),
			total_amount             NUMERIC(18,4) NOT NULL DEFAULT 0,
			currency                 TEXT DEFAULT '',
			invoice_date             DATE,
			due_date                 DATE,
			gl_account               TEXT DEFAULT '',
			project                  TEXT DEFAULT '',
			item_category            TEXT DEFAULT '',
			location                 TEXT DEFAULT '',
			cost_center              TEXT DEFAULT '',
			status                   TEXT NOT NULL,
			requires_manual_review   BOOLEAN DEFAULT FALSE,
			review_notes             TEXT DEFAULT '',
			confidence_score         NUMERIC(5,4),
			extraction_method        TEXT DEFAULT '',
			page_count               INTEGER DEFAULT 0,
			extracted_at             TIMESTAMPTZ,
			raw_extracted_data       TEXT DEFAULT '',
			original_file_name       TEXT DEFAULT '',
			blob_key                 TEXT NOT NULL,
			file_size_bytes          BIGINT DEFAULT 0,
			mime_type                TEXT DEFAULT '',
			source_email_id          TEXT DEFAULT '',
			source_email_from        TEXT DEFAULT '',
			source_email_subject     TEXT DEFAULT '',
			source_email_received_at TIMESTAMPTZ,
			received_date            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at               TIMESTAMPTZ DEFAULT NOW(),
			updated_at               TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_invoices_tenant ON invoices(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(tenant_id, status);
		CREATE INDEX IF NOT EXISTS idx_invoices_source_email ON invoices(source_email_id);

		CREATE TABLE IF NOT EXISTS invoice_line_items (
			id          TEXT PRIMARY KEY,
			invoice_id  TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
			line_number INTEGER NOT NULL,
			description TEXT DEFAULT '',
			item_code   TEXT DEFAULT '',
			unit        TEXT DEFAULT '',
			quantity    NUMERIC(18,4),
			unit_price  NUMERIC(18,4),
			tax_amount  NUMERIC(18,4),
			line_total  NUMERIC(18,4) NOT NULL DEFAULT 0,
			gl_account  TEXT DEFAULT '',
			cost_center TEXT DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_line_items_invoice ON invoice_line_items(invoice_id);
	`)
	return err
}

// PlaceholderParams identifies the stored document and source email a
// placeholder invoice is created for.
type PlaceholderParams struct {
	TenantID         string
	OriginalFileName string
	BlobKey          string
	FileSizeBytes    int64
	MimeType         string

	SourceEmailID         string
	SourceEmailFrom       string
	SourceEmailSubject    string
	SourceEmailReceivedAt time.Time
}

// CreatePlaceholder inserts a minimal PENDING invoice for a freshly stored
// document. The invoice number is a visibly synthetic value replaced by
// extraction; it survives only if extraction fails.
func (s *Store) CreatePlaceholder(ctx context.Context, p PlaceholderParams) (*models.InvoiceRecord, error) {
	now := time.Now()
	rec := &models.InvoiceRecord{
		ID:               uuid.NewString(),
		TenantID:         p.TenantID,
		InvoiceNumber:    fmt.Sprintf("PENDING-%d", now.UnixMilli()),
		VendorName:       "Pending Extraction",
		Subtotal:         decimal.Zero,
		TotalAmount:      decimal.Zero,
		Status:           models.InvoicePending,
		OriginalFileName: p.OriginalFileName,
		BlobKey:          p.BlobKey,
		FileSizeBytes:    p.FileSizeBytes,
		MimeType:         p.MimeType,

		SourceEmailID:      p.SourceEmailID,
		SourceEmailFrom:    p.SourceEmailFrom,
		SourceEmailSubject: p.SourceEmailSubject,

		ReceivedDate: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !p.SourceEmailReceivedAt.IsZero() {
		t := p.SourceEmailReceivedAt
		rec.SourceEmailReceivedAt = &t
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO invoices
			(id, tenant_id, invoice_number, vendor_name, subtotal, total_amount,
			 status, original_file_name, blob_key, file_size_bytes, mime_type,
			 source_email_id, source_email_from, source_email_subject,
			 source_email_received_at, received_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, rec.ID, rec.TenantID, rec.InvoiceNumber, rec.VendorName,
		rec.Subtotal, rec.TotalAmount, string(rec.Status),
		rec.OriginalFileName, rec.BlobKey, rec.FileSizeBytes, rec.MimeType,
		rec.SourceEmailID, rec.SourceEmailFrom, rec.SourceEmailSubject,
		rec.SourceEmailReceivedAt, rec.ReceivedDate)
	if err != nil {
		return nil, fmt.Errorf("insert placeholder invoice: %w", err)
	}
	return rec, nil
}

// ApplyExtraction rewrites a placeholder with extraction output and replaces
// its line items, in one transaction.
func (s *Store) ApplyExtraction(ctx context.Context, invoiceID string, u *Update) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin extraction update: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE invoices SET
			invoice_number         = CASE WHEN $2 <> '' THEN $2 ELSE invoice_number END,
			po_number              = $3,
			vendor_name            = CASE WHEN $4 <> '' THEN $4 ELSE vendor_name END,
			vendor_address         = $5,
			vendor_email           = $6,
			vendor_phone           = $7,
			vendor_tax_id          = $8,
			subtotal               = $9,
			tax_amount             = $10,
			total_amount           = $11,
			currency               = $12,
			invoice_date           = $13,
			due_date               = $14,
			gl_account             = $15,
			project                = $16,
			item_category          = $17,
			location               = $18,
			cost_center            = $19,
			status                 = $20,
			requires_manual_review = $21,
			review_notes           = $22,
			confidence_score       = $23,
			extraction_method      = $24,
			page_count             = $25,
			extracted_at           = NOW(),
			raw_extracted_data     = $26,
			updated_at             = NOW()
		WHERE id = $1
	`, invoiceID, u.InvoiceNumber, u.PONumber,
		u.VendorName, u.VendorAddress, u.VendorEmail, u.VendorPhone, u.VendorTaxID,
		u.Subtotal, u.TaxAmount, u.TotalAmount, u.Currency,
		u.InvoiceDate, u.DueDate,
		u.GLAccount, u.Project, u.ItemCategory, u.Location, u.CostCenter,
		string(u.Status), u.RequiresManualReview, u.ReviewNotes,
		u.ConfidenceScore, u.ExtractionMethod, u.PageCount, u.RawExtractedData)
	if err != nil {
		return fmt.Errorf("update invoice %s: %w", invoiceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice %s not found", invoiceID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM invoice_line_items WHERE invoice_id = $1`, invoiceID); err != nil {
		return fmt.Errorf("clear line items for %s: %w", invoiceID, err)
	}
	for _, li := range u.LineItems {
		if _, err := tx.Exec(ctx, `
			INSERT INTO invoice_line_items
				(id, invoice_id, line_number, description, item_code, unit,
				 quantity, unit_price, tax_amount, line_total, gl_account, cost_center)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, uuid.NewString(), invoiceID, li.LineNumber, li.Description, li.ItemCode, li.Unit,
			li.Quantity, li.UnitPrice, li.TaxAmount, li.LineTotal, li.GLAccount, li.CostCenter); err != nil {
			return fmt.Errorf("insert line item %d for %s: %w", li.LineNumber, invoiceID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit extraction update: %w", err)
	}
	return nil
}

// SetVendor links an invoice to its matched vendor record.
func (s *Store) SetVendor(ctx context.Context, invoiceID, vendorID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE invoices SET vendor_id = $1, updated_at = NOW() WHERE id = $2
	`, vendorID, invoiceID)
	if err != nil {
		return fmt.Errorf("set vendor on invoice %s: %w", invoiceID, err)
	}
	return nil
}

// MarkExtractionFailed routes a placeholder to manual review after a failed
// extraction, recording the reason. The placeholder values stay in place so
// a reviewer can still find the document.
func (s *Store) MarkExtractionFailed(ctx context.Context, invoiceID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE invoices SET
			status                 = $2,
			requires_manual_review = TRUE,
			review_notes           = $3,
			updated_at             = NOW()
		WHERE id = $1
	`, invoiceID, string(models.InvoiceUnderReview), "Extraction failed: "+reason)
	if err != nil {
		return fmt.Errorf("mark extraction failed for %s: %w", invoiceID, err)
	}
	return nil
}

// GetByID fetches an invoice with its line items, or nil if absent.
func (s *Store) GetByID(ctx context.Context, id string) (*models.InvoiceRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, vendor_id, invoice_number, po_number,
		       vendor_name, vendor_address, vendor_email, vendor_phone, vendor_tax_id,
		       subtotal, tax_amount, total_amount, currency,
		       invoice_date, due_date,
		       gl_account, project, item_category, location, cost_center,
		       status, requires_manual_review, review_notes, confidence_score,
		       extraction_method, page_count, extracted_at, raw_extracted_data,
		       original_file_name, blob_key, file_size_bytes, mime_type,
		       source_email_id, source_email_from, source_email_subject,
		       source_email_received_at, received_date, created_at, updated_at
		FROM invoices WHERE id = $1
	`, id)

	rec, err := scanInvoice(row)
	if err != nil || rec == nil {
		return rec, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, invoice_id, line_number, description, item_code, unit,
		       quantity, unit_price, tax_amount, line_total, gl_account, cost_center
		FROM invoice_line_items
		WHERE invoice_id = $1
		ORDER BY line_number
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load line items for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var li models.LineItem
		if err := rows.Scan(
			&li.ID, &li.InvoiceID, &li.LineNumber, &li.Description, &li.ItemCode, &li.Unit,
			&li.Quantity, &li.UnitPrice, &li.TaxAmount, &li.LineTotal, &li.GLAccount, &li.CostCenter,
		); err != nil {
			return nil, err
		}
		rec.LineItems = append(rec.LineItems, li)
	}
	return rec, rows.Err()
}

// StatusCounts returns invoice counts per status for a tenant, for the
// operational status endpoint.
func (s *Store) StatusCounts(ctx context.Context, tenantID string) (map[models.InvoiceStatus]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM invoices WHERE tenant_id = $1 GROUP BY status
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count invoices for %s: %w", tenantID, err)
	}
	defer rows.Close()

	counts := make(map[models.InvoiceStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.InvoiceStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanInvoice(row pgx.Row) (*models.InvoiceRecord, error) {
	var rec models.InvoiceRecord
	var status string
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.VendorID, &rec.InvoiceNumber, &rec.PONumber,
		&rec.VendorName, &rec.VendorAddress, &rec.VendorEmail, &rec.VendorPhone, &rec.VendorTaxID,
		&rec.Subtotal, &rec.TaxAmount, &rec.TotalAmount, &rec.Currency,
		&rec.InvoiceDate, &rec.DueDate,
		&rec.GLAccount, &rec.Project, &rec.ItemCategory, &rec.Location, &rec.CostCenter,
		&status, &rec.RequiresManualReview, &rec.ReviewNotes, &rec.ConfidenceScore,
		&rec.ExtractionMethod, &rec.PageCount, &rec.ExtractedAt, &rec.RawExtractedData,
		&rec.OriginalFileName, &rec.BlobKey, &rec.FileSizeBytes, &rec.MimeType,
		&rec.SourceEmailID, &rec.SourceEmailFrom, &rec.SourceEmailSubject,
		&rec.SourceEmailReceivedAt, &rec.ReceivedDate, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Status = models.InvoiceStatus(status)
	return &rec, nil
}
