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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the review lifecycle of an invoice record.
//
// The intake pipeline only ever writes PENDING and UNDER_REVIEW; the
// remaining states belong to the downstream approval workflow and ERP sync.
type InvoiceStatus string

const (
	InvoicePending     InvoiceStatus = "PENDING"
	InvoiceUnderReview InvoiceStatus = "UNDER_REVIEW"
	InvoiceApproved    InvoiceStatus = "APPROVED"
	InvoiceRejected    InvoiceStatus = "REJECTED"
	InvoiceSynced      InvoiceStatus = "SYNCED"
)

// InvoiceRecord is a single ingested invoice document. It is created as a
// placeholder the moment an attachment lands in blob storage, then rewritten
// in place once extraction completes (or fails).
//
// Invariants: TenantID and BlobKey are never empty; ConfidenceScore, when
// valid, is in [0,1].
type InvoiceRecord struct {
	ID       string
	TenantID string
	VendorID string // linked Vendor, empty until auto-matched

	InvoiceNumber string
	PONumber      string

	// Vendor block as extracted from the document (the Vendor entity is
	// matched from these, non-destructively).
	VendorName    string
	VendorAddress string
	VendorEmail   string
	VendorPhone   string
	VendorTaxID   string

	Subtotal    decimal.Decimal
	TaxAmount   decimal.NullDecimal
	TotalAmount decimal.Decimal
	Currency    string

	InvoiceDate *time.Time
	DueDate     *time.Time

	// Accounting allocation hints consumed by downstream ERP sync.
	GLAccount    string
	Project      string
	ItemCategory string
	Location     string
	CostCenter   string

	Status                InvoiceStatus
	RequiresManualReview  bool
	ReviewNotes           string
	ConfidenceScore       decimal.NullDecimal
	ExtractionMethod      string
	PageCount             int
	ExtractedAt           *time.Time
	RawExtractedData      string // full extraction payload, for audit/debugging

	// Source document.
	OriginalFileName string
	BlobKey          string
	FileSizeBytes    int64
	MimeType         string

	// Source email linkage.
	SourceEmailID         string
	SourceEmailFrom       string
	SourceEmailSubject    string
	SourceEmailReceivedAt *time.Time

	ReceivedDate time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	LineItems []LineItem
}

// LineItem is owned by exactly one invoice and replaced wholesale on
// re-extraction.
type LineItem struct {
	ID          string
	InvoiceID   string
	LineNumber  int
	Description string
	ItemCode    string
	Unit        string
	Quantity    decimal.NullDecimal
	UnitPrice   decimal.NullDecimal
	LineTotal   decimal.Decimal
	TaxAmount   decimal.NullDecimal
	GLAccount   string
	CostCenter  string
}
