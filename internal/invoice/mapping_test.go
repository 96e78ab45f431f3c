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

package invoice

import (
	"encoding/json"
	"testing"

	"github.com/vedvix/syncledger-ingestion/internal/extraction"
	"github.com/vedvix/syncledger-ingestion/internal/models"
)

const reviewThreshold = 0.87

func resultFromJSON(t *testing.T, raw string) *extraction.Result {
	t.Helper()
	var r extraction.Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	r.Raw = json.RawMessage(raw)
	return &r
}

// TestBuildUpdate_ConfidenceRouting verifies the status decision at, above,
// and below the review threshold, and when no score is reported.
func TestBuildUpdate_ConfidenceRouting(t *testing.T) {
	tests := []struct {
		name       string
		confidence string // raw JSON for the confidence_score field
		wantStatus models.InvoiceStatus
		wantReview bool
	}{
		{"high confidence", `0.94`, models.InvoicePending, false},
		{"exactly at threshold", `0.87`, models.InvoicePending, false},
		{"below threshold", `0.70`, models.InvoiceUnderReview, true},
		{"barely below threshold", `0.8699`, models.InvoiceUnderReview, true},
		{"missing score", `null`, models.InvoicePending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := resultFromJSON(t, `{
				"data": {"invoice_number": "INV-1", "confidence_score": `+tt.confidence+`}
			}`)

			u, err := BuildUpdate(result, reviewThreshold)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if u.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", u.Status, tt.wantStatus)
			}
			if u.RequiresManualReview != tt.wantReview {
				t.Errorf("requires_manual_review = %v, want %v", u.RequiresManualReview, tt.wantReview)
			}
			if tt.wantReview && u.ReviewNotes == "" {
				t.Error("expected review notes for low-confidence result")
			}
		})
	}
}

// TestBuildUpdate_MissingScoreHasNullConfidence verifies a missing score is
// stored as NULL, not 0, so it cannot be mistaken for a measured zero.
func TestBuildUpdate_MissingScoreHasNullConfidence(t *testing.T) {
	result := resultFromJSON(t, `{"data": {"invoice_number": "INV-1"}}`)

	u, err := BuildUpdate(result, reviewThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ConfidenceScore.Valid {
		t.Errorf("confidence = %v, want NULL", u.ConfidenceScore)
	}
}

// TestBuildUpdate_MappingInfoFallback verifies mapping hints only fill
// coding fields the document did not provide.
func TestBuildUpdate_MappingInfoFallback(t *testing.T) {
	result := resultFromJSON(t, `{
		"data": {
			"invoice_number": "INV-1",
			"gl_account": "5000",
			"project": ""
		},
		"mapping_info": {"gl_account": "6100", "project": "PRJ-7", "item_category": "hardware"}
	}`)

	u, err := BuildUpdate(result, reviewThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.GLAccount != "5000" {
		t.Errorf("gl_account = %q, extracted value must win over mapping hint", u.GLAccount)
	}
	if u.Project != "PRJ-7" {
		t.Errorf("project = %q, want mapping fallback PRJ-7", u.Project)
	}
	if u.ItemCategory != "hardware" {
		t.Errorf("item_category = %q, want mapping fallback", u.ItemCategory)
	}
}

// TestBuildUpdate_Dates verifies date parsing and that a malformed date is
// an error rather than a silently dropped field.
func TestBuildUpdate_Dates(t *testing.T) {
	result := resultFromJSON(t, `{
		"data": {"invoice_date": "2026-07-15", "due_date": ""}
	}`)

	u, err := BuildUpdate(result, reviewThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.InvoiceDate == nil || u.InvoiceDate.Format("2006-01-02") != "2026-07-15" {
		t.Errorf("invoice_date = %v", u.InvoiceDate)
	}
	if u.DueDate != nil {
		t.Errorf("due_date = %v, want nil for empty string", u.DueDate)
	}

	bad := resultFromJSON(t, `{"data": {"invoice_date": "07/15/2026"}}`)
	if _, err := BuildUpdate(bad, reviewThreshold); err == nil {
		t.Error("expected error for malformed date")
	}
}

// TestBuildUpdate_LineItems verifies line numbering and decimal mapping.
func TestBuildUpdate_LineItems(t *testing.T) {
	result := resultFromJSON(t, `{
		"data": {
			"line_items": [
				{"description": "Widgets", "quantity": 100, "unit_price": "124.50", "line_total": "$12,450.00"},
				{"description": "Freight", "line_total": "95.00"}
			]
		}
	}`)

	u, err := BuildUpdate(result, reviewThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(u.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(u.LineItems))
	}

	first := u.LineItems[0]
	if first.LineNumber != 1 || u.LineItems[1].LineNumber != 2 {
		t.Error("line numbers must be sequential starting at 1")
	}
	if first.LineTotal.String() != "12450" {
		t.Errorf("line_total = %s, want 12450", first.LineTotal)
	}
	if !first.Quantity.Valid || first.Quantity.Decimal.String() != "100" {
		t.Errorf("quantity = %v", first.Quantity)
	}

	second := u.LineItems[1]
	if second.Quantity.Valid {
		t.Error("absent quantity must stay NULL")
	}
}

// TestBuildUpdate_DefaultExtractionMethod verifies the method defaults to
// "ocr" when the service omits it.
func TestBuildUpdate_DefaultExtractionMethod(t *testing.T) {
	result := resultFromJSON(t, `{"data": {}}`)

	u, err := BuildUpdate(result, reviewThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ExtractionMethod != "ocr" {
		t.Errorf("extraction_method = %q, want ocr", u.ExtractionMethod)
	}
}

// TestBuildUpdate_RetainsRawPayload verifies the verbatim response survives
// onto the update for audit purposes.
func TestBuildUpdate_RetainsRawPayload(t *testing.T) {
	raw := `{"data": {"invoice_number": "INV-9"}}`
	u, err := BuildUpdate(resultFromJSON(t, raw), reviewThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.RawExtractedData != raw {
		t.Errorf("raw payload = %q, want verbatim response", u.RawExtractedData)
	}
}

// TestBuildUpdate_VendorBlock verifies vendor fields are carried over.
func TestBuildUpdate_VendorBlock(t *testing.T) {
	result := resultFromJSON(t, `{
		"data": {
			"vendor": {
				"name": "Acme Corp",
				"address": "1 Main St",
				"email": "ap@acme.example",
				"phone": "555-0100",
				"tax_id": "TX-99"
			}
		}
	}`)

	u, err := BuildUpdate(result, reviewThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.VendorName != "Acme Corp" || u.VendorTaxID != "TX-99" || u.VendorPhone != "555-0100" {
		t.Errorf("vendor block not mapped: %+v", u)
	}
}
