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

package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestExtract_DecodesFullResponse verifies a complete extraction response is
// decoded into typed fields, including string-formatted currency amounts.
func TestExtract_DecodesFullResponse(t *testing.T) {
	var gotReq Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/extract" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": {
				"invoice_number": "INV-1001",
				"invoice_date": "2026-07-15",
				"due_date": "2026-08-14",
				"vendor": {"name": "Acme Corp", "email": "ap@acme.example"},
				"subtotal": "$12,450.00",
				"tax_amount": 996.00,
				"total_amount": "13,446.00",
				"currency": "USD",
				"confidence_score": 0.94,
				"line_items": [
					{"description": "Widgets", "quantity": 100, "unit_price": "124.50", "line_total": "$12,450.00"}
				]
			},
			"extraction_method": "layout_model",
			"page_count": 3,
			"mapping_info": {"gl_account": "6100"}
		}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second)
	result, err := c.Extract(context.Background(), Request{
		FileURL:   "https://blobs.example/doc.pdf",
		FileName:  "doc.pdf",
		TenantID:  "t1",
		InvoiceID: "inv1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotReq.FileURL != "https://blobs.example/doc.pdf" || gotReq.InvoiceID != "inv1" {
		t.Errorf("request not forwarded: %+v", gotReq)
	}

	d := result.Data
	if d.InvoiceNumber != "INV-1001" {
		t.Errorf("invoice_number = %q", d.InvoiceNumber)
	}
	if !d.Subtotal.Valid || d.Subtotal.String() != "12450" {
		t.Errorf("subtotal = %v, want 12450", d.Subtotal)
	}
	if !d.TaxAmount.Valid || d.TaxAmount.String() != "996" {
		t.Errorf("tax_amount = %v, want 996", d.TaxAmount)
	}
	if !d.TotalAmount.Valid || d.TotalAmount.String() != "13446" {
		t.Errorf("total_amount = %v, want 13446", d.TotalAmount)
	}
	if d.ConfidenceScore == nil || *d.ConfidenceScore != 0.94 {
		t.Errorf("confidence_score = %v, want 0.94", d.ConfidenceScore)
	}
	if len(d.LineItems) != 1 || d.LineItems[0].LineTotal.String() != "12450" {
		t.Errorf("line items not decoded: %+v", d.LineItems)
	}
	if result.ExtractionMethod != "layout_model" || result.PageCount != 3 {
		t.Errorf("metadata not decoded: %+v", result)
	}
	if result.MappingInfo == nil || result.MappingInfo.GLAccount != "6100" {
		t.Errorf("mapping_info not decoded: %+v", result.MappingInfo)
	}
	if len(result.Raw) == 0 {
		t.Error("raw payload not retained")
	}
}

// TestExtract_AmountFormatsAgree verifies "$12,450.00" and 12450.00 decode
// to equal decimals regardless of wire formatting.
func TestExtract_AmountFormatsAgree(t *testing.T) {
	var asString, asNumber Amount
	if err := json.Unmarshal([]byte(`"$12,450.00"`), &asString); err != nil {
		t.Fatalf("string form: %v", err)
	}
	if err := json.Unmarshal([]byte(`12450.00`), &asNumber); err != nil {
		t.Fatalf("number form: %v", err)
	}
	if !asString.Decimal.Equal(asNumber.Decimal) {
		t.Errorf("%s != %s", asString.Decimal, asNumber.Decimal)
	}
}

// TestAmount_NullAndEmpty verifies null, absent, and empty-string amounts
// all decode as not valid.
func TestAmount_NullAndEmpty(t *testing.T) {
	for _, raw := range []string{`null`, `""`, `"  "`} {
		var a Amount
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			t.Fatalf("Unmarshal(%s): %v", raw, err)
		}
		if a.Valid {
			t.Errorf("Unmarshal(%s): expected invalid amount", raw)
		}
	}
}

// TestAmount_Garbage verifies an unparseable amount is an error rather than
// a silent zero.
func TestAmount_Garbage(t *testing.T) {
	var a Amount
	if err := json.Unmarshal([]byte(`"twelve dollars"`), &a); err == nil {
		t.Error("expected error for unparseable amount")
	}
}

// TestExtract_ServerError verifies a non-200 status is surfaced as an error.
func TestExtract_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second)
	if _, err := c.Extract(context.Background(), Request{}); err == nil {
		t.Error("expected error for 503 response")
	}
}

// TestExtract_MissingData verifies a 200 response without a data block is
// rejected: the caller must be able to trust a non-nil result.
func TestExtract_MissingData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"extraction_method": "ocr"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second)
	if _, err := c.Extract(context.Background(), Request{}); err == nil {
		t.Error("expected error for response without data")
	}
}

// TestExtract_Timeout verifies the client gives up when the service stalls.
func TestExtract_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	c := NewClient(server.URL, 50*time.Millisecond)
	if _, err := c.Extract(context.Background(), Request{}); err == nil {
		t.Error("expected timeout error")
	}
}

// TestExtract_MalformedJSON verifies decode failures are errors.
func TestExtract_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {`))
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second)
	if _, err := c.Extract(context.Background(), Request{}); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
