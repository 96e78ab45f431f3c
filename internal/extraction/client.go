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

// Package extraction calls the external document extraction service and
// decodes its response into typed structures. Any failure to obtain a
// well-formed result is an error; the caller decides how a failed
// extraction affects the invoice record.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request identifies a stored document for the extraction service.
type Request struct {
	FileURL   string `json:"file_url"`
	FileName  string `json:"file_name"`
	TenantID  string `json:"tenant_id"`
	InvoiceID string `json:"invoice_id"`
}

// Vendor is the vendor block of an extraction result. All fields are
// optional on the wire.
type Vendor struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	TaxID   string `json:"tax_id"`
}

// LineItem is one extracted invoice line.
type LineItem struct {
	Description string `json:"description"`
	ItemCode    string `json:"item_code"`
	Unit        string `json:"unit"`
	Quantity    Amount `json:"quantity"`
	UnitPrice   Amount `json:"unit_price"`
	TaxAmount   Amount `json:"tax_amount"`
	LineTotal   Amount `json:"line_total"`
	GLAccount   string `json:"gl_account"`
	CostCenter  string `json:"cost_center"`
}

// Data is the extracted document content.
type Data struct {
	InvoiceNumber   string     `json:"invoice_number"`
	InvoiceDate     string     `json:"invoice_date"` // yyyy-MM-dd
	DueDate         string     `json:"due_date"`     // yyyy-MM-dd
	Vendor          *Vendor    `json:"vendor"`
	Subtotal        Amount     `json:"subtotal"`
	TaxAmount       Amount     `json:"tax_amount"`
	TotalAmount     Amount     `json:"total_amount"`
	Currency        string     `json:"currency"`
	PaymentTerms    string     `json:"payment_terms"`
	PONumber        string     `json:"po_number"`
	GLAccount       string     `json:"gl_account"`
	Project         string     `json:"project"`
	ItemCategory    string     `json:"item_category"`
	Location        string     `json:"location"`
	CostCenter      string     `json:"cost_center"`
	LineItems       []LineItem `json:"line_items"`
	ConfidenceScore *float64   `json:"confidence_score"`
	Notes           string     `json:"notes"`
}

// MappingInfo carries coding hints the service derived from tenant mapping
// rules. Used as fallback when the corresponding Data field is empty.
type MappingInfo struct {
	GLAccount    string `json:"gl_account"`
	Project      string `json:"project"`
	ItemCategory string `json:"item_category"`
}

// Result is a successful extraction response.
type Result struct {
	Data             *Data        `json:"data"`
	ExtractionMethod string       `json:"extraction_method"`
	PageCount        int          `json:"page_count"`
	MappingInfo      *MappingInfo `json:"mapping_info"`

	// Raw is the verbatim response body, retained on the invoice for
	// later review and reprocessing.
	Raw json.RawMessage `json:"-"`
}

// Client talks to the extraction service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an extraction client. The timeout bounds the whole
// call; extraction of large scans can take tens of seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Extract submits a document and waits for the extraction result.
func (c *Client) Extract(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode extraction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create extraction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call extraction service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, truncate(string(raw), 500))
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	if result.Data == nil {
		return nil, fmt.Errorf("extraction response missing data block")
	}

	result.Raw = raw
	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
