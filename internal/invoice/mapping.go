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
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vedvix/syncledger-ingestion/internal/extraction"
	"github.com/vedvix/syncledger-ingestion/internal/models"
)

// dateLayout is the only date format the extraction service emits.
const dateLayout = "2006-01-02"

// Update is everything an extraction result writes onto a placeholder
// invoice. It is built by pure mapping, then applied in one transaction.
type Update struct {
	Status               models.InvoiceStatus
	RequiresManualReview bool
	ReviewNotes          string

	InvoiceNumber string
	PONumber      string

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

	GLAccount    string
	Project      string
	ItemCategory string
	Location     string
	CostCenter   string

	ConfidenceScore  decimal.NullDecimal
	ExtractionMethod string
	PageCount        int
	RawExtractedData string

	LineItems []models.LineItem
}

// BuildUpdate maps an extraction result onto an invoice update.
//
// Routing: a confidence score below the threshold sends the invoice to
// UNDER_REVIEW with the manual-review flag set; at or above the threshold
// (or when the service reports no score at all) it stays PENDING.
func BuildUpdate(result *extraction.Result, threshold float64) (*Update, error) {
	data := result.Data
	if data == nil {
		return nil, fmt.Errorf("extraction result has no data")
	}

	u := &Update{
		Status:           models.InvoicePending,
		InvoiceNumber:    data.InvoiceNumber,
		PONumber:         data.PONumber,
		Subtotal:         data.Subtotal.Or(decimal.Zero),
		TaxAmount:        data.TaxAmount.NullDecimal(),
		TotalAmount:      data.TotalAmount.Or(decimal.Zero),
		Currency:         data.Currency,
		GLAccount:        data.GLAccount,
		Project:          data.Project,
		ItemCategory:     data.ItemCategory,
		Location:         data.Location,
		CostCenter:       data.CostCenter,
		ExtractionMethod: result.ExtractionMethod,
		PageCount:        result.PageCount,
		RawExtractedData: string(result.Raw),
	}
	if u.ExtractionMethod == "" {
		u.ExtractionMethod = "ocr"
	}

	if v := data.Vendor; v != nil {
		u.VendorName = v.Name
		u.VendorAddress = v.Address
		u.VendorEmail = v.Email
		u.VendorPhone = v.Phone
		u.VendorTaxID = v.TaxID
	}

	// Mapping hints fill coding fields the document itself did not carry.
	if m := result.MappingInfo; m != nil {
		if u.GLAccount == "" {
			u.GLAccount = m.GLAccount
		}
		if u.Project == "" {
			u.Project = m.Project
		}
		if u.ItemCategory == "" {
			u.ItemCategory = m.ItemCategory
		}
	}

	var err error
	if u.InvoiceDate, err = parseDate(data.InvoiceDate); err != nil {
		return nil, fmt.Errorf("invoice_date: %w", err)
	}
	if u.DueDate, err = parseDate(data.DueDate); err != nil {
		return nil, fmt.Errorf("due_date: %w", err)
	}

	if data.ConfidenceScore != nil {
		score := decimal.NewFromFloat(*data.ConfidenceScore)
		u.ConfidenceScore = decimal.NullDecimal{Decimal: score, Valid: true}
		if *data.ConfidenceScore < threshold {
			u.Status = models.InvoiceUnderReview
			u.RequiresManualReview = true
			u.ReviewNotes = fmt.Sprintf("Low extraction confidence: %.2f", *data.ConfidenceScore)
		}
	}

	for i, li := range data.LineItems {
		u.LineItems = append(u.LineItems, models.LineItem{
			LineNumber:  i + 1,
			Description: li.Description,
			ItemCode:    li.ItemCode,
			Unit:        li.Unit,
			Quantity:    li.Quantity.NullDecimal(),
			UnitPrice:   li.UnitPrice.NullDecimal(),
			TaxAmount:   li.TaxAmount.NullDecimal(),
			LineTotal:   li.LineTotal.Or(decimal.Zero),
			GLAccount:   li.GLAccount,
			CostCenter:  li.CostCenter,
		})
	}

	return u, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", s, err)
	}
	return &t, nil
}
