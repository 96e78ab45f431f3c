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
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value as the extraction service reports it. The
// service is not consistent: amounts arrive as JSON numbers, or as strings
// with currency symbols and thousands separators ("$12,450.00").
type Amount struct {
	decimal.Decimal
	Valid bool
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		a.Valid = false
		return nil
	}

	s := string(data)
	if s[0] == '"' {
		s = strings.Trim(s, `"`)
		s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
		if s == "" {
			a.Valid = false
			return nil
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", string(data), err)
	}
	a.Decimal = d
	a.Valid = true
	return nil
}

// NullDecimal converts to the nullable decimal used by the stores.
func (a Amount) NullDecimal() decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: a.Decimal, Valid: a.Valid}
}

// Or returns the amount's value, or fallback when the amount is absent.
func (a Amount) Or(fallback decimal.Decimal) decimal.Decimal {
	if a.Valid {
		return a.Decimal
	}
	return fallback
}
