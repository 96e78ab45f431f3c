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

import "time"

// VendorStatus is the lifecycle state of a vendor record.
type VendorStatus string

const (
	VendorActive   VendorStatus = "ACTIVE"
	VendorInactive VendorStatus = "INACTIVE"
)

// Vendor is a supplier identified per tenant by its normalized name.
// Vendors are created lazily on the first invoice from an unseen name;
// contact fields are backfilled only while null, never overwritten.
type Vendor struct {
	ID             string
	TenantID       string
	Name           string
	NormalizedName string
	Address        string
	Email          string
	Phone          string
	TaxID          string
	Status         VendorStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
