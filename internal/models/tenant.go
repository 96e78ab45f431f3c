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

// Package models defines the data structures shared across the invoice
// intake pipeline.
package models

import "time"

// TenantStatus is the lifecycle state of a tenant. Only ACTIVE tenants
// are polled; tenants are suspended rather than deleted.
type TenantStatus string

const (
	TenantActive    TenantStatus = "ACTIVE"
	TenantTrial     TenantStatus = "TRIAL"
	TenantSuspended TenantStatus = "SUSPENDED"
)

// Tenant is the isolation boundary. Each tenant owns a mailbox, a blob
// storage prefix, and its own vendors and invoices.
type Tenant struct {
	ID             string
	Alias          string // short unique slug, also the config key
	Name           string
	MailboxAddress string // inbound invoice mailbox; empty = not polled
	MailProvider   string // "graph" or "imap"
	StoragePrefix  string // blob key prefix; defaults to the alias
	Status         TenantStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Pollable reports whether the tenant should be included in a polling cycle.
func (t *Tenant) Pollable() bool {
	return t.Status == TenantActive && t.MailboxAddress != ""
}

// BlobPrefix returns the storage prefix, falling back to the alias.
func (t *Tenant) BlobPrefix() string {
	if t.StoragePrefix != "" {
		return t.StoragePrefix
	}
	return t.Alias
}
