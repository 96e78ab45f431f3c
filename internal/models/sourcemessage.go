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

// SourceMessage is the ingestion audit log entry: one row per source email,
// keyed by the provider message id. It is created on first sight and mutated
// to a terminal processed/error state, never deleted by the pipeline. Its
// existence is the dedup guard against reprocessing.
type SourceMessage struct {
	ID                string // provider message id
	TenantID          string
	InternetMessageID string
	FromAddress       string
	FromName          string
	ToAddresses       string
	Subject           string
	BodyPreview       string
	ReceivedAt        time.Time
	HasAttachments    bool
	AttachmentCount   int
	AttachmentNames   string

	Processed         bool
	HasError          bool
	ErrorMessage      string
	InvoicesExtracted int
	ProcessingTime    time.Duration

	CreatedAt time.Time
	UpdatedAt time.Time
}
