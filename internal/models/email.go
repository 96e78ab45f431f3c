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
	"strings"
	"time"
)

// MessageSummary is a lightweight view of an unread mailbox message,
// enough to decide whether and how to process it.
type MessageSummary struct {
	ID                string // provider message id, the idempotency key
	InternetMessageID string
	FromAddress       string
	FromName          string
	ToAddresses       []string
	Subject           string
	BodyPreview       string
	ReceivedAt        time.Time
	HasAttachments    bool
}

// Attachment is a file attached to a mailbox message, with its content
// already fetched.
type Attachment struct {
	ID          string
	Name        string
	ContentType string
	Size        int64
	Inline      bool
	Content     []byte
}

// IsPDF reports whether the attachment looks like a PDF, by content type
// or file extension.
func (a *Attachment) IsPDF() bool {
	if strings.Contains(strings.ToLower(a.ContentType), "pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(a.Name), ".pdf")
}

// processableImageTypes are the scanned-document formats the extraction
// service accepts besides PDF.
var processableImageTypes = []string{"image/jpeg", "image/png", "image/tiff", "image/bmp"}

var processableImageExts = []string{".jpg", ".jpeg", ".png", ".tiff", ".bmp"}

// Processable reports whether the attachment is worth sending through
// extraction (PDF or scanned image). Inline attachments such as signature
// logos are excluded.
func (a *Attachment) Processable() bool {
	if a.Inline {
		return false
	}
	if a.IsPDF() {
		return true
	}
	ct := strings.ToLower(a.ContentType)
	for _, t := range processableImageTypes {
		if strings.Contains(ct, t) {
			return true
		}
	}
	name := strings.ToLower(a.Name)
	for _, ext := range processableImageExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
