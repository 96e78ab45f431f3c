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

// Package mailbox abstracts the remote mailbox provider behind a small
// capability interface with two production adapters (Microsoft Graph, IMAP)
// and an in-memory fake for tests.
package mailbox

import (
	"context"
	"sort"

	"github.com/vedvix/syncledger-ingestion/internal/models"
)

// ProcessedFolderName is where handled messages are filed, created on demand.
const ProcessedFolderName = "Processed Invoices"

// Client is the mailbox capability the poller depends on.
//
// MarkRead and MoveToProcessedFolder are best effort: a failure there can
// only leave a message unread for reprocessing, never corrupt invoice data,
// so callers log the error and continue.
type Client interface {
	// ListUnreadWithAttachments returns up to maxResults unread messages
	// that carry attachments, newest first. Attachment filtering happens
	// client-side and ordering is computed locally, because provider-side
	// queries combining both are unreliable.
	ListUnreadWithAttachments(ctx context.Context, mailbox string, maxResults int) ([]models.MessageSummary, error)

	// FetchAttachments retrieves all file attachments of a message,
	// including content bytes.
	FetchAttachments(ctx context.Context, mailbox, messageID string) ([]models.Attachment, error)

	MarkRead(ctx context.Context, mailbox, messageID string) error
	MoveToProcessedFolder(ctx context.Context, mailbox, messageID string) error

	// TestConnection reports whether the mailbox is reachable with the
	// configured credentials.
	TestConnection(ctx context.Context, mailbox string) (bool, error)
}

// sortByReceivedDesc orders summaries newest first. Providers can't always
// honour $orderby together with an unread filter, so we sort locally.
func sortByReceivedDesc(msgs []models.MessageSummary) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].ReceivedAt.After(msgs[j].ReceivedAt)
	})
}
