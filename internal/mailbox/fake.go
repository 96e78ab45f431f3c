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

package mailbox

import (
	"context"
	"sync"

	"github.com/vedvix/syncledger-ingestion/internal/models"
)

// Fake is an in-memory mailbox used by tests. It records which messages
// were marked read or moved, and can be scripted to fail per operation.
type Fake struct {
	mu sync.Mutex

	Messages    []models.MessageSummary
	Attachments map[string][]models.Attachment // keyed by message id

	ListErr  error
	FetchErr map[string]error // per message id

	MarkedRead []string
	Moved      []string
	Reachable  bool
}

// NewFake creates an empty, reachable fake mailbox.
func NewFake() *Fake {
	return &Fake{
		Attachments: make(map[string][]models.Attachment),
		FetchErr:    make(map[string]error),
		Reachable:   true,
	}
}

// AddMessage scripts a message with its attachments.
func (f *Fake) AddMessage(summary models.MessageSummary, attachments ...models.Attachment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	summary.HasAttachments = len(attachments) > 0
	f.Messages = append(f.Messages, summary)
	f.Attachments[summary.ID] = attachments
}

func (f *Fake) ListUnreadWithAttachments(ctx context.Context, mailbox string, maxResults int) ([]models.MessageSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []models.MessageSummary
	for _, m := range f.Messages {
		if !m.HasAttachments {
			continue
		}
		out = append(out, m)
		if len(out) == maxResults {
			break
		}
	}
	sortByReceivedDesc(out)
	return out, nil
}

func (f *Fake) FetchAttachments(ctx context.Context, mailbox, messageID string) ([]models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FetchErr[messageID]; err != nil {
		return nil, err
	}
	return f.Attachments[messageID], nil
}

func (f *Fake) MarkRead(ctx context.Context, mailbox, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MarkedRead = append(f.MarkedRead, messageID)
	return nil
}

func (f *Fake) MoveToProcessedFolder(ctx context.Context, mailbox, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Moved = append(f.Moved, messageID)
	return nil
}

func (f *Fake) TestConnection(ctx context.Context, mailbox string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reachable, nil
}

// DidMarkRead reports whether the message id was marked read.
func (f *Fake) DidMarkRead(messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.MarkedRead {
		if id == messageID {
			return true
		}
	}
	return false
}

// DidMove reports whether the message id was moved to the processed folder.
func (f *Fake) DidMove(messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.Moved {
		if id == messageID {
			return true
		}
	}
	return false
}
