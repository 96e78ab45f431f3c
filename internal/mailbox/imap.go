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
	"fmt"
	"io"
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/vedvix/syncledger-ingestion/internal/models"
)

// IMAPClient reads a tenant mailbox over IMAP/TLS. It exists for tenants
// whose mail is not hosted on Microsoft 365.
//
// Messages are addressed by their Message-ID header rather than IMAP UIDs so
// the audit log's idempotency key stays stable across UIDVALIDITY changes;
// each operation resolves the UID with a header search.
type IMAPClient struct {
	host     string // host:port
	username string
	password string
	timeout  time.Duration
}

// NewIMAPClient creates an IMAP mailbox client. The mailbox argument of the
// Client methods is informational here; IMAP credentials already bind the
// connection to a single account.
func NewIMAPClient(host, username, password string) *IMAPClient {
	return &IMAPClient{
		host:     host,
		username: username,
		password: password,
		timeout:  30 * time.Second,
	}
}

// connect dials, authenticates, and selects INBOX. The caller must Logout.
func (c *IMAPClient) connect() (*imapclient.Client, error) {
	cl, err := imapclient.DialTLS(c.host, nil)
	if err != nil {
		return nil, fmt.Errorf("IMAP connect %s: %w", c.host, err)
	}
	cl.Timeout = c.timeout

	if err := cl.Login(c.username, c.password); err != nil {
		_ = cl.Logout()
		return nil, fmt.Errorf("IMAP login: %w", err)
	}
	if _, err := cl.Select("INBOX", false); err != nil {
		_ = cl.Logout()
		return nil, fmt.Errorf("IMAP select INBOX: %w", err)
	}
	return cl, nil
}

// ListUnreadWithAttachments searches for unseen messages and keeps those
// whose body structure contains attachment parts.
func (c *IMAPClient) ListUnreadWithAttachments(ctx context.Context, mailbox string, maxResults int) ([]models.MessageSummary, error) {
	cl, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer cl.Logout()

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := cl.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("IMAP search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	// Highest UIDs are the most recent; cap the fetch before filtering.
	if len(uids) > maxResults {
		uids = uids[len(uids)-maxResults:]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, imap.FetchBodyStructure}
	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- cl.UidFetch(seqSet, items, messages)
	}()

	var summaries []models.MessageSummary
	for msg := range messages {
		if msg.Envelope == nil || msg.Envelope.MessageId == "" {
			continue
		}
		if msg.BodyStructure == nil || !hasAttachmentParts(msg.BodyStructure) {
			continue
		}
		summaries = append(summaries, imapSummary(msg))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("IMAP fetch summaries: %w", err)
	}

	sortByReceivedDesc(summaries)
	return summaries, nil
}

func imapSummary(msg *imap.Message) models.MessageSummary {
	env := msg.Envelope
	s := models.MessageSummary{
		ID:                env.MessageId,
		InternetMessageID: env.MessageId,
		Subject:           env.Subject,
		ReceivedAt:        msg.InternalDate,
		HasAttachments:    true,
	}
	if len(env.From) > 0 {
		s.FromAddress = env.From[0].Address()
		s.FromName = env.From[0].PersonalName
	}
	for _, to := range env.To {
		s.ToAddresses = append(s.ToAddresses, to.Address())
	}
	return s
}

// hasAttachmentParts walks a body structure looking for attachment parts.
func hasAttachmentParts(bs *imap.BodyStructure) bool {
	if strings.EqualFold(bs.Disposition, "attachment") {
		return true
	}
	if len(bs.DispositionParams) > 0 {
		if _, ok := bs.DispositionParams["filename"]; ok {
			return true
		}
	}
	for _, part := range bs.Parts {
		if hasAttachmentParts(part) {
			return true
		}
	}
	return false
}

// FetchAttachments downloads the full message and extracts its MIME
// attachment parts.
func (c *IMAPClient) FetchAttachments(ctx context.Context, mailbox, messageID string) ([]models.Attachment, error) {
	cl, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer cl.Logout()

	uid, err := c.findUID(cl, messageID)
	if err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- cl.UidFetch(seqSet, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		msg = m
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("IMAP fetch message %s: %w", messageID, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("no message retrieved for %s", messageID)
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("message %s has no body section", messageID)
	}

	mr, err := mail.CreateReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse message %s: %w", messageID, err)
	}

	var attachments []models.Attachment
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read message part: %w", err)
		}

		h, ok := p.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}

		filename, _ := h.Filename()
		contentType, _, _ := h.ContentType()
		content, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", filename, err)
		}

		if filename == "" {
			filename = "unknown"
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		attachments = append(attachments, models.Attachment{
			ID:          fmt.Sprintf("%s/%d", messageID, len(attachments)+1),
			Name:        filename,
			ContentType: contentType,
			Size:        int64(len(content)),
			Content:     content,
		})
	}

	return attachments, nil
}

// MarkRead sets the \Seen flag.
func (c *IMAPClient) MarkRead(ctx context.Context, mailbox, messageID string) error {
	cl, err := c.connect()
	if err != nil {
		return err
	}
	defer cl.Logout()

	uid, err := c.findUID(cl, messageID)
	if err != nil {
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := cl.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("IMAP mark seen %s: %w", messageID, err)
	}
	return nil
}

// MoveToProcessedFolder copies the message into the processed folder and
// expunges the original (classic IMAP move).
func (c *IMAPClient) MoveToProcessedFolder(ctx context.Context, mailbox, messageID string) error {
	cl, err := c.connect()
	if err != nil {
		return err
	}
	defer cl.Logout()

	uid, err := c.findUID(cl, messageID)
	if err != nil {
		return err
	}

	// Create is idempotent enough for our purposes: an "already exists"
	// failure is ignored and surfaces on the copy instead.
	_ = cl.Create(ProcessedFolderName)

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	if err := cl.UidCopy(seqSet, ProcessedFolderName); err != nil {
		return fmt.Errorf("IMAP copy to %q: %w", ProcessedFolderName, err)
	}

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := cl.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("IMAP flag deleted: %w", err)
	}
	if err := cl.Expunge(nil); err != nil {
		return fmt.Errorf("IMAP expunge: %w", err)
	}
	return nil
}

// TestConnection dials and authenticates.
func (c *IMAPClient) TestConnection(ctx context.Context, mailbox string) (bool, error) {
	cl, err := c.connect()
	if err != nil {
		return false, err
	}
	defer cl.Logout()
	return true, nil
}

// findUID resolves a Message-ID header to the message's UID in INBOX.
func (c *IMAPClient) findUID(cl *imapclient.Client, messageID string) (uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Header = textproto.MIMEHeader{"Message-Id": {messageID}}

	uids, err := cl.UidSearch(criteria)
	if err != nil {
		return 0, fmt.Errorf("IMAP search Message-Id %s: %w", messageID, err)
	}
	if len(uids) == 0 {
		return 0, fmt.Errorf("message %s not found in INBOX", messageID)
	}
	return uids[0], nil
}
