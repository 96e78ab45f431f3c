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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vedvix/syncledger-ingestion/internal/models"
)

// GraphClient reads tenant mailboxes through the Microsoft Graph REST API
// using application permissions (Mail.Read / Mail.ReadWrite). The injected
// http.Client carries the tenant's OAuth2 client-credentials token source.
type GraphClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewGraphClient creates a Graph mailbox client for one tenant.
func NewGraphClient(httpClient *http.Client, baseURL string) *GraphClient {
	return &GraphClient{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// graphMessage is the subset of a Graph message resource we select.
type graphMessage struct {
	ID                string `json:"id"`
	InternetMessageID string `json:"internetMessageId"`
	Subject           string `json:"subject"`
	BodyPreview       string `json:"bodyPreview"`
	ReceivedDateTime  string `json:"receivedDateTime"`
	HasAttachments    bool   `json:"hasAttachments"`
	IsRead            bool   `json:"isRead"`
	From              struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"from"`
	ToRecipients []struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"toRecipients"`
}

// ListUnreadWithAttachments lists unread inbox messages and filters for
// attachments in memory. Filtering server-side for hasAttachments together
// with isRead triggers "InefficientFilter" errors on some mailboxes, and
// $orderby is unavailable under that filter, so ordering is computed locally.
func (c *GraphClient) ListUnreadWithAttachments(ctx context.Context, mailbox string, maxResults int) ([]models.MessageSummary, error) {
	params := url.Values{}
	params.Set("$filter", "isRead eq false")
	params.Set("$top", fmt.Sprintf("%d", maxResults))
	params.Set("$select", "id,internetMessageId,from,toRecipients,subject,bodyPreview,receivedDateTime,hasAttachments,isRead")

	listURL := fmt.Sprintf("%s/users/%s/mailFolders/inbox/messages?%s",
		c.baseURL, url.PathEscape(mailbox), params.Encode())

	var page struct {
		Value []graphMessage `json:"value"`
	}
	if err := c.getJSON(ctx, listURL, &page); err != nil {
		return nil, fmt.Errorf("list unread messages for %s: %w", mailbox, err)
	}

	summaries := make([]models.MessageSummary, 0, len(page.Value))
	for _, msg := range page.Value {
		if !msg.HasAttachments {
			continue
		}
		summaries = append(summaries, toSummary(msg))
	}

	sortByReceivedDesc(summaries)
	return summaries, nil
}

func toSummary(msg graphMessage) models.MessageSummary {
	s := models.MessageSummary{
		ID:                msg.ID,
		InternetMessageID: msg.InternetMessageID,
		Subject:           msg.Subject,
		BodyPreview:       msg.BodyPreview,
		HasAttachments:    msg.HasAttachments,
		FromAddress:       msg.From.EmailAddress.Address,
		FromName:          msg.From.EmailAddress.Name,
	}
	for _, r := range msg.ToRecipients {
		if r.EmailAddress.Address != "" {
			s.ToAddresses = append(s.ToAddresses, r.EmailAddress.Address)
		}
	}
	if ts, err := time.Parse(time.RFC3339, msg.ReceivedDateTime); err == nil {
		s.ReceivedAt = ts
	} else {
		s.ReceivedAt = time.Now().UTC()
	}
	return s
}

// graphAttachment is a Graph fileAttachment resource with content.
type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	IsInline     bool   `json:"isInline"`
	ContentBytes string `json:"contentBytes"`
}

// FetchAttachments lists a message's attachments and fetches content bytes
// for each file attachment. Non-file attachments (items, references) are
// skipped.
func (c *GraphClient) FetchAttachments(ctx context.Context, mailbox, messageID string) ([]models.Attachment, error) {
	listURL := fmt.Sprintf("%s/users/%s/messages/%s/attachments",
		c.baseURL, url.PathEscape(mailbox), url.PathEscape(messageID))

	var page struct {
		Value []graphAttachment `json:"value"`
	}
	if err := c.getJSON(ctx, listURL, &page); err != nil {
		return nil, fmt.Errorf("list attachments for message %s: %w", messageID, err)
	}

	var attachments []models.Attachment
	for _, att := range page.Value {
		if !strings.Contains(att.ODataType, "fileAttachment") {
			continue
		}

		full := att
		if full.ContentBytes == "" {
			// Some list responses omit content; fetch the attachment alone.
			attURL := fmt.Sprintf("%s/users/%s/messages/%s/attachments/%s",
				c.baseURL, url.PathEscape(mailbox), url.PathEscape(messageID), url.PathEscape(att.ID))
			if err := c.getJSON(ctx, attURL, &full); err != nil {
				return nil, fmt.Errorf("fetch attachment %s: %w", att.Name, err)
			}
		}

		content, err := base64.StdEncoding.DecodeString(full.ContentBytes)
		if err != nil {
			return nil, fmt.Errorf("decode attachment %s content: %w", att.Name, err)
		}

		name := full.Name
		if name == "" {
			name = "unknown"
		}
		contentType := full.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		attachments = append(attachments, models.Attachment{
			ID:          full.ID,
			Name:        name,
			ContentType: contentType,
			Size:        full.Size,
			Inline:      full.IsInline,
			Content:     content,
		})
	}

	return attachments, nil
}

// MarkRead flags a message as read.
func (c *GraphClient) MarkRead(ctx context.Context, mailbox, messageID string) error {
	patchURL := fmt.Sprintf("%s/users/%s/messages/%s",
		c.baseURL, url.PathEscape(mailbox), url.PathEscape(messageID))

	if err := c.send(ctx, http.MethodPatch, patchURL, `{"isRead": true}`); err != nil {
		return fmt.Errorf("mark message %s read: %w", messageID, err)
	}
	return nil
}

// MoveToProcessedFolder files the message under the processed folder,
// creating the folder on first use.
func (c *GraphClient) MoveToProcessedFolder(ctx context.Context, mailbox, messageID string) error {
	folderID, err := c.getOrCreateFolder(ctx, mailbox, ProcessedFolderName)
	if err != nil {
		return fmt.Errorf("resolve processed folder: %w", err)
	}

	moveURL := fmt.Sprintf("%s/users/%s/messages/%s/move",
		c.baseURL, url.PathEscape(mailbox), url.PathEscape(messageID))

	body, _ := json.Marshal(map[string]string{"destinationId": folderID})
	if err := c.send(ctx, http.MethodPost, moveURL, string(body)); err != nil {
		return fmt.Errorf("move message %s: %w", messageID, err)
	}
	return nil
}

// TestConnection probes the mailbox's folder list.
func (c *GraphClient) TestConnection(ctx context.Context, mailbox string) (bool, error) {
	probeURL := fmt.Sprintf("%s/users/%s/mailFolders?$top=1", c.baseURL, url.PathEscape(mailbox))

	var ignored struct{}
	if err := c.getJSON(ctx, probeURL, &ignored); err != nil {
		return false, err
	}
	return true, nil
}

// getOrCreateFolder returns the id of the named mail folder, creating it if
// absent.
func (c *GraphClient) getOrCreateFolder(ctx context.Context, mailbox, name string) (string, error) {
	searchURL := fmt.Sprintf("%s/users/%s/mailFolders?$filter=%s",
		c.baseURL, url.PathEscape(mailbox),
		url.QueryEscape(fmt.Sprintf("displayName eq '%s'", name)))

	var folders struct {
		Value []struct {
			ID string `json:"id"`
		} `json:"value"`
	}
	if err := c.getJSON(ctx, searchURL, &folders); err != nil {
		return "", err
	}
	if len(folders.Value) > 0 {
		return folders.Value[0].ID, nil
	}

	createURL := fmt.Sprintf("%s/users/%s/mailFolders", c.baseURL, url.PathEscape(mailbox))
	body, _ := json.Marshal(map[string]string{"displayName": name})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, createURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create folder returned HTTP %d", resp.StatusCode)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode created folder: %w", err)
	}

	slog.Info("created processed folder", "mailbox", mailbox, "folder", name)
	return created.ID, nil
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *GraphClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("graph API error", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("graph API returned HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

// send performs a bodied request where only the status code matters.
func (c *GraphClient) send(ctx context.Context, method, rawURL, body string) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graph API returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
