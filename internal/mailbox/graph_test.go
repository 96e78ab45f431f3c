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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestListUnreadWithAttachments_FiltersAndSorts verifies the attachment
// filter is applied client-side and results are newest first.
func TestListUnreadWithAttachments_FiltersAndSorts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/users/ap@acme.example/mailFolders/inbox/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("$filter"); got != "isRead eq false" {
			t.Errorf("$filter = %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value": [
			{"id": "m1", "hasAttachments": true, "receivedDateTime": "2026-07-14T09:00:00Z",
			 "from": {"emailAddress": {"address": "old@x.example"}}},
			{"id": "m2", "hasAttachments": false, "receivedDateTime": "2026-07-15T09:00:00Z"},
			{"id": "m3", "hasAttachments": true, "receivedDateTime": "2026-07-16T09:00:00Z",
			 "from": {"emailAddress": {"address": "new@x.example", "name": "New Sender"}}}
		]}`))
	}))
	defer server.Close()

	c := NewGraphClient(server.Client(), server.URL)
	msgs, err := c.ListUnreadWithAttachments(context.Background(), "ap@acme.example", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages with attachments, got %d", len(msgs))
	}
	if msgs[0].ID != "m3" || msgs[1].ID != "m1" {
		t.Errorf("messages not sorted newest first: %s, %s", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].FromAddress != "new@x.example" || msgs[0].FromName != "New Sender" {
		t.Errorf("sender not mapped: %+v", msgs[0])
	}
}

// TestFetchAttachments_SkipsNonFileAndRefetchesEmptyContent verifies item
// attachments are ignored and content is refetched when the list omits it.
func TestFetchAttachments_SkipsNonFileAndRefetchesEmptyContent(t *testing.T) {
	pdf := []byte("%PDF-1.7 test")
	encoded := base64.StdEncoding.EncodeToString(pdf)

	refetched := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/attachments") {
			fmt.Fprintf(w, `{"value": [
				{"@odata.type": "#microsoft.graph.itemAttachment", "id": "a0", "name": "fwd-email"},
				{"@odata.type": "#microsoft.graph.fileAttachment", "id": "a1",
				 "name": "invoice.pdf", "contentType": "application/pdf", "size": 13,
				 "contentBytes": %q},
				{"@odata.type": "#microsoft.graph.fileAttachment", "id": "a2",
				 "name": "scan.png", "contentType": "image/png", "size": 13}
			]}`, encoded)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/attachments/a2") {
			refetched = true
			fmt.Fprintf(w, `{"@odata.type": "#microsoft.graph.fileAttachment", "id": "a2",
				"name": "scan.png", "contentType": "image/png", "size": 13, "contentBytes": %q}`, encoded)
			return
		}
		t.Errorf("unexpected path %s", r.URL.Path)
	}))
	defer server.Close()

	c := NewGraphClient(server.Client(), server.URL)
	atts, err := c.FetchAttachments(context.Background(), "ap@acme.example", "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(atts) != 2 {
		t.Fatalf("expected 2 file attachments, got %d", len(atts))
	}
	if atts[0].Name != "invoice.pdf" || string(atts[0].Content) != string(pdf) {
		t.Errorf("first attachment not decoded: %+v", atts[0])
	}
	if !refetched {
		t.Error("attachment with empty contentBytes should be refetched individually")
	}
	if string(atts[1].Content) != string(pdf) {
		t.Error("refetched attachment content missing")
	}
}

// TestMarkRead_SendsPatch verifies the isRead PATCH.
func TestMarkRead_SendsPatch(t *testing.T) {
	var gotMethod, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewGraphClient(server.Client(), server.URL)
	if err := c.MarkRead(context.Background(), "ap@acme.example", "m1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", gotMethod)
	}
	if gotBody != `{"isRead": true}` {
		t.Errorf("body = %q", gotBody)
	}
}

// TestMoveToProcessedFolder_CreatesFolderOnce verifies the folder is created
// when missing and the move targets its id.
func TestMoveToProcessedFolder_CreatesFolderOnce(t *testing.T) {
	created := false
	var moveBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/mailFolders"):
			w.Write([]byte(`{"value": []}`))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/mailFolders"):
			created = true
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["displayName"] != ProcessedFolderName {
				t.Errorf("displayName = %q", body["displayName"])
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": "folder-99"}`))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/move"):
			json.NewDecoder(r.Body).Decode(&moveBody)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	c := NewGraphClient(server.Client(), server.URL)
	if err := c.MoveToProcessedFolder(context.Background(), "ap@acme.example", "m1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("missing folder should be created")
	}
	if moveBody["destinationId"] != "folder-99" {
		t.Errorf("destinationId = %q, want folder-99", moveBody["destinationId"])
	}
}

// TestMoveToProcessedFolder_ReusesExistingFolder verifies no create call
// happens when the folder already exists.
func TestMoveToProcessedFolder_ReusesExistingFolder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/mailFolders"):
			w.Write([]byte(`{"value": [{"id": "folder-1"}]}`))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/move"):
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	c := NewGraphClient(server.Client(), server.URL)
	if err := c.MoveToProcessedFolder(context.Background(), "ap@acme.example", "m1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestTestConnection verifies the probe result maps HTTP status to a bool.
func TestTestConnection(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewGraphClient(server.Client(), server.URL)

	ok, err := c.TestConnection(context.Background(), "ap@acme.example")
	if err != nil || !ok {
		t.Errorf("reachable mailbox: ok=%v err=%v", ok, err)
	}

	status = http.StatusUnauthorized
	ok, err = c.TestConnection(context.Background(), "ap@acme.example")
	if err == nil || ok {
		t.Errorf("unauthorized mailbox: ok=%v err=%v", ok, err)
	}
}
