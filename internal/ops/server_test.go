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

package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vedvix/syncledger-ingestion/internal/poller"
)

type fakePipeline struct {
	status    poller.Status
	pollErr   error
	pollStats *poller.RunStats
	connected bool
	connErr   error

	polledAlias string
}

func (f *fakePipeline) Status() poller.Status { return f.status }

func (f *fakePipeline) PollTenantByAlias(ctx context.Context, alias string) (*poller.RunStats, error) {
	f.polledAlias = alias
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return f.pollStats, nil
}

func (f *fakePipeline) TestConnection(ctx context.Context, alias string) (bool, error) {
	if f.connErr != nil {
		return false, f.connErr
	}
	return f.connected, nil
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

// TestHealth verifies the liveness endpoint.
func TestHealth(t *testing.T) {
	s := NewServer(&fakePipeline{})
	rec := doRequest(t, s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

// TestStatus verifies the poller snapshot is returned as JSON.
func TestStatus(t *testing.T) {
	s := NewServer(&fakePipeline{
		status: poller.Status{
			Running:  true,
			Interval: 5 * time.Minute,
			LastRun:  &poller.RunStats{MessagesProcessed: 7},
		},
	})

	rec := doRequest(t, s, http.MethodGet, "/api/polling/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got poller.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !got.Running || got.LastRun == nil || got.LastRun.MessagesProcessed != 7 {
		t.Errorf("body = %+v", got)
	}
}

// TestManualPoll verifies the trigger forwards the alias and returns run stats.
func TestManualPoll(t *testing.T) {
	pipe := &fakePipeline{pollStats: &poller.RunStats{MessagesProcessed: 3, InvoicesCreated: 4}}
	s := NewServer(pipe)

	rec := doRequest(t, s, http.MethodPost, "/api/polling/tenants/acme/poll")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if pipe.polledAlias != "acme" {
		t.Errorf("polled alias = %q", pipe.polledAlias)
	}

	var stats poller.RunStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if stats.InvoicesCreated != 4 {
		t.Errorf("stats = %+v", stats)
	}
}

// TestManualPoll_ErrorMapping verifies the poller's sentinel errors map to
// HTTP statuses, including when wrapped.
func TestManualPoll_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("tenant acme: %w", poller.ErrTenantNotFound), http.StatusNotFound},
		{poller.ErrCycleRunning, http.StatusConflict},
		{fmt.Errorf("tenant acme (status SUSPENDED): %w", poller.ErrTenantNotPollable), http.StatusUnprocessableEntity},
		{fmt.Errorf("database gone"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		s := NewServer(&fakePipeline{pollErr: tt.err})
		rec := doRequest(t, s, http.MethodPost, "/api/polling/tenants/acme/poll")
		if rec.Code != tt.want {
			t.Errorf("error %q: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

// TestManualPoll_MethodNotAllowed verifies GET on the trigger is rejected.
func TestManualPoll_MethodNotAllowed(t *testing.T) {
	s := NewServer(&fakePipeline{})
	rec := doRequest(t, s, http.MethodGet, "/api/polling/tenants/acme/poll")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

// TestConnectionCheck verifies both the reachable and failing cases.
func TestConnectionCheck(t *testing.T) {
	s := NewServer(&fakePipeline{connected: true})
	rec := doRequest(t, s, http.MethodGet, "/api/polling/tenants/acme/connection")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["connected"] != true || body["tenant"] != "acme" {
		t.Errorf("body = %v", body)
	}

	s = NewServer(&fakePipeline{connErr: fmt.Errorf("IMAP login: bad credentials")})
	rec = doRequest(t, s, http.MethodGet, "/api/polling/tenants/acme/connection")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}

	s = NewServer(&fakePipeline{connErr: fmt.Errorf("tenant acme: %w", poller.ErrTenantNotFound)})
	rec = doRequest(t, s, http.MethodGet, "/api/polling/tenants/acme/connection")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown tenant", rec.Code)
	}
}
