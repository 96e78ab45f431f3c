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

// Package ops exposes the operational HTTP API: poller status, manual poll
// triggers, and mailbox connectivity checks. It is an internal surface, not
// a tenant-facing one.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vedvix/syncledger-ingestion/internal/poller"
)

// Pipeline is the slice of the poller the API exposes.
type Pipeline interface {
	Status() poller.Status
	PollTenantByAlias(ctx context.Context, alias string) (*poller.RunStats, error)
	TestConnection(ctx context.Context, alias string) (bool, error)
}

// Server is the ops API handler set.
type Server struct {
	pipeline Pipeline
	router   *mux.Router
}

// NewServer builds the ops API router.
func NewServer(pipeline Pipeline) *Server {
	s := &Server{pipeline: pipeline}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/polling/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/polling/tenants/{alias}/poll", s.handlePoll).Methods(http.MethodPost)
	r.HandleFunc("/api/polling/tenants/{alias}/connection", s.handleConnection).Methods(http.MethodGet)
	s.router = r

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Status())
}

// handlePoll triggers a one-off poll for a single tenant. A 409 means a
// cycle is already running; the caller should just wait for it.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	alias := mux.Vars(r)["alias"]

	stats, err := s.pipeline.PollTenantByAlias(r.Context(), alias)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, poller.ErrTenantNotFound):
			status = http.StatusNotFound
		case errors.Is(err, poller.ErrCycleRunning):
			status = http.StatusConflict
		case errors.Is(err, poller.ErrTenantNotPollable):
			status = http.StatusUnprocessableEntity
		}
		slog.Warn("manual poll failed", "tenant", alias, "error", err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	slog.Info("manual poll complete", "tenant", alias, "processed", stats.MessagesProcessed)
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	alias := mux.Vars(r)["alias"]

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	ok, err := s.pipeline.TestConnection(ctx, alias)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, poller.ErrTenantNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]interface{}{
			"tenant":    alias,
			"connected": false,
			"error":     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant":    alias,
		"connected": ok,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode response", "error", err)
	}
}
