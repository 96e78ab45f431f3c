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
	"fmt"

	"github.com/vedvix/syncledger-ingestion/internal/models"
)

// Registry maps tenant aliases to their mailbox clients. Clients are built
// once at startup from configuration; the registry is read-only afterwards.
type Registry struct {
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register binds a tenant alias to its client.
func (r *Registry) Register(alias string, c Client) {
	r.clients[alias] = c
}

// ClientFor resolves the client for a tenant.
func (r *Registry) ClientFor(t *models.Tenant) (Client, error) {
	c, ok := r.clients[t.Alias]
	if !ok {
		return nil, fmt.Errorf("no mailbox client registered for tenant %s", t.Alias)
	}
	return c, nil
}
