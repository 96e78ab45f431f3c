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

package poller

import "sync/atomic"

// Guard serialises polling cycles. A tick or manual trigger that arrives
// while a cycle is still running is skipped, not queued; the next tick
// picks up whatever the skipped one would have.
type Guard struct {
	running atomic.Bool
}

// TryAcquire claims the guard. It returns false when a cycle already holds it.
func (g *Guard) TryAcquire() bool {
	return g.running.CompareAndSwap(false, true)
}

// Release frees the guard for the next cycle.
func (g *Guard) Release() {
	g.running.Store(false)
}

// Running reports whether a cycle currently holds the guard.
func (g *Guard) Running() bool {
	return g.running.Load()
}
