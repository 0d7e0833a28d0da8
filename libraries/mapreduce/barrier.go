// Copyright 2026 Dolthub, Inc.
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

package mapreduce

import "sync"

// phaseBarrier is a reusable, sense-reversing barrier for the engine's
// two phase transitions (map->reduce, reduce->map). The engine keeps one
// instance per transition, matching the two condition variables
// (mapCond, reduceCond) of the design this is grounded on, and aborts
// every waiter as soon as a failure is recorded.
type phaseBarrier struct {
	mu      *sync.Mutex
	cond    *sync.Cond
	parties int
	count   int
	gen     int
}

func newPhaseBarrier(mu *sync.Mutex, parties int) *phaseBarrier {
	return &phaseBarrier{mu: mu, cond: sync.NewCond(mu), parties: parties}
}

// wait blocks until every party has called wait for the current
// generation, or failed reports true. The caller must not hold mu.
// failed is invoked with mu held and must not attempt to acquire it.
// wait returns true for exactly one of the parties that completes each
// generation (the one whose arrival completed it) -- aborted callers
// and every other party return false.
func (b *phaseBarrier) wait(failed func() bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if failed() {
		return false
	}

	gen := b.gen
	b.count++
	if b.count == b.parties {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
		return true
	}

	for b.gen == gen && !failed() {
		b.cond.Wait()
	}
	return false
}

// abort wakes every waiter on this barrier so it can observe failed()
// and unwind. Caller must hold b.mu (the same mutex passed to
// newPhaseBarrier) or acquire it before calling.
func (b *phaseBarrier) abort() {
	b.cond.Broadcast()
}
