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

// Package resourcemon tracks in-flight request counts per (chunk, db)
// resource, gating eviction so the lifecycle commands never drop a
// chunk a query is actively reading.
package resourcemon

import (
	"context"
	"fmt"

	"github.com/lsst-dm/qservgo/libraries/utils/concurrentmap"
	"github.com/lsst-dm/qservgo/libraries/utils/keymutex"
)

// resourceKey identifies one (chunk, db) resource.
type resourceKey struct {
	Chunk int32
	Db    string
}

func pathFor(chunk int32, db string) string {
	return fmt.Sprintf("%s/%d", db, chunk)
}

// Monitor tracks reference counts per (chunk, db) and provides scoped
// acquisition so a count is always decremented on every exit path,
// including a panic unwinding through a deferred Release.
type Monitor struct {
	counts *concurrentmap.Map[resourceKey, int]
	scoped keymutex.Keymutex
}

// New returns an empty Monitor.
func New() *Monitor {
	return &Monitor{
		counts: concurrentmap.New[resourceKey, int](),
		scoped: keymutex.NewMapped(),
	}
}

// Increment records one more in-flight request against (db, chunk).
func (m *Monitor) Increment(db string, chunk int32) {
	m.counts.Update(resourceKey{Chunk: chunk, Db: db}, func(v int) int { return v + 1 })
}

// Decrement records the completion of one in-flight request against
// (db, chunk). Decrementing past zero is a programming error elsewhere
// but is clamped to zero rather than going negative.
func (m *Monitor) Decrement(db string, chunk int32) {
	m.counts.Update(resourceKey{Chunk: chunk, Db: db}, func(v int) int {
		if v <= 0 {
			return 0
		}
		return v - 1
	})
}

// Count sums the in-flight count for chunk across dbs. An empty dbs
// slice returns zero.
func (m *Monitor) Count(chunk int32, dbs []string) int {
	total := 0
	for _, db := range dbs {
		v, _ := m.counts.Get(resourceKey{Chunk: chunk, Db: db})
		total += v
	}
	return total
}

// Acquisition is a scoped hold on a (chunk, db) resource, guaranteeing
// a matching Decrement regardless of how the caller's scope exits.
type Acquisition struct {
	m     *Monitor
	db    string
	chunk int32
	path  string
}

// Acquire increments the resource's count and locks its scoped path,
// serializing concurrent acquisitions of the same (chunk, db) against
// each other. Count does not take this lock. The caller must call Release.
func (m *Monitor) Acquire(ctx context.Context, db string, chunk int32) (*Acquisition, error) {
	path := pathFor(chunk, db)
	if err := m.scoped.Lock(ctx, path); err != nil {
		return nil, err
	}
	m.Increment(db, chunk)
	return &Acquisition{m: m, db: db, chunk: chunk, path: path}, nil
}

// Release decrements the resource's count and unlocks its scoped path.
// Release is idempotent; calling it more than once is a no-op after the
// first call.
func (a *Acquisition) Release() {
	if a == nil || a.m == nil {
		return
	}
	a.m.Decrement(a.db, a.chunk)
	a.m.scoped.Unlock(a.path)
	a.m = nil
}
