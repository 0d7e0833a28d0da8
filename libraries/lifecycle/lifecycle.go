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

// Package lifecycle implements the worker-side chunk-lifecycle
// commands: add/remove/reload/rebuild/set/get/echo, each mutating a
// chunk inventory, gating on the resource monitor, and notifying the
// cluster dispatcher before any mutation is applied.
package lifecycle

import (
	"context"

	"github.com/lsst-dm/qservgo/libraries/inventory"
	"github.com/lsst-dm/qservgo/libraries/resourcemon"
)

// Status is the lifecycle command reply code.
type Status int

const (
	SUCCESS Status = iota
	INVALID
	ERROR
	IN_USE
)

func (s Status) String() string {
	switch s {
	case SUCCESS:
		return "SUCCESS"
	case INVALID:
		return "INVALID"
	case ERROR:
		return "ERROR"
	case IN_USE:
		return "IN_USE"
	default:
		return "UNKNOWN"
	}
}

// ChunkRef identifies one (db, chunk) affected by a command reply.
type ChunkRef struct {
	Db       string
	Chunk    int32
	InUse    int
	Resident bool
}

// Reply is returned by every command.
type Reply struct {
	Status   Status
	Message  string
	Affected []ChunkRef
	Removed  []ChunkRef
	Added    []ChunkRef
}

// Dispatcher is the cluster request-routing fabric. Commands notify it
// before mutating the inventory so it never routes a query to a chunk
// the worker has already stopped claiming, or fails to route to one it
// has started claiming.
type Dispatcher interface {
	ResourceAdded(db string, chunk int32)
	ResourceRemoved(db string, chunk int32)
}

// Handler dispatches lifecycle commands against one inventory, resource
// monitor, and dispatcher collaborator.
type Handler struct {
	Inv        *inventory.Inventory
	Monitor    *resourcemon.Monitor
	Dispatcher Dispatcher
}

// New returns a Handler wired to the given collaborators.
func New(inv *inventory.Inventory, monitor *resourcemon.Monitor, dispatcher Dispatcher) *Handler {
	return &Handler{Inv: inv, Monitor: monitor, Dispatcher: dispatcher}
}

// AddChunkGroup adds chunk to every db in dbs, notifying the dispatcher
// before each in-memory mutation.
func (h *Handler) AddChunkGroup(ctx context.Context, dbs []string, chunk int32) Reply {
	if len(dbs) == 0 {
		return Reply{Status: INVALID, Message: "empty database list"}
	}

	var affected []ChunkRef
	for _, db := range dbs {
		h.Dispatcher.ResourceAdded(db, chunk)
		h.Inv.Add(db, chunk)
		affected = append(affected, ChunkRef{Db: db, Chunk: chunk})
	}
	return Reply{Status: SUCCESS, Affected: affected}
}

// RemoveChunkGroup removes chunk from every db in dbs, failing IN_USE if
// any (chunk, db) is still referenced and force is false.
func (h *Handler) RemoveChunkGroup(ctx context.Context, dbs []string, chunk int32, force bool) Reply {
	if len(dbs) == 0 {
		return Reply{Status: INVALID, Message: "empty database list"}
	}

	if !force {
		if n := h.Monitor.Count(chunk, dbs); n > 0 {
			return Reply{Status: IN_USE, Message: "chunk is in use"}
		}
	}

	var affected []ChunkRef
	for _, db := range dbs {
		h.Dispatcher.ResourceRemoved(db, chunk)
		h.Inv.Remove(db, chunk)
		affected = append(affected, ChunkRef{Db: db, Chunk: chunk})
	}

	if n := h.Monitor.Count(chunk, dbs); n > 0 {
		return Reply{Status: IN_USE, Message: "chunk still referenced after removal", Affected: affected}
	}
	return Reply{Status: SUCCESS, Affected: affected}
}

// applyDelta notifies the dispatcher and mutates the inventory for
// every chunk in removed (removal) then added (addition), matching the
// ordering reload and set-atomic share.
func (h *Handler) applyDelta(removed, added inventory.ExistMap) ([]ChunkRef, []ChunkRef) {
	var removedRefs []ChunkRef
	for db, chunks := range removed {
		for _, chunk := range chunks.AsSlice() {
			h.Dispatcher.ResourceRemoved(db, chunk)
			h.Inv.Remove(db, chunk)
			removedRefs = append(removedRefs, ChunkRef{Db: db, Chunk: chunk})
		}
	}

	var addedRefs []ChunkRef
	for db, chunks := range added {
		for _, chunk := range chunks.AsSlice() {
			h.Dispatcher.ResourceAdded(db, chunk)
			h.Inv.Add(db, chunk)
			addedRefs = append(addedRefs, ChunkRef{Db: db, Chunk: chunk})
		}
	}

	return removedRefs, addedRefs
}

// ReloadChunkList replaces the current inventory with fresh, applying
// the removed chunks before the added chunks.
func (h *Handler) ReloadChunkList(ctx context.Context, fresh inventory.ExistMap) Reply {
	current := h.Inv.ExistMap()
	removed := inventory.Difference(current, fresh)
	added := inventory.Difference(fresh, current)

	removedRefs, addedRefs := h.applyDelta(removed, added)
	return Reply{Status: SUCCESS, Removed: removedRefs, Added: addedRefs}
}

// RebuildChunkList invokes rebuild (typically inventory.Rebuild bound to
// a live connection) and reports ERROR on failure.
func (h *Handler) RebuildChunkList(ctx context.Context, rebuild func(ctx context.Context) error) Reply {
	if err := rebuild(ctx); err != nil {
		return Reply{Status: ERROR, Message: err.Error()}
	}
	return Reply{Status: SUCCESS}
}

// SetChunkList atomically reconciles the inventory to exactly match
// requested, failing IN_USE (unless force) if any chunk slated for
// removal is still referenced.
func (h *Handler) SetChunkList(ctx context.Context, requested inventory.ExistMap, force bool) Reply {
	current := h.Inv.ExistMap()
	removed := inventory.Difference(current, requested)
	added := inventory.Difference(requested, current)

	if !force {
		for db, chunks := range removed {
			for _, chunk := range chunks.AsSlice() {
				if h.Monitor.Count(chunk, []string{db}) > 0 {
					return Reply{Status: IN_USE, Message: "one or more chunks to remove are in use"}
				}
			}
		}
	}

	removedRefs, addedRefs := h.applyDelta(removed, added)
	return Reply{Status: SUCCESS, Removed: removedRefs, Added: addedRefs}
}

// GetChunkList returns the current inventory annotated with each
// (db, chunk)'s in-use count.
func (h *Handler) GetChunkList(ctx context.Context) Reply {
	current := h.Inv.ExistMap()
	var affected []ChunkRef
	for db, chunks := range current {
		for _, chunk := range chunks.AsSlice() {
			affected = append(affected, ChunkRef{
				Db:       db,
				Chunk:    chunk,
				InUse:    h.Monitor.Count(chunk, []string{db}),
				Resident: true,
			})
		}
	}
	return Reply{Status: SUCCESS, Affected: affected}
}

// Echo replies with the same payload it was given, used for liveness
// testing of the command-handling path.
func (h *Handler) Echo(ctx context.Context, payload string) Reply {
	return Reply{Status: SUCCESS, Message: payload}
}
