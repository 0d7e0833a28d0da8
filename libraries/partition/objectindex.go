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

package partition

import "github.com/lsst-dm/qservgo/libraries/chunker"

// ObjectIndex resolves a director table's primary key to the chunk
// location it was partitioned into, for match tables running in ID
// mode. Implementations typically wrap the secondary index built by
// the index-build job.
type ObjectIndex interface {
	Lookup(id string) (loc chunker.ChunkLocation, found bool)
}

// MapObjectIndex is a simple in-memory ObjectIndex, usable for tests and
// for small catalogs whose secondary index fits comfortably in memory.
type MapObjectIndex struct {
	byID map[string]chunker.ChunkLocation
}

// NewMapObjectIndex returns an empty MapObjectIndex.
func NewMapObjectIndex() *MapObjectIndex {
	return &MapObjectIndex{byID: make(map[string]chunker.ChunkLocation)}
}

// Set records the chunk location for id.
func (m *MapObjectIndex) Set(id string, loc chunker.ChunkLocation) {
	m.byID[id] = loc
}

func (m *MapObjectIndex) Lookup(id string) (chunker.ChunkLocation, bool) {
	loc, ok := m.byID[id]
	return loc, ok
}
