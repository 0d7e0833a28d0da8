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

// Package inventory tracks, per worker, which (database, chunk)
// resources are currently hosted, with an optional MySQL-backed
// persistent mirror in a qservw_<instance> metadata schema.
package inventory

import "github.com/lsst-dm/qservgo/libraries/utils/set"

// ExistMap maps a database name to the set of chunks that database has
// on this worker.
type ExistMap map[string]*set.Int32Set

// Clone returns an independent deep copy of m.
func (m ExistMap) Clone() ExistMap {
	out := make(ExistMap, len(m))
	for db, chunks := range m {
		out[db] = chunks.Clone()
	}
	return out
}

// Has reports whether db owns chunk.
func (m ExistMap) Has(db string, chunk int32) bool {
	chunks, ok := m[db]
	return ok && chunks.Contains(chunk)
}

// Difference returns a - b: for every db in a, the chunks present in a
// but absent from b (a db entirely missing from b contributes all of
// its chunks). Databases present only in b are ignored, matching the
// add/remove delta semantics the lifecycle commands need.
func Difference(a, b ExistMap) ExistMap {
	out := make(ExistMap, len(a))
	for db, chunks := range a {
		other := b[db]
		diff := chunks.Difference(other)
		if diff.Size() > 0 {
			out[db] = diff
		}
	}
	return out
}
