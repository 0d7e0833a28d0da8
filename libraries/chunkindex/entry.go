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

package chunkindex

// Entry is a pair of record counts for one chunk or sub-chunk.
type Entry struct {
	NumRecords        uint64
	NumOverlapRecords uint64
}

// EMPTY is the zero-value sentinel returned for missing keys.
var EMPTY = Entry{}

// Add merges other into e.
func (e *Entry) Add(other Entry) {
	e.NumRecords += other.NumRecords
	e.NumOverlapRecords += other.NumOverlapRecords
}
