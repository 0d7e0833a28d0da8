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

// Package silo implements the map-reduce engine's per-worker record
// buffer: an append-only, memory-pooled container of (key, blob)
// records that can be sorted in place and cleared for reuse without
// giving its backing allocations back to the runtime.
package silo

// MaxLineSize bounds a single record's raw bytes. The silo always keeps
// at least this many contiguous bytes available before handing a buffer
// to a caller that is about to fill it in.
const MaxLineSize = 64 * 1024

// BlockSize is the size of each backing allocation: 8 MiB minus a little
// slack, chosen so the allocation lands on a page-aligned size once the
// allocator's own bookkeeping is subtracted.
const BlockSize = 8*1024*1024 - 32

// Record is one (key, blob) pair living in a Silo. Data references
// memory owned by the Silo and is only valid until the next Clear.
type Record[K any] struct {
	Key  K
	Data []byte
}

// Silo is a growable list of fixed-size byte blocks plus the
// slice of records describing the live spans within them. Growth
// appends a new block; Clear resets bookkeeping but keeps every block
// allocated for reuse.
type Silo[K any] struct {
	less func(a, b K) bool

	blocks    [][]byte
	curBlock  int
	curOffset int

	records   []Record[K]
	bytesUsed int64
	sorted    bool
}

// New returns an empty Silo whose records sort according to less.
func New[K any](less func(a, b K) bool) *Silo[K] {
	return &Silo[K]{less: less}
}

// Reserve returns a slice with capacity for at least n contiguous bytes,
// moving to the next retained block -- or allocating a new one -- if the
// current block lacks room. The caller fills the returned slice (up to n
// bytes) and passes the filled prefix to Append.
func (s *Silo[K]) Reserve(n int) []byte {
	need := n
	if need < MaxLineSize {
		need = MaxLineSize
	}
	for len(s.blocks) > 0 && len(s.blocks[s.curBlock])-s.curOffset < need {
		if s.curBlock+1 >= len(s.blocks) {
			break
		}
		s.curBlock++
		s.curOffset = 0
	}
	if len(s.blocks) == 0 || len(s.blocks[s.curBlock])-s.curOffset < need {
		sz := BlockSize
		if need > sz {
			sz = need
		}
		s.blocks = append(s.blocks, make([]byte, sz))
		s.curBlock = len(s.blocks) - 1
		s.curOffset = 0
	}
	block := s.blocks[s.curBlock]
	return block[s.curOffset:len(block):len(block)]
}

// Append records key with data, which must be a slice previously
// returned by Reserve (or a prefix of it). It is an error to Append
// after Sort without an intervening Clear.
func (s *Silo[K]) Append(key K, data []byte) {
	s.curOffset += len(data)
	s.records = append(s.records, Record[K]{Key: key, Data: data})
	s.bytesUsed += int64(len(data))
	s.sorted = false
}

// Sort orders the silo's records by key. The silo is read-only with
// respect to further appends until Clear is called.
func (s *Silo[K]) Sort() {
	if s.sorted {
		return
	}
	sortRecords(s.records, s.less)
	s.sorted = true
}

// sortRecords is a small insertion-free sort wrapper kept separate so
// tests can exercise it directly against pathological key sets.
func sortRecords[K any](records []Record[K], less func(a, b K) bool) {
	quickSortRecords(records, less)
}

func quickSortRecords[K any](records []Record[K], less func(a, b K) bool) {
	if len(records) < 2 {
		return
	}
	pivot := records[len(records)/2].Key
	lo, hi := 0, len(records)-1
	for lo <= hi {
		for less(records[lo].Key, pivot) {
			lo++
		}
		for less(pivot, records[hi].Key) {
			hi--
		}
		if lo <= hi {
			records[lo], records[hi] = records[hi], records[lo]
			lo++
			hi--
		}
	}
	if hi > 0 {
		quickSortRecords(records[:hi+1], less)
	}
	if lo < len(records) {
		quickSortRecords(records[lo:], less)
	}
}

// Clear empties the silo's record list and byte accounting but keeps
// every backing block allocated for reuse.
func (s *Silo[K]) Clear() {
	s.records = s.records[:0]
	s.bytesUsed = 0
	s.curBlock = 0
	s.curOffset = 0
	s.sorted = false
}

// BytesUsed returns the number of bytes occupied by live records.
func (s *Silo[K]) BytesUsed() int64 {
	return s.bytesUsed
}

// Len returns the number of live records.
func (s *Silo[K]) Len() int {
	return len(s.records)
}

// Records returns the silo's current records. The returned slice aliases
// the silo's internal storage and must not be retained across a Clear.
func (s *Silo[K]) Records() []Record[K] {
	return s.records
}
