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

// Package chunkindex tracks per-chunk and per-sub-chunk record counts
// produced by the partitioner, with a binary on-disk form whose
// concatenation is equal to the merge of the in-memory populations it
// represents.
package chunkindex

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/lsst-dm/qservgo/libraries/chunker"
	"github.com/lsst-dm/qservgo/libraries/utils/errhand"
	"github.com/lsst-dm/qservgo/libraries/utils/filesys"
)

// entrySize is the fixed on-disk record size: compositeId, numRecords,
// numOverlapRecords, each an 8 byte little-endian integer.
const entrySize = 24

// ChunkIndex is an in-memory (chunk, sub-chunk) -> Entry counter with a
// binary codec satisfying the concatenation-equals-merge law: reading
// the concatenation of two valid index files is equal to merging their
// in-memory forms.
type ChunkIndex struct {
	mu        sync.Mutex
	chunks    map[int32]Entry
	subChunks map[int64]Entry
	dirty     bool

	chunkStats           Stats
	overlapChunkStats    Stats
	subChunkStats        Stats
	overlapSubChunkStats Stats
}

// New returns an empty ChunkIndex.
func New() *ChunkIndex {
	return &ChunkIndex{
		chunks:    map[int32]Entry{},
		subChunks: map[int64]Entry{},
	}
}

// NewFromFiles builds a ChunkIndex by reading each path in order,
// accumulating their populations.
func NewFromFiles(fs filesys.Filesys, paths ...string) (*ChunkIndex, error) {
	ci := New()
	for _, p := range paths {
		if err := ci.Read(fs, p); err != nil {
			return nil, err
		}
	}
	return ci, nil
}

// Add increments the entry for loc by n records, at both the chunk and
// sub-chunk level. n == 0 is a no-op.
func (ci *ChunkIndex) Add(loc chunker.ChunkLocation, n uint64) {
	if n == 0 {
		return
	}

	ci.mu.Lock()
	defer ci.mu.Unlock()

	delta := Entry{}
	if loc.Overlap {
		delta.NumOverlapRecords = n
	} else {
		delta.NumRecords = n
	}

	ci.addSubChunkLocked(loc.CompositeId(), delta)
}

// addSubChunkLocked merges delta into both the sub-chunk entry for
// composite and the owning chunk's aggregate entry. Callers must hold
// ci.mu.
func (ci *ChunkIndex) addSubChunkLocked(composite int64, delta Entry) {
	sc := ci.subChunks[composite]
	sc.Add(delta)
	ci.subChunks[composite] = sc

	chunkId := int32(composite >> 32)
	c := ci.chunks[chunkId]
	c.Add(delta)
	ci.chunks[chunkId] = c

	ci.dirty = true
}

// Merge adds every entry of other into ci. Merging ci with itself is a
// no-op; merging an empty index is a no-op.
func (ci *ChunkIndex) Merge(other *ChunkIndex) {
	if other == ci {
		return
	}

	other.mu.Lock()
	snapshot := make(map[int64]Entry, len(other.subChunks))
	for k, v := range other.subChunks {
		snapshot[k] = v
	}
	other.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	ci.mu.Lock()
	defer ci.mu.Unlock()
	for composite, e := range snapshot {
		ci.addSubChunkLocked(composite, e)
	}
}

// ChunkEntry returns the aggregate entry for chunkId, or EMPTY if it is
// not present.
func (ci *ChunkIndex) ChunkEntry(chunkId int32) Entry {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if e, ok := ci.chunks[chunkId]; ok {
		return e
	}
	return EMPTY
}

// SubChunkEntry returns the entry for the sub-chunk identified by
// composite, or EMPTY if it is not present.
func (ci *ChunkIndex) SubChunkEntry(composite int64) Entry {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if e, ok := ci.subChunks[composite]; ok {
		return e
	}
	return EMPTY
}

// Write emits the binary form of every sub-chunk entry to path. When
// truncate is false the file is appended to, allowing several processes
// to incrementally build one file provided they write disjoint
// sub-chunk populations.
func (ci *ChunkIndex) Write(fs filesys.Filesys, path string, truncate bool) error {
	ci.mu.Lock()
	buf := make([]byte, 0, len(ci.subChunks)*entrySize)
	for composite, e := range ci.subChunks {
		var rec [entrySize]byte
		binary.LittleEndian.PutUint64(rec[0:8], uint64(composite))
		binary.LittleEndian.PutUint64(rec[8:16], e.NumRecords)
		binary.LittleEndian.PutUint64(rec[16:24], e.NumOverlapRecords)
		buf = append(buf, rec[:]...)
	}
	ci.mu.Unlock()

	var w io.WriteCloser
	var err error
	if truncate {
		w, err = fs.OpenForWrite(path)
	} else {
		w, err = fs.OpenForAppend(path)
	}
	if err != nil {
		return errhand.IOError(err, "opening chunk index file %q", path)
	}
	defer w.Close()

	if _, err := w.Write(buf); err != nil {
		return errhand.IOError(err, "writing chunk index file %q", path)
	}
	return nil
}

// Read accumulates the populations encoded in path into ci. It fails if
// the file size is not a multiple of the 24 byte entry size.
func (ci *ChunkIndex) Read(fs filesys.Filesys, path string) error {
	data, err := fs.ReadFile(path)
	if err != nil {
		return errhand.IOError(err, "reading chunk index file %q", path)
	}
	if len(data)%entrySize != 0 {
		return errhand.SchemaError("chunk index file %q has size %d, not a multiple of %d", path, len(data), entrySize)
	}

	ci.mu.Lock()
	defer ci.mu.Unlock()
	for off := 0; off < len(data); off += entrySize {
		composite := int64(binary.LittleEndian.Uint64(data[off : off+8]))
		e := Entry{
			NumRecords:        binary.LittleEndian.Uint64(data[off+8 : off+16]),
			NumOverlapRecords: binary.LittleEndian.Uint64(data[off+16 : off+24]),
		}
		ci.addSubChunkLocked(composite, e)
	}
	return nil
}

func (ci *ChunkIndex) refreshStatsLocked() {
	if !ci.dirty {
		return
	}

	chunkCounts := make([]uint64, 0, len(ci.chunks))
	overlapChunkCounts := make([]uint64, 0, len(ci.chunks))
	for _, e := range ci.chunks {
		chunkCounts = append(chunkCounts, e.NumRecords)
		overlapChunkCounts = append(overlapChunkCounts, e.NumOverlapRecords)
	}

	subChunkCounts := make([]uint64, 0, len(ci.subChunks))
	overlapSubChunkCounts := make([]uint64, 0, len(ci.subChunks))
	for _, e := range ci.subChunks {
		subChunkCounts = append(subChunkCounts, e.NumRecords)
		overlapSubChunkCounts = append(overlapSubChunkCounts, e.NumOverlapRecords)
	}

	ci.chunkStats = computeStats(chunkCounts)
	ci.overlapChunkStats = computeStats(overlapChunkCounts)
	ci.subChunkStats = computeStats(subChunkCounts)
	ci.overlapSubChunkStats = computeStats(overlapSubChunkCounts)
	ci.dirty = false
}

// ChunkStats returns summary statistics over per-chunk record counts.
func (ci *ChunkIndex) ChunkStats() Stats {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.refreshStatsLocked()
	return ci.chunkStats
}

// OverlapChunkStats returns summary statistics over per-chunk overlap
// record counts.
func (ci *ChunkIndex) OverlapChunkStats() Stats {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.refreshStatsLocked()
	return ci.overlapChunkStats
}

// SubChunkStats returns summary statistics over per-sub-chunk record
// counts.
func (ci *ChunkIndex) SubChunkStats() Stats {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.refreshStatsLocked()
	return ci.subChunkStats
}

// OverlapSubChunkStats returns summary statistics over per-sub-chunk
// overlap record counts.
func (ci *ChunkIndex) OverlapSubChunkStats() Stats {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.refreshStatsLocked()
	return ci.overlapSubChunkStats
}
