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

import (
	"fmt"
	"strconv"

	"github.com/lsst-dm/qservgo/libraries/chunker"
	"github.com/lsst-dm/qservgo/libraries/chunkindex"
	"github.com/lsst-dm/qservgo/libraries/silo"
	"github.com/lsst-dm/qservgo/libraries/utils/errhand"
	"github.com/lsst-dm/qservgo/libraries/utils/filesys"
)

// markerNormal and markerOverlap distinguish a record's own chunk copy from an overlap
// copy written at a neighboring sub-chunk; it is the first byte of every
// silo record's Data.
const (
	markerNormal  byte = 0
	markerOverlap byte = 1
)

// PositionalConfig configures a PositionalWorker.
type PositionalConfig struct {
	Chunker  *chunker.Chunker
	FS       filesys.Filesys
	OutDir   string
	Prefix   string
	NumNodes int
	LonCol   int
	LatCol   int
	// WithOverlap, when true, also emits each row at its overlap
	// neighbors with the overlap marker set.
	WithOverlap bool
}

// PositionalWorker implements mapreduce.Worker[int64] for the positional
// partitioner: it maps a CSV row to one or more chunk locations and
// reduces by appending rows into per-chunk output files.
type PositionalWorker struct {
	cfg   PositionalConfig
	index *chunkindex.ChunkIndex
}

// NewPositionalWorker returns a PositionalWorker for one map-reduce rank.
func NewPositionalWorker(cfg PositionalConfig) *PositionalWorker {
	return &PositionalWorker{cfg: cfg, index: chunkindex.New()}
}

func (w *PositionalWorker) Map(lines [][]byte, s *silo.Silo[int64]) error {
	for _, line := range lines {
		fields := splitCSVLine(line)
		lonStr, ok := field(fields, w.cfg.LonCol)
		if !ok {
			return errhand.InvalidParam("row missing longitude column %d: %q", w.cfg.LonCol, string(line))
		}
		latStr, ok := field(fields, w.cfg.LatCol)
		if !ok {
			return errhand.InvalidParam("row missing latitude column %d: %q", w.cfg.LatCol, string(line))
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return errhand.InvalidParam("row has non-numeric longitude %q: %q", lonStr, string(line))
		}
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return errhand.InvalidParam("row has non-numeric latitude %q: %q", latStr, string(line))
		}

		loc := w.cfg.Chunker.Locate(lon, lat)
		w.appendRecord(s, loc.CompositeId(), markerNormal, line)

		if w.cfg.WithOverlap {
			for _, n := range w.cfg.Chunker.OverlapNeighbors(lon, lat) {
				w.appendRecord(s, n.CompositeId(), markerOverlap, line)
			}
		}
	}
	return nil
}

func (w *PositionalWorker) appendRecord(s *silo.Silo[int64], key int64, marker byte, line []byte) {
	data := s.Reserve(len(line) + 1)
	data[0] = marker
	copy(data[1:], line)
	s.Append(key, data[:len(line)+1])
}

func (w *PositionalWorker) Reduce(key int64, records []silo.Record[int64]) error {
	chunkId := chunkOf(key)
	subChunkId := subChunkOf(key)

	var normal, overlap [][]byte
	for _, rec := range records {
		if rec.Data[0] == markerOverlap {
			overlap = append(overlap, rec.Data[1:])
		} else {
			normal = append(normal, rec.Data[1:])
		}
	}

	dir := nodeDir(w.cfg.FS, w.cfg.OutDir, chunkId, w.cfg.NumNodes)
	if err := w.cfg.FS.MkDirs(dir); err != nil {
		return errhand.IOError(err, "creating output directory %q", dir)
	}

	if len(normal) > 0 {
		path := fmt.Sprintf("%s/%s_%d.txt", dir, w.cfg.Prefix, chunkId)
		if err := appendLine(w.cfg.FS, path, normal); err != nil {
			return errhand.IOError(err, "writing chunk file %q", path)
		}
		w.index.Add(chunker.ChunkLocation{ChunkId: chunkId, SubChunkId: subChunkId}, uint64(len(normal)))
	}

	if len(overlap) > 0 {
		path := fmt.Sprintf("%s/%s_%d_overlap.txt", dir, w.cfg.Prefix, chunkId)
		if err := appendLine(w.cfg.FS, path, overlap); err != nil {
			return errhand.IOError(err, "writing overlap chunk file %q", path)
		}
		w.index.Add(chunker.ChunkLocation{ChunkId: chunkId, SubChunkId: subChunkId, Overlap: true}, uint64(len(overlap)))
	}

	return nil
}

func (w *PositionalWorker) Finish() error {
	return nil
}

// Result returns this worker's chunk index fragment. Callers merge every
// rank's fragment into one ChunkIndex via ChunkIndex.Merge.
func (w *PositionalWorker) Result() any {
	return w.index
}
