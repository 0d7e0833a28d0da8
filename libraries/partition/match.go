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
	"bytes"
	"fmt"
	"strconv"

	"github.com/lsst-dm/qservgo/libraries/chunker"
	"github.com/lsst-dm/qservgo/libraries/chunkindex"
	"github.com/lsst-dm/qservgo/libraries/silo"
	"github.com/lsst-dm/qservgo/libraries/utils/errhand"
	"github.com/lsst-dm/qservgo/libraries/utils/filesys"
)

// MatchMode selects how a MatchWorker resolves a match row's two
// endpoints to chunk locations.
type MatchMode int

const (
	// PositionMode resolves both endpoints directly from lon/lat
	// columns and enforces the overlap-radius constraint between them.
	PositionMode MatchMode = iota
	// IDMode resolves each endpoint's director-table primary key
	// through an ObjectIndex.
	IDMode
)

// overlapEpsilon guards the overlap-radius comparison against floating
// point noise at the boundary.
const overlapEpsilon = 1e-9

// MatchConfig configures a MatchWorker.
type MatchConfig struct {
	Chunker        *chunker.Chunker
	FS             filesys.Filesys
	OutDir, Prefix string
	NumNodes       int
	Mode           MatchMode

	// Position mode columns: lon/lat for each endpoint.
	Pos1LonCol, Pos1LatCol int
	Pos2LonCol, Pos2LatCol int

	// ID mode columns and collaborator.
	Id1Col, Id2Col  int
	ObjIndex        ObjectIndex
	Id1MissingAbort bool
	Id2MissingAbort bool

	OverlapDegrees float64
}

// MatchWorker implements mapreduce.Worker[int64] for the match-table
// partitioner.
type MatchWorker struct {
	cfg   MatchConfig
	index *chunkindex.ChunkIndex
}

// NewMatchWorker returns a MatchWorker for one map-reduce rank.
func NewMatchWorker(cfg MatchConfig) *MatchWorker {
	return &MatchWorker{cfg: cfg, index: chunkindex.New()}
}

type endpoint struct {
	loc     chunker.ChunkLocation
	valid   bool
	lon     float64
	lat     float64
	havePos bool
}

func (w *MatchWorker) resolvePosition(fields []string, lonCol, latCol int) (endpoint, error) {
	lonStr, ok1 := field(fields, lonCol)
	latStr, ok2 := field(fields, latCol)
	if !ok1 || !ok2 || lonStr == "" || latStr == "" || lonStr == "NULL" || latStr == "NULL" {
		return endpoint{}, nil
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return endpoint{}, errhand.InvalidParam("match row has non-numeric longitude %q", lonStr)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return endpoint{}, errhand.InvalidParam("match row has non-numeric latitude %q", latStr)
	}
	return endpoint{loc: w.cfg.Chunker.Locate(lon, lat), valid: true, lon: lon, lat: lat, havePos: true}, nil
}

func (w *MatchWorker) resolveID(fields []string, idCol int, missingAbort bool) (endpoint, error) {
	idStr, ok := field(fields, idCol)
	if !ok || idStr == "" || idStr == "NULL" {
		return endpoint{}, nil
	}
	loc, found := w.cfg.ObjIndex.Lookup(idStr)
	if !found {
		if missingAbort {
			return endpoint{}, errhand.MissingID("match row id %q not found in object index", idStr)
		}
		return endpoint{}, nil
	}
	return endpoint{loc: loc, valid: true}, nil
}

func (w *MatchWorker) resolveEndpoints(fields []string) (left, right endpoint, err error) {
	switch w.cfg.Mode {
	case PositionMode:
		left, err = w.resolvePosition(fields, w.cfg.Pos1LonCol, w.cfg.Pos1LatCol)
		if err != nil {
			return
		}
		right, err = w.resolvePosition(fields, w.cfg.Pos2LonCol, w.cfg.Pos2LatCol)
		return
	default:
		left, err = w.resolveID(fields, w.cfg.Id1Col, w.cfg.Id1MissingAbort)
		if err != nil {
			return
		}
		right, err = w.resolveID(fields, w.cfg.Id2Col, w.cfg.Id2MissingAbort)
		return
	}
}

func (w *MatchWorker) Map(lines [][]byte, s *silo.Silo[int64]) error {
	for _, line := range lines {
		fields := splitCSVLine(line)

		left, right, err := w.resolveEndpoints(fields)
		if err != nil {
			return err
		}

		if !left.valid && !right.valid {
			return errhand.InvalidParam("match row has no resolvable endpoint: %q", string(line))
		}

		if left.valid && right.valid && left.havePos && right.havePos {
			sep := chunker.AngularSeparation(left.lon, left.lat, right.lon, right.lat)
			if sep > w.cfg.OverlapDegrees-overlapEpsilon {
				return errhand.OverlapViolation("match row endpoints %.6f degrees apart exceeds overlap radius %.6f: %q", sep, w.cfg.OverlapDegrees, string(line))
			}
		}

		switch {
		case left.valid && right.valid && left.loc.ChunkId == right.loc.ChunkId:
			// Same chunk: one output row covers both endpoints.
			w.appendRecord(s, left.loc.CompositeId(), '3', line)
		case left.valid && right.valid:
			w.appendRecord(s, left.loc.CompositeId(), '1', line)
			w.appendRecord(s, right.loc.CompositeId(), '2', line)
		case left.valid:
			w.appendRecord(s, left.loc.CompositeId(), '1', line)
		case right.valid:
			w.appendRecord(s, right.loc.CompositeId(), '2', line)
		}
	}
	return nil
}

func (w *MatchWorker) appendRecord(s *silo.Silo[int64], key int64, flag byte, line []byte) {
	data := s.Reserve(len(line) + 1)
	data[0] = flag
	copy(data[1:], line)
	s.Append(key, data[:len(line)+1])
}

func (w *MatchWorker) Reduce(key int64, records []silo.Record[int64]) error {
	chunkId := chunkOf(key)
	subChunkId := subChunkOf(key)

	dir := nodeDir(w.cfg.FS, w.cfg.OutDir, chunkId, w.cfg.NumNodes)
	if err := w.cfg.FS.MkDirs(dir); err != nil {
		return errhand.IOError(err, "creating output directory %q", dir)
	}

	var lines [][]byte
	for _, rec := range records {
		flag := rec.Data[0]
		row := bytes.TrimRight(rec.Data[1:], "\r\n")
		out := make([]byte, 0, len(row)+3)
		out = append(out, row...)
		out = append(out, ',', flag, '\n')
		lines = append(lines, out)
	}

	path := fmt.Sprintf("%s/%s_%d.txt", dir, w.cfg.Prefix, chunkId)
	if err := appendLine(w.cfg.FS, path, lines); err != nil {
		return errhand.IOError(err, "writing chunk file %q", path)
	}
	w.index.Add(chunker.ChunkLocation{ChunkId: chunkId, SubChunkId: subChunkId}, uint64(len(lines)))
	return nil
}

func (w *MatchWorker) Finish() error {
	return nil
}

// Result returns this worker's chunk index fragment.
func (w *MatchWorker) Result() any {
	return w.index
}
