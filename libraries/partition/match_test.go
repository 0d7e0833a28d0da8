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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-dm/qservgo/libraries/chunker"
	"github.com/lsst-dm/qservgo/libraries/mapreduce"
	"github.com/lsst-dm/qservgo/libraries/utils/filesys"
)

func runMatch(t *testing.T, cfgFn func(rank int) MatchConfig, lines [][]byte, numWorkers int) ([]*MatchWorker, error) {
	t.Helper()
	input := newFixedLines(lines)
	workers := make([]*MatchWorker, numWorkers)
	newWorker := func(rank int) mapreduce.Worker[int64] {
		w := NewMatchWorker(cfgFn(rank))
		workers[rank] = w
		return w
	}
	e := mapreduce.New[int64](mapreduce.Params{BlockSizeMiB: 1, NumWorkers: numWorkers, PoolSizeMiB: numWorkers}, input, lessI64, ChunkKeyHash, newWorker)
	err := e.Run()
	return workers, err
}

func TestMatchSameChunkEmitsOnceWithFlag3(t *testing.T) {
	fs := filesys.NewInMemFS()
	ck := chunker.New(18, 5, 5.0)

	// Two very close points, guaranteed same chunk, well within overlap.
	lines := [][]byte{[]byte("1,10.0,10.0,10.0001,10.0001\n")}

	workers, err := runMatch(t, func(rank int) MatchConfig {
		return MatchConfig{
			Chunker: ck, FS: fs, OutDir: "/out", Prefix: "m", NumNodes: 1,
			Mode: PositionMode, Pos1LonCol: 1, Pos1LatCol: 2, Pos2LonCol: 3, Pos2LatCol: 4,
			OverlapDegrees: 5.0,
		}
	}, lines, 1)
	require.NoError(t, err)

	loc := ck.Locate(10.0, 10.0)
	path := fmt.Sprintf("/out/m_%d.txt", loc.ChunkId)
	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("\n")))
	assert.Contains(t, string(data), ",3\n")
	_ = workers
}

func TestMatchDifferentChunksEmitsTwiceWithFlags1And2(t *testing.T) {
	fs := filesys.NewInMemFS()
	ck := chunker.New(18, 5, 0.01667)

	// Points straddling a chunk boundary at lon=10, close enough to sit
	// well within the overlap radius, so both endpoints are valid and the
	// row lands in two distinct chunk files.
	lines := [][]byte{[]byte("1,9.9999,5.0,10.0001,5.0\n")}

	workers, err := runMatch(t, func(rank int) MatchConfig {
		return MatchConfig{
			Chunker: ck, FS: fs, OutDir: "/out", Prefix: "m", NumNodes: 1,
			Mode: PositionMode, Pos1LonCol: 1, Pos1LatCol: 2, Pos2LonCol: 3, Pos2LatCol: 4,
			OverlapDegrees: 0.01667,
		}
	}, lines, 1)
	require.NoError(t, err)

	loc1 := ck.Locate(9.9999, 5.0)
	loc2 := ck.Locate(10.0001, 5.0)
	require.NotEqual(t, loc1.ChunkId, loc2.ChunkId)

	data1, err := fs.ReadFile(fmt.Sprintf("/out/m_%d.txt", loc1.ChunkId))
	require.NoError(t, err)
	assert.Contains(t, string(data1), ",1\n")

	data2, err := fs.ReadFile(fmt.Sprintf("/out/m_%d.txt", loc2.ChunkId))
	require.NoError(t, err)
	assert.Contains(t, string(data2), ",2\n")
	_ = workers
}

func TestMatchOneMissingEndpointEmitsOnceWithSingleFlag(t *testing.T) {
	fs := filesys.NewInMemFS()
	ck := chunker.New(18, 5, 0.01667)

	lines := [][]byte{[]byte("1,5.0,0.0,NULL,NULL\n")}

	_, err := runMatch(t, func(rank int) MatchConfig {
		return MatchConfig{
			Chunker: ck, FS: fs, OutDir: "/out", Prefix: "m", NumNodes: 1,
			Mode: PositionMode, Pos1LonCol: 1, Pos1LatCol: 2, Pos2LonCol: 3, Pos2LatCol: 4,
			OverlapDegrees: 0.01667,
		}
	}, lines, 1)
	require.NoError(t, err)

	loc := ck.Locate(5.0, 0.0)
	data, err := fs.ReadFile(fmt.Sprintf("/out/m_%d.txt", loc.ChunkId))
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("\n")))
	assert.Contains(t, string(data), ",1\n")
}

func TestMatchRowWithBothEndpointsMissingFails(t *testing.T) {
	fs := filesys.NewInMemFS()
	ck := chunker.New(18, 5, 0.01667)

	lines := [][]byte{[]byte("1,NULL,NULL,NULL,NULL\n")}

	_, err := runMatch(t, func(rank int) MatchConfig {
		return MatchConfig{
			Chunker: ck, FS: fs, OutDir: "/out", Prefix: "m", NumNodes: 1,
			Mode: PositionMode, Pos1LonCol: 1, Pos1LatCol: 2, Pos2LonCol: 3, Pos2LatCol: 4,
			OverlapDegrees: 0.01667,
		}
	}, lines, 1)
	require.Error(t, err)
}

func TestMatchEndpointsBeyondOverlapRadiusAreRejected(t *testing.T) {
	fs := filesys.NewInMemFS()
	ck := chunker.New(18, 5, 0.01667)

	// Endpoints 10 degrees apart, far beyond a 0.01667 degree overlap
	// radius.
	lines := [][]byte{[]byte("1,10.0,0.0,20.0,0.0\n")}

	_, err := runMatch(t, func(rank int) MatchConfig {
		return MatchConfig{
			Chunker: ck, FS: fs, OutDir: "/out", Prefix: "m", NumNodes: 1,
			Mode: PositionMode, Pos1LonCol: 1, Pos1LatCol: 2, Pos2LonCol: 3, Pos2LatCol: 4,
			OverlapDegrees: 0.01667,
		}
	}, lines, 1)
	require.Error(t, err)
}

func TestMatchIDModeResolvesThroughObjectIndex(t *testing.T) {
	fs := filesys.NewInMemFS()
	ck := chunker.New(18, 5, 5.0)

	idx := NewMapObjectIndex()
	idx.Set("obj1", ck.Locate(10.0, 10.0))
	idx.Set("obj2", ck.Locate(10.0001, 10.0001))

	lines := [][]byte{[]byte("obj1,obj2\n")}

	_, err := runMatch(t, func(rank int) MatchConfig {
		return MatchConfig{
			Chunker: ck, FS: fs, OutDir: "/out", Prefix: "m", NumNodes: 1,
			Mode: IDMode, Id1Col: 0, Id2Col: 1, ObjIndex: idx,
			Id1MissingAbort: true, Id2MissingAbort: true,
			OverlapDegrees: 5.0,
		}
	}, lines, 1)
	require.NoError(t, err)

	loc := ck.Locate(10.0, 10.0)
	data, err := fs.ReadFile(fmt.Sprintf("/out/m_%d.txt", loc.ChunkId))
	require.NoError(t, err)
	assert.Contains(t, string(data), ",3\n")
}

func TestMatchIDModeMissingIDAbortsWhenConfigured(t *testing.T) {
	fs := filesys.NewInMemFS()
	ck := chunker.New(18, 5, 5.0)
	idx := NewMapObjectIndex()
	idx.Set("obj1", ck.Locate(10.0, 10.0))

	lines := [][]byte{[]byte("obj1,unknown\n")}

	_, err := runMatch(t, func(rank int) MatchConfig {
		return MatchConfig{
			Chunker: ck, FS: fs, OutDir: "/out", Prefix: "m", NumNodes: 1,
			Mode: IDMode, Id1Col: 0, Id2Col: 1, ObjIndex: idx,
			Id1MissingAbort: true, Id2MissingAbort: true,
			OverlapDegrees: 5.0,
		}
	}, lines, 1)
	require.Error(t, err)
}
