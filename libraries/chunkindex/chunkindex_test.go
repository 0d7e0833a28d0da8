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

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-dm/qservgo/libraries/chunker"
	"github.com/lsst-dm/qservgo/libraries/utils/filesys"
)

func TestAddSumsChunkAndSubChunk(t *testing.T) {
	ci := New()
	ci.Add(chunker.ChunkLocation{ChunkId: 1, SubChunkId: 1}, 3)
	ci.Add(chunker.ChunkLocation{ChunkId: 1, SubChunkId: 2}, 4)
	ci.Add(chunker.ChunkLocation{ChunkId: 1, SubChunkId: 1, Overlap: true}, 2)

	assert.Equal(t, uint64(7), ci.ChunkEntry(1).NumRecords)
	assert.Equal(t, uint64(2), ci.ChunkEntry(1).NumOverlapRecords)

	loc1 := chunker.ChunkLocation{ChunkId: 1, SubChunkId: 1}
	assert.Equal(t, uint64(3), ci.SubChunkEntry(loc1.CompositeId()).NumRecords)
}

func TestAddZeroIsNoOp(t *testing.T) {
	ci := New()
	ci.Add(chunker.ChunkLocation{ChunkId: 1, SubChunkId: 1}, 0)
	assert.Equal(t, EMPTY, ci.ChunkEntry(1))
}

func TestMissingKeyReturnsEmptySentinel(t *testing.T) {
	ci := New()
	assert.Equal(t, EMPTY, ci.ChunkEntry(99))
	assert.Equal(t, EMPTY, ci.SubChunkEntry(99))
}

func TestMergeIsAdditiveAndSelfMergeIsNoOp(t *testing.T) {
	a := New()
	a.Add(chunker.ChunkLocation{ChunkId: 1, SubChunkId: 1}, 5)

	b := New()
	b.Add(chunker.ChunkLocation{ChunkId: 1, SubChunkId: 1}, 3)

	a.Merge(b)
	assert.Equal(t, uint64(8), a.ChunkEntry(1).NumRecords)

	a.Merge(a)
	assert.Equal(t, uint64(8), a.ChunkEntry(1).NumRecords)
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs := filesys.NewInMemFS()
	ci := New()
	ci.Add(chunker.ChunkLocation{ChunkId: 1, SubChunkId: 1}, 5)
	ci.Add(chunker.ChunkLocation{ChunkId: 2, SubChunkId: 7}, 9)

	require.NoError(t, ci.Write(fs, "/idx.bin", true))

	readBack := New()
	require.NoError(t, readBack.Read(fs, "/idx.bin"))

	assert.Equal(t, ci.ChunkEntry(1), readBack.ChunkEntry(1))
	assert.Equal(t, ci.ChunkEntry(2), readBack.ChunkEntry(2))
}

func TestReadRejectsTruncatedFile(t *testing.T) {
	fs := filesys.NewInMemFS()
	require.NoError(t, fs.WriteFile("/bad.bin", make([]byte, 23)))

	ci := New()
	err := ci.Read(fs, "/bad.bin")
	require.Error(t, err)
}

func TestConcatenationEqualsMerge(t *testing.T) {
	fs := filesys.NewInMemFS()

	a := New()
	a.Add(chunker.ChunkLocation{ChunkId: 1, SubChunkId: 1}, 5)
	require.NoError(t, a.Write(fs, "/a.bin", true))

	b := New()
	b.Add(chunker.ChunkLocation{ChunkId: 1, SubChunkId: 2}, 3)
	require.NoError(t, b.Write(fs, "/b.bin", true))

	aBytes, err := fs.ReadFile("/a.bin")
	require.NoError(t, err)
	bBytes, err := fs.ReadFile("/b.bin")
	require.NoError(t, err)
	require.NoError(t, fs.WriteFile("/concat.bin", append(aBytes, bBytes...)))

	merged := New()
	require.NoError(t, merged.Read(fs, "/concat.bin"))

	expected := New()
	expected.Merge(a)
	expected.Merge(b)

	assert.Equal(t, expected.ChunkEntry(1), merged.ChunkEntry(1))
}

func TestEmptyStatsYieldZeroCountAndNaNSigma(t *testing.T) {
	ci := New()
	stats := ci.ChunkStats()
	assert.Equal(t, uint64(0), stats.Count)
	assert.Equal(t, uint64(0), stats.Sum)
	assert.True(t, math.IsNaN(stats.StdDev))
}

func TestQuartilesOnFourValues(t *testing.T) {
	ci := New()
	ci.Add(chunker.ChunkLocation{ChunkId: 1, SubChunkId: 1}, 1)
	ci.Add(chunker.ChunkLocation{ChunkId: 2, SubChunkId: 1}, 2)
	ci.Add(chunker.ChunkLocation{ChunkId: 3, SubChunkId: 1}, 3)
	ci.Add(chunker.ChunkLocation{ChunkId: 4, SubChunkId: 1}, 4)

	stats := ci.ChunkStats()
	assert.Equal(t, uint64(2), stats.Q1)
	assert.Equal(t, uint64(3), stats.Q2)
	assert.Equal(t, uint64(4), stats.Q3)
}

func TestQuartilesOnSingleValue(t *testing.T) {
	ci := New()
	ci.Add(chunker.ChunkLocation{ChunkId: 1, SubChunkId: 1}, 10)

	stats := ci.ChunkStats()
	assert.Equal(t, uint64(10), stats.Q1)
	assert.Equal(t, uint64(10), stats.Q2)
	assert.Equal(t, uint64(10), stats.Q3)
}

func TestStatsCacheIsRecomputedOnlyWhenDirty(t *testing.T) {
	// Two distinct counts keep every moment finite; a single-valued
	// population has NaN skewness and kurtosis, which never compare equal.
	ci := New()
	ci.Add(chunker.ChunkLocation{ChunkId: 1, SubChunkId: 1}, 1)
	ci.Add(chunker.ChunkLocation{ChunkId: 2, SubChunkId: 1}, 2)

	first := ci.ChunkStats()
	second := ci.ChunkStats()
	assert.Equal(t, first, second)

	ci.Add(chunker.ChunkLocation{ChunkId: 1, SubChunkId: 1}, 1)
	third := ci.ChunkStats()
	assert.NotEqual(t, first.Sum, third.Sum)
}
