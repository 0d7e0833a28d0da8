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

package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocateIsDeterministic(t *testing.T) {
	c := New(18, 5, 0.01667)
	loc1 := c.Locate(2.0, 3.0)
	loc2 := c.Locate(2.0, 3.0)
	assert.Equal(t, loc1, loc2)
}

func TestLocateStaysWithinStripeBounds(t *testing.T) {
	c := New(18, 5, 0.01667)
	for _, lat := range []float64{-90, -45, -0.001, 0, 0.001, 45, 89.999} {
		for _, lon := range []float64{0, 90, 180, 270, 359.999} {
			loc := c.Locate(lon, lat)
			assert.GreaterOrEqual(t, loc.ChunkId, int32(0))
			assert.GreaterOrEqual(t, loc.SubChunkId, int32(0))
		}
	}
}

func TestCompositeIdRoundTrips(t *testing.T) {
	loc := ChunkLocation{ChunkId: 31415, SubChunkId: 7}
	composite := loc.CompositeId()
	assert.Equal(t, int32(31415), int32(composite>>32))
	assert.Equal(t, int32(7), int32(composite&0xffffffff))
}

func TestOverlapNeighborsExcludeSelfAndDedup(t *testing.T) {
	c := New(18, 5, 0.01667)
	self := c.Locate(2.0, 3.0)
	neighbors := c.OverlapNeighbors(2.0, 3.0)

	seen := map[int64]bool{}
	for _, n := range neighbors {
		assert.True(t, n.Overlap)
		assert.NotEqual(t, self.CompositeId(), n.CompositeId())
		assert.False(t, seen[n.CompositeId()], "duplicate overlap neighbor")
		seen[n.CompositeId()] = true
	}
}

func TestOverlapNeighborsNearPoleStaysInRange(t *testing.T) {
	c := New(18, 5, 0.01667)
	neighbors := c.OverlapNeighbors(10.0, 89.99)
	for _, n := range neighbors {
		assert.GreaterOrEqual(t, n.ChunkId, int32(0))
	}
}

func TestAngularSeparationSamePointIsZero(t *testing.T) {
	assert.InDelta(t, 0.0, AngularSeparation(10, 20, 10, 20), 1e-9)
}

func TestAngularSeparationAntipodal(t *testing.T) {
	d := AngularSeparation(0, 0, 180, 0)
	assert.InDelta(t, 180.0, d, 1e-6)
}

func TestAngularSeparationSmallOffsetApproxDegrees(t *testing.T) {
	// At the equator one degree of longitude is one degree of angular
	// separation.
	d := AngularSeparation(0, 0, 1, 0)
	assert.InDelta(t, 1.0, d, 1e-6)
}
