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

// Package chunker implements the two-level spherical subdivision used to
// spatially partition a catalog: a sky position maps to a (chunk,
// sub-chunk) location, and a configured overlap radius enumerates the
// neighboring sub-chunks a row must also be copied into.
package chunker

import "math"

// ChunkLocation identifies a sub-chunk a sky position falls into.
// SubChunkId is local to ChunkId and always fits in the low 28 bits of
// the composite key used by the chunk index.
type ChunkLocation struct {
	ChunkId    int32
	SubChunkId int32
	Overlap    bool
}

// CompositeId returns the (chunkId<<32)|subChunkId key used to address a
// sub-chunk in a ChunkIndex.
func (l ChunkLocation) CompositeId() int64 {
	return int64(l.ChunkId)<<32 | int64(uint32(l.SubChunkId))
}

// Chunker maps sky positions to chunk locations under a fixed stripe
// geometry and enumerates overlap neighbors within OverlapDegrees.
type Chunker struct {
	NumStripes             int32
	NumSubStripesPerStripe int32
	OverlapDegrees         float64

	stripeHeight float64
}

// New returns a Chunker for the given stripe geometry.
func New(numStripes, numSubStripesPerStripe int32, overlapDegrees float64) *Chunker {
	return &Chunker{
		NumStripes:             numStripes,
		NumSubStripesPerStripe: numSubStripesPerStripe,
		OverlapDegrees:         overlapDegrees,
		stripeHeight:           180.0 / float64(numStripes),
	}
}

func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon, 360.0)
	if lon < 0 {
		lon += 360.0
	}
	return lon
}

func clampStripe(s, numStripes int32) int32 {
	if s < 0 {
		return 0
	}
	if s >= numStripes {
		return numStripes - 1
	}
	return s
}

// stripeId returns the stripe index covering lat, a latitude in degrees
// in [-90, 90].
func (c *Chunker) stripeId(lat float64) int32 {
	s := int32(math.Floor((lat + 90.0) / c.stripeHeight))
	return clampStripe(s, c.NumStripes)
}

func (c *Chunker) stripeBounds(stripeId int32) (latMin, latMax, centerLat float64) {
	latMin = -90.0 + float64(stripeId)*c.stripeHeight
	latMax = latMin + c.stripeHeight
	centerLat = (latMin + latMax) / 2
	return
}

// chunksPerStripe returns the number of chunks covering stripeId's
// longitude range, scaled by cos(centerLat) so chunks stay roughly
// equal-area as stripes narrow toward the poles.
func (c *Chunker) chunksPerStripe(stripeId int32) int32 {
	_, _, centerLat := c.stripeBounds(stripeId)
	n := int32(math.Round((360.0 / c.stripeHeight) * math.Cos(centerLat*math.Pi/180.0)))
	if n < 1 {
		n = 1
	}
	return n
}

// stripeIdOffset is an upper bound on chunksPerStripe, used to keep
// global chunk IDs unique across stripes: chunksPerStripe(s) <=
// 360/stripeHeight = 2*NumStripes since cos <= 1.
func (c *Chunker) stripeIdOffset() int32 {
	return 2 * c.NumStripes
}

// Locate maps a sky position (lon, lat in degrees) to its chunk
// location.
func (c *Chunker) Locate(lon, lat float64) ChunkLocation {
	lon = normalizeLon(lon)
	sid := c.stripeId(lat)
	latMin, _, _ := c.stripeBounds(sid)
	nChunks := c.chunksPerStripe(sid)
	chunkWidth := 360.0 / float64(nChunks)
	chunkNum := int32(math.Floor(lon / chunkWidth))
	if chunkNum >= nChunks {
		chunkNum = nChunks - 1
	}
	chunkId := sid*c.stripeIdOffset() + chunkNum

	subChunkId := c.subChunkId(sid, latMin, chunkWidth, lon, lat, chunkNum)

	return ChunkLocation{ChunkId: chunkId, SubChunkId: subChunkId}
}

// subChunkId computes a chunk-local sub-chunk index by dividing the
// chunk into a NumSubStripesPerStripe x NumSubStripesPerStripe grid.
func (c *Chunker) subChunkId(stripeId int32, stripeLatMin, chunkWidth, lon, lat float64, chunkNum int32) int32 {
	n := c.NumSubStripesPerStripe
	if n < 1 {
		n = 1
	}
	subStripeHeight := c.stripeHeight / float64(n)
	latOffset := lat - stripeLatMin
	subLatIdx := int32(math.Floor(latOffset / subStripeHeight))
	subLatIdx = clampStripe(subLatIdx, n)

	chunkLonMin := float64(chunkNum) * chunkWidth
	subLonWidth := chunkWidth / float64(n)
	lonOffset := lon - chunkLonMin
	subLonIdx := int32(math.Floor(lonOffset / subLonWidth))
	subLonIdx = clampStripe(subLonIdx, n)

	return subLatIdx*n + subLonIdx
}

// OverlapNeighbors returns the distinct sub-chunk locations, other than
// (lon, lat)'s own, that lie within OverlapDegrees of it. Each returned
// location has Overlap set.
func (c *Chunker) OverlapNeighbors(lon, lat float64) []ChunkLocation {
	self := c.Locate(lon, lat)

	cosLat := math.Cos(lat * math.Pi / 180.0)
	if cosLat < 1e-9 {
		cosLat = 1e-9
	}
	dLat := c.OverlapDegrees
	dLon := c.OverlapDegrees / cosLat

	offsets := [][2]float64{
		{-dLon, -dLat}, {0, -dLat}, {dLon, -dLat},
		{-dLon, 0} /*        */, {dLon, 0},
		{-dLon, dLat}, {0, dLat}, {dLon, dLat},
	}

	seen := map[int64]bool{self.CompositeId(): true}
	var out []ChunkLocation
	for _, off := range offsets {
		nlon := normalizeLon(lon + off[0])
		nlat := lat + off[1]
		if nlat < -90 || nlat > 90 {
			continue
		}
		loc := c.Locate(nlon, nlat)
		if seen[loc.CompositeId()] {
			continue
		}
		seen[loc.CompositeId()] = true
		loc.Overlap = true
		out = append(out, loc)
	}
	return out
}

// AngularSeparation returns the great-circle distance in degrees between
// two sky positions given in degrees, via the haversine formula.
func AngularSeparation(lon1, lat1, lon2, lat2 float64) float64 {
	rad := math.Pi / 180.0
	phi1, phi2 := lat1*rad, lat2*rad
	dPhi := (lat2 - lat1) * rad
	dLambda := (lon2 - lon1) * rad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return c / rad
}
