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
	"sort"
)

// Stats summarizes a population of record counts.
type Stats struct {
	Count uint64
	Sum   uint64
	Min   uint64
	Max   uint64
	Q1    uint64
	Q2    uint64
	Q3    uint64

	Mean     float64
	StdDev   float64
	Skewness float64
	Kurtosis float64
}

// percentile implements the rank floor(p*n + 0.5) clamped to n-1, over a
// slice already sorted ascending. This does not match any of the
// standard quantile definitions; it is preserved as-is for
// bit-compatibility with previously emitted statistics.
func percentile(sorted []uint64, p float64) uint64 {
	n := len(sorted)
	idx := int(math.Floor(p*float64(n) + 0.5))
	if idx > n-1 {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func computeStats(values []uint64) Stats {
	if len(values) == 0 {
		return Stats{
			Mean:     math.NaN(),
			StdDev:   math.NaN(),
			Skewness: math.NaN(),
			Kurtosis: math.NaN(),
		}
	}

	sorted := make([]uint64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	var sum uint64
	for _, v := range sorted {
		sum += v
	}
	mean := float64(sum) / float64(n)

	var m2, m3, m4 float64
	for _, v := range sorted {
		d := float64(v) - mean
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	m2 /= float64(n)
	m3 /= float64(n)
	m4 /= float64(n)

	stddev := math.Sqrt(m2)
	skew := m3 / math.Pow(stddev, 3)
	kurt := m4/math.Pow(stddev, 4) - 3.0

	return Stats{
		Count:    uint64(n),
		Sum:      sum,
		Min:      sorted[0],
		Max:      sorted[n-1],
		Q1:       percentile(sorted, 0.25),
		Q2:       percentile(sorted, 0.5),
		Q3:       percentile(sorted, 0.75),
		Mean:     mean,
		StdDev:   stddev,
		Skewness: skew,
		Kurtosis: kurt,
	}
}
