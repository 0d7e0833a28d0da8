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

package mapreduce

import (
	"sort"

	"github.com/lsst-dm/qservgo/libraries/silo"
)

// mergeSortedSilos flattens the records of every already-sorted silo in
// silos and returns them in ascending key order. Each input silo is
// already sorted, so this could be a streaming k-way merge; we instead
// do one flat sort over the (typically modest) per-phase record count,
// trading a constant factor for a much smaller implementation.
func mergeSortedSilos[K any](silos []*silo.Silo[K], less func(a, b K) bool) []silo.Record[K] {
	total := 0
	for _, s := range silos {
		total += s.Len()
	}
	all := make([]silo.Record[K], 0, total)
	for _, s := range silos {
		all = append(all, s.Records()...)
	}
	sort.SliceStable(all, func(i, j int) bool { return less(all[i].Key, all[j].Key) })
	return all
}

// forEachRun walks records, already sorted ascending by key, and invokes
// fn once per maximal run of equal keys.
func forEachRun[K any](records []silo.Record[K], less func(a, b K) bool, fn func(key K, run []silo.Record[K])) {
	i := 0
	for i < len(records) {
		j := i + 1
		for j < len(records) && !less(records[i].Key, records[j].Key) && !less(records[j].Key, records[i].Key) {
			j++
		}
		fn(records[i].Key, records[i:j])
		i = j
	}
}
