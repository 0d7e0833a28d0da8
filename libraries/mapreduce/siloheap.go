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
	"container/heap"

	"github.com/lsst-dm/qservgo/libraries/silo"
)

// siloHeap orders a worker's private silo pool by bytes used, busiest
// first, so the map phase always fills the silo closest to spilling.
// This minimizes the number of spill (sort-and-requeue) events at the
// cost of a slightly larger tail sort.
type siloHeap[K any] []*silo.Silo[K]

func (h siloHeap[K]) Len() int { return len(h) }

// Less is inverted relative to container/heap's usual "smallest first"
// contract: the heap root is the silo with the MOST bytes used.
func (h siloHeap[K]) Less(i, j int) bool { return h[i].BytesUsed() > h[j].BytesUsed() }

func (h siloHeap[K]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *siloHeap[K]) Push(x any) {
	*h = append(*h, x.(*silo.Silo[K]))
}

func (h *siloHeap[K]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func newSiloHeap[K any](initial *silo.Silo[K]) *siloHeap[K] {
	h := &siloHeap[K]{initial}
	heap.Init(h)
	return h
}

func (h *siloHeap[K]) popBusiest() *silo.Silo[K] {
	return heap.Pop(h).(*silo.Silo[K])
}

func (h *siloHeap[K]) pushBack(s *silo.Silo[K]) {
	heap.Push(h, s)
}
