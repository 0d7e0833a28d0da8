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

// Package mapreduce implements the partitioner's multi-threaded
// worker-pool scheduler: a fixed pool of N workers alternates map
// (read -> silo) and reduce (merge-sorted emit) phases under a single
// mutex and two condition variables, guaranteeing that every key is
// seen by exactly one worker (hash(key) mod N) across the whole job.
package mapreduce

import (
	"io"
	"sync"

	"github.com/lsst-dm/qservgo/libraries/silo"
)

// Worker is the user-supplied capability set driven by the engine: map
// reads raw lines into a silo, reduce consumes one run of equal-keyed,
// already-sorted records, and finish flushes whatever reduce
// accumulated. finish is called at the end of every reduce phase; the
// last phase's finish is the flush point.
type Worker[K any] interface {
	Map(lines [][]byte, s *silo.Silo[K]) error
	Reduce(key K, records []silo.Record[K]) error
	Finish() error
}

// ResultWorker is a Worker that also produces a final value, collected
// by the engine once the worker's last phase finishes.
type ResultWorker[K any] interface {
	Worker[K]
	Result() any
}

// HashFunc assigns a key to a worker rank via hash(key) mod N.
type HashFunc[K any] func(key K) uint32

// Params configures the engine's memory and parallelism tunables.
type Params struct {
	// BlockSizeMiB bounds one InputLines.ReadBlock call, 1-1024.
	BlockSizeMiB int
	// NumWorkers is the size of the worker pool, >= 1.
	NumWorkers int
	// PoolSizeMiB is a soft cap on total silo memory, divided evenly
	// across workers as each worker's spill threshold.
	PoolSizeMiB int
}

// Engine runs Params.NumWorkers workers over input, calling newWorker
// once per rank to build each worker's Worker implementation.
type Engine[K any] struct {
	params    Params
	input     InputLines
	less      func(a, b K) bool
	hash      HashFunc[K]
	newWorker func(rank int) Worker[K]

	mu            sync.Mutex
	mapBarrier    *phaseBarrier
	reduceBarrier *phaseBarrier

	failed        error
	allDone       bool
	perRankSorted [][]*silo.Silo[K]

	results []any
}

// New returns an Engine ready to Run.
func New[K any](params Params, input InputLines, less func(a, b K) bool, hash HashFunc[K], newWorker func(rank int) Worker[K]) *Engine[K] {
	e := &Engine[K]{
		params:    params,
		input:     input,
		less:      less,
		hash:      hash,
		newWorker: newWorker,
	}
	e.mapBarrier = newPhaseBarrier(&e.mu, params.NumWorkers)
	e.reduceBarrier = newPhaseBarrier(&e.mu, params.NumWorkers)
	e.perRankSorted = make([][]*silo.Silo[K], params.NumWorkers)
	e.results = make([]any, params.NumWorkers)
	return e
}

func (e *Engine[K]) blockBytes() int {
	return e.params.BlockSizeMiB * 1024 * 1024
}

func (e *Engine[K]) thresholdBytes() int64 {
	return int64(e.params.PoolSizeMiB) * 1024 * 1024 / int64(e.params.NumWorkers)
}

func (e *Engine[K]) isFailed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failed != nil
}

// failedLocked is the barrier-side failure predicate: the phase barriers
// call it with e.mu already held, so it must not re-acquire the mutex.
func (e *Engine[K]) failedLocked() bool {
	return e.failed != nil
}

// fail records the first error seen by any worker and wakes every
// waiter on both barriers so they can unwind.
func (e *Engine[K]) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failed == nil {
		e.failed = err
	}
	e.mapBarrier.abort()
	e.reduceBarrier.abort()
}

// Run drives every worker to completion and returns the first error
// encountered by any of them, if any.
func (e *Engine[K]) Run() error {
	var wg sync.WaitGroup
	wg.Add(e.params.NumWorkers)
	for r := 0; r < e.params.NumWorkers; r++ {
		rank := r
		go func() {
			defer wg.Done()
			e.runWorker(rank)
		}()
	}
	wg.Wait()
	return e.failed
}

// Results returns the per-rank Result() of every worker implementing
// ResultWorker, in rank order. Only valid after Run returns nil.
func (e *Engine[K]) Results() []any {
	return e.results
}

func (e *Engine[K]) runWorker(rank int) {
	w := e.newWorker(rank)
	h := newSiloHeap[K](silo.New[K](e.less))

	for {
		sorted, exhausted, err := e.mapPhase(w, h)
		if err != nil {
			e.fail(err)
			return
		}

		e.mu.Lock()
		e.perRankSorted[rank] = sorted
		if exhausted {
			e.allDone = true
		}
		e.mu.Unlock()

		e.mapBarrier.wait(e.failedLocked)
		if e.isFailed() {
			return
		}

		if err := e.reducePhase(rank, w); err != nil {
			e.fail(err)
			return
		}

		if rw, ok := w.(ResultWorker[K]); ok {
			e.mu.Lock()
			e.results[rank] = rw.Result()
			e.mu.Unlock()
		}

		// Every rank has recorded its exhaustion flag before the map
		// barrier, so all ranks read the same verdict here.
		e.mu.Lock()
		allExhausted := e.allDone
		e.mu.Unlock()

		e.reduceBarrier.wait(e.failedLocked)
		if e.isFailed() {
			return
		}

		if allExhausted {
			return
		}

		for _, s := range e.perRankSorted[rank] {
			s.Clear()
			h.pushBack(s)
		}
	}
}

// mapPhase pulls silos from h, reads input blocks, and calls w.Map until
// the shared input is exhausted or this rank's silo crosses its spill
// threshold, ending the phase. It returns the silos this rank sorted
// during the phase.
func (e *Engine[K]) mapPhase(w Worker[K], h *siloHeap[K]) (sorted []*silo.Silo[K], exhausted bool, err error) {
	threshold := e.thresholdBytes()
	for {
		if e.isFailed() {
			return sorted, false, nil
		}

		s := h.popBusiest()
		lines, rerr := e.input.ReadBlock(e.blockBytes())
		if rerr == io.EOF {
			if s.Len() > 0 {
				s.Sort()
				sorted = append(sorted, s)
			} else {
				h.pushBack(s)
			}
			return sorted, true, nil
		}
		if rerr != nil {
			return sorted, false, rerr
		}

		if err := w.Map(lines, s); err != nil {
			return sorted, false, err
		}

		// The threshold check is post-map, so a rank may overshoot by
		// up to one block before it stops to flush.
		if s.BytesUsed() >= threshold {
			s.Sort()
			sorted = append(sorted, s)
			return sorted, false, nil
		}
		h.pushBack(s)
	}
}

// reducePhase merges every rank's sorted silos from this round and
// delivers each maximal equal-key run to w.Reduce when that key hashes
// to rank, then calls w.Finish.
func (e *Engine[K]) reducePhase(rank int, w Worker[K]) error {
	e.mu.Lock()
	var all []*silo.Silo[K]
	for _, s := range e.perRankSorted {
		all = append(all, s...)
	}
	e.mu.Unlock()

	merged := mergeSortedSilos(all, e.less)

	var reduceErr error
	forEachRun(merged, e.less, func(key K, run []silo.Record[K]) {
		if reduceErr != nil {
			return
		}
		if e.hash(key)%uint32(e.params.NumWorkers) == uint32(rank) {
			reduceErr = w.Reduce(key, run)
		}
	})
	if reduceErr != nil {
		return reduceErr
	}

	return w.Finish()
}
