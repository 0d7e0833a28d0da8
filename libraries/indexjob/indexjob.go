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

// Package indexjob builds or rebuilds a director table's secondary
// index: it scans worker replicas for a chunk, plans a greedy worker
// assignment, fans requests out with a bounded in-flight depth per
// worker, and streams each chunk's payload to a configured sink.
package indexjob

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lsst-dm/qservgo/libraries/utils/errhand"
)

// ChunkStatus is a worker's outcome for one chunk's index contribution.
type ChunkStatus int

const (
	ChunkSuccess ChunkStatus = iota
	ChunkNoSuchPartition
	ChunkServerBad
	ChunkServerError
)

// ChunkReplica is one (chunk, worker) pair discovered during replica
// scan: worker currently holds a replica of the director table's chunk.
type ChunkReplica struct {
	Worker string
	Chunk  int32
}

// ChunkResult is a worker's response to one index-data fetch.
type ChunkResult struct {
	Status  ChunkStatus
	Data    []byte
	Message string
}

// ReplicaScanner discovers which workers hold which chunks of a director
// table, either globally or restricted to one ingest transaction.
type ReplicaScanner interface {
	ScanGlobal(ctx context.Context, db, table string) ([]ChunkReplica, error)
	ScanTransaction(ctx context.Context, db, table string, txnID uint32) ([]ChunkReplica, error)
}

// WorkerClient fetches a chunk's index contribution from a worker and can
// server-side stop an in-flight or queued request.
type WorkerClient interface {
	FetchIndexData(ctx context.Context, worker, db, table string, chunk int32) (ChunkResult, error)
	StopRequest(ctx context.Context, worker string, chunk int32) error
}

// BuildRequest describes one index-build invocation.
type BuildRequest struct {
	Db             string
	Table          string
	TxnID          *uint32
	AllowPublished bool
	Rebuild        bool
}

// Result accumulates the job's per-worker, per-chunk errors and the row
// counts successfully delivered to the sink, safe for concurrent update
// from the job's fan-out goroutines.
type Result struct {
	mu          sync.Mutex
	Errors      map[string]map[int32]string
	RowsByChunk map[int32]int
}

func newResult() *Result {
	return &Result{
		Errors:      map[string]map[int32]string{},
		RowsByChunk: map[int32]int{},
	}
}

func (r *Result) addError(worker string, chunk int32, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Errors[worker] == nil {
		r.Errors[worker] = map[int32]string{}
	}
	r.Errors[worker][chunk] = message
}

func (r *Result) addRows(chunk int32, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RowsByChunk[chunk] += n
}

// HasErrors reports whether any chunk failed.
func (r *Result) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors) > 0
}

// Job runs one build-secondary-index invocation.
type Job struct {
	scanner       ReplicaScanner
	client        WorkerClient
	sink          Sink
	workerThreads int
}

// New returns a Job. workerThreads sizes the bounded fan-out depth per
// worker to 8*workerThreads, per the controller's amortized-latency
// launch policy.
func New(scanner ReplicaScanner, client WorkerClient, sink Sink, workerThreads int) *Job {
	if workerThreads < 1 {
		workerThreads = 1
	}
	return &Job{scanner: scanner, client: client, sink: sink, workerThreads: workerThreads}
}

// planAssignments greedily assigns each chunk to the worker currently
// holding the fewest assignments among that chunk's replica-holding
// workers, iterating chunks in ascending id order so ties break
// deterministically.
func planAssignments(replicas []ChunkReplica) map[string][]int32 {
	byChunk := map[int32][]string{}
	for _, r := range replicas {
		byChunk[r.Chunk] = append(byChunk[r.Chunk], r.Worker)
	}

	chunks := make([]int32, 0, len(byChunk))
	for c := range byChunk {
		chunks = append(chunks, c)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i] < chunks[j] })

	load := map[string]int{}
	plan := map[string][]int32{}
	for _, chunk := range chunks {
		workers := byChunk[chunk]
		best := workers[0]
		for _, w := range workers[1:] {
			if load[w] < load[best] {
				best = w
			}
		}
		plan[best] = append(plan[best], chunk)
		load[best]++
	}
	return plan
}

// Run executes the full replica-scan -> plan -> bounded-fan-out ->
// completion cycle and returns the accumulated Result. On the first
// chunk failure every other in-flight request is cancelled and
// server-side stopped, any sink transaction is rolled back, and Run
// returns that first error; Result still reflects whatever succeeded
// before the abort.
func (j *Job) Run(ctx context.Context, req BuildRequest) (*Result, error) {
	var replicas []ChunkReplica
	var err error
	if req.TxnID != nil {
		replicas, err = j.scanner.ScanTransaction(ctx, req.Db, req.Table, *req.TxnID)
	} else {
		replicas, err = j.scanner.ScanGlobal(ctx, req.Db, req.Table)
	}
	if err != nil {
		return nil, errhand.QueryError(err, "scanning replicas for %s.%s", req.Db, req.Table)
	}

	plan := planAssignments(replicas)
	result := newResult()

	if err := j.sink.Begin(ctx); err != nil {
		return result, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for worker, chunks := range plan {
		worker := worker
		queue := make(chan int32, len(chunks))
		for _, c := range chunks {
			queue <- c
		}
		close(queue)

		depth := 8 * j.workerThreads
		if depth > len(chunks) {
			depth = len(chunks)
		}
		for i := 0; i < depth; i++ {
			g.Go(func() error {
				return j.drainQueue(gctx, worker, req, queue, result)
			})
		}
	}

	runErr := g.Wait()
	if runErr != nil {
		j.cancelRemaining(plan)
		j.sink.Rollback()
		return result, runErr
	}

	if err := j.sink.Commit(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// drainQueue pulls chunks for worker off queue until it is empty or ctx
// is cancelled, fetching and sinking each one in turn. The next chunk is
// popped only after the current chunk's payload has been written to the
// sink, so no replacement fetch is issued while a payload is being sunk.
func (j *Job) drainQueue(ctx context.Context, worker string, req BuildRequest, queue chan int32, result *Result) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-queue:
			if !ok {
				return nil
			}
			if err := j.handleChunk(ctx, worker, req, chunk, result); err != nil {
				return err
			}
		}
	}
}

func (j *Job) handleChunk(ctx context.Context, worker string, req BuildRequest, chunk int32, result *Result) error {
	res, err := j.client.FetchIndexData(ctx, worker, req.Db, req.Table, chunk)
	if err != nil {
		result.addError(worker, chunk, err.Error())
		return errhand.QueryError(err, "fetching index data for chunk %d from worker %s", chunk, worker)
	}

	switch res.Status {
	case ChunkSuccess:
		n, err := j.sink.Write(ctx, req.Db, chunk, res.Data)
		if err != nil {
			result.addError(worker, chunk, err.Error())
			return err
		}
		result.addRows(chunk, n)
		return nil
	case ChunkNoSuchPartition:
		return nil
	default:
		result.addError(worker, chunk, res.Message)
		return errhand.QueryError(nil, "worker %s chunk %d failed: %s", worker, chunk, res.Message)
	}
}

// cancelRemaining best-effort server-side stops every chunk still
// assigned in plan; used once the job has already decided to abort.
func (j *Job) cancelRemaining(plan map[string][]int32) {
	ctx := context.Background()
	for worker, chunks := range plan {
		for _, chunk := range chunks {
			_ = j.client.StopRequest(ctx, worker, chunk)
		}
	}
}
