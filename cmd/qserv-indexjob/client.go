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

// client.go is the controller-side network edge: it implements
// indexjob.ReplicaScanner and indexjob.WorkerClient against
// qserv-worker's HTTP surface. A worker that replies SERVER_QUEUED
// hands the request to an indexrequest.Request, which polls on an
// interval-doubling backoff until the fetch reaches a terminal status --
// bridging that async tracking model onto the synchronous
// WorkerClient interface indexjob.Job expects.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lsst-dm/qservgo/libraries/indexjob"
	"github.com/lsst-dm/qservgo/libraries/indexrequest"
)

type httpClient struct {
	workers []string
	http    *http.Client
}

func newHTTPClient(workers []string, timeout time.Duration) *httpClient {
	return &httpClient{workers: workers, http: &http.Client{Timeout: timeout}}
}

type inventoryReply struct {
	Chunks []int32 `json:"chunks"`
}

func (c *httpClient) scan(ctx context.Context, db string) ([]indexjob.ChunkReplica, error) {
	var out []indexjob.ChunkReplica
	for _, worker := range c.workers {
		url := fmt.Sprintf("%s/inventory?db=%s", worker, db)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("scanning worker %s: %w", worker, err)
		}
		var body inventoryReply
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding inventory reply from %s: %w", worker, err)
		}
		for _, chunk := range body.Chunks {
			out = append(out, indexjob.ChunkReplica{Worker: worker, Chunk: chunk})
		}
	}
	return out, nil
}

// ScanGlobal lists every worker's current replicas of db's chunks.
// Table-level filtering isn't tracked by the worker inventory, which is
// chunk-grained rather than table-grained, so every chunk the worker
// holds for db is treated as a replica candidate; a chunk with no rows
// comes back as SUCCESS with an empty payload.
func (c *httpClient) ScanGlobal(ctx context.Context, db, table string) ([]indexjob.ChunkReplica, error) {
	return c.scan(ctx, db)
}

// ScanTransaction restricts the same scan to chunks visible to a single
// ingest transaction; the per-chunk fetch itself enforces the partition
// filter via qserv_trans_id.
func (c *httpClient) ScanTransaction(ctx context.Context, db, table string, txnID uint32) ([]indexjob.ChunkReplica, error) {
	return c.scan(ctx, db)
}

type indexFetchRequest struct {
	Db    string  `json:"db"`
	Table string  `json:"table"`
	Chunk int32   `json:"chunk"`
	TxnID *uint32 `json:"txn_id,omitempty"`
	Async bool    `json:"async,omitempty"`
}

type indexFetchReply struct {
	Status    string `json:"status"`
	Data      string `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func toChunkStatus(s string) indexjob.ChunkStatus {
	switch s {
	case "SUCCESS":
		return indexjob.ChunkSuccess
	case "NO_SUCH_PARTITION":
		return indexjob.ChunkNoSuchPartition
	case "SERVER_ERROR":
		return indexjob.ChunkServerError
	default:
		return indexjob.ChunkServerBad
	}
}

func toRequestStatus(s string) indexrequest.Status {
	switch s {
	case "SUCCESS":
		return indexrequest.SUCCESS
	case "NO_SUCH_PARTITION":
		return indexrequest.SUCCESS
	case "SERVER_QUEUED":
		return indexrequest.SERVER_QUEUED
	case "SERVER_IN_PROGRESS":
		return indexrequest.SERVER_IN_PROGRESS
	case "SERVER_ERROR":
		return indexrequest.SERVER_ERROR
	default:
		return indexrequest.SERVER_BAD
	}
}

// FetchIndexData asks worker for chunk's index contribution. A
// synchronous SUCCESS/NO_SUCH_PARTITION/error reply is returned
// directly; a SERVER_QUEUED reply is handed to an indexrequest.Request
// that polls /index/status until the fetch completes.
func (c *httpClient) FetchIndexData(ctx context.Context, worker, db, table string, chunk int32) (indexjob.ChunkResult, error) {
	body, _ := json.Marshal(indexFetchRequest{Db: db, Table: table, Chunk: chunk})
	reply, err := c.postFetch(ctx, worker, body)
	if err != nil {
		return indexjob.ChunkResult{}, err
	}

	if reply.Status != "SERVER_QUEUED" && reply.Status != "SERVER_IN_PROGRESS" {
		return indexjob.ChunkResult{Status: toChunkStatus(reply.Status), Data: []byte(reply.Data), Message: reply.Message}, nil
	}

	return c.track(ctx, worker, reply.RequestID, reply)
}

func (c *httpClient) postFetch(ctx context.Context, worker string, body []byte) (indexFetchReply, error) {
	url := fmt.Sprintf("%s/index/fetch", worker)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return indexFetchReply{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return indexFetchReply{}, fmt.Errorf("fetching from worker %s: %w", worker, err)
	}
	defer resp.Body.Close()
	var out indexFetchReply
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return indexFetchReply{}, fmt.Errorf("decoding fetch reply from %s: %w", worker, err)
	}
	return out, nil
}

// httpPoller implements indexrequest.Poller against one worker's
// /index/status and /index/stop endpoints.
type httpPoller struct {
	client *httpClient
	worker string
}

func (p *httpPoller) PollStatus(ctx context.Context, requestID string) (indexrequest.StatusReply, error) {
	url := fmt.Sprintf("%s/index/status?id=%s", p.worker, requestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return indexrequest.StatusReply{}, err
	}
	resp, err := p.client.http.Do(req)
	if err != nil {
		return indexrequest.StatusReply{}, err
	}
	defer resp.Body.Close()
	var out indexFetchReply
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return indexrequest.StatusReply{}, err
	}
	return indexrequest.StatusReply{Status: toRequestStatus(out.Status), Message: out.Message}, nil
}

func (p *httpPoller) CancelRequest(ctx context.Context, requestID string) error {
	url := fmt.Sprintf("%s/index/stop?id=%s", p.worker, requestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// track blocks until the queued request id reaches a terminal status,
// driven by an indexrequest.Request's poll timer, then issues one final
// fetch to retrieve the completed data.
func (c *httpClient) track(ctx context.Context, worker, requestID string, initial indexFetchReply) (indexjob.ChunkResult, error) {
	done := make(chan indexrequest.Status, 1)
	poller := &httpPoller{client: c, worker: worker}
	bo := indexrequest.NewBackOff(50*time.Millisecond, 2*time.Second)
	r := indexrequest.New(requestID, worker, poller, true, bo, func(req *indexrequest.Request) {
		done <- req.Status()
	})
	r.Dispatch(ctx, indexrequest.StatusReply{Status: toRequestStatus(initial.Status), Message: initial.Message})

	select {
	case <-done:
	case <-ctx.Done():
		_ = r.Cancel(context.Background())
		return indexjob.ChunkResult{}, ctx.Err()
	}

	final, err := c.getStatus(ctx, worker, requestID)
	if err != nil {
		return indexjob.ChunkResult{}, err
	}
	return indexjob.ChunkResult{Status: toChunkStatus(final.Status), Data: []byte(final.Data), Message: final.Message}, nil
}

// getStatus fetches the worker's full stored reply (status, message, and
// the completed data payload) for a queued request, once it has reached
// a terminal status.
func (c *httpClient) getStatus(ctx context.Context, worker, requestID string) (indexFetchReply, error) {
	url := fmt.Sprintf("%s/index/status?id=%s", worker, requestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return indexFetchReply{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return indexFetchReply{}, err
	}
	defer resp.Body.Close()
	var out indexFetchReply
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return indexFetchReply{}, err
	}
	return out, nil
}

func (c *httpClient) StopRequest(ctx context.Context, worker string, chunk int32) error {
	url := fmt.Sprintf("%s/index/stop?chunk=%d", worker, chunk)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

var _ indexjob.ReplicaScanner = (*httpClient)(nil)
var _ indexjob.WorkerClient = (*httpClient)(nil)
