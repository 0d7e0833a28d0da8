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

// server.go exposes the worker's chunk-lifecycle commands and its
// index-extraction endpoint over a small JSON/HTTP surface, so that
// qserv-worker and qserv-indexjob can interoperate end to end.
package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/lsst-dm/qservgo/libraries/inventory"
	"github.com/lsst-dm/qservgo/libraries/lifecycle"
	"github.com/lsst-dm/qservgo/libraries/utils/concurrentmap"
	"github.com/lsst-dm/qservgo/libraries/utils/set"
)

// chunkStatus mirrors indexjob.ChunkStatus's wire values without
// importing indexjob, keeping the worker's server independent of the
// controller-side package.
type chunkStatus string

const (
	statusSuccess          chunkStatus = "SUCCESS"
	statusNoSuchPartition  chunkStatus = "NO_SUCH_PARTITION"
	statusServerBad        chunkStatus = "SERVER_BAD"
	statusServerError      chunkStatus = "SERVER_ERROR"
	statusServerQueued     chunkStatus = "SERVER_QUEUED"
	statusServerInProgress chunkStatus = "SERVER_IN_PROGRESS"
)

type indexFetchRequest struct {
	Db    string  `json:"db"`
	Table string  `json:"table"`
	Chunk int32   `json:"chunk"`
	TxnID *uint32 `json:"txn_id,omitempty"`
	Async bool    `json:"async,omitempty"`
}

type indexFetchReply struct {
	Status    chunkStatus `json:"status"`
	Data      string      `json:"data,omitempty"` // newline/tab-delimited rows, not base64: the payload is already text
	Message   string      `json:"message,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// pendingFetch tracks one async (queued) index fetch so /index/status can
// poll it, walking the SERVER_QUEUED -> SERVER_IN_PROGRESS -> terminal
// path the controller's poller expects.
type pendingFetch struct {
	mu     sync.Mutex
	result *indexFetchReply
}

type server struct {
	loop *commandLoop
	inv  *inventory.Inventory
	db   *sqlx.DB
	addr string

	httpSrv *http.Server

	pending *concurrentmap.Map[string, *pendingFetch]
}

func newServer(loop *commandLoop, inv *inventory.Inventory, db *sqlx.DB, addr string) *server {
	return &server{loop: loop, inv: inv, db: db, addr: addr, pending: concurrentmap.New[string, *pendingFetch]()}
}

func (s *server) Init(ctx context.Context) error { return nil }

func (s *server) Run(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chunks/add", s.handleAdd)
	mux.HandleFunc("/chunks/remove", s.handleRemove)
	mux.HandleFunc("/chunks/reload", s.handleReload)
	mux.HandleFunc("/chunks/rebuild", s.handleRebuild)
	mux.HandleFunc("/chunks/set", s.handleSet)
	mux.HandleFunc("/chunks", s.handleGet)
	mux.HandleFunc("/echo", s.handleEcho)
	mux.HandleFunc("/inventory", s.handleInventory)
	mux.HandleFunc("/index/fetch", s.handleIndexFetch)
	mux.HandleFunc("/index/status", s.handleIndexStatus)
	mux.HandleFunc("/index/stop", s.handleIndexStop)

	s.httpSrv = &http.Server{Addr: s.addrOrDefault(), Handler: mux}
	logrus.WithField("addr", s.httpSrv.Addr).Info("qserv-worker: listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.WithError(err).Error("qserv-worker: http server exited")
	}
}

func (s *server) addrOrDefault() string {
	if s.addr == "" {
		return ":25040"
	}
	return s.addr
}

func (s *server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

func writeReply(w http.ResponseWriter, reply lifecycle.Reply) {
	w.Header().Set("Content-Type", "application/json")
	if reply.Status != lifecycle.SUCCESS {
		w.WriteHeader(http.StatusBadRequest)
	}
	_ = json.NewEncoder(w).Encode(reply)
}

type addRemoveBody struct {
	Dbs   []string `json:"dbs"`
	Chunk int32    `json:"chunk"`
	Force bool     `json:"force"`
}

func (s *server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var body addRemoveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeReply(w, lifecycle.Reply{Status: lifecycle.INVALID, Message: err.Error()})
		return
	}
	reply, err := s.loop.submit(r.Context(), command{kind: cmdAddGroup, dbs: body.Dbs, chunk: body.Chunk})
	if err != nil {
		writeReply(w, lifecycle.Reply{Status: lifecycle.ERROR, Message: err.Error()})
		return
	}
	writeReply(w, reply)
}

func (s *server) handleRemove(w http.ResponseWriter, r *http.Request) {
	var body addRemoveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeReply(w, lifecycle.Reply{Status: lifecycle.INVALID, Message: err.Error()})
		return
	}
	reply, err := s.loop.submit(r.Context(), command{kind: cmdRemoveGroup, dbs: body.Dbs, chunk: body.Chunk, force: body.Force})
	if err != nil {
		writeReply(w, lifecycle.Reply{Status: lifecycle.ERROR, Message: err.Error()})
		return
	}
	writeReply(w, reply)
}

type existMapBody struct {
	Fresh map[string][]int32 `json:"fresh"`
	Force bool               `json:"force"`
}

func toExistMap(raw map[string][]int32) inventory.ExistMap {
	em := make(inventory.ExistMap, len(raw))
	for db, chunks := range raw {
		em[db] = set.NewInt32Set(chunks)
	}
	return em
}

func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	var body existMapBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeReply(w, lifecycle.Reply{Status: lifecycle.INVALID, Message: err.Error()})
		return
	}
	reply, err := s.loop.submit(r.Context(), command{kind: cmdReload, fresh: toExistMap(body.Fresh)})
	if err != nil {
		writeReply(w, lifecycle.Reply{Status: lifecycle.ERROR, Message: err.Error()})
		return
	}
	writeReply(w, reply)
}

func (s *server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	reply, err := s.loop.submit(r.Context(), command{kind: cmdRebuild})
	if err != nil {
		writeReply(w, lifecycle.Reply{Status: lifecycle.ERROR, Message: err.Error()})
		return
	}
	writeReply(w, reply)
}

func (s *server) handleSet(w http.ResponseWriter, r *http.Request) {
	var body existMapBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeReply(w, lifecycle.Reply{Status: lifecycle.INVALID, Message: err.Error()})
		return
	}
	reply, err := s.loop.submit(r.Context(), command{kind: cmdSet, fresh: toExistMap(body.Fresh), force: body.Force})
	if err != nil {
		writeReply(w, lifecycle.Reply{Status: lifecycle.ERROR, Message: err.Error()})
		return
	}
	writeReply(w, reply)
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	reply, err := s.loop.submit(r.Context(), command{kind: cmdGetList})
	if err != nil {
		writeReply(w, lifecycle.Reply{Status: lifecycle.ERROR, Message: err.Error()})
		return
	}
	writeReply(w, reply)
}

func (s *server) handleEcho(w http.ResponseWriter, r *http.Request) {
	payload := r.URL.Query().Get("payload")
	reply, err := s.loop.submit(r.Context(), command{kind: cmdEcho, payload: payload})
	if err != nil {
		writeReply(w, lifecycle.Reply{Status: lifecycle.ERROR, Message: err.Error()})
		return
	}
	writeReply(w, reply)
}

// handleInventory answers the controller-side ReplicaScanner: which
// chunks does this worker currently hold for db.
func (s *server) handleInventory(w http.ResponseWriter, r *http.Request) {
	db := r.URL.Query().Get("db")
	existMap := s.inv.ExistMap()
	chunks := existMap[db]
	var out []int32
	if chunks != nil {
		out = chunks.AsSlice()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Chunks []int32 `json:"chunks"`
	}{Chunks: out})
}

// handleIndexFetch is the worker side of indexjob.WorkerClient: it pulls
// the director index rows for one chunk (optionally restricted to one
// ingest transaction) and returns them as a newline/tab-delimited
// payload suitable for TableSink's LOAD DATA INFILE, or NO_SUCH_PARTITION
// if the transaction's partition never received rows for this chunk.
func (s *server) handleIndexFetch(w http.ResponseWriter, r *http.Request) {
	var req indexFetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeIndexReply(w, indexFetchReply{Status: statusServerBad, Message: err.Error()})
		return
	}

	if req.Async {
		id := fmt.Sprintf("%s-%s-%d-%d", req.Db, req.Table, req.Chunk, time.Now().UnixNano())
		pf := &pendingFetch{}
		s.pending.Set(id, pf)
		go s.fillAsync(pf, req)
		writeIndexReply(w, indexFetchReply{Status: statusServerQueued, RequestID: id})
		return
	}

	reply := s.fetchSync(req)
	writeIndexReply(w, reply)
}

func (s *server) fillAsync(pf *pendingFetch, req indexFetchRequest) {
	reply := s.fetchSync(req)
	pf.mu.Lock()
	pf.result = &reply
	pf.mu.Unlock()
}

func (s *server) fetchSync(req indexFetchRequest) indexFetchReply {
	table := fmt.Sprintf("%s__%s", req.Db, req.Table)
	query := fmt.Sprintf("SELECT * FROM %s WHERE chunkId = ?", table)
	args := []interface{}{req.Chunk}
	if req.TxnID != nil {
		query += " AND qserv_trans_id = ?"
		args = append(args, *req.TxnID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return indexFetchReply{Status: statusServerError, Message: err.Error()}
	}
	defer rows.Close()

	payload, n, err := encodeTSV(rows)
	if err != nil {
		return indexFetchReply{Status: statusServerError, Message: err.Error()}
	}
	if n == 0 {
		if req.TxnID != nil {
			return indexFetchReply{Status: statusNoSuchPartition}
		}
		return indexFetchReply{Status: statusSuccess, Data: ""}
	}
	return indexFetchReply{Status: statusSuccess, Data: payload}
}

// encodeTSV renders rows as tab-separated lines, one per row, matching
// the LOAD DATA INFILE format TableSink expects.
func encodeTSV(rows *sql.Rows) (string, int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return "", 0, err
	}
	raw := make([]sql.RawBytes, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	var buf bytes.Buffer
	n := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return "", 0, err
		}
		for i, v := range raw {
			if i > 0 {
				buf.WriteByte('\t')
			}
			buf.Write(v)
		}
		buf.WriteByte('\n')
		n++
	}
	return buf.String(), n, rows.Err()
}

func (s *server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	pf, ok := s.pending.Get(id)
	if !ok {
		writeIndexReply(w, indexFetchReply{Status: statusServerBad, Message: "unknown request id"})
		return
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.result == nil {
		writeIndexReply(w, indexFetchReply{Status: statusServerInProgress, RequestID: id})
		return
	}
	writeIndexReply(w, *pf.result)
}

func (s *server) handleIndexStop(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	s.pending.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

func writeIndexReply(w http.ResponseWriter, reply indexFetchReply) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}
