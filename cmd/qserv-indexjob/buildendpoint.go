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

// buildendpoint.go serves the BUILD-SECONDARY-INDEX REST endpoint: POST
// a build request, get back the per-chunk build result.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/lsst-dm/qservgo/libraries/indexjob"
	"github.com/lsst-dm/qservgo/libraries/utils/filesys"
)

type buildEndpoint struct {
	cfg     config
	srv     *http.Server
	catalog *sqlx.DB
}

func newBuildEndpoint(cfg config) *buildEndpoint {
	return &buildEndpoint{cfg: cfg}
}

// buildSecondaryIndexRequest is the body of POST build-secondary-index.
type buildSecondaryIndexRequest struct {
	Database          string `json:"database"`
	DirectorTable     string `json:"director_table"`
	AllowForPublished bool   `json:"allow_for_published"`
	Rebuild           bool   `json:"rebuild"`
	Local             bool   `json:"local"`
}

// indexJobResultWire mirrors indexjob.Result's per-worker, per-chunk
// error map for JSON transport.
type indexJobResultWire struct {
	Error map[string]map[int32]string `json:"error"`
}

func (b *buildEndpoint) ListenAndServe() error {
	if b.cfg.Indexjob.CatalogDSN != "" {
		db, err := sqlx.Connect("mysql", b.cfg.Indexjob.CatalogDSN)
		if err != nil {
			return fmt.Errorf("connecting to catalog database: %w", err)
		}
		b.catalog = db
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/build-secondary-index", b.handle)
	b.srv = &http.Server{Addr: b.cfg.Indexjob.ListenAddr, Handler: mux}
	logrus.WithField("addr", b.srv.Addr).Info("qserv-indexjob: serving BUILD-SECONDARY-INDEX")
	err := b.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (b *buildEndpoint) Stop() {
	if b.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = b.srv.Shutdown(ctx)
	if b.catalog != nil {
		b.catalog.Close()
	}
}

func (b *buildEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body buildSecondaryIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Database == "" {
		http.Error(w, "database is required", http.StatusBadRequest)
		return
	}
	directorTable := body.DirectorTable
	if directorTable == "" {
		directorTable = "Object"
	}

	indexTable := fmt.Sprintf("%s__%s", body.Database, directorTable)
	if b.catalog != nil {
		if err := ensureIndexTable(r.Context(), b.catalog, body.Database, directorTable, "objectId", "BIGINT", body.Rebuild); err != nil {
			writeBuildError(w, err)
			return
		}
	}

	client := newHTTPClient(b.cfg.Indexjob.Workers, 30*time.Second)
	sink, err := buildSink(filesys.LocalFS, b.catalog, "table", "", indexTable, b.cfg.Indexjob.TmpDir, body.Local)
	if err != nil {
		writeBuildError(w, err)
		return
	}

	job := indexjob.New(client, client, sink, b.cfg.Indexjob.WorkerThreads)
	req := indexjob.BuildRequest{
		Db:             body.Database,
		Table:          directorTable,
		AllowPublished: body.AllowForPublished,
		Rebuild:        body.Rebuild,
	}
	result, runErr := job.Run(r.Context(), req)

	wire := indexJobResultWire{Error: map[string]map[int32]string{}}
	if result != nil {
		wire.Error = result.Errors
	}
	w.Header().Set("Content-Type", "application/json")
	if runErr != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
	_ = json.NewEncoder(w).Encode(wire)
}

func writeBuildError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}
