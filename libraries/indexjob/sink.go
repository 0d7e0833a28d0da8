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

package indexjob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/lsst-dm/qservgo/libraries/utils/errhand"
	"github.com/lsst-dm/qservgo/libraries/utils/filesys"
)

// Sink is where a successful chunk's index payload goes. Begin/Commit/
// Rollback bracket one Job.Run invocation; Write is called once per
// successful chunk and must be safe for concurrent use.
type Sink interface {
	Begin(ctx context.Context) error
	Write(ctx context.Context, db string, chunk int32, data []byte) (rows int, err error)
	Commit(ctx context.Context) error
	Rollback()
}

func countRows(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte("\n"))
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// DiscardSink drops every chunk's payload.
type DiscardSink struct{}

func (DiscardSink) Begin(ctx context.Context) error { return nil }
func (DiscardSink) Write(ctx context.Context, db string, chunk int32, data []byte) (int, error) {
	return 0, nil
}
func (DiscardSink) Commit(ctx context.Context) error { return nil }
func (DiscardSink) Rollback()                        {}

// FileSink appends every chunk's payload to a single path, or to stdout
// when Path is empty.
type FileSink struct {
	FS   filesys.Filesys
	Path string

	mu sync.Mutex
	w  io.WriteCloser
}

func (s *FileSink) Begin(ctx context.Context) error {
	if s.Path == "" {
		return nil
	}
	w, err := s.FS.OpenForAppend(s.Path)
	if err != nil {
		return errhand.IOError(err, "opening sink file %q", s.Path)
	}
	s.w = w
	return nil
}

func (s *FileSink) Write(ctx context.Context, db string, chunk int32, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var w io.Writer = os.Stdout
	if s.w != nil {
		w = s.w
	}
	if _, err := w.Write(data); err != nil {
		return 0, errhand.IOError(err, "writing chunk %d payload to sink file", chunk)
	}
	return countRows(data), nil
}

func (s *FileSink) Commit(ctx context.Context) error {
	if s.w != nil {
		return s.w.Close()
	}
	return nil
}

func (s *FileSink) Rollback() {
	if s.w != nil {
		s.w.Close()
	}
}

// FolderSink writes each chunk's payload to its own <dir>/<db>_<chunk>.tsv
// file. Every chunk is assigned to exactly one worker by the job's
// planner, so each file is written exactly once.
type FolderSink struct {
	FS  filesys.Filesys
	Dir string
}

func (s *FolderSink) Begin(ctx context.Context) error {
	if err := s.FS.MkDirs(s.Dir); err != nil {
		return errhand.IOError(err, "creating sink directory %q", s.Dir)
	}
	return nil
}

func (s *FolderSink) Write(ctx context.Context, db string, chunk int32, data []byte) (int, error) {
	path := fmt.Sprintf("%s/%s_%d.tsv", s.Dir, db, chunk)
	if err := s.FS.WriteFile(path, data); err != nil {
		return 0, errhand.IOError(err, "writing sink file %q", path)
	}
	return countRows(data), nil
}

func (s *FolderSink) Commit(ctx context.Context) error { return nil }
func (s *FolderSink) Rollback()                        {}

// TableSink streams each chunk's payload into a temp file and loads it
// into <db>.<indexTable> via LOAD DATA [LOCAL] INFILE, on a single
// connection and transaction shared by every chunk in the job.
type TableSink struct {
	FS         filesys.Filesys
	DB         *sqlx.DB
	IndexTable string
	TmpDir     string
	Local      bool

	mu sync.Mutex
	tx *sqlx.Tx
}

func (s *TableSink) Begin(ctx context.Context) error {
	return nil
}

// ensureTxLocked lazily opens the sink's single connection and
// transaction on the first payload, so a job whose every chunk turns
// out empty never touches the database. Callers must hold s.mu.
func (s *TableSink) ensureTxLocked(ctx context.Context) error {
	if s.tx != nil {
		return nil
	}
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return errhand.QueryError(err, "opening index load transaction")
	}
	s.tx = tx
	return nil
}

func (s *TableSink) Write(ctx context.Context, db string, chunk int32, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureTxLocked(ctx); err != nil {
		return 0, err
	}

	tmpPath := fmt.Sprintf("%s/qservidx_%s_%d.tsv", s.TmpDir, db, chunk)
	if err := s.FS.WriteFile(tmpPath, data); err != nil {
		return 0, errhand.IOError(err, "writing temp load file %q", tmpPath)
	}
	defer s.FS.DeleteFile(tmpPath)

	local := ""
	if s.Local {
		local = "LOCAL "
	}
	loadSQL := fmt.Sprintf("LOAD DATA %sINFILE '%s' INTO TABLE %s.%s", local, tmpPath, db, s.IndexTable)
	if _, err := s.tx.ExecContext(ctx, loadSQL); err != nil {
		return 0, errhand.QueryError(err, "loading chunk %d into %s.%s", chunk, db, s.IndexTable)
	}

	if s.Local {
		rows, err := s.tx.QueryxContext(ctx, "SHOW WARNINGS")
		if err != nil {
			return 0, errhand.QueryError(err, "checking warnings after loading chunk %d", chunk)
		}
		defer rows.Close()
		if rows.Next() {
			return 0, errhand.QueryError(nil, "LOAD DATA LOCAL INFILE for chunk %d reported warnings", chunk)
		}
	}

	return countRows(data), nil
}

func (s *TableSink) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Commit(); err != nil {
		return errhand.QueryError(err, "committing index load transaction")
	}
	return nil
}

func (s *TableSink) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		s.tx.Rollback()
	}
}
