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

// Command qserv-indexjob is the controller-side driver for secondary
// index builds: against a configured worker set it runs one
// secondary-index build to completion, either as a one-shot CLI
// invocation or, with --serve, by answering the BUILD-SECONDARY-INDEX
// REST endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	_ "github.com/go-sql-driver/mysql"

	"github.com/lsst-dm/qservgo/libraries/indexjob"
	"github.com/lsst-dm/qservgo/libraries/utils/argparser"
	"github.com/lsst-dm/qservgo/libraries/utils/errhand"
	"github.com/lsst-dm/qservgo/libraries/utils/filesys"
)

// config is the controller's configuration surface: the worker set it
// dispatches to, the catalog connection used for index-table DDL, and
// the sink destination the finished index rows are written to.
type config struct {
	Indexjob struct {
		Workers       []string `toml:"workers"`
		WorkerThreads int      `toml:"worker-threads"`
		CatalogDSN    string   `toml:"catalog-dsn"`
		ListenAddr    string   `toml:"listen-addr"`
		TmpDir        string   `toml:"tmp-dir"`
	} `toml:"indexjob"`
}

func defaultConfig() config {
	var c config
	c.Indexjob.WorkerThreads = 4
	c.Indexjob.ListenAddr = ":25041"
	c.Indexjob.TmpDir = os.TempDir()
	return c
}

func newParser() *argparser.ArgParser {
	ap := argparser.NewArgParserWithMaxArgs("qserv-indexjob", 0)
	ap.SupportsString("config", "c", "path", "TOML configuration file")
	ap.SupportsList("indexjob.workers", "", "addrs", "comma-separated worker base URLs")
	ap.SupportsInt("indexjob.worker-threads", "", "n", "per-worker in-flight request depth multiplier (depth is 8 times this)")
	ap.SupportsString("indexjob.catalog-dsn", "", "dsn", "MySQL DSN for the catalog database owning director index tables")
	ap.SupportsString("indexjob.listen-addr", "", "addr", "address to serve BUILD-SECONDARY-INDEX on with --serve")
	ap.SupportsFlag("serve", "", "serve the BUILD-SECONDARY-INDEX endpoint instead of running once")
	ap.SupportsString("database", "", "db", "director table's database")
	ap.SupportsString("director-table", "", "table", "director table name")
	ap.SupportsInt("txn-id", "", "id", "restrict the build to one ingest transaction")
	ap.SupportsFlag("rebuild", "", "drop and recreate the index table before building")
	ap.SupportsFlag("allow-for-published", "", "allow building the index for an already-published database")
	ap.SupportsFlag("local", "", "use LOAD DATA LOCAL INFILE for the TABLE sink")
	ap.SupportsString("destination", "", "discard|file|folder|table", "sink destination for the finished index rows")
	ap.SupportsString("destination-path", "", "path", "sink path: file path, folder dir, or unused for discard/table")
	ap.SupportsString("pk-col", "", "name", "director index primary key column name")
	ap.SupportsString("pk-type", "", "sql-type", "director index primary key SQL type")
	return ap
}

func loadConfig(path string) (config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return config{}, fmt.Errorf("decoding config file %q: %w", path, err)
	}
	return c, nil
}

func applyOverrides(c *config, res *argparser.ArgParseResults) {
	if v, ok := res.GetValue("indexjob.workers"); ok {
		c.Indexjob.Workers = strings.Split(v, ",")
	}
	if v, ok := res.GetInt("indexjob.worker-threads"); ok {
		c.Indexjob.WorkerThreads = v
	}
	if v, ok := res.GetValue("indexjob.catalog-dsn"); ok {
		c.Indexjob.CatalogDSN = v
	}
	if v, ok := res.GetValue("indexjob.listen-addr"); ok {
		c.Indexjob.ListenAddr = v
	}
}

func buildSink(fs filesys.Filesys, db *sqlx.DB, destination, path, indexTable, tmpDir string, local bool) (indexjob.Sink, error) {
	switch destination {
	case "", "discard":
		return indexjob.DiscardSink{}, nil
	case "file":
		return &indexjob.FileSink{FS: fs, Path: path}, nil
	case "folder":
		return &indexjob.FolderSink{FS: fs, Dir: path}, nil
	case "table":
		return &indexjob.TableSink{FS: fs, DB: db, IndexTable: indexTable, TmpDir: tmpDir, Local: local}, nil
	default:
		return nil, errhand.InvalidParam("unknown sink destination %q", destination)
	}
}

func buildRequestFromArgs(res *argparser.ArgParseResults) (indexjob.BuildRequest, error) {
	db, ok := res.GetValue("database")
	if !ok {
		return indexjob.BuildRequest{}, errhand.InvalidParam("--database is required")
	}
	table := res.GetValueOrDefault("director-table", "Object")
	req := indexjob.BuildRequest{
		Db:             db,
		Table:          table,
		AllowPublished: res.ContainsAll("allow-for-published"),
		Rebuild:        res.ContainsAll("rebuild"),
	}
	if txn, ok := res.GetInt("txn-id"); ok {
		u := uint32(txn)
		req.TxnID = &u
	}
	return req, nil
}

func runOnce(ctx context.Context, cfg config, res *argparser.ArgParseResults) error {
	if len(cfg.Indexjob.Workers) == 0 {
		return errhand.InvalidParam("no workers configured; set indexjob.workers")
	}
	req, err := buildRequestFromArgs(res)
	if err != nil {
		return err
	}

	var catalog *sqlx.DB
	if cfg.Indexjob.CatalogDSN != "" {
		catalog, err = sqlx.ConnectContext(ctx, "mysql", cfg.Indexjob.CatalogDSN)
		if err != nil {
			return fmt.Errorf("connecting to catalog database: %w", err)
		}
		defer catalog.Close()
	}

	indexTable := fmt.Sprintf("%s__%s", req.Db, req.Table)
	if catalog != nil {
		pkCol := res.GetValueOrDefault("pk-col", "objectId")
		pkType := res.GetValueOrDefault("pk-type", "BIGINT")
		if err := ensureIndexTable(ctx, catalog, req.Db, req.Table, pkCol, pkType, req.Rebuild); err != nil {
			return err
		}
	}

	client := newHTTPClient(cfg.Indexjob.Workers, 30*time.Second)
	sink, err := buildSink(filesys.LocalFS, catalog,
		res.GetValueOrDefault("destination", "discard"),
		res.GetValueOrDefault("destination-path", ""),
		indexTable, cfg.Indexjob.TmpDir, res.ContainsAll("local"))
	if err != nil {
		return err
	}

	job := indexjob.New(client, client, sink, cfg.Indexjob.WorkerThreads)
	result, err := job.Run(ctx, req)
	if err != nil {
		logrus.WithError(err).Error("qserv-indexjob: job failed")
		if result != nil {
			for worker, byChunk := range result.Errors {
				for chunk, msg := range byChunk {
					logrus.WithFields(logrus.Fields{"worker": worker, "chunk": chunk}).Error(msg)
				}
			}
		}
		return err
	}

	total := 0
	for _, n := range result.RowsByChunk {
		total += n
	}
	logrus.WithFields(logrus.Fields{"chunks": len(result.RowsByChunk), "rows": total}).Info("qserv-indexjob: build complete")
	return nil
}

func run(args []string) error {
	ap := newParser()
	res, err := ap.Parse(args)
	if err != nil {
		return err
	}
	cfgPath, _ := res.GetValue("config")
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	applyOverrides(&cfg, res)

	if res.ContainsAll("serve") {
		return serve(cfg)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return runOnce(ctx, cfg, res)
}

func serve(cfg config) error {
	srv := newBuildEndpoint(cfg)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		srv.Stop()
	}()
	return srv.ListenAndServe()
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		errhand.Display(os.Stderr, err)
		os.Exit(1)
	}
}
