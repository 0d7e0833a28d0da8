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

// Command qserv-worker is the worker-side service process: it owns a
// chunk inventory and a resource monitor, answers chunk-lifecycle
// commands over a channel-based command loop, and serves per-chunk
// index-extraction requests issued by qserv-indexjob.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	_ "github.com/go-sql-driver/mysql"

	"github.com/lsst-dm/qservgo/libraries/inventory"
	"github.com/lsst-dm/qservgo/libraries/lifecycle"
	"github.com/lsst-dm/qservgo/libraries/resourcemon"
	"github.com/lsst-dm/qservgo/libraries/utils/argparser"
	"github.com/lsst-dm/qservgo/libraries/utils/errhand"
	"github.com/lsst-dm/qservgo/libraries/utils/retry"
	"github.com/lsst-dm/qservgo/libraries/utils/svcs"
)

// config is the worker's ambient configuration surface: worker.instance-name,
// worker.mysql-dsn, worker.dispatcher-addr, plus the listen address for
// this process's own command/index-extraction endpoint.
type config struct {
	Worker struct {
		InstanceName   string `toml:"instance-name"`
		MysqlDSN       string `toml:"mysql-dsn"`
		DispatcherAddr string `toml:"dispatcher-addr"`
		ListenAddr     string `toml:"listen-addr"`
		Rebuild        bool   `toml:"rebuild-on-start"`
	} `toml:"worker"`
}

func defaultConfig() config {
	var c config
	c.Worker.InstanceName = "default"
	c.Worker.ListenAddr = ":25040"
	return c
}

func newParser() *argparser.ArgParser {
	ap := argparser.NewArgParserWithMaxArgs("qserv-worker", 0)
	ap.SupportsString("config", "c", "path", "TOML configuration file")
	ap.SupportsString("worker.instance-name", "", "name", "worker instance name, used as the qservw_<name> metadata schema")
	ap.SupportsString("worker.mysql-dsn", "", "dsn", "MySQL DSN for this worker's local metadata and data")
	ap.SupportsString("worker.dispatcher-addr", "", "addr", "cluster dispatcher base URL notified of resource changes")
	ap.SupportsString("worker.listen-addr", "", "addr", "address this worker's command/index endpoint listens on")
	ap.SupportsFlag("worker.rebuild-on-start", "", "rebuild the Chunks relation from physical tables before serving")
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
	if v, ok := res.GetValue("worker.instance-name"); ok {
		c.Worker.InstanceName = v
	}
	if v, ok := res.GetValue("worker.mysql-dsn"); ok {
		c.Worker.MysqlDSN = v
	}
	if v, ok := res.GetValue("worker.dispatcher-addr"); ok {
		c.Worker.DispatcherAddr = v
	}
	if v, ok := res.GetValue("worker.listen-addr"); ok {
		c.Worker.ListenAddr = v
	}
	if res.ContainsAll("worker.rebuild-on-start") {
		c.Worker.Rebuild = true
	}
}

// connectWithRetries opens the worker's MySQL connection, tolerating a
// database that is still coming up behind it (common on cold cluster
// start) by retrying a fixed number of times with jittered backoff.
func connectWithRetries(dsn string) (*sqlx.DB, error) {
	var db *sqlx.DB
	state := retry.CallWithRetries(retry.RetryParams{
		NumRetries: 5,
		Backoff:    200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}, func() retry.RetriableCallState {
		d, err := sqlx.Connect("mysql", dsn)
		if err != nil {
			logrus.WithError(err).Warn("qserv-worker: mysql connect attempt failed, retrying")
			return retry.RetriableFailure
		}
		db = d
		return retry.Success
	})
	if state != retry.Success {
		return nil, errhand.QueryError(nil, "could not connect to MySQL at %q after retries", dsn)
	}
	return db, nil
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

	logrus.WithFields(logrus.Fields{
		"instance": cfg.Worker.InstanceName,
		"listen":   cfg.Worker.ListenAddr,
	}).Info("qserv-worker: starting")

	db, err := connectWithRetries(cfg.Worker.MysqlDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	inv := inventory.New(cfg.Worker.InstanceName)
	ctx := context.Background()
	if cfg.Worker.Rebuild {
		if err := inv.Rebuild(ctx, db); err != nil {
			return fmt.Errorf("rebuilding chunk inventory: %w", err)
		}
	} else if err := inv.Init(ctx, db); err != nil {
		return fmt.Errorf("initializing chunk inventory: %w", err)
	}

	monitor := resourcemon.New()
	dispatcher := newDispatcherClient(cfg.Worker.DispatcherAddr)
	handler := lifecycle.New(inv, monitor, dispatcher)
	loop := newCommandLoop(handler, inv, db)
	server := newServer(loop, inv, db, cfg.Worker.ListenAddr)

	ctrl := svcs.NewController()
	if err := ctrl.Register(loop); err != nil {
		return err
	}
	if err := ctrl.Register(server); err != nil {
		return err
	}

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-runCtx.Done()
		ctrl.Stop()
	}()

	return ctrl.Start(runCtx)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		errhand.Display(os.Stderr, err)
		os.Exit(1)
	}
}
