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

package main

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/lsst-dm/qservgo/libraries/inventory"
	"github.com/lsst-dm/qservgo/libraries/lifecycle"
)

// commandKind names one of the chunk-lifecycle commands the worker
// accepts: add/remove a chunk group, reload or rebuild the resident
// chunk list, replace it wholesale, read it back, or echo a payload.
type commandKind int

const (
	cmdAddGroup commandKind = iota
	cmdRemoveGroup
	cmdReload
	cmdRebuild
	cmdSet
	cmdGetList
	cmdEcho
)

// command is a single chunk-lifecycle request, carrying its own reply
// channel rather than returning synchronously: the worker's HTTP
// handlers talk to the inventory exclusively through this channel, so
// every mutation is serialized through one goroutine.
type command struct {
	kind    commandKind
	dbs     []string
	chunk   int32
	force   bool
	fresh   inventory.ExistMap
	payload string
	reply   chan lifecycle.Reply
}

// commandLoop is the svcs.Service that owns the single goroutine
// permitted to mutate the worker's inventory via lifecycle commands.
// Concurrent read-side callers (e.g. query-path validation) still use
// Inventory's own mutex directly; only mutating commands funnel through
// this channel.
type commandLoop struct {
	handler *lifecycle.Handler
	inv     *inventory.Inventory
	db      *sqlx.DB
	in      chan command
	done    chan struct{}
}

func newCommandLoop(handler *lifecycle.Handler, inv *inventory.Inventory, db *sqlx.DB) *commandLoop {
	return &commandLoop{
		handler: handler,
		inv:     inv,
		db:      db,
		in:      make(chan command, 64),
		done:    make(chan struct{}),
	}
}

func (c *commandLoop) Init(ctx context.Context) error { return nil }

func (c *commandLoop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case cmd := <-c.in:
			cmd.reply <- c.dispatch(ctx, cmd)
		}
	}
}

func (c *commandLoop) Stop() error {
	close(c.done)
	return nil
}

func (c *commandLoop) dispatch(ctx context.Context, cmd command) lifecycle.Reply {
	switch cmd.kind {
	case cmdAddGroup:
		return c.handler.AddChunkGroup(ctx, cmd.dbs, cmd.chunk)
	case cmdRemoveGroup:
		return c.handler.RemoveChunkGroup(ctx, cmd.dbs, cmd.chunk, cmd.force)
	case cmdReload:
		return c.handler.ReloadChunkList(ctx, cmd.fresh)
	case cmdRebuild:
		return c.handler.RebuildChunkList(ctx, func(ctx context.Context) error { return c.inv.Rebuild(ctx, c.db) })
	case cmdSet:
		return c.handler.SetChunkList(ctx, cmd.fresh, cmd.force)
	case cmdGetList:
		return c.handler.GetChunkList(ctx)
	case cmdEcho:
		return c.handler.Echo(ctx, cmd.payload)
	default:
		return lifecycle.Reply{Status: lifecycle.INVALID, Message: "unknown command"}
	}
}

// submit sends cmd to the loop and blocks for its reply, failing with
// ctx's error if ctx is cancelled first, or with context.Canceled if the
// loop has already stopped.
func (c *commandLoop) submit(ctx context.Context, cmd command) (lifecycle.Reply, error) {
	cmd.reply = make(chan lifecycle.Reply, 1)
	select {
	case c.in <- cmd:
	case <-ctx.Done():
		return lifecycle.Reply{}, ctx.Err()
	case <-c.done:
		return lifecycle.Reply{}, context.Canceled
	}
	select {
	case r := <-cmd.reply:
		return r, nil
	case <-ctx.Done():
		return lifecycle.Reply{}, ctx.Err()
	}
}
