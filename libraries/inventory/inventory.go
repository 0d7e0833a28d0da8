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

package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lsst-dm/qservgo/libraries/utils/errhand"
	"github.com/lsst-dm/qservgo/libraries/utils/set"
)

// Querier is the narrow slice of *sqlx.DB / *sqlx.Tx the inventory needs,
// so callers can pass either a plain connection or an open transaction
// and tests can substitute an in-process fake.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
}

// Inventory is a worker's declaration of which (db, chunk) resources it
// hosts, with an optional persistent mirror in a qservw_<instance>
// metadata schema. All public methods are safe for concurrent use.
type Inventory struct {
	mu         sync.Mutex
	existMap   ExistMap
	Instance   string
	WorkerUUID uuid.UUID
}

// New returns an empty Inventory for the named worker instance.
func New(instance string) *Inventory {
	return &Inventory{Instance: instance, existMap: make(ExistMap)}
}

func (inv *Inventory) schema() string {
	return fmt.Sprintf("qservw_%s", inv.Instance)
}

// Add idempotently records (db, chunk) in memory, creating the db's
// chunk set if this is its first chunk.
func (inv *Inventory) Add(db string, chunk int32) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.addLocked(db, chunk)
}

func (inv *Inventory) addLocked(db string, chunk int32) {
	chunks, ok := inv.existMap[db]
	if !ok {
		chunks = set.NewInt32Set(nil)
		inv.existMap[db] = chunks
	}
	chunks.Add(chunk)
}

// Remove idempotently drops (db, chunk) from memory. Removing a chunk
// that isn't present is a no-op.
func (inv *Inventory) Remove(db string, chunk int32) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.removeLocked(db, chunk)
}

func (inv *Inventory) removeLocked(db string, chunk int32) {
	chunks, ok := inv.existMap[db]
	if !ok {
		return
	}
	chunks.Remove(chunk)
}

// Has reports whether (db, chunk) is currently owned.
func (inv *Inventory) Has(db string, chunk int32) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.existMap.Has(db, chunk)
}

// ExistMap returns a lock-free snapshot copy of the current inventory,
// suitable for the diff operator and other read-side callers that
// iterate without holding the inventory's mutex.
func (inv *Inventory) ExistMap() ExistMap {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.existMap.Clone()
}

// AddPersistent validates db is a known database, inserts (db, chunk)
// into the backing Chunks relation, then updates memory. The database
// write commits before the in-memory update, so a crash between the two
// leaves the store ahead of memory -- Init reconciles on restart.
func (inv *Inventory) AddPersistent(ctx context.Context, q Querier, db string, chunk int32) error {
	var count int
	rows, err := q.QueryxContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s.Dbs WHERE db = ?", inv.schema()), db)
	if err != nil {
		return errhand.QueryError(err, "checking database %q", db)
	}
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			rows.Close()
			return errhand.QueryError(err, "scanning database existence for %q", db)
		}
	}
	rows.Close()
	if count == 0 {
		return errhand.InvalidParam("database %q is not registered on this worker", db)
	}

	if _, err := q.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s.Chunks (db, chunk) VALUES (?, ?)", inv.schema()), db, chunk); err != nil {
		return errhand.QueryError(err, "inserting chunk %d for database %q", chunk, db)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.addLocked(db, chunk)
	return nil
}

// RemovePersistent unconditionally deletes (db, chunk) from the backing
// Chunks relation, then updates memory.
func (inv *Inventory) RemovePersistent(ctx context.Context, q Querier, db string, chunk int32) error {
	if _, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s.Chunks WHERE db = ? AND chunk = ?", inv.schema()), db, chunk); err != nil {
		return errhand.QueryError(err, "deleting chunk %d for database %q", chunk, db)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.removeLocked(db, chunk)
	return nil
}

// tableSuffix extracts the trailing chunk id from a physical table name
// like Object_31415, or ok=false if the name doesn't end in _<digits>.
var tableSuffixPattern = regexp.MustCompile(`_([0-9]+)$`)

func tableSuffix(tableName string) (int32, bool) {
	m := tableSuffixPattern.FindStringSubmatch(tableName)
	if m == nil {
		return 0, false
	}
	var chunk int32
	if _, err := fmt.Sscanf(m[1], "%d", &chunk); err != nil {
		return 0, false
	}
	return chunk, true
}

// Rebuild regenerates the Chunks relation from the physical tables
// actually present in each known database, then re-reads into memory.
// This is the ground-truth bootstrap used when the Chunks relation is
// suspected stale or missing.
func (inv *Inventory) Rebuild(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errhand.QueryError(err, "starting rebuild transaction")
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	dbNames, err := inv.readDbsLocked(ctx, tx)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s.Chunks", inv.schema())); err != nil {
		return errhand.QueryError(err, "clearing Chunks relation")
	}

	type pair struct {
		db    string
		chunk int32
	}
	var found []pair

	for _, dbName := range dbNames {
		rows, err := tx.QueryxContext(ctx, "SELECT table_name FROM information_schema.tables WHERE table_schema = ?", dbName)
		if err != nil {
			return errhand.QueryError(err, "listing physical tables for database %q", dbName)
		}
		for rows.Next() {
			var tableName string
			if err := rows.Scan(&tableName); err != nil {
				rows.Close()
				return errhand.QueryError(err, "scanning table name for database %q", dbName)
			}
			if chunk, ok := tableSuffix(tableName); ok {
				found = append(found, pair{db: dbName, chunk: chunk})
			}
		}
		rows.Close()
	}

	seen := make(map[pair]struct{})
	for _, p := range found {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s.Chunks (db, chunk) VALUES (?, ?)", inv.schema()), p.db, p.chunk); err != nil {
			return errhand.QueryError(err, "inserting rebuilt chunk %d for database %q", p.chunk, p.db)
		}
	}

	if err := tx.Commit(); err != nil {
		return errhand.QueryError(err, "committing rebuild transaction")
	}
	committed = true

	return inv.Init(ctx, db)
}

// Init reads Dbs, then Chunks for each db, then the worker's UUID, and
// replaces the in-memory inventory wholesale.
func (inv *Inventory) Init(ctx context.Context, q Querier) error {
	dbNames, err := inv.readDbsLocked(ctx, q)
	if err != nil {
		return err
	}

	fresh := make(ExistMap, len(dbNames))
	for _, dbName := range dbNames {
		chunks := set.NewInt32Set(nil)
		rows, err := q.QueryxContext(ctx, fmt.Sprintf("SELECT chunk FROM %s.Chunks WHERE db = ?", inv.schema()), dbName)
		if err != nil {
			return errhand.QueryError(err, "reading chunks for database %q", dbName)
		}
		for rows.Next() {
			var chunk int32
			if err := rows.Scan(&chunk); err != nil {
				rows.Close()
				return errhand.QueryError(err, "scanning chunk for database %q", dbName)
			}
			chunks.Add(chunk)
		}
		rows.Close()
		fresh[dbName] = chunks
	}

	uid, err := inv.readWorkerUUID(ctx, q)
	if err != nil {
		return err
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.existMap = fresh
	inv.WorkerUUID = uid
	return nil
}

func (inv *Inventory) readDbsLocked(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryxContext(ctx, fmt.Sprintf("SELECT db FROM %s.Dbs", inv.schema()))
	if err != nil {
		return nil, errhand.QueryError(err, "reading Dbs relation")
	}
	defer rows.Close()

	var dbNames []string
	for rows.Next() {
		var dbName string
		if err := rows.Scan(&dbName); err != nil {
			return nil, errhand.QueryError(err, "scanning Dbs relation")
		}
		dbNames = append(dbNames, dbName)
	}
	return dbNames, nil
}

func (inv *Inventory) readWorkerUUID(ctx context.Context, q Querier) (uuid.UUID, error) {
	rows, err := q.QueryxContext(ctx, fmt.Sprintf("SELECT id FROM %s.Id WHERE type = ?", inv.schema()), "UUID")
	if err != nil {
		return uuid.UUID{}, errhand.QueryError(err, "reading worker UUID")
	}
	defer rows.Close()

	if !rows.Next() {
		return uuid.UUID{}, nil
	}
	var raw string
	if err := rows.Scan(&raw); err != nil {
		return uuid.UUID{}, errhand.QueryError(err, "scanning worker UUID")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errhand.SchemaError("worker UUID %q is not a valid UUID: %s", raw, err)
	}
	return parsed, nil
}
