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
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockInventory(t *testing.T) (*Inventory, sqlmock.Sqlmock, *sqlx.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "mysql")
	t.Cleanup(func() { sqlxDB.Close() })
	return New("worker1"), mock, sqlxDB
}

func TestAddRemoveHasAreIdempotent(t *testing.T) {
	inv := New("worker1")

	inv.Add("LSST", 31415)
	assert.True(t, inv.Has("LSST", 31415))
	inv.Add("LSST", 31415)
	assert.True(t, inv.Has("LSST", 31415))

	inv.Remove("LSST", 31415)
	assert.False(t, inv.Has("LSST", 31415))
	inv.Remove("LSST", 31415)
	assert.False(t, inv.Has("LSST", 31415))
}

func TestDifferenceUnionReconstructsA(t *testing.T) {
	inv := New("worker1")
	inv.Add("LSST", 1)
	inv.Add("LSST", 2)
	inv.Add("LSST", 3)

	other := New("worker1")
	other.Add("LSST", 2)
	other.Add("LSST", 3)
	other.Add("LSST", 4)

	a := inv.ExistMap()
	b := other.ExistMap()

	diff := Difference(a, b)
	assert.ElementsMatch(t, []int32{1}, diff["LSST"].AsSlice())

	union := diff["LSST"].Clone()
	for _, c := range b["LSST"].AsSlice() {
		if a.Has("LSST", c) {
			union.Add(c)
		}
	}
	assert.ElementsMatch(t, a["LSST"].AsSlice(), union.AsSlice())
}

func TestTableSuffixExtractsChunkId(t *testing.T) {
	cases := []struct {
		name  string
		chunk int32
		ok    bool
	}{
		{"Object_31415", 31415, true},
		{"Source_31415", 31415, true},
		{"Object_1234567890", 1234567890, true},
		{"Object", 0, false},
		{"SomeOther_table", 0, false},
	}
	for _, c := range cases {
		chunk, ok := tableSuffix(c.name)
		assert.Equal(t, c.ok, ok, c.name)
		if ok {
			assert.Equal(t, c.chunk, chunk, c.name)
		}
	}
}

func TestAddPersistentRejectsUnknownDatabase(t *testing.T) {
	inv, mock, db := newMockInventory(t)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM qservw_worker1.Dbs").
		WithArgs("unknown").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	err := inv.AddPersistent(context.Background(), db, "unknown", 1)
	require.Error(t, err)
	assert.False(t, inv.Has("unknown", 1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddPersistentWritesThenUpdatesMemory(t *testing.T) {
	inv, mock, db := newMockInventory(t)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM qservw_worker1.Dbs").
		WithArgs("LSST").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO qservw_worker1.Chunks").
		WithArgs("LSST", int32(31415)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := inv.AddPersistent(context.Background(), db, "LSST", 31415)
	require.NoError(t, err)
	assert.True(t, inv.Has("LSST", 31415))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemovePersistentIsUnconditional(t *testing.T) {
	inv, mock, db := newMockInventory(t)
	defer db.Close()
	inv.Add("LSST", 31415)

	mock.ExpectExec("DELETE FROM qservw_worker1.Chunks").
		WithArgs("LSST", int32(31415)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := inv.RemovePersistent(context.Background(), db, "LSST", 31415)
	require.NoError(t, err)
	assert.False(t, inv.Has("LSST", 31415))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitReadsDbsChunksAndUUID(t *testing.T) {
	inv, mock, db := newMockInventory(t)
	defer db.Close()

	mock.ExpectQuery("SELECT db FROM qservw_worker1.Dbs").
		WillReturnRows(sqlmock.NewRows([]string{"db"}).AddRow("LSST"))
	mock.ExpectQuery("SELECT chunk FROM qservw_worker1.Chunks").
		WithArgs("LSST").
		WillReturnRows(sqlmock.NewRows([]string{"chunk"}).AddRow(int32(31415)).AddRow(int32(1234567890)))
	mock.ExpectQuery("SELECT id FROM qservw_worker1.Id").
		WithArgs("UUID").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("5f2a1b3c-6e4d-4a1a-9c3e-1a2b3c4d5e6f"))

	err := inv.Init(context.Background(), db)
	require.NoError(t, err)
	assert.True(t, inv.Has("LSST", 31415))
	assert.True(t, inv.Has("LSST", 1234567890))
	assert.Equal(t, "5f2a1b3c-6e4d-4a1a-9c3e-1a2b3c4d5e6f", inv.WorkerUUID.String())
	require.NoError(t, mock.ExpectationsWereMet())
}
