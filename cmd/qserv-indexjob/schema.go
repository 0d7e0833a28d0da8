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
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lsst-dm/qservgo/libraries/utils/errhand"
)

// ensureIndexTable creates the director table's index table (and, if
// rebuild is set, drops it first) in the director table's own database,
// named <db>__<directorTable>. This is driven by the
// BUILD-SECONDARY-INDEX endpoint, not by the job itself.
func ensureIndexTable(ctx context.Context, db *sqlx.DB, database, directorTable, pkCol, pkType string, rebuild bool) error {
	indexTable := fmt.Sprintf("%s__%s", database, directorTable)

	if rebuild {
		drop := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", database, indexTable)
		if _, err := db.ExecContext(ctx, drop); err != nil {
			return errhand.QueryError(err, "dropping index table %s.%s", database, indexTable)
		}
	}

	create := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s.%s (
			%s %s,
			chunkId INT,
			subChunkId INT,
			UNIQUE KEY(%s),
			KEY(%s)
		) ENGINE=InnoDB`,
		database, indexTable, pkCol, pkType, pkCol, pkCol,
	)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return errhand.QueryError(err, "creating index table %s.%s", database, indexTable)
	}
	return nil
}
