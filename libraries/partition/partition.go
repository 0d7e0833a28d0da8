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

// Package partition implements the map-reduce engine's two partitioner
// worker variants: positional (one row, one or more chunk locations) and
// match (row pairs referencing two director tables' endpoints).
package partition

import (
	"fmt"
	"strings"

	"github.com/lsst-dm/qservgo/libraries/mapreduce"
	"github.com/lsst-dm/qservgo/libraries/utils/filesys"
)

// chunkOf decodes the chunk id half of a composite key produced by
// chunker.ChunkLocation.CompositeId.
func chunkOf(composite int64) int32 {
	return int32(composite >> 32)
}

func subChunkOf(composite int64) int32 {
	return int32(uint32(composite))
}

// ChunkKeyHash is the reduce-rank hash the partitioner workers must be
// driven with: it hashes the chunk id half of the composite key only, so
// every sub-chunk of a chunk reduces on the same worker and each
// per-chunk output file has exactly one writer. Keys within a reduce
// phase still arrive in full composite order.
func ChunkKeyHash(key int64) uint32 {
	return mapreduce.HashBytes([]byte(fmt.Sprintf("%d", chunkOf(key))))
}

// nodeDir returns the output subdirectory for chunkId, or outDir itself
// when numNodes is 1.
func nodeDir(fs filesys.Filesys, outDir string, chunkId int32, numNodes int) string {
	if numNodes <= 1 {
		return outDir
	}
	node := int(mapreduce.HashBytes([]byte(fmt.Sprintf("%d", chunkId)))) % numNodes
	if node < 0 {
		node += numNodes
	}
	return fmt.Sprintf("%s/node_%05d", outDir, node)
}

func appendLine(fs filesys.Filesys, path string, lines [][]byte) error {
	w, err := fs.OpenForAppend(path)
	if err != nil {
		return err
	}
	defer w.Close()
	for _, line := range lines {
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// splitCSVLine splits one CSV-style input line into trimmed fields on a
// fixed comma delimiter. Quoted fields with embedded commas are outside
// this module's scope; the partitioner workers only need column access
// for the position/id columns they are configured with.
func splitCSVLine(line []byte) []string {
	s := string(line)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	var fields []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			fields = append(fields, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	fields = append(fields, strings.TrimSpace(s[start:]))
	return fields
}

// field returns fields[idx], or ok=false if idx is out of range.
func field(fields []string, idx int) (string, bool) {
	if idx < 0 || idx >= len(fields) {
		return "", false
	}
	return fields[idx], true
}
