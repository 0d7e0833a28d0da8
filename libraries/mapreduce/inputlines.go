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

package mapreduce

import (
	"bufio"
	"io"
	"sync"
)

// InputLines is the shared, concurrency-safe cursor map workers read
// from. ReadBlock returns io.EOF once every line has been delivered.
type InputLines interface {
	// ReadBlock returns complete lines, stopping once at least maxBytes
	// have been read. It returns io.EOF, with no lines, once every line
	// has been delivered.
	ReadBlock(maxBytes int) (lines [][]byte, err error)
	// MinimumBufferCapacity is the smallest read buffer a caller must
	// reserve to be guaranteed to make progress on one call.
	MinimumBufferCapacity() int
}

// LineReader adapts an io.Reader of newline-terminated records into an
// InputLines, serializing concurrent ReadBlock calls from the engine's
// worker goroutines behind a mutex.
type LineReader struct {
	mu      sync.Mutex
	r       *bufio.Reader
	maxLine int
}

// NewLineReader returns a LineReader reading newline-delimited records
// from r. maxLine sizes the read buffer and is what MinimumBufferCapacity
// reports; a longer record is still returned whole.
func NewLineReader(r io.Reader, maxLine int) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, maxLine), maxLine: maxLine}
}

func (lr *LineReader) MinimumBufferCapacity() int {
	return lr.maxLine
}

func (lr *LineReader) ReadBlock(maxBytes int) ([][]byte, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	var lines [][]byte
	used := 0
	for used < maxBytes {
		line, err := lr.r.ReadBytes('\n')
		if len(line) > 0 {
			lines = append(lines, line)
			used += len(line)
		}
		if err != nil {
			if err == io.EOF {
				if len(lines) == 0 {
					return nil, io.EOF
				}
				return lines, nil
			}
			return lines, err
		}
	}
	return lines, nil
}
