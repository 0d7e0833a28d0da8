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

package resourcemon

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementDecrementAndCount(t *testing.T) {
	m := New()
	m.Increment("LSST", 31415)
	m.Increment("LSST", 31415)
	m.Increment("wise", 31415)

	assert.Equal(t, 3, m.Count(31415, []string{"LSST", "wise"}))
	assert.Equal(t, 2, m.Count(31415, []string{"LSST"}))

	m.Decrement("LSST", 31415)
	assert.Equal(t, 1, m.Count(31415, []string{"LSST"}))
}

func TestDecrementDoesNotGoNegative(t *testing.T) {
	m := New()
	m.Decrement("LSST", 1)
	assert.Equal(t, 0, m.Count(1, []string{"LSST"}))
}

func TestAcquireReleaseIsScoped(t *testing.T) {
	m := New()
	acq, err := m.Acquire(context.Background(), "LSST", 31415)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count(31415, []string{"LSST"}))

	acq.Release()
	assert.Equal(t, 0, m.Count(31415, []string{"LSST"}))

	acq.Release()
	assert.Equal(t, 0, m.Count(31415, []string{"LSST"}))
}

func TestAcquireSerializesSameResource(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	maxConcurrent := 0
	concurrent := 0

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acq, err := m.Acquire(context.Background(), "LSST", 1)
			require.NoError(t, err)
			mu.Lock()
			concurrent++
			if concurrent > maxConcurrent {
				maxConcurrent = concurrent
			}
			mu.Unlock()

			mu.Lock()
			concurrent--
			mu.Unlock()
			acq.Release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxConcurrent)
}
