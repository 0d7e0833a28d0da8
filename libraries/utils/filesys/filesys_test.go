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

package filesys

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemFSWriteReadAppend(t *testing.T) {
	fs := NewInMemFS()

	require.NoError(t, fs.WriteFile("/a/b/c.txt", []byte("hello")))
	exists, isDir := fs.Exists("/a/b/c.txt")
	assert.True(t, exists)
	assert.False(t, isDir)

	data, err := fs.ReadFile("/a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	w, err := fs.OpenForAppend("/a/b/c.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte(" world"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err = fs.ReadFile("/a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	exists, isDir = fs.Exists("/a/b")
	assert.True(t, exists)
	assert.True(t, isDir)
}

func TestInMemFSOpenForWriteTruncates(t *testing.T) {
	fs := NewInMemFS()
	require.NoError(t, fs.WriteFile("/x.bin", []byte("0123456789")))

	w, err := fs.OpenForWrite("/x.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("ab"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := fs.ReadFile("/x.bin")
	require.NoError(t, err)
	assert.Equal(t, "ab", string(data))
}

func TestInMemFSIter(t *testing.T) {
	fs := NewInMemFS()
	require.NoError(t, fs.WriteFile("/node_00000/chunk_1.txt", []byte("1")))
	require.NoError(t, fs.WriteFile("/node_00000/chunk_2.txt", []byte("22")))
	require.NoError(t, fs.MkDirs("/node_00001"))

	var names []string
	err := fs.Iter("/", func(p string, size int64, isDir bool) bool {
		names = append(names, p)
		return false
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/node_00000", "/node_00001"}, names)

	var files []string
	err = fs.Iter("/node_00000", func(p string, size int64, isDir bool) bool {
		files = append(files, p)
		return false
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/node_00000/chunk_1.txt", "/node_00000/chunk_2.txt"}, files)
}

func TestInMemFSDeleteAndMissingRead(t *testing.T) {
	fs := NewInMemFS()
	require.NoError(t, fs.WriteFile("/f", []byte("x")))
	require.NoError(t, fs.DeleteFile("/f"))

	exists, _ := fs.Exists("/f")
	assert.False(t, exists)

	_, err := fs.ReadFile("/f")
	assert.Error(t, err)

	// deleting an already-missing file is not an error
	require.NoError(t, fs.DeleteFile("/f"))
}

func TestInMemFSOpenForReadMissing(t *testing.T) {
	fs := NewInMemFS()
	_, err := fs.OpenForRead("/nope")
	assert.Error(t, err)
	var _ io.Reader
}
