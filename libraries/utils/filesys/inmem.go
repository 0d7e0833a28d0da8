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
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
)

// InMemFS is a Filesys that keeps every file in memory. It is used by
// tests that exercise the chunk index codec and the partitioner's
// output layout without touching disk.
type InMemFS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

// NewInMemFS creates an empty in-memory filesystem.
func NewInMemFS() *InMemFS {
	return &InMemFS{
		files: map[string][]byte{},
		dirs:  map[string]bool{"/": true},
	}
}

func clean(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func (fs *InMemFS) Exists(p string) (bool, bool) {
	p = clean(p)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.dirs[p] {
		return true, true
	}
	if _, ok := fs.files[p]; ok {
		return true, false
	}
	return false, false
}

func (fs *InMemFS) MkDirs(p string) error {
	p = clean(p)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for d := p; d != "/" && d != "."; d = path.Dir(d) {
		fs.dirs[d] = true
	}
	fs.dirs["/"] = true
	return nil
}

func (fs *InMemFS) ensureParent(p string) {
	fs.dirs["/"] = true
	for d := path.Dir(p); d != "/" && d != "."; d = path.Dir(d) {
		fs.dirs[d] = true
	}
}

func (fs *InMemFS) OpenForRead(p string) (io.ReadCloser, error) {
	p = clean(p)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	data, ok := fs.files[p]
	if !ok {
		return nil, fmt.Errorf("filesys: no such file %s", p)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type memWriter struct {
	fs     *InMemFS
	path   string
	buf    bytes.Buffer
	append bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()
	if w.append {
		w.fs.files[w.path] = append(append([]byte{}, w.fs.files[w.path]...), w.buf.Bytes()...)
	} else {
		w.fs.files[w.path] = append([]byte{}, w.buf.Bytes()...)
	}
	return nil
}

func (fs *InMemFS) OpenForWrite(p string) (io.WriteCloser, error) {
	p = clean(p)
	fs.mu.Lock()
	fs.ensureParent(p)
	fs.mu.Unlock()
	return &memWriter{fs: fs, path: p}, nil
}

func (fs *InMemFS) OpenForAppend(p string) (io.WriteCloser, error) {
	p = clean(p)
	fs.mu.Lock()
	fs.ensureParent(p)
	fs.mu.Unlock()
	return &memWriter{fs: fs, path: p, append: true}, nil
}

func (fs *InMemFS) ReadFile(p string) ([]byte, error) {
	p = clean(p)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	data, ok := fs.files[p]
	if !ok {
		return nil, fmt.Errorf("filesys: no such file %s", p)
	}
	return append([]byte{}, data...), nil
}

func (fs *InMemFS) WriteFile(p string, data []byte) error {
	p = clean(p)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.ensureParent(p)
	fs.files[p] = append([]byte{}, data...)
	return nil
}

func (fs *InMemFS) DeleteFile(p string) error {
	p = clean(p)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.files, p)
	return nil
}

func (fs *InMemFS) Iter(p string, cb func(path string, size int64, isDir bool) bool) error {
	p = clean(p)
	fs.mu.Lock()
	type entry struct {
		name  string
		size  int64
		isDir bool
	}
	var entries []entry
	seen := map[string]bool{}
	for fp, data := range fs.files {
		if path.Dir(fp) == p {
			entries = append(entries, entry{fp, int64(len(data)), false})
		}
	}
	for d := range fs.dirs {
		if d != p && path.Dir(d) == p && !seen[d] {
			seen[d] = true
			entries = append(entries, entry{d, 0, true})
		}
	}
	fs.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	for _, e := range entries {
		if cb(e.name, e.size, e.isDir) {
			break
		}
	}
	return nil
}

func (fs *InMemFS) Abs(p string) (string, error) {
	return clean(p), nil
}
