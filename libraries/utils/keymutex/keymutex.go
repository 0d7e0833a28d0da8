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

// Package keymutex provides a mutex keyed by an arbitrary string, used by
// the resource monitor to serialize scoped acquisition of a single
// (chunk, db) resource path without blocking unrelated resources.
package keymutex

import (
	"context"
	"sync"
)

// Keymutex is a set of independent, lazily created mutexes, one per key.
type Keymutex interface {
	// Lock acquires the mutex for key, blocking until it is available or
	// ctx is done.
	Lock(ctx context.Context, key string) error
	// Unlock releases the mutex for key. Unlocking a key that isn't
	// locked is a no-op.
	Unlock(key string)
}

type state struct {
	ch      chan struct{}
	waitCnt int
}

type mapKeymutex struct {
	mu     sync.Mutex
	states map[string]*state
}

// NewMapped returns a Keymutex backed by a map that only retains entries
// for keys with an active holder or waiter.
func NewMapped() Keymutex {
	return &mapKeymutex{states: make(map[string]*state)}
}

func (m *mapKeymutex) entry(key string) *state {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[key]
	if !ok {
		st = &state{ch: make(chan struct{}, 1)}
		st.ch <- struct{}{}
		m.states[key] = st
	}
	st.waitCnt++
	return st
}

func (m *mapKeymutex) Lock(ctx context.Context, key string) error {
	st := m.entry(key)
	select {
	case <-st.ch:
		m.mu.Lock()
		st.waitCnt--
		m.mu.Unlock()
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		st.waitCnt--
		if st.waitCnt == 0 && len(st.ch) == 1 {
			delete(m.states, key)
		}
		m.mu.Unlock()
		return ctx.Err()
	}
}

func (m *mapKeymutex) Unlock(key string) {
	m.mu.Lock()
	st, ok := m.states[key]
	m.mu.Unlock()
	if !ok {
		return
	}
	st.ch <- struct{}{}
	m.mu.Lock()
	if st.waitCnt == 0 && len(st.ch) == 1 {
		delete(m.states, key)
	}
	m.mu.Unlock()
}
