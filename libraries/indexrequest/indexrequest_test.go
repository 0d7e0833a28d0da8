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

package indexrequest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPoller struct {
	mu      sync.Mutex
	replies []StatusReply
	idx     int
	polls   int
	cancels int
}

func (p *scriptedPoller) PollStatus(ctx context.Context, id string) (StatusReply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if p.idx >= len(p.replies) {
		return StatusReply{Status: FINISHED}, nil
	}
	r := p.replies[p.idx]
	p.idx++
	return r, nil
}

func (p *scriptedPoller) CancelRequest(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels++
	return nil
}

func TestRequestReachesSuccessWithoutPolling(t *testing.T) {
	poller := &scriptedPoller{}
	var terminalStatus Status
	var once sync.Once
	done := make(chan struct{})
	req := New("r1", "worker1", poller, true, NewBackOff(time.Millisecond, time.Millisecond*4), func(r *Request) {
		once.Do(func() {
			terminalStatus = r.Status()
			close(done)
		})
	})

	req.Dispatch(context.Background(), StatusReply{Status: SUCCESS})
	<-done
	assert.Equal(t, SUCCESS, terminalStatus)
	assert.Equal(t, 0, poller.polls)
}

func TestRequestPollsUntilTerminal(t *testing.T) {
	poller := &scriptedPoller{
		replies: []StatusReply{
			{Status: SERVER_QUEUED},
			{Status: SERVER_IN_PROGRESS},
			{Status: SUCCESS},
		},
	}
	done := make(chan struct{})
	var once sync.Once
	var final Status
	req := New("r2", "worker1", poller, true, NewBackOff(time.Millisecond, time.Millisecond*4), func(r *Request) {
		once.Do(func() {
			final = r.Status()
			close(done)
		})
	})

	req.Dispatch(context.Background(), StatusReply{Status: SERVER_QUEUED})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached terminal status")
	}
	assert.Equal(t, SUCCESS, final)
	assert.GreaterOrEqual(t, poller.polls, 2)
}

func TestRequestWithoutKeepTrackingDoesNotPoll(t *testing.T) {
	poller := &scriptedPoller{}
	done := make(chan struct{})
	req := New("r3", "worker1", poller, false, NewBackOff(time.Millisecond, time.Millisecond*4), func(r *Request) {
		close(done)
	})

	req.Dispatch(context.Background(), StatusReply{Status: SERVER_QUEUED})

	select {
	case <-done:
		t.Fatal("onTerminal fired for a non-terminal status with keepTracking disabled")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 0, poller.polls)
	assert.Equal(t, SERVER_QUEUED, req.Status())
}

func TestCancelStopsTimerAndCallsWorker(t *testing.T) {
	poller := &scriptedPoller{
		replies: []StatusReply{{Status: SERVER_IS_CANCELLING}},
	}
	req := New("r4", "worker1", poller, true, NewBackOff(time.Second, time.Second*4), func(r *Request) {})
	req.Dispatch(context.Background(), StatusReply{Status: SERVER_QUEUED})

	require.NoError(t, req.Cancel(context.Background()))
	poller.mu.Lock()
	cancels := poller.cancels
	poller.mu.Unlock()
	assert.Equal(t, 1, cancels)
}

func TestReplyWithTargetPerformanceReachesSuccess(t *testing.T) {
	tp := 42.5
	poller := &scriptedPoller{}
	done := make(chan struct{})
	req := New("r5", "worker1", poller, true, NewBackOff(time.Millisecond, time.Millisecond*4), func(r *Request) {
		close(done)
	})
	req.Dispatch(context.Background(), StatusReply{Status: SUCCESS, TargetPerformance: &tp})
	<-done
	assert.Equal(t, SUCCESS, req.Status())
}

func TestIsTerminalAndIsPollable(t *testing.T) {
	assert.True(t, isTerminal(SUCCESS))
	assert.True(t, isTerminal(CLIENT_ERROR))
	assert.False(t, isTerminal(SERVER_QUEUED))
	assert.True(t, isPollable(SERVER_IN_PROGRESS))
	assert.False(t, isPollable(SUCCESS))
}
