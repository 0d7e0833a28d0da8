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

// Package indexrequest implements the per-chunk index request state
// machine: a request moves from CREATED through IN_PROGRESS to a
// terminal status, with an interval-doubling poll timer driving status
// refreshes while the worker reports the request as still queued or
// running.
package indexrequest

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lsst-dm/qservgo/libraries/utils/errhand"
)

// Status is a node of the request state machine.
type Status int

const (
	CREATED Status = iota
	IN_PROGRESS
	SUCCESS
	SERVER_QUEUED
	SERVER_IN_PROGRESS
	SERVER_IS_CANCELLING
	SERVER_BAD
	SERVER_ERROR
	SERVER_CANCELLED
	CLIENT_ERROR
	FINISHED
)

func (s Status) String() string {
	switch s {
	case CREATED:
		return "CREATED"
	case IN_PROGRESS:
		return "IN_PROGRESS"
	case SUCCESS:
		return "SUCCESS"
	case SERVER_QUEUED:
		return "SERVER_QUEUED"
	case SERVER_IN_PROGRESS:
		return "SERVER_IN_PROGRESS"
	case SERVER_IS_CANCELLING:
		return "SERVER_IS_CANCELLING"
	case SERVER_BAD:
		return "SERVER_BAD"
	case SERVER_ERROR:
		return "SERVER_ERROR"
	case SERVER_CANCELLED:
		return "SERVER_CANCELLED"
	case CLIENT_ERROR:
		return "CLIENT_ERROR"
	case FINISHED:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// isTerminal reports whether s ends the request's lifecycle.
func isTerminal(s Status) bool {
	switch s {
	case SUCCESS, SERVER_BAD, SERVER_ERROR, SERVER_CANCELLED, CLIENT_ERROR, FINISHED:
		return true
	default:
		return false
	}
}

// isPollable reports whether s should schedule another status poll when
// keepTracking is enabled.
func isPollable(s Status) bool {
	switch s {
	case SERVER_QUEUED, SERVER_IN_PROGRESS, SERVER_IS_CANCELLING:
		return true
	default:
		return false
	}
}

// StatusReply is one worker response to a REQUEST_STATUS poll, or the
// initial dispatch reply.
type StatusReply struct {
	Status Status
	// TargetPerformance is the worker's optional performance report.
	// Request keeps only the reply's Status; this field is not stored.
	TargetPerformance *float64
	Message           string
}

// Poller issues the worker-facing status poll and cancel RPCs. A real
// implementation talks to a worker over the wire; tests supply a fake.
type Poller interface {
	PollStatus(ctx context.Context, requestID string) (StatusReply, error)
	CancelRequest(ctx context.Context, requestID string) error
}

// Request tracks one index-build request against one worker.
type Request struct {
	ID           string
	Worker       string
	KeepTracking bool

	mu     sync.Mutex
	status Status
	poller Poller
	bo     backoff.BackOff
	timer  *time.Timer

	onTerminal func(*Request)
}

// NewBackOff returns the interval-doubling-up-to-a-cap schedule used by
// every Request's status-poll timer.
func NewBackOff(initial, maxInterval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0
	return b
}

// New returns a Request in state CREATED. onTerminal is invoked exactly
// once, when the request reaches a terminal status.
func New(id, worker string, poller Poller, keepTracking bool, bo backoff.BackOff, onTerminal func(*Request)) *Request {
	return &Request{
		ID:           id,
		Worker:       worker,
		KeepTracking: keepTracking,
		status:       CREATED,
		poller:       poller,
		bo:           bo,
		onTerminal:   onTerminal,
	}
}

// Status returns the request's current status.
func (r *Request) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Dispatch records the initial dispatch reply and, per reply.Status,
// either finishes the request or schedules the first status poll.
func (r *Request) Dispatch(ctx context.Context, reply StatusReply) {
	r.mu.Lock()
	if r.status != CREATED {
		r.mu.Unlock()
		return
	}
	r.status = IN_PROGRESS
	r.mu.Unlock()
	r.handleReply(ctx, reply)
}

// handleReply applies reply, scheduling another poll or firing onTerminal
// as appropriate.
func (r *Request) handleReply(ctx context.Context, reply StatusReply) {
	r.mu.Lock()
	r.status = reply.Status
	terminal := isTerminal(reply.Status)
	schedule := !terminal && r.KeepTracking && isPollable(reply.Status)
	r.mu.Unlock()

	if schedule {
		r.scheduleNextPoll(ctx)
	}
	if terminal {
		if r.onTerminal != nil {
			r.onTerminal(r)
		}
	}
}

func (r *Request) scheduleNextPoll(ctx context.Context) {
	delay := r.bo.NextBackOff()
	if delay == backoff.Stop {
		return
	}
	r.mu.Lock()
	r.timer = time.AfterFunc(delay, func() { r.poll(ctx) })
	r.mu.Unlock()
}

func (r *Request) poll(ctx context.Context) {
	reply, err := r.poller.PollStatus(ctx, r.ID)
	if err != nil {
		r.handleReply(ctx, StatusReply{Status: CLIENT_ERROR, Message: err.Error()})
		return
	}
	r.handleReply(ctx, reply)
}

// Cancel stops any pending poll timer and asks the worker to cancel the
// request. No new poll is started afterwards: only a poll already under
// way when the timer is stopped still delivers its reply through
// handleReply; otherwise the request keeps its last recorded status.
func (r *Request) Cancel(ctx context.Context) error {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()

	if err := r.poller.CancelRequest(ctx, r.ID); err != nil {
		return errhand.QueryError(err, "cancelling request %s on worker %s", r.ID, r.Worker)
	}
	return nil
}
