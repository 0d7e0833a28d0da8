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

// Package svcs provides a small service-lifecycle controller: register a
// set of Services, start them all in order, run them concurrently, and
// stop them all in reverse order on request. cmd/qserv-worker uses this
// to sequence its command loop and its HTTP command/index-extraction
// server through a single coordinated shutdown.
package svcs

import (
	"context"
	"errors"
	"sync"
)

// Service is a long running component with an explicit lifecycle.
type Service interface {
	// Init prepares the service to run. If it returns an error, Run is
	// never called for this service.
	Init(ctx context.Context) error
	// Run executes the service until the controller calls Stop. It does
	// not return a value; report failures through Stop instead.
	Run(ctx context.Context)
	// Stop shuts the service down and reports any error encountered
	// while doing so, or while it was running.
	Stop() error
}

// AnonService adapts three plain functions into a Service, primarily for
// tests and small one-off services.
type AnonService struct {
	InitF func(ctx context.Context) error
	RunF  func(ctx context.Context)
	StopF func() error
}

func (a *AnonService) Init(ctx context.Context) error {
	if a.InitF == nil {
		return nil
	}
	return a.InitF(ctx)
}

func (a *AnonService) Run(ctx context.Context) {
	if a.RunF != nil {
		a.RunF(ctx)
	}
}

func (a *AnonService) Stop() error {
	if a.StopF == nil {
		return nil
	}
	return a.StopF()
}

// Controller sequences a group of Services through Init, concurrent Run,
// and reverse-order Stop.
type Controller struct {
	mu          sync.Mutex
	services    []Service
	startCalled bool

	startCh  chan struct{}
	startErr error

	stopRequested chan struct{}
	stopOnce      sync.Once

	stopCh  chan struct{}
	stopErr error
}

// NewController returns an empty, unstarted Controller.
func NewController() *Controller {
	return &Controller{
		startCh:       make(chan struct{}),
		stopRequested: make(chan struct{}),
		stopCh:        make(chan struct{}),
	}
}

// Register adds a service to the controller. It returns an error if Start
// has already been called.
func (c *Controller) Register(s Service) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startCalled {
		return errors.New("svcs: Register called after Start")
	}
	c.services = append(c.services, s)
	return nil
}

// Stop requests that the controller stop all running services. It is
// safe to call before Start, concurrently, or more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopRequested)
	})
}

// WaitForStart blocks until the Init phase has completed (successfully or
// not) and returns the error from the first Service whose Init failed, if
// any.
func (c *Controller) WaitForStart() error {
	<-c.startCh
	return c.startErr
}

// WaitForStop blocks until every service has stopped and returns the
// first error encountered across the whole lifecycle, if any.
func (c *Controller) WaitForStop() error {
	<-c.stopCh
	return c.stopErr
}

// Start initializes every registered service in registration order, runs
// them concurrently, and blocks until Stop is called (or an Init fails),
// at which point it stops every successfully initialized service in
// reverse order. It returns the first error encountered.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.startCalled {
		c.mu.Unlock()
		return errors.New("svcs: Start called more than once")
	}
	c.startCalled = true
	services := append([]Service(nil), c.services...)
	c.mu.Unlock()

	select {
	case <-c.stopRequested:
		close(c.startCh)
		close(c.stopCh)
		return errors.New("svcs: Stop called before Start")
	default:
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	var inited []Service
	for _, s := range services {
		if err := s.Init(ctx); err != nil {
			record(err)
			break
		}
		inited = append(inited, s)
	}
	c.startErr = firstErr
	close(c.startCh)

	if firstErr != nil {
		for i := len(inited) - 1; i >= 0; i-- {
			record(inited[i].Stop())
		}
		c.stopErr = firstErr
		close(c.stopCh)
		return firstErr
	}

	var wg sync.WaitGroup
	wg.Add(len(inited))
	for _, s := range inited {
		s := s
		go func() {
			defer wg.Done()
			s.Run(ctx)
		}()
	}

	<-c.stopRequested
	for i := len(inited) - 1; i >= 0; i-- {
		record(inited[i].Stop())
	}
	wg.Wait()

	c.stopErr = firstErr
	close(c.stopCh)
	return firstErr
}
