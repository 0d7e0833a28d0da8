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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lsst-dm/qservgo/libraries/lifecycle"
)

// dispatcherClient notifies the cluster request-routing fabric of
// resource changes, per lifecycle.Dispatcher. It speaks a minimal JSON
// notification to whatever base URL the worker is configured with. An
// empty address degrades to a log-only no-op, which keeps the worker
// runnable (e.g. in tests or a single-node deployment) without a live
// dispatcher.
type dispatcherClient struct {
	baseURL string
	client  *http.Client
}

func newDispatcherClient(baseURL string) *dispatcherClient {
	return &dispatcherClient{baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Second}}
}

type resourceNotification struct {
	Db     string `json:"db"`
	Chunk  int32  `json:"chunk"`
	Action string `json:"action"`
}

func (d *dispatcherClient) notify(db string, chunk int32, action string) {
	if d.baseURL == "" {
		logrus.WithFields(logrus.Fields{"db": db, "chunk": chunk, "action": action}).
			Debug("qserv-worker: no dispatcher configured, skipping notification")
		return
	}
	body, _ := json.Marshal(resourceNotification{Db: db, Chunk: chunk, Action: action})
	url := fmt.Sprintf("%s/resource-event", d.baseURL)
	resp, err := d.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"db": db, "chunk": chunk, "action": action}).
			Warn("qserv-worker: dispatcher notification failed")
		return
	}
	resp.Body.Close()
}

func (d *dispatcherClient) ResourceAdded(db string, chunk int32) {
	d.notify(db, chunk, "added")
}

func (d *dispatcherClient) ResourceRemoved(db string, chunk int32) {
	d.notify(db, chunk, "removed")
}

var _ lifecycle.Dispatcher = (*dispatcherClient)(nil)
