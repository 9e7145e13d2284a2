// Copyright (c) Bas van Beek 2022.
// Copyright (c) Tetrate, Inc 2021.
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
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/run"

	"github.com/basvanbeek/span-pipeline/pkg/observability"
)

var errStopped = errors.New("stopped")

// stopper stands in for the signal handler: closing stop shuts the group down.
type stopper struct {
	stop chan struct{}
	quit chan struct{}
}

func (s *stopper) Name() string { return "stopper" }

func (s *stopper) Serve() error {
	select {
	case <-s.stop:
		return errStopped
	case <-s.quit:
		return nil
	}
}

func (s *stopper) GracefulStop() { close(s.quit) }

type spanSink struct {
	mtx   sync.Mutex
	spans []observability.SpanData
}

func (s *spanSink) Send(_ context.Context, span observability.SpanData) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.spans = append(s.spans, span)
	return nil
}

func (s *spanSink) Close() error { return nil }

func (s *spanSink) Names() []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	names := make([]string, 0, len(s.spans))
	for _, span := range s.spans {
		names = append(names, span.Name)
	}
	return names
}

func freeAddress(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func get(url string) (int, error) {
	res, err := http.Get(url)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
	return res.StatusCode, nil
}

func TestShutdownExportsInFlightRequestSpans(t *testing.T) {
	a := newApp(config{ServiceName: "user", Hostname: "test", LogLevel: "error"})
	sink := &spanSink{}
	a.zipkin.Sender = sink

	st := &stopper{stop: make(chan struct{}), quit: make(chan struct{})}
	g := run.Group{Name: "user"}
	g.Register(st)
	g.Register(a.units()...)

	addr := freeAddress(t)
	ran := make(chan error, 1)
	go func() { ran <- g.Run("user", "--http-listen-address", addr) }()

	base := "http://" + addr
	require.Eventually(t, func() bool {
		code, err := get(base + "/metrics")
		return err == nil && code == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	code, err := get(base + "/latency/300ms")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)

	type result struct {
		code int
		err  error
	}
	inFlight := make(chan result, 1)
	go func() {
		code, err := get(base + "/roles/1")
		inFlight <- result{code, err}
	}()

	time.Sleep(100 * time.Millisecond)
	close(st.stop)

	res := <-inFlight
	require.NoError(t, res.err)
	assert.Equal(t, http.StatusOK, res.code)

	select {
	case <-ran:
	case <-time.After(10 * time.Second):
		t.Fatal("group did not shut down")
	}

	assert.Equal(t, 0, a.zipkin.Queue().Pending())
	assert.Contains(t, sink.Names(), "get_role")
}
