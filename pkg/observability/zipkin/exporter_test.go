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

package zipkin

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/basvanbeek/span-pipeline/pkg/observability"
)

type senderFunc func(context.Context, observability.SpanData) error

func (f senderFunc) Send(ctx context.Context, s observability.SpanData) error { return f(ctx, s) }

func (f senderFunc) Close() error { return nil }

func runExporter(t *testing.T, e *Exporter) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func join(t *testing.T, q *observability.Queue) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Join(ctx))
}

func TestExporterOrder(t *testing.T) {
	collector := newFakeCollector(t, http.StatusAccepted)
	q := observability.NewQueue()
	tracer := observability.NewTracer(q, observability.WithLocalServiceName("user"))

	e := NewExporter(q, NewHTTPSender(collector.URL, "", time.Second, nil))
	cancel, done := runExporter(t, e)

	names := []string{"a", "b", "c", "d"}
	for _, name := range names {
		tracer.StartSpan(name).Finish()
	}
	join(t, q)

	recs := collector.Records()
	require.Len(t, recs, len(names))
	for i, rec := range recs {
		assert.Equal(t, names[i], rec.Name)
	}
	assert.Equal(t, float64(len(names)), testutil.ToFloat64(e.metrics.Exported))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("exporter did not stop")
	}
}

func TestExporterSurvivesFailures(t *testing.T) {
	collector := newFakeCollector(t, http.StatusInternalServerError)
	core, logs := observer.New(zapcore.WarnLevel)
	reg := prometheus.NewRegistry()
	q := observability.NewQueue()

	metrics := NewMetrics(reg, func() float64 { return float64(q.Len()) })
	e := NewExporter(q, NewHTTPSender(collector.URL, "user", time.Second, nil),
		WithExporterLogger(zap.New(core)),
		WithMetrics(metrics),
	)
	runExporter(t, e)

	q.Record(newSpanData("malformed", time.Time{}, 0, ""))
	q.Record(newSpanData("rejected", time.Unix(1, 0), time.Millisecond, ""))
	join(t, q)

	assert.Equal(t, 1, collector.Calls())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Failed.WithLabelValues(reasonEncoding)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Failed.WithLabelValues(reasonTransport)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.Exported))
	assert.Equal(t, 1, logs.FilterMessage("skipping malformed span").Len())
	assert.Equal(t, 1, logs.FilterMessage("span export failed").Len())

	// the loop keeps running after failures
	collector.mtx.Lock()
	collector.status = http.StatusAccepted
	collector.mtx.Unlock()
	q.Record(newSpanData("accepted", time.Unix(1, 0), time.Millisecond, ""))
	join(t, q)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Exported))

	n, err := testutil.GatherAndCount(reg, "tracing_spans_backlog")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExporterDefectStopsLoop(t *testing.T) {
	q := observability.NewQueue()
	var sent []string
	e := NewExporter(q, senderFunc(func(_ context.Context, s observability.SpanData) error {
		if s.Name == "bug" {
			panic("encoder bug")
		}
		sent = append(sent, s.Name)
		return nil
	}))

	q.Record(observability.SpanData{Name: "ok"})
	q.Record(observability.SpanData{Name: "bug"})
	q.Record(observability.SpanData{Name: "never"})

	err := e.Run(context.Background())
	var defect *DefectError
	require.True(t, errors.As(err, &defect))
	assert.Equal(t, "bug", defect.Span)
	assert.Equal(t, "encoder bug", defect.Value)
	assert.Equal(t, []string{"ok"}, sent)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, q.Pending())
}

func TestExporterSendTimeout(t *testing.T) {
	q := observability.NewQueue()
	deadlines := make(chan bool, 1)
	e := NewExporter(q, senderFunc(func(ctx context.Context, _ observability.SpanData) error {
		_, ok := ctx.Deadline()
		deadlines <- ok
		return nil
	}), WithSendTimeout(time.Second))
	runExporter(t, e)

	q.Record(observability.SpanData{Name: "op"})
	select {
	case ok := <-deadlines:
		assert.True(t, ok, "expected send to be bounded by a deadline")
	case <-time.After(5 * time.Second):
		t.Fatal("span not sent")
	}
}

func TestLocalOnlyDrainsWithoutNetwork(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc := &Service{
		Servicename:  "user",
		Format:       FormatV1,
		SampleRate:   1,
		SendTimeout:  time.Second,
		DrainTimeout: 5 * time.Second,
		Logger:       zap.New(core),
	}
	require.NoError(t, svc.Validate())
	require.NoError(t, svc.PreRun())
	_, isLog := svc.Sender.(*LogSender)
	require.True(t, isLog, "expected spans to be logged only without collector")

	served := make(chan error, 1)
	go func() { served <- svc.Serve() }()

	span, ctx := svc.Tracer().StartSpanFromContext(context.Background(), "get_user")
	child, _ := svc.Tracer().StartSpanFromContext(ctx, "get_city_by_id")
	child.Finish()
	span.Finish()

	svc.GracefulStop()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, 0, svc.Queue().Pending())
	assert.Equal(t, 2, logs.FilterMessage("user span").Len())
}
