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

package observability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/model"
)

type collector struct {
	mtx   sync.Mutex
	spans []SpanData
}

func (c *collector) Record(s SpanData) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.spans = append(c.spans, s)
}

func (c *collector) Spans() []SpanData {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]SpanData(nil), c.spans...)
}

func TestStartSpanRoot(t *testing.T) {
	tracer := NewTracer(nil)
	span := tracer.StartSpan("root")
	sc := span.Context()

	if sc.TraceID.Empty() {
		t.Fatal("expected a trace id")
	}
	if sc.ParentID != nil {
		t.Errorf("expected no parent, got %s", sc.ParentID)
	}
	if uint64(sc.ID) != sc.TraceID.Low {
		t.Errorf("expected root span id %s to equal trace id %s", sc.ID, sc.TraceID)
	}
	if sc.Sampled == nil || !*sc.Sampled {
		t.Error("expected root span to be sampled")
	}
}

func TestStartSpanChild(t *testing.T) {
	tracer := NewTracer(nil)
	parent := tracer.StartSpan("parent")
	psc := parent.Context()

	for i := 0; i < 10; i++ {
		child := tracer.StartSpan("child", ChildOf(&psc))
		sc := child.Context()
		if sc.TraceID != psc.TraceID {
			t.Fatalf("expected trace id %s, got %s", psc.TraceID, sc.TraceID)
		}
		if sc.ParentID == nil || *sc.ParentID != psc.ID {
			t.Fatalf("expected parent id %s, got %v", psc.ID, sc.ParentID)
		}
		if sc.ID == psc.ID {
			t.Fatalf("expected child id to differ from parent id %s", psc.ID)
		}
	}
}

func TestStartSpanEmptyParent(t *testing.T) {
	tracer := NewTracer(nil)
	span := tracer.StartSpan("op", ChildOf(&SpanContext{}))
	if span.Context().ParentID != nil {
		t.Error("expected an empty parent to start a new trace")
	}
}

func TestStartSpanDefaults(t *testing.T) {
	tracer := NewTracer(nil,
		WithLocalServiceName("user"),
		WithTags(map[string]interface{}{VersionTag: "v1.0.0"}),
	)
	start := time.Unix(1, 0)
	span := tracer.StartSpan("", StartTime(start), Tags(map[string]interface{}{"k": 1}))

	if want, have := defaultSpanOp, span.Name(); want != have {
		t.Errorf("name: want %q, have %q", want, have)
	}
	if !span.StartTime().Equal(start) {
		t.Errorf("start: want %v, have %v", start, span.StartTime())
	}
	if want, have := "user", span.tags[ComponentTag]; want != have {
		t.Errorf("component: want %v, have %v", want, have)
	}
	if want, have := "v1.0.0", span.tags[VersionTag]; want != have {
		t.Errorf("version: want %v, have %v", want, have)
	}
	if want, have := 1, span.tags["k"]; want != have {
		t.Errorf("k: want %v, have %v", want, have)
	}
}

func TestFinishOnce(t *testing.T) {
	rec := &collector{}
	tracer := NewTracer(rec)

	span := tracer.StartSpan("op")
	span.Tag("a", "b")
	span.Finish()
	span.Tag("late", true)
	span.LogEvent(EventClient)
	span.Finish()
	span.FinishWithDuration(time.Hour)

	spans := rec.Spans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 recorded span, got %d", len(spans))
	}
	data := spans[0]
	if _, ok := data.Tags["late"]; ok {
		t.Error("expected tag set after finish to be ignored")
	}
	if len(data.Logs) != 0 {
		t.Errorf("expected no logs, got %d", len(data.Logs))
	}
	if data.Duration == time.Hour {
		t.Error("expected second finish to be ignored")
	}
	if data.Tags["a"] != "b" {
		t.Errorf("expected tag a=b, got %v", data.Tags["a"])
	}
}

func TestFinishWithDuration(t *testing.T) {
	rec := &collector{}
	tracer := NewTracer(rec)

	span := tracer.StartSpan("op")
	span.FinishWithDuration(5 * time.Millisecond)

	if want, have := 5*time.Millisecond, span.Duration(); want != have {
		t.Errorf("want %v, have %v", want, have)
	}
	if want, have := 5*time.Millisecond, rec.Spans()[0].Duration; want != have {
		t.Errorf("want %v, have %v", want, have)
	}
}

func TestNilSpan(t *testing.T) {
	var span *Span
	span.Tag("k", "v")
	span.LogEvent(EventServer)
	span.Finish()
	if span.TraceID() != "" || span.Name() != "" || span.Duration() != 0 {
		t.Error("expected zero values from nil span")
	}
}

func TestUnsampledSpansNotRecorded(t *testing.T) {
	rec := &collector{}
	tracer := NewTracer(rec, WithSampler(zipkin.NeverSample))

	root := tracer.StartSpan("root")
	sc := root.Context()
	child := tracer.StartSpan("child", ChildOf(&sc))
	child.Finish()
	root.Finish()

	if n := len(rec.Spans()); n != 0 {
		t.Errorf("expected unsampled spans to be dropped, got %d", n)
	}
	if child.Context().Sampled == nil || *child.Context().Sampled {
		t.Error("expected child to inherit the sampling decision")
	}
}

func TestDebugSpansRecorded(t *testing.T) {
	rec := &collector{}
	tracer := NewTracer(rec, WithSampler(zipkin.NeverSample))

	span := tracer.StartSpan("op", ChildOf(&SpanContext{
		TraceID: model.TraceID{Low: 1},
		ID:      model.ID(1),
		Debug:   true,
	}))
	span.Finish()

	if n := len(rec.Spans()); n != 1 {
		t.Errorf("expected debug span to be recorded, got %d", n)
	}
}

func TestStartSpanFromContext(t *testing.T) {
	tracer := NewTracer(nil)

	root, ctx := tracer.StartSpanFromContext(context.Background(), "root")
	if SpanFromContext(ctx) != root {
		t.Fatal("expected root span in context")
	}
	child, cctx := tracer.StartSpanFromContext(ctx, "child")
	if SpanFromContext(cctx) != child {
		t.Fatal("expected child span in context")
	}
	if p := child.Context().ParentID; p == nil || *p != root.Context().ID {
		t.Errorf("expected child of %s, got %v", root.Context().ID, p)
	}
	if SpanFromContext(nil) != nil { // nolint: staticcheck
		t.Error("expected nil span from nil context")
	}
}
