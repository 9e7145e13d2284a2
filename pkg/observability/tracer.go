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
	"time"

	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/idgenerator"
	"github.com/openzipkin/zipkin-go/model"
	"go.uber.org/zap"
)

// Recorder receives finished spans.
type Recorder interface {
	Record(SpanData)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(SpanData)

// Record implements Recorder.
func (f RecorderFunc) Record(s SpanData) { f(s) }

// Tracer creates spans, links them into traces and propagates their context
// over HTTP headers. A Tracer is passed explicitly to whoever needs it.
type Tracer struct {
	recorder    Recorder
	sampler     zipkin.Sampler
	ids         idgenerator.IDGenerator
	serviceName string
	tags        map[string]interface{}
	logger      *zap.Logger
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithSampler sets the sampler deciding on new traces. Defaults to always
// sampling.
func WithSampler(sampler zipkin.Sampler) TracerOption {
	return func(t *Tracer) {
		if sampler != nil {
			t.sampler = sampler
		}
	}
}

// WithIDGenerator overrides the random 64 bit identifier generator.
func WithIDGenerator(ids idgenerator.IDGenerator) TracerOption {
	return func(t *Tracer) {
		if ids != nil {
			t.ids = ids
		}
	}
}

// WithLocalServiceName sets the value of the component tag every span starts
// with.
func WithLocalServiceName(name string) TracerOption {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// WithTags adds tags to every span created by the Tracer.
func WithTags(tags map[string]interface{}) TracerOption {
	return func(t *Tracer) {
		for k, v := range tags {
			t.tags[k] = v
		}
	}
}

// WithLogger sets the logger used for propagation and scoped span logging.
func WithLogger(logger *zap.Logger) TracerOption {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracer returns a Tracer handing its finished spans to rec. A nil
// Recorder discards all spans.
func NewTracer(rec Recorder, opts ...TracerOption) *Tracer {
	t := &Tracer{
		recorder: rec,
		sampler:  zipkin.AlwaysSample,
		ids:      idgenerator.NewRandom64(),
		tags:     make(map[string]interface{}),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ServiceName returns the local service name of the Tracer.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

// Logger returns the Tracer's logger.
func (t *Tracer) Logger() *zap.Logger {
	return t.logger
}

type spanOptions struct {
	parent *SpanContext
	start  time.Time
	tags   map[string]interface{}
}

// SpanOption configures a Span at creation.
type SpanOption func(*spanOptions)

// ChildOf sets the parent of the new Span. A nil or empty parent starts a new
// trace. An empty parent still passes on its sampling decision.
func ChildOf(parent *SpanContext) SpanOption {
	return func(o *spanOptions) {
		o.parent = parent
	}
}

// StartTime overrides the start time of the new Span.
func StartTime(start time.Time) SpanOption {
	return func(o *spanOptions) {
		o.start = start
	}
}

// Tags sets initial tags on the new Span.
func Tags(tags map[string]interface{}) SpanOption {
	return func(o *spanOptions) {
		o.tags = tags
	}
}

// StartSpan creates and starts a Span.
func (t *Tracer) StartSpan(name string, opts ...SpanOption) *Span {
	var o spanOptions
	for _, opt := range opts {
		opt(&o)
	}
	if name == "" {
		name = defaultSpanOp
	}

	var sc SpanContext
	if p := o.parent; p != nil {
		sc.Debug = p.Debug
		sc.Sampled = p.Sampled
	}
	if p := o.parent; p != nil && !p.TraceID.Empty() && p.ID != 0 {
		parentID := p.ID
		sc.TraceID = p.TraceID
		sc.ParentID = &parentID
		sc.ID = t.ids.SpanID(model.TraceID{})
	} else {
		sc.TraceID = t.ids.TraceID()
		// a root span shares its identifier with the trace
		sc.ID = t.ids.SpanID(sc.TraceID)
	}
	if sc.Sampled == nil && !sc.Debug {
		sampled := t.sampler(sc.TraceID.Low)
		sc.Sampled = &sampled
	}

	if o.start.IsZero() {
		o.start = time.Now()
	}

	s := &Span{
		tracer: t,
		name:   name,
		sc:     sc,
		start:  o.start,
		tags:   make(map[string]interface{}, len(t.tags)+len(o.tags)+1),
	}
	if t.serviceName != "" {
		s.tags[ComponentTag] = t.serviceName
	}
	for k, v := range t.tags {
		s.tags[k] = v
	}
	for k, v := range o.tags {
		s.tags[k] = v
	}
	return s
}

// StartSpanFromContext starts a Span which is a child of the Span found in
// ctx, if any, and returns it together with a context holding the new Span.
func (t *Tracer) StartSpanFromContext(ctx context.Context, name string, opts ...SpanOption) (*Span, context.Context) {
	if parent := SpanFromContext(ctx); parent != nil {
		sc := parent.Context()
		opts = append([]SpanOption{ChildOf(&sc)}, opts...)
	}
	span := t.StartSpan(name, opts...)
	return span, ContextWithSpan(ctx, span)
}

func (t *Tracer) record(data SpanData) {
	if t.recorder == nil {
		return
	}
	if !data.Debug && data.Sampled != nil && !*data.Sampled {
		return
	}
	t.recorder.Record(data)
}
