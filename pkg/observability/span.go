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
	"sync"
	"time"

	"github.com/openzipkin/zipkin-go/model"
)

// SpanContext holds the identifiers propagated across process boundaries.
type SpanContext = model.SpanContext

// Well known tag keys and event values.
const (
	ComponentTag  = "component"
	EventKey      = "event"
	PayloadKey    = "payload"
	EventClient   = "client"
	EventServer   = "server"
	HTTPURL       = "http.url"
	HTTPPath      = "http.path"
	HTTPMethod    = "http.method"
	HTTPClientIP  = "http.client_ip"
	HTTPStatus    = "http.status_code"
	ErrorTag      = "error"
	ErrorKindTag  = "error.kind"
	ErrorMsgTag   = "error.msg"
	VersionTag    = "version"
	RequestIDTag  = BaggageRequestID
	defaultSpanOp = "span"
)

// LogRecord is a timestamped set of fields logged on a Span.
type LogRecord struct {
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Event returns the value of the event field, or an empty string.
func (l LogRecord) Event() string {
	s, _ := l.Fields[EventKey].(string)
	return s
}

// SpanData is the immutable snapshot of a finished Span. It is the only
// representation of a span that leaves the Tracer.
type SpanData struct {
	SpanContext
	Name     string
	Start    time.Time
	Duration time.Duration
	Tags     map[string]interface{}
	Logs     []LogRecord
}

// Span is a timed record of one traced operation. A Span is safe for
// concurrent use. All methods are no-ops on a nil Span.
type Span struct {
	tracer *Tracer
	name   string
	sc     SpanContext
	start  time.Time

	mtx      sync.Mutex
	finished bool
	duration time.Duration
	tags     map[string]interface{}
	logs     []LogRecord
}

// Context returns the Span's SpanContext.
func (s *Span) Context() SpanContext {
	if s == nil {
		return SpanContext{}
	}
	return s.sc
}

// TraceID returns the hex encoded trace identifier of the Span.
func (s *Span) TraceID() string {
	if s == nil {
		return ""
	}
	return s.sc.TraceID.String()
}

// Name returns the operation name.
func (s *Span) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// StartTime returns the time the Span was started.
func (s *Span) StartTime() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.start
}

// Duration returns the Span's duration. It is zero until the Span is finished.
func (s *Span) Duration() time.Duration {
	if s == nil {
		return 0
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.duration
}

// Tag sets the tag key to value. Values are expected to be scalars: strings,
// booleans, integers or floats. Tags set after Finish are ignored.
func (s *Span) Tag(key string, value interface{}) {
	if s == nil {
		return
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.finished {
		return
	}
	s.tags[key] = value
}

// LogKV appends a log record with the provided fields.
func (s *Span) LogKV(fields map[string]interface{}) {
	if s == nil {
		return
	}
	rec := LogRecord{Timestamp: time.Now(), Fields: make(map[string]interface{}, len(fields))}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.finished {
		return
	}
	s.logs = append(s.logs, rec)
}

// LogEvent logs the role marker of the Span, typically EventClient or
// EventServer.
func (s *Span) LogEvent(event string) {
	s.LogKV(map[string]interface{}{EventKey: event})
}

// Finish ends the Span and hands it to the Tracer's Recorder. Only the first
// call has effect.
func (s *Span) Finish() {
	if s == nil {
		return
	}
	s.finish(time.Since(s.start))
}

// FinishWithDuration ends the Span with an explicit duration.
func (s *Span) FinishWithDuration(d time.Duration) {
	if s == nil {
		return
	}
	s.finish(d)
}

func (s *Span) finish(d time.Duration) {
	s.mtx.Lock()
	if s.finished {
		s.mtx.Unlock()
		return
	}
	s.finished = true
	if d < 0 {
		d = 0
	}
	s.duration = d
	data := SpanData{
		SpanContext: s.sc,
		Name:        s.name,
		Start:       s.start,
		Duration:    d,
		Tags:        s.tags,
		Logs:        s.logs,
	}
	// ownership of tags and logs moves to the snapshot
	s.tags, s.logs = nil, nil
	s.mtx.Unlock()

	if s.tracer != nil {
		s.tracer.record(data)
	}
}
