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
	"fmt"
	"sort"
	"time"

	"github.com/basvanbeek/span-pipeline/pkg"
	"github.com/basvanbeek/span-pipeline/pkg/observability"
)

// DefaultServiceName is reported when neither the span nor the exporter
// provide a service name.
const DefaultServiceName = "service"

// ErrMalformedSpan is returned when a span cannot be translated.
const ErrMalformedSpan pkg.Error = "malformed span"

// Core annotation values of the Zipkin v1 model.
const (
	ClientSend    = "cs"
	ClientReceive = "cr"
	ServerReceive = "sr"
	ServerSend    = "ss"
)

// Endpoint identifies the service reporting an annotation.
type Endpoint struct {
	ServiceName string `json:"serviceName"`
}

// Annotation is a timed event of a span.
type Annotation struct {
	Endpoint  Endpoint `json:"endpoint"`
	Timestamp int64    `json:"timestamp"`
	Value     string   `json:"value"`
}

// BinaryAnnotation is an untimed key/value pair of a span.
type BinaryAnnotation struct {
	Endpoint Endpoint    `json:"endpoint"`
	Key      string      `json:"key"`
	Value    interface{} `json:"value"`
}

// Record is the Zipkin v1 JSON representation of a span as POSTed to the
// collector. Timestamps and durations are in microseconds.
type Record struct {
	TraceID           string             `json:"traceId"`
	ID                string             `json:"id"`
	ParentID          string             `json:"parentId,omitempty"`
	Name              string             `json:"name"`
	Timestamp         int64              `json:"timestamp"`
	Duration          int64              `json:"duration"`
	Annotations       []Annotation       `json:"annotations"`
	BinaryAnnotations []BinaryAnnotation `json:"binaryAnnotations"`
}

// Encode translates a finished span into a Record. The component tag names the
// reporting service and is not repeated as a binary annotation. If absent,
// serviceName is used, or DefaultServiceName if that is empty too.
func Encode(span observability.SpanData, serviceName string) (Record, error) {
	if err := validate(span); err != nil {
		return Record{}, err
	}

	tags, name := splitComponent(span.Tags, serviceName)
	ep := Endpoint{ServiceName: name}

	var (
		start    = micros(span.Start)
		duration = span.Duration.Microseconds()
		rec      = Record{
			TraceID:           span.TraceID.String(),
			ID:                span.ID.String(),
			Name:              span.Name,
			Timestamp:         start,
			Duration:          duration,
			Annotations:       make([]Annotation, 0, 2),
			BinaryAnnotations: make([]BinaryAnnotation, 0, len(tags)),
		}
	)
	if span.ParentID != nil {
		rec.ParentID = span.ParentID.String()
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec.BinaryAnnotations = append(rec.BinaryAnnotations, BinaryAnnotation{
			Endpoint: ep, Key: k, Value: tags[k],
		})
	}

	for _, l := range span.Logs {
		switch event := l.Event(); event {
		case observability.EventClient:
			rec.Annotations = append(rec.Annotations,
				Annotation{Endpoint: ep, Timestamp: start, Value: ClientSend},
				Annotation{Endpoint: ep, Timestamp: start + duration, Value: ClientReceive},
			)
		case observability.EventServer:
			rec.Annotations = append(rec.Annotations,
				Annotation{Endpoint: ep, Timestamp: start, Value: ServerReceive},
				Annotation{Endpoint: ep, Timestamp: start + duration, Value: ServerSend},
			)
		default:
			rec.BinaryAnnotations = append(rec.BinaryAnnotations, BinaryAnnotation{
				Endpoint: ep,
				Key:      fmt.Sprintf("%s@%d", event, micros(l.Timestamp)),
				Value:    l.Fields[observability.PayloadKey],
			})
		}
	}

	return rec, nil
}

func validate(span observability.SpanData) error {
	if span.Start.IsZero() {
		return fmt.Errorf("%w: span %q has no start time", ErrMalformedSpan, span.Name)
	}
	if span.Duration < 0 {
		return fmt.Errorf("%w: span %q has negative duration", ErrMalformedSpan, span.Name)
	}
	if span.TraceID.Empty() || span.ID == 0 {
		return fmt.Errorf("%w: span %q has no identifiers", ErrMalformedSpan, span.Name)
	}
	for k, v := range span.Tags {
		if !isScalar(v) {
			return fmt.Errorf("%w: tag %q of span %q holds non scalar %T",
				ErrMalformedSpan, k, span.Name, v)
		}
	}
	return nil
}

// splitComponent returns the tags without the component tag and the service
// name to report.
func splitComponent(tags map[string]interface{}, serviceName string) (map[string]interface{}, string) {
	rest := make(map[string]interface{}, len(tags))
	for k, v := range tags {
		rest[k] = v
	}
	name := serviceName
	if c, ok := rest[observability.ComponentTag]; ok {
		delete(rest, observability.ComponentTag)
		if s := fmt.Sprint(c); s != "" {
			name = s
		}
	}
	if name == "" {
		name = DefaultServiceName
	}
	return rest, name
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

func micros(t time.Time) int64 {
	return t.UnixNano() / int64(time.Microsecond)
}
