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
	"net/http"

	"github.com/openzipkin/zipkin-go/propagation/b3"
	"go.uber.org/zap"
)

// Inject writes the B3 trace context headers for sc into h.
func (t *Tracer) Inject(sc SpanContext, h http.Header) {
	if sc.TraceID.Empty() || sc.ID == 0 {
		return
	}
	h.Set(b3.TraceID, sc.TraceID.String())
	h.Set(b3.SpanID, sc.ID.String())
	if sc.Debug {
		h.Set(b3.Flags, "1")
		return
	}
	if sc.Sampled != nil {
		if *sc.Sampled {
			h.Set(b3.Sampled, "1")
		} else {
			h.Set(b3.Sampled, "0")
		}
	}
}

// Extract reads the B3 trace context headers from h. Absent or malformed
// headers yield nil, never an error: the caller simply starts a new trace.
// A sampling decision sent without identifiers yields a SpanContext holding
// only that decision.
func (t *Tracer) Extract(h http.Header) *SpanContext {
	var (
		traceID = h.Get(b3.TraceID)
		spanID  = h.Get(b3.SpanID)
		sampled = h.Get(b3.Sampled)
		flags   = h.Get(b3.Flags)
	)
	if traceID == "" && spanID == "" && sampled == "" && flags == "" {
		return nil
	}

	sc, err := b3.ParseHeaders(traceID, spanID, "", sampled, flags)
	if err != nil {
		t.logger.Debug("ignoring invalid trace context",
			zap.String("trace_id", traceID),
			zap.String("span_id", spanID),
			zap.Error(err))
		return nil
	}
	if traceID == "" && spanID == "" {
		if sc.Sampled == nil && !sc.Debug {
			return nil
		}
		return &SpanContext{Sampled: sc.Sampled, Debug: sc.Debug}
	}
	if sc.TraceID.Empty() || sc.ID == 0 {
		t.logger.Debug("ignoring empty trace context",
			zap.String("trace_id", traceID),
			zap.String("span_id", spanID))
		return nil
	}
	// the callee's parent is not propagated, only the calling span
	sc.ParentID = nil
	return sc
}
