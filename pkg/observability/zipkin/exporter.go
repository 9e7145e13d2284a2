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
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/basvanbeek/span-pipeline/pkg/observability"
)

// DefectError reports a panic raised while exporting a span. It indicates a
// programming error and stops the export loop.
type DefectError struct {
	Span  string
	Value interface{}
}

// Error implements error.
func (e *DefectError) Error() string {
	return fmt.Sprintf("exporting span %q panicked: %v", e.Span, e.Value)
}

// Exporter drains a Queue and transmits each span through a Sender. Run must
// only be called by one goroutine.
type Exporter struct {
	queue   *observability.Queue
	sender  Sender
	timeout time.Duration
	logger  *zap.Logger
	metrics *Metrics
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithSendTimeout bounds the time spent transmitting one span.
func WithSendTimeout(d time.Duration) ExporterOption {
	return func(e *Exporter) {
		e.timeout = d
	}
}

// WithExporterLogger sets the Exporter's logger.
func WithExporterLogger(logger *zap.Logger) ExporterOption {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics updated by the Exporter.
func WithMetrics(m *Metrics) ExporterOption {
	return func(e *Exporter) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewExporter returns an Exporter consuming q.
func NewExporter(q *observability.Queue, sender Sender, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		queue:  q,
		sender: sender,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil, func() float64 { return float64(q.Len()) })
	}
	return e
}

// Run exports spans until ctx is done, in which case it returns nil. Encoding
// and transport failures are logged and the span is skipped. A panic while
// exporting stops the loop and is returned as a *DefectError.
func (e *Exporter) Run(ctx context.Context) error {
	for {
		span, err := e.queue.Pop(ctx)
		if err != nil {
			return nil
		}
		if err := e.export(ctx, span); err != nil {
			return err
		}
	}
}

func (e *Exporter) export(ctx context.Context, span observability.SpanData) (defect error) {
	defer e.queue.Done()
	defer func() {
		if r := recover(); r != nil {
			defect = &DefectError{Span: span.Name, Value: r}
		}
	}()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	err := e.sender.Send(ctx, span)
	switch {
	case err == nil:
		e.metrics.Exported.Inc()
	case errors.Is(err, ErrMalformedSpan):
		e.metrics.Failed.WithLabelValues(reasonEncoding).Inc()
		e.logger.Warn("skipping malformed span",
			zap.String("trace_id", span.TraceID.String()),
			zap.String("name", span.Name),
			zap.Error(err))
	default:
		e.metrics.Failed.WithLabelValues(reasonTransport).Inc()
		e.logger.Error("span export failed",
			zap.String("trace_id", span.TraceID.String()),
			zap.String("id", span.ID.String()),
			zap.String("name", span.Name),
			zap.Error(err))
	}
	return nil
}
