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
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/openzipkin/zipkin-go/reporter"
	"go.uber.org/zap"

	"github.com/basvanbeek/span-pipeline/pkg"
	"github.com/basvanbeek/span-pipeline/pkg/observability"
)

// ErrCollectorStatus is returned when the collector answers with a non 2xx
// status code.
const ErrCollectorStatus pkg.Error = "unexpected collector response"

// Sender transmits a single finished span.
type Sender interface {
	Send(ctx context.Context, span observability.SpanData) error
	Close() error
}

// HTTPSender POSTs spans in the Zipkin v1 JSON format, one span per request,
// as a single element array.
type HTTPSender struct {
	url         string
	serviceName string
	client      *resty.Client
	logger      *zap.Logger
}

// NewHTTPSender returns a v1 Sender for the collector at url.
func NewHTTPSender(url, serviceName string, timeout time.Duration, logger *zap.Logger) *HTTPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSender{
		url:         url,
		serviceName: serviceName,
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		logger: logger,
	}
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, span observability.SpanData) error {
	rec, err := Encode(span, s.serviceName)
	if err != nil {
		return err
	}
	res, err := s.client.R().
		SetContext(ctx).
		SetBody([]Record{rec}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("post span to %s: %w", s.url, err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("%w: %s: %s", ErrCollectorStatus, res.Status(), res.String())
	}
	s.logger.Debug("span sent",
		zap.String("trace_id", rec.TraceID),
		zap.String("id", rec.ID),
		zap.Int("status", res.StatusCode()))
	return nil
}

// Close implements Sender.
func (s *HTTPSender) Close() error {
	return nil
}

// ReporterSender hands spans in the Zipkin v2 model to a zipkin-go reporter,
// which batches and transmits them on its own.
type ReporterSender struct {
	reporter    reporter.Reporter
	serviceName string
}

// NewReporterSender returns a Sender delegating to rep. Close closes rep.
func NewReporterSender(rep reporter.Reporter, serviceName string) *ReporterSender {
	return &ReporterSender{reporter: rep, serviceName: serviceName}
}

// Send implements Sender.
func (s *ReporterSender) Send(_ context.Context, span observability.SpanData) error {
	m, err := ToModel(span, s.serviceName)
	if err != nil {
		return err
	}
	s.reporter.Send(m)
	return nil
}

// Close implements Sender.
func (s *ReporterSender) Close() error {
	return s.reporter.Close()
}

// LogSender only logs spans. It is used when no collector is configured.
type LogSender struct {
	serviceName string
	logger      *zap.Logger
}

// NewLogSender returns a Sender writing each span record to logger.
func NewLogSender(serviceName string, logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{serviceName: serviceName, logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, span observability.SpanData) error {
	rec, err := Encode(span, s.serviceName)
	if err != nil {
		return err
	}
	s.logger.Info(fmt.Sprintf("%s span", serviceOf(rec)),
		zap.String("trace_id", rec.TraceID),
		zap.String("id", rec.ID),
		zap.String("parent_id", rec.ParentID),
		zap.String("name", rec.Name),
		zap.Int64("timestamp", rec.Timestamp),
		zap.Int64("duration", rec.Duration),
		zap.Any("annotations", rec.Annotations),
		zap.Any("binary_annotations", rec.BinaryAnnotations))
	return nil
}

// Close implements Sender.
func (s *LogSender) Close() error {
	return nil
}

func serviceOf(rec Record) string {
	switch {
	case len(rec.Annotations) > 0:
		return rec.Annotations[0].Endpoint.ServiceName
	case len(rec.BinaryAnnotations) > 0:
		return rec.BinaryAnnotations[0].Endpoint.ServiceName
	default:
		return DefaultServiceName
	}
}
