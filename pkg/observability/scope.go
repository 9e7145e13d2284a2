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
	"fmt"

	"go.uber.org/zap"
)

const defaultOperationKind = "method"

// Operation describes a unit of work wrapped by Tracer.Trace.
type Operation struct {
	// Name of the span and of the log line.
	Name string
	// Category groups operations, typically the owning service.
	Category string
	// Kind is the type of operation, "method" if empty. The span's component
	// becomes <service name>-<kind>.
	Kind string
	// Detail is a free form reference such as an URL template.
	Detail string
	// Description of the operation.
	Description string
}

// Trace runs fn inside a child span of the span held by ctx. The span is
// finished on every exit path of fn: success, error, cancellation and panic.
// One structured log line reports the outcome and duration. Panics are
// re-raised after the span is finished.
func (t *Tracer) Trace(ctx context.Context, op Operation, fn func(ctx context.Context) error) (err error) {
	kind := op.Kind
	if kind == "" {
		kind = defaultOperationKind
	}
	category := op.Category
	if category == "" {
		category = t.serviceName
	}
	detail := op.Detail
	if detail == "" {
		detail = op.Name
	}

	span, ctx := t.StartSpanFromContext(ctx, op.Name)
	span.LogEvent(EventServer)
	span.Tag("category", category)
	span.Tag("fun_name", op.Name)
	span.Tag("detail", detail)
	span.Tag("log_type", kind)
	if op.Description != "" {
		span.Tag("description", op.Description)
	}
	if t.serviceName != "" {
		span.Tag(ComponentTag, fmt.Sprintf("%s-%s", t.serviceName, kind))
	}

	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			span.Tag(ErrorKindTag, fmt.Sprintf("%T", err))
			span.Tag(ErrorMsgTag, err.Error())
		}
		span.Finish()

		sc := span.Context()
		fields := []zap.Field{
			zap.String("trace_id", sc.TraceID.String()),
			zap.String("span_id", sc.ID.String()),
			zap.String("category", category),
			zap.String("fun_name", op.Name),
			zap.String("detail", detail),
			zap.String("log_type", kind),
			zap.String("description", op.Description),
			zap.Time("start_time", span.StartTime()),
			zap.Time("end_time", span.StartTime().Add(span.Duration())),
			zap.Duration("duration", span.Duration()),
		}
		if err != nil {
			t.logger.Error(op.Name+" has error", append(fields, zap.Error(err))...)
		} else {
			t.logger.Info(op.Name+" is success", fields...)
		}
		if r != nil {
			panic(r)
		}
	}()

	return fn(ctx)
}
