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

	"golang.org/x/net/context"
)

// BaggageRequestID is the header carrying the request identifier across
// services. It is recorded as a tag on every server span.
const BaggageRequestID = "X-Request-Id"

// Tracerer is an extension interface that observability Services can implement
// to provide tracing functionalities.
type Tracerer interface {
	Tracer() *Tracer
}

// Contexter is an extension interface to retrieve the current span from Go's
// context.
type Contexter interface {
	// SpanFromContext retrieves a Span from Go's context propagation
	// mechanism if found. If not found, returns nil.
	SpanFromContext(ctx context.Context) *Span
}

// Middlewareer is an extension interface that observability Services can implement
// to provide an instrumented middleware.
type Middlewareer interface {
	Middleware(opts ...MiddlewareOption) func(http.Handler) http.Handler
}

// Transporter is an extension interface that observability Services can implement
// to provide an instrumented http.RoundTripper.
type Transporter interface {
	Transport(transport http.RoundTripper) (http.RoundTripper, error)
}

// Instrumenter is the set of tracing functionality handed to instrumented
// services.
type Instrumenter interface {
	Tracerer
	Contexter
	Middlewareer
	Transporter
}
