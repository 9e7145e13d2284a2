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
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
)

// SpanNamer returns the name of the server span for r.
type SpanNamer func(r *http.Request) string

type middlewareOptions struct {
	namer SpanNamer
}

// MiddlewareOption configures the server middleware.
type MiddlewareOption func(*middlewareOptions)

// WithSpanNamer sets the function naming server spans. The default uses the
// lower case request method.
func WithSpanNamer(namer SpanNamer) MiddlewareOption {
	return func(o *middlewareOptions) {
		if namer != nil {
			o.namer = namer
		}
	}
}

// Middleware returns a server middleware which wraps every request in a server
// span. The span continues the trace found in the request headers, is stored in
// the request context and is finished exactly once when the handler returns or
// panics.
func (t *Tracer) Middleware(opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := middlewareOptions{
		namer: func(r *http.Request) string { return strings.ToLower(r.Method) },
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			span := t.StartSpan(o.namer(r), ChildOf(t.Extract(r.Header)))
			span.LogEvent(EventServer)
			span.Tag(HTTPURL, requestURL(r))
			span.Tag(HTTPMethod, r.Method)
			if ip := clientIP(r); ip != "" {
				span.Tag(HTTPClientIP, ip)
			}

			reqID := r.Header.Get(BaggageRequestID)
			if reqID == "" {
				reqID = uuid.NewString()
				r.Header.Set(BaggageRequestID, reqID)
			}
			span.Tag(RequestIDTag, reqID)

			status := http.StatusInternalServerError
			defer func() {
				span.Tag(HTTPStatus, strconv.Itoa(status))
				span.Finish()
			}()

			m := httpsnoop.CaptureMetrics(next, w, r.WithContext(ContextWithSpan(r.Context(), span)))
			status = m.Code
		})
	}
}

func requestURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
