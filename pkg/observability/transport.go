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
	"strconv"
	"strings"
)

type transport struct {
	tracer *Tracer
	base   http.RoundTripper
}

// Transport returns an http.RoundTripper which records a client span for every
// outbound request. The span is a child of the span held by the request
// context and its context is injected into the outbound headers. The span is
// finished once the response headers have been received or the call failed.
func (t *Tracer) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{tracer: t, base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	span, _ := t.tracer.StartSpanFromContext(req.Context(), strings.ToLower(req.Method))
	defer span.Finish()

	span.LogEvent(EventClient)
	span.Tag(HTTPURL, req.URL.Scheme+"://"+req.URL.Host)
	span.Tag(HTTPPath, req.URL.Path)
	span.Tag(HTTPMethod, req.Method)

	// RoundTrippers must not modify the request
	out := req.Clone(req.Context())
	t.tracer.Inject(span.Context(), out.Header)

	res, err := t.base.RoundTrip(out)
	if err != nil {
		span.Tag(ErrorTag, err.Error())
		return nil, err
	}
	span.Tag(HTTPStatus, strconv.Itoa(res.StatusCode))
	return res, nil
}
