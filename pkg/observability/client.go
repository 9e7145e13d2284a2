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
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultClientTimeout = 10 * time.Second

// Client is an HTTP client bound to a single upstream service. Every call is
// traced as a client span, child of the span found in the call's context.
type Client struct {
	resty *resty.Client
}

// ClientOption configures a Client.
type ClientOption func(*resty.Client)

// WithTimeout sets the overall timeout of a call.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// WithHeader sets a header sent with every call.
func WithHeader(key, value string) ClientOption {
	return func(c *resty.Client) {
		c.SetHeader(key, value)
	}
}

// WithBaseTransport sets the transport the traced transport delegates to.
func WithBaseTransport(base http.RoundTripper) ClientOption {
	return func(c *resty.Client) {
		c.SetTransport(base)
	}
}

// NewClient returns a Client issuing requests relative to baseURL.
func (t *Tracer) NewClient(baseURL string, opts ...ClientOption) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultClientTimeout)
	for _, opt := range opts {
		opt(rc)
	}
	rc.SetTransport(t.Transport(rc.GetClient().Transport))
	return &Client{resty: rc}
}

// R returns a request bound to ctx for full control over the call.
func (c *Client) R(ctx context.Context) *resty.Request {
	return c.resty.R().SetContext(ctx)
}

// Get issues a GET request for path.
func (c *Client) Get(ctx context.Context, path string) (*resty.Response, error) {
	return c.R(ctx).Get(path)
}

// Post issues a POST request for path with body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*resty.Response, error) {
	return c.R(ctx).SetBody(body).Post(path)
}

// Put issues a PUT request for path with body encoded as JSON.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*resty.Response, error) {
	return c.R(ctx).SetBody(body).Put(path)
}

// Delete issues a DELETE request for path.
func (c *Client) Delete(ctx context.Context, path string) (*resty.Response, error) {
	return c.R(ctx).Delete(path)
}

// Head issues a HEAD request for path.
func (c *Client) Head(ctx context.Context, path string) (*resty.Response, error) {
	return c.R(ctx).Head(path)
}

// Options issues an OPTIONS request for path.
func (c *Client) Options(ctx context.Context, path string) (*resty.Response, error) {
	return c.R(ctx).Options(path)
}
