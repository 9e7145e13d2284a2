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

// Package service implements a small user, city and role service which
// exercises the span pipeline: server spans for every route, scoped spans for
// lookups, and traced client calls fanning out to an upstream instance.
package service

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tetratelabs/multierror"
	"github.com/tetratelabs/run"
	"go.uber.org/zap"

	"github.com/basvanbeek/span-pipeline/pkg"
	"github.com/basvanbeek/span-pipeline/pkg/observability"
)

const (
	flagDuration      = "ep-duration"
	flagErrors        = "ep-errors"
	flagUpstream      = "ep-upstream"
	flagClientTimeout = "ep-client-timeout"

	defaultUpstream      = "http://127.0.0.1:8000"
	defaultClientTimeout = 5 * time.Second

	errPercentage pkg.Error = "expected percentage value between 0 and 100"
	errDuration   pkg.Error = "expected a zero or positive duration"
	errInternal   pkg.Error = "internal service failure occurred"
	errInvalidID  pkg.Error = "expected a positive numeric id"
	errNotFound   pkg.Error = "resource not found"
	errUpstream   pkg.Error = "upstream call failed"
)

// Endpoints implements a run.Config compatible group of Endpoints which will
// register themselves on the provided http service, using the provided
// Instrumenter to trace themselves.
type Endpoints struct {
	// dependencies
	Instrumenter observability.Instrumenter
	Gatherer     prometheus.Gatherer
	Logger       *zap.Logger

	ServiceName   string
	Upstream      string
	ClientTimeout time.Duration

	handler http.Handler
	tracer  *observability.Tracer
	client  *observability.Client
	store   *store
	logger  *zap.Logger

	// service globals protected by mutex mtx
	mtx      sync.RWMutex
	errors   int32
	duration time.Duration
}

var (
	_ run.Config    = (*Endpoints)(nil)
	_ run.PreRunner = (*Endpoints)(nil)
)

// Name implements run.Unit.
func (ep *Endpoints) Name() string {
	return "endpoints"
}

// FlagSet implements run.Config.
func (ep *Endpoints) FlagSet() *run.FlagSet {
	if ep.Upstream == "" {
		ep.Upstream = defaultUpstream
	}
	if ep.ClientTimeout == 0 {
		ep.ClientTimeout = defaultClientTimeout
	}

	flags := run.NewFlagSet("Endpoint options")

	flags.Int32Var(&ep.errors, flagErrors, ep.errors,
		`Percentage of errors on data endpoints`)

	flags.DurationVar(&ep.duration, flagDuration, ep.duration,
		`Added latency of a request on data endpoints`)

	flags.StringVar(&ep.Upstream, flagUpstream, ep.Upstream,
		`Base URL of the service resolving cities and roles for users`)

	flags.DurationVar(&ep.ClientTimeout, flagClientTimeout, ep.ClientTimeout,
		`Timeout of a single upstream call`)

	return flags
}

// Validate implements run.Config.
func (ep *Endpoints) Validate() error {
	var mErr error

	if ep.errors < 0 || ep.errors > 100 {
		mErr = multierror.Append(mErr,
			fmt.Errorf(pkg.FlagErr, flagErrors, errPercentage),
		)
	}
	if ep.duration < 0 {
		mErr = multierror.Append(mErr,
			fmt.Errorf(pkg.FlagErr, flagDuration, errDuration),
		)
	}
	if ep.Upstream == "" {
		mErr = multierror.Append(mErr,
			fmt.Errorf(pkg.FlagErr, flagUpstream, pkg.ErrRequired),
		)
	} else if u, err := url.Parse(ep.Upstream); err != nil {
		mErr = multierror.Append(mErr,
			fmt.Errorf(pkg.FlagErr, flagUpstream, err),
		)
	} else if u.Host == "" {
		mErr = multierror.Append(mErr,
			fmt.Errorf(pkg.FlagErr, flagUpstream, errors.New("missing host")),
		)
	}
	if ep.ClientTimeout <= 0 {
		mErr = multierror.Append(mErr,
			fmt.Errorf(pkg.FlagErr, flagClientTimeout, errDuration),
		)
	}

	return mErr
}

// PreRun implements run.PreRunner.
func (ep *Endpoints) PreRun() error {
	if ep.Instrumenter == nil || ep.Instrumenter.Tracer() == nil {
		return errors.New("missing tracer to attach to")
	}
	ep.logger = ep.Logger
	if ep.logger == nil {
		ep.logger = zap.NewNop()
	}
	ep.logger = ep.logger.Named("endpoints")
	ep.tracer = ep.Instrumenter.Tracer()
	ep.store = newStore()
	ep.client = ep.tracer.NewClient(ep.Upstream, observability.WithTimeout(ep.ClientTimeout))

	// create our service router
	router := mux.NewRouter()
	if ep.Gatherer != nil {
		router.Methods("GET").Path("/metrics").Name("metrics").
			Handler(promhttp.HandlerFor(ep.Gatherer, promhttp.HandlerOpts{}))
	}

	// every other route is traced, spans are named after the route
	api := router.PathPrefix("/").Subrouter()
	api.Use(mux.MiddlewareFunc(ep.Instrumenter.Middleware(observability.WithSpanNamer(routeName))))
	api.Methods("GET").Path("/cities/{id}").Name("get_city").HandlerFunc(ep.getCity)
	api.Methods("GET").Path("/roles/{id}").Name("get_role").HandlerFunc(ep.getRole)
	api.Methods("GET").Path("/users/").Name("get_users").HandlerFunc(ep.getUsers)
	api.Methods("GET").Path("/users/{id}").Name("get_user").HandlerFunc(ep.getUser)
	api.Methods("GET").Path("/errors/{percentage}").Name("set_errors").HandlerFunc(ep.setErrors)
	api.Methods("GET").Path("/latency/{duration}").Name("set_latency").HandlerFunc(ep.setLatency)

	ep.handler = router

	return nil
}

// Handler returns an HTTP handler that can be attached to an HTTP service.
// The handler holds a router to the endpoints with the sub handlers.
func (ep *Endpoints) Handler() http.Handler {
	return ep.handler
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
		return route.GetName()
	}
	return r.Method + " " + r.URL.Path
}
