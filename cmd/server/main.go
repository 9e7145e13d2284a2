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

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tetratelabs/run"
	"github.com/tetratelabs/run/pkg/signal"
	"go.uber.org/zap"

	"github.com/basvanbeek/span-pipeline/internal/service"
	pkghttp "github.com/basvanbeek/span-pipeline/pkg/http"
	"github.com/basvanbeek/span-pipeline/pkg/logging"
	pkgzipkin "github.com/basvanbeek/span-pipeline/pkg/observability/zipkin"
)

const (
	defaultHTTPListenAddress = ":8000"
	defaultSampleRate        = 1.0
)

// config holds the defaults which need to be known prior to run.Group
// bootstrap. Flags override them.
type config struct {
	ServiceName  string `envconfig:"SVCNAME" default:"demosvc"`
	Hostname     string `envconfig:"HOSTNAME"`
	ZipkinServer string `envconfig:"ZIPKIN_SERVER"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Printf("invalid environment: %v\n", err)
		os.Exit(-1)
	}
	if cfg.Hostname == "" {
		cfg.Hostname = cfg.ServiceName
	}

	g := run.Group{
		Name:     cfg.ServiceName,
		HelpText: "Demo HTTP service exporting its traces to Zipkin",
	}
	g.Register(new(signal.Handler))
	g.Register(newApp(cfg).units()...)

	if err := g.Run(); err != nil {
		fmt.Printf("%s exit: %v\n", g.Name, err)
		if !errors.Is(err, run.ErrRequestedShutdown) {
			// We had an actual fatal error.
			os.Exit(-1)
		}
	}
}

// app holds the units of the demo service.
type app struct {
	logging   *logging.Service
	zipkin    *pkgzipkin.Service
	endpoints *service.Endpoints
	http      *pkghttp.Service
	name      string
}

func newApp(cfg config) *app {
	svcLogging := logging.New(cfg.LogLevel)
	logger := svcLogging.Logger().With(
		zap.String("service", cfg.ServiceName),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// init with sensible defaults
	svcZipkin := &pkgzipkin.Service{
		Servicename: cfg.ServiceName,
		Address:     cfg.ZipkinServer,
		SampleRate:  defaultSampleRate,
		Logger:      logger,
		Registerer:  registry,
		Tags:        map[string]interface{}{"instance": cfg.Hostname},
	}
	return &app{
		logging: svcLogging,
		zipkin:  svcZipkin,
		endpoints: &service.Endpoints{
			ServiceName:  cfg.ServiceName,
			Instrumenter: svcZipkin,
			Gatherer:     registry,
			Logger:       logger,
		},
		http: &pkghttp.Service{
			ListenAddress: defaultHTTPListenAddress,
			Logger:        logger,
		},
		name: cfg.ServiceName,
	}
}

// units returns the units in registration order. run.Group stops services in
// that same order, so the HTTP server drains its in-flight requests before the
// zipkin unit drains the span queue. The endpoints need the tracer at PreRun
// and follow the zipkin unit.
func (a *app) units() []run.Unit {
	return []run.Unit{
		a.logging,
		a.http,
		a.zipkin,
		a.endpoints,
		run.NewPreRunner(a.name, func() error {
			a.http.Handler = a.endpoints.Handler()
			return nil
		}),
	}
}
