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

// Package zipkin provides the span export pipeline of this binary: a queue fed
// by the tracer and a single consumer translating and transmitting each
// finished span to a Zipkin collector.
package zipkin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/openzipkin/zipkin-go"
	zrpr "github.com/openzipkin/zipkin-go/reporter/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tetratelabs/multierror"
	"github.com/tetratelabs/run"
	"github.com/tetratelabs/run/pkg/version"
	"go.uber.org/zap"

	"github.com/basvanbeek/span-pipeline/pkg"
	"github.com/basvanbeek/span-pipeline/pkg/observability"
)

// flags
const (
	CollectorEndpoint = "zipkin-collector-endpoint"
	LocalServicename  = "zipkin-local-servicename"
	Format            = "zipkin-format"
	SampleRate        = "zipkin-sample-rate"
	SendTimeout       = "zipkin-send-timeout"
	DrainTimeout      = "zipkin-drain-timeout"
)

// collector wire formats
const (
	FormatV1 = "v1"
	FormatV2 = "v2"
)

const (
	// default configuration values
	defaultSampleRate   = 1.0
	defaultSendTimeout  = 5 * time.Second
	defaultDrainTimeout = 5 * time.Second
)

// ErrUnknownFormat is returned for an unsupported collector wire format.
const ErrUnknownFormat pkg.Error = "unknown format, expected v1 or v2"

// Service implements run.GroupService
type Service struct {
	Servicename  string
	Address      string
	Format       string
	SampleRate   float64
	SendTimeout  time.Duration
	DrainTimeout time.Duration

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Registerer receives the exporter metrics if set.
	Registerer prometheus.Registerer
	// Sender overrides the sender selected by the flags.
	Sender Sender
	// Tags are added to every span.
	Tags map[string]interface{}

	queue    *observability.Queue
	tracer   *observability.Tracer
	exporter *Exporter
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  chan struct{}
	closer   chan error
}

// static compile time run interfaces validation
var (
	_ run.Config                 = (*Service)(nil)
	_ run.PreRunner              = (*Service)(nil)
	_ run.Service                = (*Service)(nil)
	_ run.Namer                  = (*Service)(nil)
	_ observability.Instrumenter = (*Service)(nil)
)

// Name implements run.Unit.
func (s Service) Name() string {
	return "zipkin"
}

// GroupName implements run.Namer so the local service name defaults to the
// name of the run.Group if not set before calling Group's Run or RunConfig.
func (s *Service) GroupName(name string) {
	if s.Servicename == "" {
		s.Servicename = name
	}
}

// FlagSet implements run.Config
func (s *Service) FlagSet() *run.FlagSet {
	// set defaults if needed
	if s.Servicename == "" {
		s.Servicename = path.Base(os.Args[0])
	}
	if s.Format == "" {
		s.Format = FormatV1
	}
	if s.SampleRate < 0 {
		s.SampleRate = 0.0
	} else if s.SampleRate == 0.0 {
		s.SampleRate = defaultSampleRate
	}
	if s.SendTimeout == 0 {
		s.SendTimeout = defaultSendTimeout
	}
	if s.DrainTimeout == 0 {
		s.DrainTimeout = defaultDrainTimeout
	}

	flags := run.NewFlagSet("Zipkin Exporter Config")

	flags.StringVar(
		&s.Address,
		CollectorEndpoint,
		s.Address,
		`Full address, including URI, of the Zipkin HTTP collector. `+
			`Spans are only logged if empty`)
	flags.StringVar(
		&s.Servicename,
		LocalServicename,
		s.Servicename,
		`Local ServiceName to report`)
	flags.StringVar(
		&s.Format,
		Format,
		s.Format,
		`Collector wire format: v1 or v2`)
	flags.Float64Var(
		&s.SampleRate,
		SampleRate,
		s.SampleRate,
		`Set the Zipkin sample rate, between never (0.0) and always (1.0), `+
			`smallest increment: 0.0001`)
	flags.DurationVar(
		&s.SendTimeout,
		SendTimeout,
		s.SendTimeout,
		`Maximum time spent transmitting a single span`)
	flags.DurationVar(
		&s.DrainTimeout,
		DrainTimeout,
		s.DrainTimeout,
		`Maximum time spent exporting queued spans at shutdown`)

	return flags
}

// Validate implements run.Config
func (s Service) Validate() error {
	var mErr error

	if s.Sender == nil && s.Address != "" {
		if u, err := url.Parse(s.Address); err != nil {
			mErr = multierror.Append(mErr,
				fmt.Errorf(pkg.FlagErr, CollectorEndpoint, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			mErr = multierror.Append(mErr,
				fmt.Errorf(pkg.FlagErr, CollectorEndpoint,
					fmt.Errorf("unsupported scheme %q", u.Scheme)))
		}
	}
	if s.Servicename == "" {
		mErr = multierror.Append(mErr,
			fmt.Errorf(pkg.FlagErr, LocalServicename, pkg.ErrRequired))
	}
	if s.Format != FormatV1 && s.Format != FormatV2 {
		mErr = multierror.Append(mErr,
			fmt.Errorf(pkg.FlagErr, Format, ErrUnknownFormat))
	}
	if _, err := zipkin.NewBoundarySampler(s.SampleRate, 0); err != nil {
		mErr = multierror.Append(mErr,
			fmt.Errorf(pkg.FlagErr, SampleRate, err))
	}
	if s.SendTimeout <= 0 {
		mErr = multierror.Append(mErr,
			fmt.Errorf(pkg.FlagErr, SendTimeout, errors.New("must be positive")))
	}
	if s.DrainTimeout < 0 {
		mErr = multierror.Append(mErr,
			fmt.Errorf(pkg.FlagErr, DrainTimeout, errors.New("must not be negative")))
	}

	return mErr
}

// PreRun implements run.PreRunner
func (s *Service) PreRun() error {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	logger := s.Logger.Named("zipkin")

	// configure our sampler
	salt := time.Now().UnixNano()
	sampler, err := zipkin.NewBoundarySampler(s.SampleRate, salt)
	if err != nil {
		return err
	}

	tags := map[string]interface{}{observability.VersionTag: version.Parse()}
	for k, v := range s.Tags {
		tags[k] = v
	}

	s.queue = observability.NewQueue()
	s.tracer = observability.NewTracer(
		s.queue,
		observability.WithLocalServiceName(s.Servicename),
		observability.WithSampler(sampler),
		observability.WithTags(tags),
		observability.WithLogger(s.Logger.Named("tracer")),
	)

	sender := s.Sender
	if sender == nil {
		sender = s.newSender(logger)
	}
	s.Sender = sender

	s.exporter = NewExporter(s.queue, sender,
		WithSendTimeout(s.SendTimeout),
		WithExporterLogger(logger),
		WithMetrics(NewMetrics(s.Registerer, func() float64 {
			return float64(s.queue.Len())
		})),
	)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.stopped = make(chan struct{})
	s.closer = make(chan error)

	return nil
}

func (s *Service) newSender(logger *zap.Logger) Sender {
	switch {
	case s.Address == "":
		logger.Info("no collector configured, spans are logged only")
		return NewLogSender(s.Servicename, logger)
	case s.Format == FormatV2:
		return NewReporterSender(
			zrpr.NewReporter(s.Address, zrpr.Timeout(s.SendTimeout)),
			s.Servicename,
		)
	default:
		return NewHTTPSender(s.Address, s.Servicename, s.SendTimeout, logger)
	}
}

// Serve implements run.GroupService
func (s *Service) Serve() error {
	err := s.exporter.Run(s.ctx)
	close(s.stopped)
	if err != nil {
		// exports stop, the rest of the process keeps running
		s.Logger.Named("zipkin").Error("span exporter stopped", zap.Error(err))
	}
	return <-s.closer
}

// GracefulStop implements run.GroupService
func (s *Service) GracefulStop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.DrainTimeout)
	if err := s.queue.Join(ctx); err != nil {
		s.Logger.Named("zipkin").Warn("spans left unexported at shutdown",
			zap.Int("pending", s.queue.Pending()))
	}
	cancel()

	s.cancel()
	// the sender must not be closed while a send is in flight
	select {
	case <-s.stopped:
	case <-time.After(s.SendTimeout):
		s.Logger.Named("zipkin").Warn("span exporter did not stop in time")
	}
	close(s.closer)
	_ = s.Sender.Close() // nolint: errcheck
}

// Queue returns the queue holding spans awaiting export.
func (s *Service) Queue() *observability.Queue {
	return s.queue
}

// Tracer implements observability.Tracerer
func (s *Service) Tracer() *observability.Tracer {
	return s.tracer
}

// SpanFromContext implements observability.Contexter
func (s *Service) SpanFromContext(ctx context.Context) *observability.Span {
	return observability.SpanFromContext(ctx)
}

// Middleware implements observability.Middlewareer
func (s *Service) Middleware(opts ...observability.MiddlewareOption) func(http.Handler) http.Handler {
	return s.tracer.Middleware(opts...)
}

// Transport implements observability.Transporter
func (s *Service) Transport(transport http.RoundTripper) (http.RoundTripper, error) {
	return s.tracer.Transport(transport), nil
}
