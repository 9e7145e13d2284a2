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

// Package http provides the run.Group unit serving the instrumented handlers.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tetratelabs/multierror"
	"github.com/tetratelabs/run"
	"go.uber.org/zap"

	"github.com/basvanbeek/span-pipeline/pkg"
)

const (
	flagListenAddress   = "http-listen-address"
	flagShutdownTimeout = "http-shutdown-timeout"

	defaultListenAddress   = ":8000"
	defaultShutdownTimeout = 5 * time.Second
)

var (
	_ run.Config    = (*Service)(nil)
	_ run.PreRunner = (*Service)(nil)
	_ run.Service   = (*Service)(nil)
)

// Service implements a run.Group compatible HTTP Server.
type Service struct {
	ListenAddress   string
	ShutdownTimeout time.Duration
	Logger          *zap.Logger

	*http.Server
	l       net.Listener
	started chan struct{}
}

// Name implements run.Unit.
func (s *Service) Name() string {
	return "http"
}

// FlagSet implements run.Config.
func (s *Service) FlagSet() *run.FlagSet {
	if s.ListenAddress == "" {
		s.ListenAddress = defaultListenAddress
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = defaultShutdownTimeout
	}
	flags := run.NewFlagSet("HTTP server options")

	flags.StringVarP(
		&s.ListenAddress,
		flagListenAddress, "a",
		s.ListenAddress,
		`HTTP server listen address, e.g. ":443" or "localhost:80"`)
	flags.DurationVar(
		&s.ShutdownTimeout,
		flagShutdownTimeout,
		s.ShutdownTimeout,
		`Maximum time to wait for in-flight requests at shutdown`)

	return flags
}

// Validate implements run.Config.
func (s *Service) Validate() error {
	var mErr error

	if s.ListenAddress != "" {
		if _, _, err := net.SplitHostPort(s.ListenAddress); err != nil {
			mErr = multierror.Append(mErr,
				fmt.Errorf(pkg.FlagErr, flagListenAddress, err))
		}
	} else {
		mErr = multierror.Append(mErr,
			fmt.Errorf(pkg.FlagErr, flagListenAddress, pkg.ErrRequired))
	}
	if s.ShutdownTimeout < 0 {
		mErr = multierror.Append(mErr,
			fmt.Errorf(pkg.FlagErr, flagShutdownTimeout,
				errors.New("must not be negative")))
	}

	return mErr
}

// PreRun implements run.PreRunner.
func (s *Service) PreRun() error {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Server == nil {
		s.Server = &http.Server{}
	}
	if s.Server.ReadTimeout == 0 {
		s.Server.ReadTimeout = 5 * time.Second
	}
	if s.Server.WriteTimeout == 0 {
		s.Server.WriteTimeout = 15 * time.Second
	}
	if s.Server.IdleTimeout == 0 {
		s.Server.IdleTimeout = 120 * time.Second
	}
	s.Server.ErrorLog, _ = zap.NewStdLogAt(s.Logger.Named("http"), zap.WarnLevel)
	s.started = make(chan struct{})
	return nil
}

// Serve implements run.Service.
func (s *Service) Serve() (err error) {
	s.l, err = net.Listen("tcp", s.ListenAddress)
	if err != nil {
		return err
	}
	close(s.started)
	s.Logger.Named("http").Info("listening", zap.String("address", s.l.Addr().String()))

	if err = s.Server.Serve(s.l); errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the listener address once Serve has started, nil otherwise.
func (s *Service) Addr() net.Addr {
	select {
	case <-s.started:
		return s.l.Addr()
	default:
		return nil
	}
}

// GracefulStop implements run.Service.
func (s *Service) GracefulStop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	if s.Server != nil {
		if err := s.Server.Shutdown(ctx); err != nil {
			s.Logger.Named("http").Warn("forced shutdown", zap.Error(err))
		}
	}
	if s.l != nil {
		_ = s.l.Close()
	}
}
