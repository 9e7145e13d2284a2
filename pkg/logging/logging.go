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

// Package logging provides the zap logger shared by all run.Group units of this
// binary together with a run.Config unit to adjust its level from flags.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/tetratelabs/run"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/basvanbeek/span-pipeline/pkg"
)

// LogLevel is the flag name for the minimum log level.
const LogLevel = "log-level"

// Service implements run.Config and run.PreRunner. The logger is usable as soon
// as New returns; PreRun only adjusts its level.
type Service struct {
	Level string

	atom   zap.AtomicLevel
	logger *zap.Logger
}

var (
	_ run.Config    = (*Service)(nil)
	_ run.PreRunner = (*Service)(nil)
)

// New returns a logging Service with a logger writing JSON lines to stdout.
// level is the initial level, typically taken from the environment.
func New(level string) *Service {
	lvl, err := ParseLevel(level)
	if err != nil {
		level, lvl = "info", zapcore.InfoLevel
	}
	s := &Service{
		Level: level,
		atom:  zap.NewAtomicLevelAt(lvl),
	}
	s.logger = zap.New(newCore(s.atom), zap.AddCaller())
	return s
}

// Name implements run.Unit.
func (s *Service) Name() string {
	return "logging"
}

// Logger returns the root logger.
func (s *Service) Logger() *zap.Logger {
	return s.logger
}

// FlagSet implements run.Config.
func (s *Service) FlagSet() *run.FlagSet {
	flags := run.NewFlagSet("Logging options")

	flags.StringVar(
		&s.Level,
		LogLevel,
		s.Level,
		`Minimum log level, one of debug, info, warn, error`)

	return flags
}

// Validate implements run.Config.
func (s *Service) Validate() error {
	if _, err := ParseLevel(s.Level); err != nil {
		return fmt.Errorf(pkg.FlagErr, LogLevel, err)
	}
	return nil
}

// PreRun implements run.PreRunner.
func (s *Service) PreRun() error {
	lvl, err := ParseLevel(s.Level)
	if err != nil {
		return err
	}
	s.atom.SetLevel(lvl)
	return nil
}

// ParseLevel converts a level name into a zapcore.Level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

func newCore(enabler zapcore.LevelEnabler) zapcore.Core {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "@timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stdout), enabler)
	if host, err := os.Hostname(); err == nil {
		core = core.With([]zapcore.Field{zap.String("hostname", host)})
	}
	return core
}
