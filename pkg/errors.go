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

// Package pkg holds the small set of error helpers shared by all packages of
// this module.
package pkg

import "errors"

// FlagErr is the format used for reporting invalid flag values. It expects the
// flag name and the underlying error.
const FlagErr = "invalid value for flag --%s: %w"

// ErrRequired is returned by Validate implementations for mandatory flags.
const ErrRequired Error = "value is required"

// Error is a constant error type.
type Error string

// Error implements error.
func (e Error) Error() string { return string(e) }

// multiError is implemented by both tetratelabs and hashicorp multierror types.
type multiError interface {
	WrappedErrors() []error
}

// HasError reports whether target can be found in the error tree of err. It
// follows Unwrap chains as well as the errors held by multierror values.
func HasError(err, target error) bool {
	if err == nil || target == nil {
		return err == target
	}
	for err != nil {
		if errors.Is(err, target) {
			return true
		}
		if m, ok := err.(multiError); ok {
			for _, e := range m.WrappedErrors() {
				if HasError(e, target) {
					return true
				}
			}
			return false
		}
		err = errors.Unwrap(err)
	}
	return false
}
