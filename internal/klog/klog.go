// Copyright 2024 The gVisor Authors.
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

// Package klog is the thread kernel's internal logging shim.
//
// The sentry code this kernel is descended from logs through an internal
// pkg/log package (log.Warningf, t.Infof, ...). That package is not part of
// this tree, so klog preserves the same call surface while backing it with
// logrus, the logging dependency the donor module already carries.
package klog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// std is the process-wide logger. Tests may swap its output via SetOutput.
var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetLevel(logrus.InfoLevel)
	std.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
}

// SetLevel adjusts the minimum level that is emitted. Debugf calls are
// dropped unless the level is at least DebugLevel.
func SetLevel(debug bool) {
	if debug {
		std.SetLevel(logrus.DebugLevel)
		return
	}
	std.SetLevel(logrus.InfoLevel)
}

// SetOutput redirects log output, used by tests to keep kernel diagnostics
// out of test logs.
func SetOutput(w interface {
	Write([]byte) (int, error)
}) {
	std.SetOutput(w)
}

// Infof logs an informational message, e.g. lifecycle transitions that are
// expected but worth a trace.
func Infof(format string, args ...any) {
	std.Infof(format, args...)
}

// Warningf logs a non-actionable request (spec.md §7): the caller's request
// could not be honored but is not a programming-contract violation, so the
// kernel logs and returns rather than asserting.
func Warningf(format string, args ...any) {
	std.Warningf(format, args...)
}

// Debugf logs fine-grained dispatch tracing, off by default.
func Debugf(format string, args ...any) {
	std.Debugf(format, args...)
}

// IsLogging reports whether Debugf calls will actually be emitted, letting
// hot paths skip formatting work when they won't be.
func IsLogging() bool {
	return std.IsLevelEnabled(logrus.DebugLevel)
}
