// SPDX-License-Identifier: GPL-3.0-or-later

package sockpipe

import (
	"github.com/bassosimone/errclass"
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// SLogger is the structured logger used by sockpipe, a subset of
// [*log/slog.Logger] that the logging package loggers also satisfy.
//
// Pipe construction emits *Start/*Done pairs at Info level (listen,
// connect, accept, close, shutdown). Single bind attempts and endpoint
// I/O (read, write) are logged at Debug level.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// DefaultSLogger returns a [SLogger] discarding everything.
func DefaultSLogger() SLogger {
	return discardSLogger{}
}

type discardSLogger struct{}

var _ SLogger = discardSLogger{}

func (discardSLogger) Debug(msg string, args ...any) {}

func (discardSLogger) Info(msg string, args ...any) {}

// ErrClassifier maps an error to the short label logged as errClass,
// such as "ECONNREFUSED". A nil error maps to "".
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to [ErrClassifier].
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier classifies errors using [errclass.New].
var DefaultErrClassifier = ErrClassifierFunc(errclass.New)

// NewSpanID returns a UUIDv7 identifying one pipe construction.
//
// [*PipeFunc] attaches it as spanID to every event it logs, so the bind,
// connect and accept events of one pipe can be correlated even when many
// pipes are built concurrently.
//
// This function panics if the system random number generator fails.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
