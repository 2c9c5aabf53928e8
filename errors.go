// SPDX-License-Identifier: GPL-3.0-or-later

package sockpipe

import "errors"

var (
	// ErrBindExhausted indicates that no free port was found within the
	// configured number of bind attempts.
	ErrBindExhausted = errors.New("sockpipe: no free loopback port")

	// ErrConnectFailed indicates that the client end could not reach the
	// bound listener.
	ErrConnectFailed = errors.New("sockpipe: connect failed")

	// ErrAcceptFailed indicates that the listener could not complete the
	// handshake with the client end.
	ErrAcceptFailed = errors.New("sockpipe: accept failed")

	// ErrIO indicates a read, write or close failure other than a clean
	// end of stream.
	ErrIO = errors.New("sockpipe: I/O error")

	// ErrInvalidHandle indicates an operation on a closed or unknown handle.
	ErrInvalidHandle = errors.New("sockpipe: invalid handle")

	// ErrWouldBlock indicates that a non-blocking Read or Write could not
	// make progress without waiting, like EAGAIN.
	ErrWouldBlock = errors.New("sockpipe: operation would block")

	// ErrUnsupportedClock indicates a [ClockID] that [*Clock.Gettime] cannot serve.
	ErrUnsupportedClock = errors.New("sockpipe: unsupported clock")
)

// OpError is the error returned by the operations of this package.
//
// Use [errors.Is] with one of the Err* sentinels to test for the kind of
// failure, or with a platform error such as sockerr.ECONNREFUSED to test
// for the underlying cause.
type OpError struct {
	// Op is the failed operation (e.g., "bind", "connect", "read").
	Op string

	// Kind is one of the Err* sentinels.
	Kind error

	// Err is the underlying cause, if any.
	Err error
}

// newOpError returns a new [*OpError].
func newOpError(op string, kind, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Err: err}
}

// Error implements error.
func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Kind.Error() + " (" + e.Op + ")"
	}
	return e.Kind.Error() + " (" + e.Op + "): " + e.Err.Error()
}

// Unwrap returns both the kind and the cause.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
