// SPDX-License-Identifier: GPL-3.0-or-later

package sockpipe

import (
	"math/rand/v2"
	"net"
	"time"
)

// Config holds common configuration for sockpipe operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// Dialer is used by [*ConnectFunc].
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// HandshakeTimeout bounds the connect and accept steps of [*PipeFunc].
	// Zero means only the caller's context applies.
	//
	// Set by [NewConfig] to 5 seconds.
	HandshakeTimeout time.Duration

	// KeepAlive enables TCP keep-alive on both ends of a pipe.
	//
	// Set by [NewConfig] to true.
	KeepAlive bool

	// KeepAlivePeriod is the keep-alive probe period. Zero means the OS default.
	//
	// Set by [NewConfig] to zero.
	KeepAlivePeriod time.Duration

	// Listener is used by [*BindFunc].
	//
	// Set by [NewConfig] to [*net.ListenConfig].
	Listener Listener

	// MaxBindAttempts bounds the number of ports [*BindFunc] tries.
	//
	// Set by [NewConfig] to [DefaultMaxBindAttempts].
	MaxBindAttempts int

	// PortMin is the first candidate port (inclusive).
	//
	// Set by [NewConfig] to [DefaultPortMin].
	PortMin uint16

	// PortMax is the last candidate port (exclusive).
	//
	// Set by [NewConfig] to [DefaultPortMax].
	PortMax uint16

	// RandIntN returns a uniform random integer in [0, n).
	//
	// Set by [NewConfig] to [rand.IntN], which is seeded from OS entropy.
	RandIntN func(n int) int

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

const (
	// DefaultPortMin is the default first candidate port.
	DefaultPortMin = 60000

	// DefaultPortMax is the default port range end (exclusive).
	DefaultPortMax = 60999

	// DefaultMaxBindAttempts is the default bound of the port selection loop.
	DefaultMaxBindAttempts = 100

	// DefaultHandshakeTimeout is the default bound of connect plus accept.
	DefaultHandshakeTimeout = 5 * time.Second
)

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:           &net.Dialer{},
		ErrClassifier:    DefaultErrClassifier,
		HandshakeTimeout: DefaultHandshakeTimeout,
		KeepAlive:        true,
		KeepAlivePeriod:  0,
		Listener:         &net.ListenConfig{},
		MaxBindAttempts:  DefaultMaxBindAttempts,
		PortMin:          DefaultPortMin,
		PortMax:          DefaultPortMax,
		RandIntN:         rand.IntN,
		TimeNow:          time.Now,
	}
}
