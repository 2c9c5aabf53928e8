// SPDX-License-Identifier: GPL-3.0-or-later

package sockpipe

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/sockpipe/sockerr"
)

// Listener abstracts the [*net.ListenConfig] behavior.
//
// By making [*BindFunc] depend on an abstract implementation we
// allow for unit testing and for using alternative listeners.
type Listener interface {
	Listen(ctx context.Context, network, address string) (net.Listener, error)
}

// NewBindFunc returns a new [*BindFunc].
//
// The cfg argument contains the common configuration for sockpipe operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewBindFunc(cfg *Config, logger SLogger) *BindFunc {
	return &BindFunc{
		ErrClassifier:   cfg.ErrClassifier,
		Listener:        cfg.Listener,
		Logger:          logger,
		MaxBindAttempts: cfg.MaxBindAttempts,
		PortMax:         cfg.PortMax,
		PortMin:         cfg.PortMin,
		RandIntN:        cfg.RandIntN,
		TimeNow:         cfg.TimeNow,
	}
}

// BindFunc listens on a random loopback port drawn from [PortMin, PortMax).
//
// A candidate port that cannot be bound, for whatever reason, is replaced by
// a fresh one, up to MaxBindAttempts times or until the context is done.
// Concurrent callers racing for the same port thus settle on different
// ports. When every attempt fails, the returned error wraps
// [ErrBindExhausted] and the last bind error.
//
// Returns either a valid [net.Listener] or an error, never both.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type BindFunc struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewBindFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Listener is the [Listener] to use.
	//
	// Set by [NewBindFunc] from [Config.Listener].
	Listener Listener

	// Logger is the [SLogger] to use.
	//
	// Set by [NewBindFunc] to the user-provided logger.
	Logger SLogger

	// MaxBindAttempts is the maximum number of candidate ports to try.
	//
	// Set by [NewBindFunc] from [Config.MaxBindAttempts].
	MaxBindAttempts int

	// PortMax is the port range end (exclusive).
	//
	// Set by [NewBindFunc] from [Config.PortMax].
	PortMax uint16

	// PortMin is the port range start (inclusive).
	//
	// Set by [NewBindFunc] from [Config.PortMin].
	PortMin uint16

	// RandIntN picks the candidate port offset.
	//
	// Set by [NewBindFunc] from [Config.RandIntN].
	RandIntN func(n int) int

	// SpanID is attached to every log event when not empty.
	//
	// [*PipeFunc] sets it for each pipe; it is empty otherwise.
	SpanID string

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewBindFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[Unit, net.Listener] = &BindFunc{}

// Call invokes the [*BindFunc] to obtain a loopback listener.
//
// This method panics if the port range is empty or MaxBindAttempts is not positive.
func (op *BindFunc) Call(ctx context.Context, _ Unit) (net.Listener, error) {
	runtimex.Assert(op.PortMax > op.PortMin)
	runtimex.Assert(op.MaxBindAttempts > 0)

	t0 := op.TimeNow()
	op.logListenStart(t0)

	var (
		attempts int
		err      error
		listener net.Listener
	)
	for attempts < op.MaxBindAttempts {
		if err = ctx.Err(); err != nil {
			break
		}
		attempts++
		port := op.PortMin + uint16(op.RandIntN(int(op.PortMax-op.PortMin)))
		address := netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), port)
		listener, err = op.bind(ctx, address, attempts)
		if err == nil {
			op.logListenDone(t0, attempts, listener, nil)
			return listener, nil
		}
	}

	err = newOpError("bind", ErrBindExhausted, err)
	op.logListenDone(t0, attempts, nil, err)
	return nil, err
}

// bind performs a single bind attempt.
func (op *BindFunc) bind(ctx context.Context, address netip.AddrPort, attempt int) (net.Listener, error) {
	t0 := op.TimeNow()
	op.Logger.Debug(
		"bindStart",
		slog.Int("attempt", attempt),
		slog.String("localAddr", address.String()),
		slog.String("protocol", "tcp"),
		slog.String("spanID", op.SpanID),
		slog.Time("t", t0),
	)

	listener, err := op.Listener.Listen(ctx, "tcp4", address.String())

	op.Logger.Debug(
		"bindDone",
		slog.Int("attempt", attempt),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", address.String()),
		slog.Bool("portInUse", sockerr.IsAddrInUse(err)),
		slog.String("protocol", "tcp"),
		slog.String("spanID", op.SpanID),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
	return listener, err
}

func (op *BindFunc) logListenStart(t0 time.Time) {
	op.Logger.Info(
		"listenStart",
		slog.Int("maxAttempts", op.MaxBindAttempts),
		slog.String("portRange", strconv.Itoa(int(op.PortMin))+"-"+strconv.Itoa(int(op.PortMax))),
		slog.String("protocol", "tcp"),
		slog.String("spanID", op.SpanID),
		slog.Time("t", t0),
	)
}

func (op *BindFunc) logListenDone(t0 time.Time, attempts int, listener net.Listener, err error) {
	var laddr string
	if listener != nil {
		laddr = listener.Addr().String()
	}
	op.Logger.Info(
		"listenDone",
		slog.Int("attempts", attempts),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", laddr),
		slog.String("protocol", "tcp"),
		slog.String("spanID", op.SpanID),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}
