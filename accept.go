// SPDX-License-Identifier: GPL-3.0-or-later

package sockpipe

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// NewAcceptFunc returns a new [*AcceptFunc].
//
// The cfg argument contains the common configuration for sockpipe operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewAcceptFunc(cfg *Config, logger SLogger) *AcceptFunc {
	return &AcceptFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// AcceptFunc accepts the server end of a pipe on the bound listener.
//
// The listener is loopback-reachable by any local process, so the first
// connection in the accept queue is not necessarily the client end we
// dialed. Connections whose remote address differs from the expected peer
// are closed and accepting continues until the right one shows up or the
// context is done.
//
// When the context is done the listener is closed, which unblocks Accept.
// The listener is owned by the caller and must be closed by it regardless.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type AcceptFunc struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewAcceptFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewAcceptFunc] to the user-provided logger.
	Logger SLogger

	// SpanID is attached to every log event when not empty.
	SpanID string

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewAcceptFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

// Call accepts the connection coming from peer. A nil peer accepts the first
// connection. The error, if any, wraps [ErrAcceptFailed].
func (op *AcceptFunc) Call(ctx context.Context, listener net.Listener, peer net.Addr) (net.Conn, error) {
	t0 := op.TimeNow()
	laddr := listener.Addr().String()
	op.Logger.Info(
		"acceptStart",
		slog.String("localAddr", laddr),
		slog.String("protocol", "tcp"),
		slog.String("spanID", op.SpanID),
		slog.Time("t", t0),
	)

	stop := context.AfterFunc(ctx, func() {
		listener.Close()
	})
	conn, rejected, err := op.accept(listener, peer)
	stop()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		err = newOpError("accept", ErrAcceptFailed, err)
	}

	op.Logger.Info(
		"acceptDone",
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", laddr),
		slog.String("protocol", "tcp"),
		slog.Int("rejected", rejected),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.String("spanID", op.SpanID),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
	return conn, err
}

func (op *AcceptFunc) accept(listener net.Listener, peer net.Addr) (net.Conn, int, error) {
	for rejected := 0; ; rejected++ {
		conn, err := listener.Accept()
		if err != nil {
			return nil, rejected, err
		}
		if peer == nil || conn.RemoteAddr().String() == peer.String() {
			return conn, rejected, nil
		}
		op.Logger.Info(
			"acceptReject",
			slog.String("localAddr", safeconn.LocalAddr(conn)),
			slog.String("protocol", "tcp"),
			slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
			slog.String("spanID", op.SpanID),
			slog.Time("t", op.TimeNow()),
		)
		conn.Close()
	}
}
