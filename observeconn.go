//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
//

package sockpipe

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
)

// NewObserveConnFunc returns a new [*ObserveConnFunc].
//
// The cfg argument contains the common configuration for sockpipe operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewObserveConnFunc(cfg *Config, logger SLogger) *ObserveConnFunc {
	return &ObserveConnFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// ObserveConnFunc wraps one pipe end to log its reads, writes, shutdown
// and close.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ObserveConnFunc struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewObserveConnFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewObserveConnFunc] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewObserveConnFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[net.Conn, net.Conn] = &ObserveConnFunc{}

// Call wraps conn. It never fails.
func (op *ObserveConnFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	observed := &observedConn{
		closeonce: sync.Once{},
		conn:      conn,
		laddr:     safeconn.LocalAddr(conn),
		op:        op,
		protocol:  safeconn.Network(conn),
		raddr:     safeconn.RemoteAddr(conn),
	}
	return observed, nil
}

// observedConn observes a [net.Conn].
type observedConn struct {
	closeonce sync.Once
	conn      net.Conn
	laddr     string
	op        *ObserveConnFunc
	protocol  string
	raddr     string
}

var (
	_ halfCloser = &observedConn{}
	_ keepAliver = &observedConn{}
	_ shutdowner = &observedConn{}
)

// Close implements [net.Conn].
//
// Subsequent calls, including after Shutdown, return [net.ErrClosed].
func (c *observedConn) Close() error {
	return c.release("close", c.conn.Close)
}

// Shutdown performs [Shutdown] on the wrapped connection.
//
// Subsequent calls, including after Close, return [net.ErrClosed].
func (c *observedConn) Shutdown() error {
	return c.release("shutdown", func() error { return shutdown(c.conn) })
}

func (c *observedConn) release(event string, fn func() error) (err error) {
	err = net.ErrClosed
	c.closeonce.Do(func() {
		err = c.observe(event, fn)
	})
	return
}

// observe runs fn between the event+"Start" and event+"Done" log events.
func (c *observedConn) observe(event string, fn func() error) error {
	t0 := c.op.TimeNow()
	c.op.Logger.Info(
		event+"Start",
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", t0),
	)

	err := fn()

	c.op.Logger.Info(
		event+"Done",
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)
	return err
}

// CloseRead shuts down the reading side of the wrapped conn, or fails
// with [errors.ErrUnsupported] when it cannot be half-closed.
func (c *observedConn) CloseRead() error {
	return c.observe("closeRead", func() error {
		hc, ok := c.conn.(halfCloser)
		if !ok {
			return errors.ErrUnsupported
		}
		return hc.CloseRead()
	})
}

// CloseWrite shuts down the writing side of the wrapped conn, or fails
// with [errors.ErrUnsupported] when it cannot be half-closed.
func (c *observedConn) CloseWrite() error {
	return c.observe("closeWrite", func() error {
		hc, ok := c.conn.(halfCloser)
		if !ok {
			return errors.ErrUnsupported
		}
		return hc.CloseWrite()
	})
}

// SetKeepAlive forwards to the wrapped conn, or fails with
// [errors.ErrUnsupported] when it is not a TCP conn.
func (c *observedConn) SetKeepAlive(keepalive bool) error {
	return c.observe("setKeepAlive", func() error {
		ka, ok := c.conn.(keepAliver)
		if !ok {
			return errors.ErrUnsupported
		}
		return ka.SetKeepAlive(keepalive)
	})
}

// SetKeepAlivePeriod forwards to the wrapped conn, or fails with
// [errors.ErrUnsupported] when it is not a TCP conn.
func (c *observedConn) SetKeepAlivePeriod(period time.Duration) error {
	return c.observe("setKeepAlivePeriod", func() error {
		ka, ok := c.conn.(keepAliver)
		if !ok {
			return errors.ErrUnsupported
		}
		return ka.SetKeepAlivePeriod(period)
	})
}

// LocalAddr implements [net.Conn].
func (c *observedConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Read implements [net.Conn].
func (c *observedConn) Read(buf []byte) (int, error) {
	t0 := c.op.TimeNow()
	c.op.Logger.Debug(
		"readStart",
		slog.Int("ioBufferSize", len(buf)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", t0),
	)

	count, err := c.conn.Read(buf)

	c.op.Logger.Debug(
		"readDone",
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)

	return count, err
}

// RemoteAddr implements [net.Conn].
func (c *observedConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline implements [net.Conn].
func (c *observedConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline implements [net.Conn].
func (c *observedConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline implements [net.Conn].
func (c *observedConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// Write implements [net.Conn].
func (c *observedConn) Write(data []byte) (int, error) {
	t0 := c.op.TimeNow()
	c.op.Logger.Debug(
		"writeStart",
		slog.Int("ioBufferSize", len(data)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", t0),
	)

	count, err := c.conn.Write(data)

	c.op.Logger.Debug(
		"writeDone",
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)

	return count, err
}

// NewObservePipeFunc returns a new [*ObservePipeFunc].
func NewObservePipeFunc(cfg *Config, logger SLogger) *ObservePipeFunc {
	return &ObservePipeFunc{Observe: NewObserveConnFunc(cfg, logger)}
}

// ObservePipeFunc wraps both ends of a [*Pipe] using [*ObserveConnFunc].
type ObservePipeFunc struct {
	// Observe wraps each end.
	//
	// Set by [NewObservePipeFunc] using [NewObserveConnFunc].
	Observe *ObserveConnFunc
}

var _ Func[*Pipe, *Pipe] = &ObservePipeFunc{}

// Call returns a new [*Pipe] whose ends are observed. It never fails.
func (op *ObservePipeFunc) Call(ctx context.Context, pipe *Pipe) (*Pipe, error) {
	observed := &Pipe{Port: pipe.Port}
	for idx, conn := range pipe.Conns {
		observed.Conns[idx], _ = op.Observe.Call(ctx, conn)
	}
	return observed, nil
}
