// SPDX-License-Identifier: GPL-3.0-or-later

package sockpipe

import (
	"context"
	"errors"
	"net"
	"net/netip"

	"github.com/bassosimone/runtimex"
)

// Pipe is a pair of connected, full-duplex, stream endpoints.
//
// Conns[0] is the accepted end and Conns[1] the dialed end. By convention
// the caller reads from Conns[0] and writes to Conns[1], like the two
// descriptors returned by pipe(2), but either end can read and write.
type Pipe struct {
	// Conns contains the two ends of the pipe.
	Conns [2]net.Conn

	// Port is the loopback port the pipe was built on.
	Port uint16
}

// Close shuts down both ends using [Shutdown].
func (p *Pipe) Close() error {
	return errors.Join(Shutdown(p.Conns[0]), Shutdown(p.Conns[1]))
}

// NewPipeFunc returns a new [*PipeFunc].
//
// The cfg argument contains the common configuration for sockpipe operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewPipeFunc(cfg *Config, logger SLogger) *PipeFunc {
	return &PipeFunc{
		Config: cfg,
		Logger: logger,
	}
}

// PipeFunc emulates pipe(2) with a pair of TCP connections over loopback.
//
// Each call binds a listener to a random port using [*BindFunc], dials it
// using [*ConnectFunc], accepts the dialed connection using [*AcceptFunc],
// enables keep-alive on both ends, and closes the listener. The listener is
// closed on every return path, and a failed call closes every socket it
// opened, so no half-built pipe ever escapes.
//
// When Config.HandshakeTimeout is positive, the connect and accept steps
// must complete within it. The caller's context applies to every step.
//
// All events logged for one call share a spanID created with [NewSpanID].
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type PipeFunc struct {
	// Config contains the common configuration.
	//
	// Set by [NewPipeFunc] to the user-provided value.
	Config *Config

	// Logger is the [SLogger] to use.
	//
	// Set by [NewPipeFunc] to the user-provided logger.
	Logger SLogger
}

var _ Func[Unit, *Pipe] = &PipeFunc{}

// Call invokes the [*PipeFunc] to create a new [*Pipe].
//
// This method panics if Config is nil.
func (op *PipeFunc) Call(ctx context.Context, _ Unit) (*Pipe, error) {
	runtimex.Assert(op.Config != nil)
	spanID := NewSpanID()

	bind := NewBindFunc(op.Config, op.Logger)
	bind.SpanID = spanID
	listener, err := bind.Call(ctx, Unit{})
	if err != nil {
		return nil, err
	}
	defer listener.Close()

	if op.Config.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, op.Config.HandshakeTimeout)
		defer cancel()
	}

	address, err := listenerAddrPort(listener)
	if err != nil {
		return nil, newOpError("connect", ErrConnectFailed, err)
	}

	connect := NewConnectFunc(op.Config, op.Logger)
	connect.SpanID = spanID
	client, err := connect.Call(ctx, address)
	if err != nil {
		return nil, err
	}

	accept := NewAcceptFunc(op.Config, op.Logger)
	accept.SpanID = spanID
	server, err := accept.Call(ctx, listener, client.LocalAddr())
	if err != nil {
		client.Close()
		return nil, err
	}

	if op.Config.KeepAlive {
		err := errors.Join(
			setKeepAlive(server, op.Config.KeepAlivePeriod),
			setKeepAlive(client, op.Config.KeepAlivePeriod),
		)
		if err != nil {
			server.Close()
			client.Close()
			return nil, newOpError("keepalive", ErrAcceptFailed, err)
		}
	}

	return &Pipe{Conns: [2]net.Conn{server, client}, Port: address.Port()}, nil
}

// listenerAddrPort returns the IPv4 address a listener is bound to.
func listenerAddrPort(listener net.Listener) (netip.AddrPort, error) {
	var address netip.AddrPort
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		address = tcpAddr.AddrPort()
	} else {
		var err error
		if address, err = netip.ParseAddrPort(listener.Addr().String()); err != nil {
			return netip.AddrPort{}, err
		}
	}
	return netip.AddrPortFrom(address.Addr().Unmap(), address.Port()), nil
}
