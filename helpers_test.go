// SPDX-License-Identifier: GPL-3.0-or-later

package sockpipe

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var (
		mu      sync.Mutex
		records []slog.Record
	)
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			mu.Lock()
			records = append(records, record)
			mu.Unlock()
			return nil
		},
	}
	return slog.New(handler), &records
}

// messages returns the messages of the given records, in order.
func messages(records []slog.Record) []string {
	var out []string
	for _, record := range records {
		out = append(out, record.Message)
	}
	return out
}

// newMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc and
// RemoteAddrFunc set. This is the minimum needed for code that calls
// [safeconn.LocalAddr], [safeconn.RemoteAddr], and [safeconn.Network]
// during construction.
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
	}
}

// newAddrConn returns a closeable [*netstub.FuncConn] with the given addresses.
func newAddrConn(laddr, raddr string) *netstub.FuncConn {
	conn := newMinimalConn()
	conn.LocalAddrFunc = func() net.Addr { return mustTCPAddr(laddr) }
	conn.RemoteAddrFunc = func() net.Addr { return mustTCPAddr(raddr) }
	conn.CloseFunc = func() error { return nil }
	return conn
}

func mustTCPAddr(address string) *net.TCPAddr {
	addr, err := net.ResolveTCPAddr("tcp4", address)
	if err != nil {
		panic(err)
	}
	return addr
}

// funcListener is a [net.Listener] whose methods are implemented by
// the corresponding function fields.
type funcListener struct {
	AcceptFunc func() (net.Conn, error)
	AddrFunc   func() net.Addr
	CloseFunc  func() error
}

var _ net.Listener = &funcListener{}

func (ln *funcListener) Accept() (net.Conn, error) {
	return ln.AcceptFunc()
}

func (ln *funcListener) Addr() net.Addr {
	return ln.AddrFunc()
}

func (ln *funcListener) Close() error {
	return ln.CloseFunc()
}

// funcListenConfig is a [Listener] implemented by ListenFunc.
type funcListenConfig struct {
	ListenFunc func(ctx context.Context, network, address string) (net.Listener, error)
}

var _ Listener = &funcListenConfig{}

func (lc *funcListenConfig) Listen(ctx context.Context, network, address string) (net.Listener, error) {
	return lc.ListenFunc(ctx, network, address)
}

// halfCloseConn adds CloseRead and CloseWrite to a [*netstub.FuncConn].
type halfCloseConn struct {
	*netstub.FuncConn
	CloseReadFunc  func() error
	CloseWriteFunc func() error
}

func (c *halfCloseConn) CloseRead() error {
	return c.CloseReadFunc()
}

func (c *halfCloseConn) CloseWrite() error {
	return c.CloseWriteFunc()
}

// readFull reads from fd until want bytes arrive or end of stream.
func readFull(table *Table, fd int, want int) ([]byte, error) {
	out := make([]byte, 0, want)
	buf := make([]byte, 4096)
	for len(out) < want {
		count, err := table.Read(fd, buf[:min(len(buf), want-len(out))])
		if err != nil {
			return out, err
		}
		if count == 0 {
			break
		}
		out = append(out, buf[:count]...)
	}
	return out, nil
}

// keepAliveConn adds SetKeepAlive and SetKeepAlivePeriod to a [*halfCloseConn].
type keepAliveConn struct {
	*halfCloseConn
	SetKeepAliveFunc       func(keepalive bool) error
	SetKeepAlivePeriodFunc func(period time.Duration) error
}

func (c *keepAliveConn) SetKeepAlive(keepalive bool) error {
	return c.SetKeepAliveFunc(keepalive)
}

func (c *keepAliveConn) SetKeepAlivePeriod(period time.Duration) error {
	return c.SetKeepAlivePeriodFunc(period)
}
