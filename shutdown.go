// SPDX-License-Identifier: GPL-3.0-or-later

package sockpipe

import (
	"errors"
	"net"

	"github.com/bassosimone/sockpipe/sockerr"
)

// halfCloser is implemented by [*net.TCPConn] and [*net.UnixConn].
type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// shutdowner is implemented by connections that log or otherwise wrap the
// shutdown sequence, such as the ones returned by [*ObserveConnFunc].
type shutdowner interface {
	Shutdown() error
}

// Shutdown performs an orderly close of one pipe end.
//
// It signals end of data to the peer, stops receiving, and then releases
// the descriptor, so the peer observes a clean end of stream rather than a
// reset whenever possible. Half-close failures caused by a connection the
// peer already tore down are ignored. Connections without half-close
// support are just closed.
func Shutdown(conn net.Conn) error {
	if s, ok := conn.(shutdowner); ok {
		return s.Shutdown()
	}
	return shutdown(conn)
}

func shutdown(conn net.Conn) error {
	var errs []error
	if hc, ok := conn.(halfCloser); ok {
		if err := hc.CloseWrite(); err != nil && !sockerr.IsGone(err) {
			errs = append(errs, err)
		}
		if err := hc.CloseRead(); err != nil && !sockerr.IsGone(err) {
			errs = append(errs, err)
		}
	}
	errs = append(errs, conn.Close())
	return errors.Join(errs...)
}
