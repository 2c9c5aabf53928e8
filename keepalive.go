// SPDX-License-Identifier: GPL-3.0-or-later

package sockpipe

import (
	"net"
	"time"
)

// keepAliver is implemented by [*net.TCPConn].
type keepAliver interface {
	SetKeepAlive(keepalive bool) error
	SetKeepAlivePeriod(d time.Duration) error
}

// setKeepAlive enables TCP keep-alive on conn so that a long-lived pipe
// notices a dead peer. A zero period keeps the OS default. Connections that
// are not TCP connections are left untouched.
func setKeepAlive(conn net.Conn, period time.Duration) error {
	ka, ok := conn.(keepAliver)
	if !ok {
		return nil
	}
	if err := ka.SetKeepAlive(true); err != nil {
		return err
	}
	if period > 0 {
		return ka.SetKeepAlivePeriod(period)
	}
	return nil
}
