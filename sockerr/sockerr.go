// SPDX-License-Identifier: GPL-3.0-or-later

// Package sockerr maps platform socket errors onto the few conditions that
// the loopback pipe emulation needs to tell apart.
//
// The exported constants are the platform errno values (WSA* codes on
// Windows), so callers can use them with [errors.Is] regardless of the OS.
package sockerr

import (
	"errors"
	"net"
)

// IsAddrInUse returns whether err means the port is already taken.
//
// Windows reports ports inside an excluded port range as WSAEACCES rather
// than WSAEADDRINUSE, so both count.
func IsAddrInUse(err error) bool {
	return errors.Is(err, EADDRINUSE) || errors.Is(err, EACCES)
}

// IsConnReset returns whether err means the peer tore the connection down.
//
// A pipe reader treats this exactly like end of stream.
func IsConnReset(err error) bool {
	return errors.Is(err, ECONNRESET) || errors.Is(err, ECONNABORTED)
}

// IsGone returns whether err means the connection is already unusable, in
// which case a shutdown step has nothing left to do.
func IsGone(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, ENOTCONN) || IsConnReset(err)
}
