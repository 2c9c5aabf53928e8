//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/unix.go
//

package sockerr

import "golang.org/x/sys/unix"

const (
	EACCES       = unix.EACCES
	EADDRINUSE   = unix.EADDRINUSE
	ECONNABORTED = unix.ECONNABORTED
	ECONNREFUSED = unix.ECONNREFUSED
	ECONNRESET   = unix.ECONNRESET
	ENOTCONN     = unix.ENOTCONN
)
