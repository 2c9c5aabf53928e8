//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/windows.go
//

package sockerr

import "golang.org/x/sys/windows"

const (
	EACCES       = windows.WSAEACCES
	EADDRINUSE   = windows.WSAEADDRINUSE
	ECONNABORTED = windows.WSAECONNABORTED
	ECONNREFUSED = windows.WSAECONNREFUSED
	ECONNRESET   = windows.WSAECONNRESET
	ENOTCONN     = windows.WSAENOTCONN
)
