//go:build linux

// Termios constants for the native port
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package serial

import "golang.org/x/sys/unix"

// termios2 requests, so arbitrary rates such as 250000 can be set
const (
	ioctlGetTermios = unix.TCGETS2
	ioctlSetTermios = unix.TCSETS2
	ioctlTCFlush    = unix.TCFLSH
)
