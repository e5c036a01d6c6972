//go:build linux

// Baud rate helpers for the native port
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package serial

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// applySpeed sets any baud rate through BOTHER.
func applySpeed(termios *unix.Termios, baud int) error {
	if baud <= 0 {
		return fmt.Errorf("serial: unsupported baud rate %d", baud)
	}
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= unix.BOTHER
	termios.Ispeed = uint32(baud)
	termios.Ospeed = uint32(baud)
	return nil
}

// setTermios applies termios with the baud rate in a single TCSETS2.
func setTermios(fd int, termios *unix.Termios, baud int) error {
	if err := applySpeed(termios, baud); err != nil {
		return err
	}
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, termios); err != nil {
		return fmt.Errorf("serial: set termios: %w", err)
	}
	return nil
}
