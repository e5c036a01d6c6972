//go:build darwin

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

var standardSpeeds = map[int]uint64{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// applySpeed sets a standard rate directly and reports whether the rate
// needs IOSSIOSPEED; such rates start at 9600.
func applySpeed(termios *unix.Termios, baud int) (custom bool, err error) {
	if baud <= 0 {
		return false, fmt.Errorf("serial: unsupported baud rate %d", baud)
	}
	if speed, ok := standardSpeeds[baud]; ok {
		termios.Ispeed = speed
		termios.Ospeed = speed
		return false, nil
	}
	termios.Ispeed = unix.B9600
	termios.Ospeed = unix.B9600
	return true, nil
}

// setTermios applies termios, then a non-standard rate with IOSSIOSPEED.
func setTermios(fd int, termios *unix.Termios, baud int) error {
	custom, err := applySpeed(termios, baud)
	if err != nil {
		return err
	}
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, termios); err != nil {
		return fmt.Errorf("serial: set termios: %w", err)
	}
	if !custom {
		return nil
	}
	// _IOW('T', 2, speed_t)
	const IOSSIOSPEED = 0x80045402
	if err := unix.IoctlSetPointerInt(fd, IOSSIOSPEED, baud); err != nil {
		return fmt.Errorf("serial: set custom baud rate: %w", err)
	}
	return nil
}
