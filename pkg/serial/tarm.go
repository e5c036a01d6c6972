// Portable serial backend
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tarm/serial"
)

// TarmPort wraps github.com/tarm/serial. It is used where the termios
// backend cannot open the device (unusual drivers, non-Linux hosts).
type TarmPort struct {
	mu     sync.Mutex
	port   *serial.Port
	device string
	closed bool
}

// OpenTarm opens a device through tarm/serial.
func OpenTarm(cfg Config) (*TarmPort, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial: device path required")
	}
	cfg = cfg.withDefaults()

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial: flush: %w", err)
	}
	return &TarmPort{port: port, device: cfg.Device}, nil
}

// Read reads from the port. tarm reports an expired read timeout as a
// zero-byte io.EOF, which is translated to ErrTimeout.
func (p *TarmPort) Read(buf []byte) (int, error) {
	if p.isClosed() {
		return 0, ErrClosed
	}
	n, err := p.port.Read(buf)
	switch {
	case n == 0 && (err == nil || errors.Is(err, io.EOF)):
		if p.isClosed() {
			return 0, ErrClosed
		}
		return 0, ErrTimeout
	case err != nil:
		if p.isClosed() {
			return n, ErrClosed
		}
		return n, fmt.Errorf("serial: read: %w", err)
	}
	return n, nil
}

// Write writes buf to the port.
func (p *TarmPort) Write(buf []byte) (int, error) {
	if p.isClosed() {
		return 0, ErrClosed
	}
	n, err := p.port.Write(buf)
	if err != nil {
		return n, fmt.Errorf("serial: write: %w", err)
	}
	return n, nil
}

// Close closes the port. Further calls are no-ops.
func (p *TarmPort) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.port.Close()
}

// Device returns the device path.
func (p *TarmPort) Device() string {
	return p.device
}

func (p *TarmPort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
