// Printer controller
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package printer turns motion requests into G-code for the link and
// turns link notifications into printer events. It owns the connection
// state and the last reported position, and lets callers wait for the
// platform to reach a target position.
package printer

import (
	"fmt"
	"sync"

	"stdio-shepherd/pkg/errors"
	"stdio-shepherd/pkg/event"
	"stdio-shepherd/pkg/link"
	"stdio-shepherd/pkg/log"
	"stdio-shepherd/pkg/metrics"
)

// ConnectionState is the state of the printer connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Online
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Online:
		return "online"
	default:
		return "disconnected"
	}
}

// Device accepts command lines for the firmware.
type Device interface {
	Send(line string) error
}

// Options configures a Controller.
type Options struct {
	// Axis is the build axis letter used when a request names none
	Axis string
	// Tolerance is the absolute distance within which a reported
	// position matches a target
	Tolerance float64
	// ConsumePositionReports suppresses from_printer for position lines
	ConsumePositionReports bool

	Logger  *log.Logger
	Metrics *metrics.ShepherdMetrics
}

// Controller is the stateful facade over the printer link.
type Controller struct {
	dev     Device
	sink    event.Sink
	opts    Options
	log     *log.Logger
	metrics *metrics.ShepherdMetrics

	mu          sync.Mutex
	state       ConnectionState
	device      string
	position    float64
	hasPosition bool
	watchers    map[*Watcher]struct{}

	// sendMu keeps the lines of one operation contiguous
	sendMu sync.Mutex
}

// New creates a controller writing to dev and emitting to sink. The
// controller must be registered as the link's listener.
func New(dev Device, sink event.Sink, opts Options) *Controller {
	if opts.Axis == "" {
		opts.Axis = "Z"
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-3
	}
	if sink == nil {
		sink = event.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger("printer")
	}
	return &Controller{
		dev:      dev,
		sink:     sink,
		opts:     opts,
		log:      logger,
		metrics:  opts.Metrics,
		watchers: make(map[*Watcher]struct{}),
	}
}

var _ link.Listener = (*Controller)(nil)

// State returns the connection state.
func (c *Controller) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsOnline reports whether commands can be sent.
func (c *Controller) IsOnline() bool {
	return c.State() == Online
}

// Device returns the path of the connected device, if any.
func (c *Controller) Device() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

// Position returns the last reported position. ok is false until the
// first report arrives.
func (c *Controller) Position() (z float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position, c.hasPosition
}

// Axis returns the default build axis letter.
func (c *Controller) Axis() string {
	return c.opts.Axis
}

// Link notifications

// Connected implements link.Listener.
func (c *Controller) Connected(device string) {
	c.mu.Lock()
	c.state = Connecting
	c.device = device
	c.mu.Unlock()
	c.log.WithField("device", device).Debug("connecting")
}

// Online implements link.Listener.
func (c *Controller) Online() {
	c.mu.Lock()
	c.state = Online
	c.mu.Unlock()
	c.sink.Emit(event.PrinterOnline())
}

// Offline implements link.Listener. Pending position waits fail with
// NotOnline.
func (c *Controller) Offline() {
	c.mu.Lock()
	c.state = Disconnected
	c.device = ""
	pending := c.watchers
	c.watchers = make(map[*Watcher]struct{})
	c.mu.Unlock()

	for w := range pending {
		w.resolve(errors.NotOnline("position wait"))
	}
	c.sink.Emit(event.PrinterOffline())
}

// Line implements link.Listener.
func (c *Controller) Line(l link.Line) {
	switch l.Kind {
	case link.PositionReport:
		if !c.opts.ConsumePositionReports {
			c.sink.Emit(event.FromPrinter(l.Text))
		}
		c.updatePosition(l.Z)
		c.sink.Emit(event.PositionReport(l.Z))
	case link.TemperatureReport:
		c.sink.Emit(event.FromPrinter(l.Text))
		c.sink.Emit(event.TemperatureReport(l.Text))
	default:
		c.sink.Emit(event.FromPrinter(l.Text))
	}
}

func (c *Controller) updatePosition(z float64) {
	c.mu.Lock()
	c.position = z
	c.hasPosition = true
	var matched []*Watcher
	for w := range c.watchers {
		if w.matches(z) {
			matched = append(matched, w)
			delete(c.watchers, w)
		}
	}
	c.mu.Unlock()

	c.metrics.SetPosition(z)
	for _, w := range matched {
		w.resolve(nil)
	}
}

// Motion operations. Each fails with NotOnline unless the printer is
// online. An empty axis selects the configured one.

// Home homes the axis and asks for the resulting position.
func (c *Controller) Home(axis string) error {
	axis = c.axis(axis)
	return c.sendAll("home", "G28 "+axis, "M400", "M114")
}

// MoveRelative moves the axis by distance.
func (c *Controller) MoveRelative(distance float64, axis string) error {
	axis = c.axis(axis)
	return c.sendAll("move",
		"G91",
		fmt.Sprintf("G0 %s%f F50", axis, distance),
		"M400",
		"M114")
}

// MoveAbsolute moves the axis to position.
func (c *Controller) MoveAbsolute(position float64, axis string) error {
	axis = c.axis(axis)
	return c.sendAll("moveTo",
		"G90",
		fmt.Sprintf("G0 %s%f", axis, position),
		"M400",
		"M114")
}

// Lift peels the platform: up by travel, then back down so the net
// motion is total.
func (c *Controller) Lift(total, travel float64, axis string) error {
	axis = c.axis(axis)
	return c.sendAll("lift",
		"G91",
		fmt.Sprintf("G0 %s%f", axis, travel),
		fmt.Sprintf("G0 %s%f", axis, total-travel),
		"G90",
		"M400",
		"M114")
}

// AskTemperature requests a temperature report.
func (c *Controller) AskTemperature() error {
	return c.sendAll("askTemp", "M105")
}

// SendRaw passes a line through unchanged.
func (c *Controller) SendRaw(line string) error {
	return c.sendAll("send", line)
}

func (c *Controller) axis(axis string) string {
	if axis == "" {
		return c.opts.Axis
	}
	return axis
}

func (c *Controller) sendAll(op string, lines ...string) error {
	if !c.IsOnline() {
		return errors.NotOnline(op)
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	for _, line := range lines {
		if err := c.dev.Send(line); err != nil {
			return err
		}
		c.sink.Emit(event.ToPrinter(line))
	}
	return nil
}
