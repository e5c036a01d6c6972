// Event kinds raised by the printer side of the shepherd
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package event defines the fixed set of asynchronous notifications the
// device link, the printer controller and the print process raise, and
// the Sink they are delivered to.
package event

import (
	"strconv"
	"strings"
	"sync"
)

// Kind identifies an event. The string form is the row tag written to
// the parent process.
type Kind int

const (
	Online Kind = iota
	Offline
	Position
	Temperature
	Received
	Sent
	ShowImage
	HideImage
	StartedPrinting
	FinishedPrinting
	Info
	Warning
)

var kindTags = [...]string{
	Online:           "printer_online",
	Offline:          "printer_offline",
	Position:         "printer_position",
	Temperature:      "printer_temperature",
	Received:         "from_printer",
	Sent:             "to_printer",
	ShowImage:        "printProcess_showImage",
	HideImage:        "printProcess_hideImage",
	StartedPrinting:  "printProcess_startedPrinting",
	FinishedPrinting: "printProcess_finishedPrinting",
	Info:             "info",
	Warning:          "warning",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindTags) {
		return "unknown_event"
	}
	return kindTags[k]
}

// Event is one notification with its positional arguments.
type Event struct {
	Kind Kind
	Args []string
}

// Fields returns the event as a protocol row: the tag followed by the
// arguments.
func (e Event) Fields() []string {
	return append([]string{e.Kind.String()}, e.Args...)
}

// Sink receives events. Emit may be called concurrently from the link
// reader, the print process and the request loop.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Fanout delivers each event to several sinks in order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout creates a fan-out over the given sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Add appends a sink.
func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

// Emit implements Sink.
func (f *Fanout) Emit(e Event) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()
	for _, s := range sinks {
		s.Emit(e)
	}
}

// Constructors

func PrinterOnline() Event  { return Event{Kind: Online} }
func PrinterOffline() Event { return Event{Kind: Offline} }

// PositionReport carries the parsed axis value.
func PositionReport(z float64) Event {
	return Event{Kind: Position, Args: []string{FormatFloat(z)}}
}

func TemperatureReport(raw string) Event { return Event{Kind: Temperature, Args: []string{raw}} }
func FromPrinter(line string) Event      { return Event{Kind: Received, Args: []string{line}} }
func ToPrinter(line string) Event        { return Event{Kind: Sent, Args: []string{line}} }

// ShowLayer asks the projector to show a layer image. index is 0-based.
func ShowLayer(path string, brightness, index, total int) Event {
	return Event{Kind: ShowImage, Args: []string{
		path, strconv.Itoa(brightness), strconv.Itoa(index), strconv.Itoa(total),
	}}
}

func HideLayer() Event      { return Event{Kind: HideImage} }
func PrintStarted() Event   { return Event{Kind: StartedPrinting} }
func PrintFinished() Event  { return Event{Kind: FinishedPrinting} }
func PortInfo(device string) Event {
	return Event{Kind: Info, Args: []string{"port", device}}
}
func Warn(message string) Event { return Event{Kind: Warning, Args: []string{message}} }

// FormatFloat renders a position the way the parent parses it: shortest
// round-trip form, always with a decimal point.
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
