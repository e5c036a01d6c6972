// Shepherd metric set
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"time"
)

// ShepherdMetrics holds every metric the shepherd exports. All methods
// are safe on a nil receiver so components can run without metrics.
type ShepherdMetrics struct {
	// Device link
	CommandsSent    *Counter
	LinesReceived   *Counter
	LinesDropped    *Counter
	ConnectionState *Gauge
	Position        *Gauge

	// Print process
	SequencerState *Gauge
	LayersExposed  *Counter
	JobsFinished   *Counter
	LiftLatency    *Histogram

	// Request loop
	Requests *Counter

	// Process
	Goroutines *Gauge
	Uptime     *Gauge

	startTime time.Time
	registry  *Registry
}

// NewShepherdMetrics creates and registers the metric set on a private
// registry.
func NewShepherdMetrics() *ShepherdMetrics {
	m := &ShepherdMetrics{
		startTime: time.Now(),
		registry:  NewRegistry(),
	}

	m.CommandsSent = NewCounter("shepherd_commands_sent_total",
		"G-code lines written to the printer")
	m.LinesReceived = NewCounter("shepherd_lines_received_total",
		"Lines received from the printer by kind")
	m.LinesDropped = NewCounter("shepherd_lines_dropped_total",
		"Received lines dropped because they could not be parsed")
	m.ConnectionState = NewGauge("shepherd_connection_state",
		"Printer connection state (0=disconnected, 1=connecting, 2=online)")
	m.Position = NewGauge("shepherd_position_mm",
		"Last reported build axis position")

	m.SequencerState = NewGauge("shepherd_sequencer_state",
		"Print process state (index into the state list of /status)")
	m.LayersExposed = NewCounter("shepherd_layers_exposed_total",
		"Layers whose exposure completed")
	m.JobsFinished = NewCounter("shepherd_jobs_finished_total",
		"Print jobs that ended, by result")
	m.LiftLatency = NewHistogram("shepherd_lift_confirm_seconds",
		"Time from issuing a lift until its position report matched",
		[]float64{0.25, 0.5, 1, 2, 5, 10, 30, 60})

	m.Requests = NewCounter("shepherd_requests_total",
		"Protocol requests by verb and result")

	m.Goroutines = NewGauge("shepherd_go_goroutines",
		"Number of active goroutines")
	m.Uptime = NewGauge("shepherd_uptime_seconds",
		"Seconds since the process started")

	for _, metric := range []Metric{
		m.CommandsSent, m.LinesReceived, m.LinesDropped, m.ConnectionState, m.Position,
		m.SequencerState, m.LayersExposed, m.JobsFinished, m.LiftLatency,
		m.Requests, m.Goroutines, m.Uptime,
	} {
		m.registry.MustRegister(metric)
	}
	return m
}

// CommandSent counts one outbound G-code line.
func (m *ShepherdMetrics) CommandSent() {
	if m == nil {
		return
	}
	m.CommandsSent.Inc(nil)
}

// LineReceived counts one inbound line of the given kind.
func (m *ShepherdMetrics) LineReceived(kind string) {
	if m == nil {
		return
	}
	m.LinesReceived.Inc(Labels{"kind": kind})
}

// LineDropped counts one unparseable inbound line.
func (m *ShepherdMetrics) LineDropped() {
	if m == nil {
		return
	}
	m.LinesDropped.Inc(nil)
}

// SetConnectionState records the connection state ordinal.
func (m *ShepherdMetrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(nil, float64(state))
}

// SetPosition records the last reported position.
func (m *ShepherdMetrics) SetPosition(z float64) {
	if m == nil {
		return
	}
	m.Position.Set(nil, z)
}

// SetSequencerState records the print process state ordinal.
func (m *ShepherdMetrics) SetSequencerState(state int) {
	if m == nil {
		return
	}
	m.SequencerState.Set(nil, float64(state))
}

// LayerExposed counts one completed exposure.
func (m *ShepherdMetrics) LayerExposed() {
	if m == nil {
		return
	}
	m.LayersExposed.Inc(nil)
}

// JobFinished counts a job end; result is "completed", "stopped" or
// "aborted".
func (m *ShepherdMetrics) JobFinished(result string) {
	if m == nil {
		return
	}
	m.JobsFinished.Inc(Labels{"result": result})
}

// ObserveLiftLatency records how long a position confirmation took.
func (m *ShepherdMetrics) ObserveLiftLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.LiftLatency.Observe(nil, d.Seconds())
}

// Request counts one protocol request; result is "ok", "fail" or
// "unknown".
func (m *ShepherdMetrics) Request(verb, result string) {
	if m == nil {
		return
	}
	m.Requests.Inc(Labels{"verb": verb, "result": result})
}

// Gather refreshes process metrics and renders everything in Prometheus
// text format.
func (m *ShepherdMetrics) Gather() string {
	if m == nil {
		return ""
	}
	m.Goroutines.Set(nil, float64(goruntime.NumGoroutine()))
	m.Uptime.Set(nil, time.Since(m.startTime).Seconds())
	return m.registry.Gather()
}
