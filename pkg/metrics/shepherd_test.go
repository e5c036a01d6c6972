// Shepherd metric set tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestShepherdMetrics(t *testing.T) {
	m := NewShepherdMetrics()

	m.CommandSent()
	m.CommandSent()
	m.LineReceived("position")
	m.LineDropped()
	m.SetConnectionState(2)
	m.SetPosition(1.25)
	m.SetSequencerState(4)
	m.LayerExposed()
	m.JobFinished("completed")
	m.ObserveLiftLatency(300 * time.Millisecond)
	m.Request("move", "ok")

	if m.CommandsSent.Get(nil) != 2 {
		t.Errorf("commands sent = %d", m.CommandsSent.Get(nil))
	}
	if m.LiftLatency.Count(nil) != 1 {
		t.Error("expected one lift latency observation")
	}

	out := m.Gather()
	for _, want := range []string{
		"shepherd_commands_sent_total 2",
		`shepherd_lines_received_total{kind="position"} 1`,
		"shepherd_lines_dropped_total 1",
		"shepherd_connection_state 2",
		"shepherd_position_mm 1.25",
		"shepherd_sequencer_state 4",
		"shepherd_layers_exposed_total 1",
		`shepherd_jobs_finished_total{result="completed"} 1`,
		`shepherd_lift_confirm_seconds_bucket{le="0.5"} 1`,
		`shepherd_requests_total{result="ok",verb="move"} 1`,
		"# TYPE shepherd_go_goroutines gauge",
		"# TYPE shepherd_uptime_seconds gauge",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestShepherdMetricsNilSafe(t *testing.T) {
	var m *ShepherdMetrics
	m.CommandSent()
	m.LineReceived("raw")
	m.LineDropped()
	m.SetConnectionState(0)
	m.SetPosition(0)
	m.SetSequencerState(0)
	m.LayerExposed()
	m.JobFinished("stopped")
	m.ObserveLiftLatency(time.Second)
	m.Request("home", "fail")
	if m.Gather() != "" {
		t.Error("nil metrics should gather nothing")
	}
}
