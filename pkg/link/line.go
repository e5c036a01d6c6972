// Firmware line classification
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package link

import (
	"fmt"
	"strconv"
	"strings"
)

// LineKind is the class of a line received from the firmware.
type LineKind int

const (
	// Raw lines are passed through untouched
	Raw LineKind = iota
	// PositionReport lines carry the build axis position (M114 reply)
	PositionReport
	// TemperatureReport lines answer M105
	TemperatureReport
)

func (k LineKind) String() string {
	switch k {
	case PositionReport:
		return "position"
	case TemperatureReport:
		return "temperature"
	default:
		return "raw"
	}
}

// Line is one decoded line from the firmware.
type Line struct {
	Kind LineKind
	Text string
	// Z is set for position reports only
	Z float64
}

// Classify decides what a firmware line is. A line holding both "Z:" and
// "E:" is a position report whose value is the text after the first "Z:"
// up to the next "E:". An unparseable value is an error and the line
// should be dropped.
func Classify(text string) (Line, error) {
	if strings.Contains(text, "Z:") && strings.Contains(text, "E:") {
		_, rest, _ := strings.Cut(text, "Z:")
		value, _, _ := strings.Cut(rest, "E:")
		z, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return Line{}, fmt.Errorf("bad position report %q: %w", text, err)
		}
		return Line{Kind: PositionReport, Text: text, Z: z}, nil
	}
	if strings.HasPrefix(text, "T:") || strings.HasPrefix(text, "ok T:") {
		return Line{Kind: TemperatureReport, Text: text}, nil
	}
	return Line{Kind: Raw, Text: text}, nil
}

// isGreeting reports whether a line shows the firmware is up.
func isGreeting(text string) bool {
	return strings.HasPrefix(text, "start") ||
		strings.HasPrefix(text, "Grbl ") ||
		text == "ok" ||
		strings.HasPrefix(text, "ok ")
}
