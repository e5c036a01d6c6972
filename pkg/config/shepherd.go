// Typed settings of the stdio shepherd
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"strings"
	"time"
)

// Serial backends
const (
	BackendNative = "native"
	BackendTarm   = "tarm"
)

// SerialSettings is the [serial] section.
type SerialSettings struct {
	Port             string   // preferred port, tried first
	Candidates       []string // glob patterns, tried in order
	Baud             int
	Backend          string
	ReadTimeout      time.Duration
	GreetingInterval time.Duration
}

// PrinterSettings is the [printer] section.
type PrinterSettings struct {
	Axis                   string
	PositionTolerance      float64
	ConsumePositionReports bool
}

// PrintSettings is the [print] section. Layer defaults apply to job
// specs that leave the value out.
type PrintSettings struct {
	LiftTravel            float64
	LiftTimeout           time.Duration
	HomeTimeout           time.Duration
	HomePosition          float64
	DefaultBrightness     int
	DefaultLayerThickness float64
	DefaultExposureTime   time.Duration
}

// MonitorSettings is the [monitor] section. An empty Address disables
// the monitor.
type MonitorSettings struct {
	Address  string
	Username string
	Password string
}

// LogSettings is the [log] section.
type LogSettings struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	Compress   bool
}

// ShepherdConfig holds every setting of the process.
type ShepherdConfig struct {
	Serial  SerialSettings
	Printer PrinterSettings
	Print   PrintSettings
	Monitor MonitorSettings
	Log     LogSettings
}

// Defaults returns the settings used when no config file is given.
func Defaults() *ShepherdConfig {
	return &ShepherdConfig{
		Serial: SerialSettings{
			Candidates:       []string{"/dev/ttyUSB*", "/dev/ttyACM*"},
			Baud:             250000,
			Backend:          BackendNative,
			ReadTimeout:      100 * time.Millisecond,
			GreetingInterval: 2 * time.Second,
		},
		Printer: PrinterSettings{
			Axis:              "Z",
			PositionTolerance: 0.001,
		},
		Print: PrintSettings{
			LiftTravel:            2.0,
			LiftTimeout:           30 * time.Second,
			HomeTimeout:           120 * time.Second,
			DefaultBrightness:     127,
			DefaultLayerThickness: 0.1,
			DefaultExposureTime:   time.Second,
		},
		Log: LogSettings{
			Level:      "info",
			Format:     "text",
			MaxSize:    10,
			MaxBackups: 5,
		},
	}
}

// LoadShepherd reads every known section of c on top of Defaults.
// Missing sections and options keep their defaults.
func LoadShepherd(c *Config) (*ShepherdConfig, error) {
	cfg := Defaults()
	if c == nil {
		return cfg, nil
	}
	steps := []func(*Config, *ShepherdConfig) error{
		readSerial, readPrinter, readPrint, readMonitor, readLog,
	}
	for _, step := range steps {
		if err := step(c, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func readSerial(c *Config, cfg *ShepherdConfig) error {
	sec := c.GetSectionOptional("serial")
	s := &cfg.Serial
	var err error

	if s.Port, err = sec.Get("port", s.Port); err != nil {
		return err
	}
	if s.Candidates, err = sec.GetList("candidates", ",", s.Candidates); err != nil {
		return err
	}
	if s.Baud, err = sec.GetIntWithBounds("baud", 300, 4000000, s.Baud); err != nil {
		return err
	}
	if s.Backend, err = sec.GetChoice("backend", []string{BackendNative, BackendTarm}, s.Backend); err != nil {
		return err
	}
	if s.ReadTimeout, err = sec.GetSeconds("read_timeout", s.ReadTimeout); err != nil {
		return err
	}
	s.GreetingInterval, err = sec.GetSeconds("greeting_interval", s.GreetingInterval)
	return err
}

func readPrinter(c *Config, cfg *ShepherdConfig) error {
	sec := c.GetSectionOptional("printer")
	p := &cfg.Printer
	var err error

	if p.Axis, err = sec.GetChoice("axis", []string{"X", "Y", "Z"}, p.Axis); err != nil {
		return err
	}
	if p.PositionTolerance, err = sec.GetFloatWithBounds("position_tolerance", Above(0), p.PositionTolerance); err != nil {
		return err
	}
	p.ConsumePositionReports, err = sec.GetBool("consume_position_reports", p.ConsumePositionReports)
	return err
}

func readPrint(c *Config, cfg *ShepherdConfig) error {
	sec := c.GetSectionOptional("print")
	p := &cfg.Print
	var err error

	if p.LiftTravel, err = sec.GetFloatWithBounds("lift_travel", Min(0), p.LiftTravel); err != nil {
		return err
	}
	if p.LiftTimeout, err = sec.GetSeconds("lift_timeout", p.LiftTimeout); err != nil {
		return err
	}
	if p.HomeTimeout, err = sec.GetSeconds("home_timeout", p.HomeTimeout); err != nil {
		return err
	}
	if p.HomePosition, err = sec.GetFloat("home_position", p.HomePosition); err != nil {
		return err
	}
	if p.DefaultBrightness, err = sec.GetIntWithBounds("default_brightness", 0, 255, p.DefaultBrightness); err != nil {
		return err
	}
	if p.DefaultLayerThickness, err = sec.GetFloatWithBounds("default_layer_thickness", Above(0), p.DefaultLayerThickness); err != nil {
		return err
	}
	p.DefaultExposureTime, err = sec.GetSeconds("default_exposure_time", p.DefaultExposureTime)
	return err
}

func readMonitor(c *Config, cfg *ShepherdConfig) error {
	sec := c.GetSectionOptional("monitor")
	m := &cfg.Monitor
	var err error

	if m.Address, err = sec.Get("address", m.Address); err != nil {
		return err
	}
	if m.Username, err = sec.Get("username", m.Username); err != nil {
		return err
	}
	if m.Password, err = sec.Get("password", m.Password); err != nil {
		return err
	}
	if (m.Username == "") != (m.Password == "") {
		return NewConfigError("monitor", "password", "username and password must be set together")
	}
	return nil
}

func readLog(c *Config, cfg *ShepherdConfig) error {
	sec := c.GetSectionOptional("log")
	l := &cfg.Log
	var err error

	if l.Level, err = sec.GetChoice("level", []string{"debug", "info", "warn", "error"}, l.Level); err != nil {
		return err
	}
	if l.Format, err = sec.GetChoice("format", []string{"text", "json"}, l.Format); err != nil {
		return err
	}
	if l.File, err = sec.Get("file", l.File); err != nil {
		return err
	}
	if l.MaxSize, err = sec.GetIntWithBounds("max_size", 1, 1024, l.MaxSize); err != nil {
		return err
	}
	if l.MaxBackups, err = sec.GetIntWithBounds("max_backups", 1, 100, l.MaxBackups); err != nil {
		return err
	}
	l.Compress, err = sec.GetBool("compress", l.Compress)
	return err
}

// Ports returns the preferred port followed by the candidate patterns,
// as a single display string for logs.
func (s SerialSettings) Ports() string {
	all := s.Candidates
	if s.Port != "" {
		all = append([]string{s.Port}, all...)
	}
	return strings.Join(all, ", ")
}
