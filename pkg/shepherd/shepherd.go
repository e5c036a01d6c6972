// Process assembly
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package shepherd assembles the printer link, controller, print process,
// request dispatcher and optional monitor into one process.
package shepherd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"stdio-shepherd/pkg/config"
	"stdio-shepherd/pkg/dispatch"
	"stdio-shepherd/pkg/event"
	"stdio-shepherd/pkg/link"
	"stdio-shepherd/pkg/log"
	"stdio-shepherd/pkg/metrics"
	"stdio-shepherd/pkg/monitor"
	"stdio-shepherd/pkg/printer"
	"stdio-shepherd/pkg/printprocess"
	"stdio-shepherd/pkg/protocol"
	"stdio-shepherd/pkg/serial"
)

// Options configures a Shepherd.
type Options struct {
	Config *config.ShepherdConfig
	// Stdout receives protocol rows
	Stdout io.Writer
	// Opener overrides the configured serial backend
	Opener serial.Opener
	Logger *log.Logger
}

// Shepherd is one running printer driver.
type Shepherd struct {
	cfg     *config.ShepherdConfig
	log     *log.Logger
	metrics *metrics.ShepherdMetrics

	link    *link.Link
	ctl     *printer.Controller
	seq     *printprocess.Sequencer
	disp    *dispatch.Dispatcher
	monitor *monitor.Server
}

// New wires the components. Nothing is opened until Start.
func New(opts Options) (*Shepherd, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger("shepherd")
	}
	opener := opts.Opener
	if opener == nil {
		var err error
		if opener, err = serial.OpenerFor(cfg.Serial.Backend); err != nil {
			return nil, err
		}
	}

	m := metrics.NewShepherdMetrics()
	out := protocol.NewWriter(opts.Stdout)
	defaults := printprocess.Defaults{
		Brightness:     cfg.Print.DefaultBrightness,
		LayerThickness: cfg.Print.DefaultLayerThickness,
		ExposureTime:   cfg.Print.DefaultExposureTime,
		LiftTravel:     cfg.Print.LiftTravel,
	}

	s := &Shepherd{cfg: cfg, log: logger, metrics: m}
	s.disp = dispatch.New(out, dispatch.Options{
		Defaults: defaults,
		Logger:   logger.WithPrefix("dispatch"),
		Metrics:  m,
	})
	sink := event.NewFanout(s.disp, event.SinkFunc(s.trace))

	s.link = link.New(link.Options{
		Opener:           opener,
		ReadTimeout:      cfg.Serial.ReadTimeout,
		GreetingInterval: cfg.Serial.GreetingInterval,
		Logger:           logger.WithPrefix("link"),
		Metrics:          m,
	})
	s.ctl = printer.New(s.link, sink, printer.Options{
		Axis:                   cfg.Printer.Axis,
		Tolerance:              cfg.Printer.PositionTolerance,
		ConsumePositionReports: cfg.Printer.ConsumePositionReports,
		Logger:                 logger.WithPrefix("printer"),
		Metrics:                m,
	})
	s.link.SetListener(s.ctl)
	s.seq = printprocess.New(s.ctl, sink, printprocess.Options{
		HomeTimeout:  cfg.Print.HomeTimeout,
		LiftTimeout:  cfg.Print.LiftTimeout,
		HomePosition: cfg.Print.HomePosition,
		Logger:       logger.WithPrefix("printprocess"),
		Metrics:      m,
	})
	s.disp.Attach(s.ctl, s.seq)

	if cfg.Monitor.Address != "" {
		s.monitor = monitor.New(monitor.Config{
			Addr:     cfg.Monitor.Address,
			Username: cfg.Monitor.Username,
			Password: cfg.Monitor.Password,
			Status:   s.Status,
			Metrics:  m,
			Logger:   logger.WithPrefix("monitor"),
		})
		out.SetMirror(s.monitor.Mirror)
	}
	return s, nil
}

// trace logs print progress and printer reports on the diagnostic stream.
func (s *Shepherd) trace(e event.Event) {
	switch e.Kind {
	case event.Position, event.Temperature, event.ShowImage, event.StartedPrinting, event.FinishedPrinting:
		s.log.WithField("event", e.Kind.String()).Debug("%s", strings.Join(e.Args, " "))
	}
}

// Start brings up the monitor, connects to the printer and announces
// readiness. A missing printer is reported as a warning row; the process
// keeps serving requests disconnected.
func (s *Shepherd) Start() error {
	if s.monitor != nil {
		if err := s.monitor.Start(); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
	}

	serialCfg := s.cfg.Serial
	device, err := s.link.Connect(serialCfg.Candidates, serialCfg.Port, serialCfg.Baud)
	if err != nil {
		s.log.WithError(err).Warn("no printer connected")
		s.disp.Emit(event.Warn("couldn't open any serial device: " + err.Error()))
	} else {
		s.disp.Emit(event.PortInfo(device))
	}
	s.disp.Started()
	return nil
}

// Run serves requests from in until terminate or end of input.
func (s *Shepherd) Run(in io.Reader) error {
	return s.disp.Run(in)
}

// Close stops any job, disconnects the printer and stops the monitor.
func (s *Shepherd) Close() error {
	s.seq.Stop()
	s.seq.Wait()
	s.link.Disconnect()
	if s.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.monitor.Stop(ctx)
	}
	return nil
}

// Status builds the monitor status document.
func (s *Shepherd) Status() monitor.Status {
	st := monitor.Status{
		Connection: s.ctl.State().String(),
		Device:     s.ctl.Device(),
		Print:      s.seq.Status(),
	}
	if z, ok := s.ctl.Position(); ok {
		st.Position = &z
	}
	return st
}

// Metrics returns the metric set.
func (s *Shepherd) Metrics() *metrics.ShepherdMetrics {
	return s.metrics
}
