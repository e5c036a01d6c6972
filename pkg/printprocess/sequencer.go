// Layer exposure sequencer
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package printprocess runs print jobs: it homes the platform, then
// shows, exposes and hides each layer image and lifts the platform,
// advancing only once the printer reports the lifted position.
package printprocess

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"stdio-shepherd/pkg/errors"
	"stdio-shepherd/pkg/event"
	"stdio-shepherd/pkg/log"
	"stdio-shepherd/pkg/metrics"
	"stdio-shepherd/pkg/printer"
)

// State is the sequencer state.
type State int

const (
	Idle State = iota
	Homing
	AwaitHomeLift
	ShowingLayer
	Exposing
	Lifting
	AwaitLiftConfirm
	Finished
	Stopped
)

var stateNames = [...]string{
	Idle:             "idle",
	Homing:           "homing",
	AwaitHomeLift:    "await_home_lift",
	ShowingLayer:     "showing_layer",
	Exposing:         "exposing",
	Lifting:          "lifting",
	AwaitLiftConfirm: "await_lift_confirm",
	Finished:         "finished",
	Stopped:          "stopped",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Active reports whether a job holds the sequencer in this state.
func (s State) Active() bool {
	return s != Idle && s != Finished && s != Stopped
}

// Options configures a Sequencer.
type Options struct {
	HomeTimeout  time.Duration
	LiftTimeout  time.Duration
	HomePosition float64

	Logger  *log.Logger
	Metrics *metrics.ShepherdMetrics
}

// Status is a snapshot of the sequencer.
type Status struct {
	State     string `json:"state"`
	JobID     string `json:"job_id,omitempty"`
	Layer     int    `json:"layer"`
	Total     int    `json:"total"`
	LastError string `json:"last_error,omitempty"`
}

// Sequencer runs at most one job at a time against a printer.
type Sequencer struct {
	ctl     *printer.Controller
	sink    event.Sink
	opts    Options
	log     *log.Logger
	metrics *metrics.ShepherdMetrics

	mu      sync.Mutex
	state   State
	job     *Job
	index   int
	lastErr error
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an idle sequencer.
func New(ctl *printer.Controller, sink event.Sink, opts Options) *Sequencer {
	if opts.HomeTimeout <= 0 {
		opts.HomeTimeout = 120 * time.Second
	}
	if opts.LiftTimeout <= 0 {
		opts.LiftTimeout = 30 * time.Second
	}
	if sink == nil {
		sink = event.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger("printprocess")
	}
	return &Sequencer{ctl: ctl, sink: sink, opts: opts, log: logger, metrics: opts.Metrics}
}

// Start begins job in the background. It fails with AlreadyPrinting
// while a job is active and with NotOnline when the printer is not.
func (s *Sequencer) Start(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Active() {
		return errors.AlreadyPrinting(s.state.String())
	}
	if !s.ctl.IsOnline() {
		return errors.NotOnline("startPrint")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.job = job
	s.index = 0
	s.lastErr = nil
	s.cancel = cancel
	s.done = make(chan struct{})
	s.setStateLocked(Homing)

	s.log.WithFields(log.Fields{"job": job.ID, "layers": len(job.Layers)}).Info("print started")
	go s.run(ctx, job, s.done)
	return nil
}

// Stop aborts the active job at its next step. It is a no-op when no
// job is running.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil && s.state.Active() {
		s.log.WithField("state", s.state.String()).Info("stop requested")
		s.cancel()
	}
}

// Wait blocks until the current job, if any, has ended.
func (s *Sequencer) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Printing reports whether a job is active.
func (s *Sequencer) Printing() bool {
	return s.State().Active()
}

// Status returns a snapshot for status queries.
func (s *Sequencer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state.String(), Layer: s.index}
	if s.job != nil {
		st.JobID = s.job.ID
		st.Total = len(s.job.Layers)
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Sequencer) setState(state State) {
	s.mu.Lock()
	s.setStateLocked(state)
	s.mu.Unlock()
}

func (s *Sequencer) setStateLocked(state State) {
	if s.state != state {
		s.log.Debug("%s -> %s", s.state, state)
	}
	s.state = state
	s.metrics.SetSequencerState(int(state))
}

func (s *Sequencer) run(ctx context.Context, job *Job, done chan struct{}) {
	defer close(done)
	err := s.sequence(ctx, job)
	s.finish(job, err)
}

// sequence drives one job. The expected position after every motion is
// computed before the motion is issued and a watcher for it registered.
func (s *Sequencer) sequence(ctx context.Context, job *Job) error {
	axis := s.ctl.Axis()
	expected := s.opts.HomePosition

	w := s.ctl.WatchPosition(expected)
	if err := s.ctl.Home(axis); err != nil {
		w.Cancel()
		return err
	}
	if err := w.Wait(ctx, s.opts.HomeTimeout); err != nil {
		return err
	}
	s.sink.Emit(event.PrintStarted())

	s.setState(AwaitHomeLift)
	expected += job.LayerThickness
	if err := s.lift(ctx, job, expected, axis); err != nil {
		return err
	}

	total := len(job.Layers)
	for i, layer := range job.Layers {
		if ctx.Err() != nil {
			return errors.Stopped()
		}

		s.mu.Lock()
		s.index = i
		s.setStateLocked(ShowingLayer)
		s.mu.Unlock()
		s.sink.Emit(event.ShowLayer(layer.Image, layer.Brightness, i, total))

		s.setState(Exposing)
		timer := time.NewTimer(job.ExposureTime)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.sink.Emit(event.HideLayer())
			return errors.Stopped()
		}
		s.sink.Emit(event.HideLayer())
		s.metrics.LayerExposed()

		s.setState(Lifting)
		expected += job.LayerThickness
		if err := s.lift(ctx, job, expected, axis); err != nil {
			return err
		}
	}
	return nil
}

// lift issues a peel and waits until the printer reports expected.
func (s *Sequencer) lift(ctx context.Context, job *Job, expected float64, axis string) error {
	w := s.ctl.WatchPosition(expected)
	if err := s.ctl.Lift(job.LayerThickness, job.LiftTravel, axis); err != nil {
		w.Cancel()
		return err
	}
	if s.State() == Lifting {
		s.setState(AwaitLiftConfirm)
	}
	start := time.Now()
	if err := w.Wait(ctx, s.opts.LiftTimeout); err != nil {
		return err
	}
	s.metrics.ObserveLiftLatency(time.Since(start))
	return nil
}

// finish records the outcome and emits the finished event exactly once
// per job. Aborts other than a stop request also emit a warning.
func (s *Sequencer) finish(job *Job, err error) {
	result := "completed"
	state := Finished
	entry := s.log.WithField("job", job.ID)

	if err != nil {
		state = Stopped
		if errors.Is(err, errors.ErrStopped) {
			result = "stopped"
			entry.Info("print stopped")
		} else {
			result = "aborted"
			entry.WithError(err).Error("print aborted")
			s.sink.Emit(event.Warn(reason(err)))
		}
	} else {
		entry.Info("print finished")
	}

	s.mu.Lock()
	s.lastErr = err
	s.cancel()
	s.cancel = nil
	s.setStateLocked(state)
	s.mu.Unlock()

	s.metrics.JobFinished(result)
	s.sink.Emit(event.PrintFinished())
}

// reason renders an abort as "<Code>: <message>".
func reason(err error) string {
	var he *errors.HostError
	if stderrors.As(err, &he) {
		return fmt.Sprintf("%s: %s", he.Code, he.Message)
	}
	return fmt.Sprintf("%s: %v", errors.ErrInternal, err)
}
