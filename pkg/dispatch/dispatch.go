// Request dispatcher
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package dispatch serves the request loop: it maps each request verb to
// a printer or print process operation, writes the response row, and
// serializes asynchronous events to the same output.
package dispatch

import (
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"stdio-shepherd/pkg/errors"
	"stdio-shepherd/pkg/event"
	"stdio-shepherd/pkg/log"
	"stdio-shepherd/pkg/metrics"
	"stdio-shepherd/pkg/printer"
	"stdio-shepherd/pkg/printprocess"
	"stdio-shepherd/pkg/protocol"
)

// handler runs a verb. It returns the fields that follow "ok <verb>".
type handler func(args []string) ([]string, error)

var errTerminate = stderrors.New("terminate")

// Options configures a Dispatcher.
type Options struct {
	// Defaults fill job values and the lift travel of "lift"
	Defaults printprocess.Defaults

	Logger  *log.Logger
	Metrics *metrics.ShepherdMetrics
}

// Dispatcher owns the output stream and the verb table.
type Dispatcher struct {
	out     *protocol.Writer
	ctl     *printer.Controller
	seq     *printprocess.Sequencer
	opts    Options
	log     *log.Logger
	metrics *metrics.ShepherdMetrics
	verbs   map[string]handler
}

// New creates a dispatcher writing rows to out. The printer and the
// print process are set with Attach once they exist, since both emit
// their events through the dispatcher.
func New(out *protocol.Writer, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger("dispatch")
	}
	d := &Dispatcher{out: out, opts: opts, log: logger, metrics: opts.Metrics}
	d.verbs = map[string]handler{
		"move":          d.move,
		"moveTo":        d.moveTo,
		"home":          d.home,
		"lift":          d.lift,
		"askTemp":       d.askTemp,
		"send":          d.send,
		"queryOnline":   d.queryOnline,
		"queryPrinting": d.queryPrinting,
		"stopPrinting":  d.stopPrinting,
		"startPrint":    d.startPrint,
		"terminate":     d.terminate,
	}
	return d
}

// Attach sets the operations the verbs act on.
func (d *Dispatcher) Attach(ctl *printer.Controller, seq *printprocess.Sequencer) {
	d.ctl = ctl
	d.seq = seq
}

var _ event.Sink = (*Dispatcher)(nil)

// Emit implements event.Sink by writing the event as a row.
func (d *Dispatcher) Emit(e event.Event) {
	d.write(e.Fields()...)
}

func (d *Dispatcher) write(fields ...string) {
	if err := d.out.WriteRow(fields...); err != nil {
		d.log.WithError(err).Error("writing row %q", fields[0])
	}
}

// Started writes the row that tells the parent requests are accepted.
func (d *Dispatcher) Started() {
	d.write("ok", "started")
}

// Run reads and serves requests until terminate or the end of input.
// Requests are served one at a time; the response row of a request is
// written before the next one is read.
func (d *Dispatcher) Run(in io.Reader) error {
	r := protocol.NewReader(in)
	for {
		req, err := r.Next()
		if err == io.EOF {
			d.log.Info("input closed")
			return nil
		}
		if err != nil {
			if !errors.Is(err, errors.ErrMalformedRequest) {
				return err
			}
			d.malformed(req, err)
			continue
		}
		if d.Handle(req) {
			return nil
		}
	}
}

func (d *Dispatcher) malformed(req protocol.Request, err error) {
	verb := ""
	if fields := strings.Fields(req.Raw); len(fields) > 0 {
		verb = fields[0]
	}
	d.log.WithField("line", req.Raw).WithError(err).Warn("malformed request")
	d.metrics.Request("malformed", "fail")
	d.write("fail", verb, string(errors.ErrMalformedRequest))
}

// Handle serves one request and reports whether it was terminate. A
// panic in a handler is logged and answered with an InternalError row.
func (d *Dispatcher) Handle(req protocol.Request) (quit bool) {
	h, ok := d.verbs[req.Verb]
	if !ok {
		d.log.WithField("verb", req.Verb).Debug("unknown verb")
		d.metrics.Request("other", "unknown")
		d.write("unknown", req.Verb)
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			herr := errors.RecoverPanic(r)
			d.log.WithFields(log.Fields{"verb": req.Verb, "panic": fmt.Sprint(r)}).Error("request failed: %v", herr)
			d.fail(req, herr)
			quit = false
		}
	}()

	result, err := h(req.Args)
	switch {
	case err == errTerminate:
		d.metrics.Request(req.Verb, "ok")
		d.write("ok", req.Verb)
		return true
	case err != nil:
		d.log.WithFields(log.Fields{"verb": req.Verb, "args": req.Args}).WithError(err).Debug("request failed")
		d.fail(req, err)
	default:
		d.metrics.Request(req.Verb, "ok")
		d.write(append([]string{"ok", req.Verb}, result...)...)
	}
	return false
}

func (d *Dispatcher) fail(req protocol.Request, err error) {
	code := errors.CodeOf(err)
	d.metrics.Request(req.Verb, "fail")
	d.write(append([]string{"fail", req.Verb, string(code)}, req.Args...)...)
}

// Argument helpers

func floatArg(args []string, i int, name string) (float64, error) {
	if i >= len(args) {
		return 0, errors.MalformedRequest(fmt.Sprintf("missing %s", name))
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrMalformedRequest, fmt.Sprintf("bad %s %q", name, args[i]))
	}
	return v, nil
}

func boolField(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// Verbs

func (d *Dispatcher) move(args []string) ([]string, error) {
	delta, err := floatArg(args, 0, "distance")
	if err != nil {
		return nil, err
	}
	return args, d.ctl.MoveRelative(delta, "")
}

func (d *Dispatcher) moveTo(args []string) ([]string, error) {
	target, err := floatArg(args, 0, "position")
	if err != nil {
		return nil, err
	}
	return args, d.ctl.MoveAbsolute(target, "")
}

func (d *Dispatcher) home(args []string) ([]string, error) {
	return args, d.ctl.Home("")
}

func (d *Dispatcher) lift(args []string) ([]string, error) {
	distance, err := floatArg(args, 0, "distance")
	if err != nil {
		return nil, err
	}
	travel := d.opts.Defaults.LiftTravel
	if len(args) > 1 {
		if travel, err = floatArg(args, 1, "travel"); err != nil {
			return nil, err
		}
	}
	return args, d.ctl.Lift(distance, travel, "")
}

func (d *Dispatcher) askTemp(args []string) ([]string, error) {
	return args, d.ctl.AskTemperature()
}

func (d *Dispatcher) send(args []string) ([]string, error) {
	if len(args) == 0 || strings.TrimSpace(strings.Join(args, "")) == "" {
		return nil, errors.MalformedRequest("missing G-code")
	}
	return args, d.ctl.SendRaw(strings.Join(args, " "))
}

func (d *Dispatcher) queryOnline([]string) ([]string, error) {
	return []string{boolField(d.ctl.IsOnline())}, nil
}

func (d *Dispatcher) queryPrinting([]string) ([]string, error) {
	return []string{boolField(d.seq.Printing())}, nil
}

func (d *Dispatcher) stopPrinting(args []string) ([]string, error) {
	d.seq.Stop()
	return args, nil
}

func (d *Dispatcher) startPrint(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, errors.MalformedRequest("missing job spec")
	}
	job, err := printprocess.ParseJob(strings.Join(args, " "), d.opts.Defaults)
	if err != nil {
		return nil, err
	}
	if err := d.seq.Start(job); err != nil {
		return nil, err
	}
	d.log.WithFields(log.Fields{"job": job.ID, "layers": len(job.Layers)}).Info("job accepted")
	return args, nil
}

func (d *Dispatcher) terminate([]string) ([]string, error) {
	return nil, errTerminate
}
