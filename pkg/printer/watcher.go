// Position watcher
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package printer

import (
	"context"
	"math"
	"time"

	"stdio-shepherd/pkg/errors"
)

// Watcher is a one-shot wait for a position report near a target. Only
// reports that arrive after the watcher was registered count, so it must
// be registered before the motion command is sent.
type Watcher struct {
	c         *Controller
	target    float64
	tolerance float64
	done      chan error
}

// WatchPosition registers a watcher for target.
func (c *Controller) WatchPosition(target float64) *Watcher {
	w := &Watcher{
		c:         c,
		target:    target,
		tolerance: c.opts.Tolerance,
		done:      make(chan error, 1),
	}
	c.mu.Lock()
	c.watchers[w] = struct{}{}
	c.mu.Unlock()
	return w
}

// Target returns the position the watcher waits for.
func (w *Watcher) Target() float64 { return w.target }

func (w *Watcher) matches(z float64) bool {
	return math.Abs(z-w.target) <= w.tolerance
}

// resolve completes the watcher; later calls are ignored.
func (w *Watcher) resolve(err error) {
	select {
	case w.done <- err:
	default:
	}
}

// Wait blocks until a matching report arrives, the timeout passes, the
// printer goes offline or ctx is cancelled. A timeout returns a
// LiftTimeout error and cancellation a Stopped error.
func (w *Watcher) Wait(ctx context.Context, timeout time.Duration) error {
	defer w.Cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-w.done:
		return err
	case <-timer.C:
		return errors.LiftTimeout(w.target, timeout.String())
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrStopped, "position wait cancelled")
	}
}

// Cancel unregisters the watcher.
func (w *Watcher) Cancel() {
	w.c.mu.Lock()
	delete(w.c.watchers, w)
	w.c.mu.Unlock()
}

// AwaitPosition waits for a report near target that arrives after the
// call. Callers that issue motion themselves should use WatchPosition
// before sending so a fast report is not missed.
func (c *Controller) AwaitPosition(ctx context.Context, target float64, timeout time.Duration) error {
	return c.WatchPosition(target).Wait(ctx, timeout)
}
