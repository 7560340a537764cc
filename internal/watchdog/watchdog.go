// Package watchdog provides a debounced, cancellable timeout used to detect
// when the gaze stream has gone quiet.
package watchdog

import (
	"time"
)

// Timer is a pending callback
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules on the runtime timer
type RealScheduler struct{}

// AfterFunc wraps time.AfterFunc
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Watchdog fires once when Kick has not been called for the configured
// delay. Every Kick restarts the countdown.
//
// The timer callback runs on the scheduler's goroutine; it is handed to
// post so the owner can serialize it with the rest of its work. Firings
// that lose a race with a later Kick or Stop are dropped.
type Watchdog struct {
	sched Scheduler
	post  func(func())
	fire  func()
	delay time.Duration

	timer Timer
	seq   uint64
}

// New creates a stopped watchdog. A nil post runs the callback directly.
func New(sched Scheduler, delay time.Duration, post func(func()), fire func()) *Watchdog {
	if sched == nil {
		sched = RealScheduler{}
	}
	if post == nil {
		post = func(f func()) { f() }
	}
	return &Watchdog{
		sched: sched,
		post:  post,
		fire:  fire,
		delay: delay,
	}
}

// SetDelay changes the timeout; it applies from the next Kick
func (w *Watchdog) SetDelay(d time.Duration) {
	w.delay = d
}

// Kick cancels any pending firing and starts a new countdown
func (w *Watchdog) Kick() {
	w.Stop()
	if w.delay <= 0 {
		return
	}

	seq := w.seq
	w.timer = w.sched.AfterFunc(w.delay, func() {
		w.post(func() {
			if seq != w.seq || w.timer == nil {
				return
			}
			w.timer = nil
			w.fire()
		})
	})
}

// Stop cancels any pending firing
func (w *Watchdog) Stop() {
	w.seq++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Armed reports whether a firing is pending
func (w *Watchdog) Armed() bool {
	return w.timer != nil
}
