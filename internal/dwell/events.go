package dwell

import (
	"time"

	"github.com/gosight/gosight/gaze/internal/target"
)

// StateChanged reports a target moving to a new state. Exit is reported
// with State == Exit even though the target itself resets to PreEnter.
type StateChanged struct {
	Target      *target.Target
	State       PointerState
	Elapsed     time.Duration
	Timestamp   time.Duration
	RepeatCount int

	// EyesOff marks the synthetic event raised when the gaze stream stops
	EyesOff bool
}

// Invoked is raised before a dwelled target is activated. Setting Handled
// vetoes the default activation.
type Invoked struct {
	Target      *target.Target
	RepeatCount int
	Handled     bool
}

// ProgressState is the coarse dwell feedback shown to the user
type ProgressState int

const (
	ProgressIdle ProgressState = iota
	ProgressFixating
	ProgressProgressing
	ProgressComplete
)

func (p ProgressState) String() string {
	switch p {
	case ProgressFixating:
		return "fixating"
	case ProgressProgressing:
		return "progressing"
	case ProgressComplete:
		return "complete"
	}
	return "idle"
}

// Progress is dwell feedback for one target. Progress is the fraction of
// the current step completed, in [0, 1].
type Progress struct {
	Target   *target.Target
	State    ProgressState
	Progress float64
	Elapsed  time.Duration
}

// OnStateChanged registers fn for state changes
func (e *Engine) OnStateChanged(fn func(StateChanged)) {
	e.stateChanged = append(e.stateChanged, fn)
}

// OnInvoked registers fn to run before activation
func (e *Engine) OnInvoked(fn func(*Invoked)) {
	e.invoked = append(e.invoked, fn)
}

// OnProgress registers fn for progress feedback
func (e *Engine) OnProgress(fn func(Progress)) {
	e.progress = append(e.progress, fn)
}

func (e *Engine) raiseStateChanged(ev StateChanged) {
	for _, fn := range e.stateChanged {
		fn(ev)
	}
}

func (e *Engine) raiseProgress(ts *TargetState, state ProgressState) {
	if !ts.Target.IsInvokable() {
		return
	}
	if ts.progressNotified && state == ts.notifiedProgress && state != ProgressProgressing {
		return
	}

	ev := Progress{
		Target:  ts.Target,
		State:   state,
		Elapsed: ts.Elapsed(),
	}
	switch state {
	case ProgressComplete:
		ev.Progress = 1
	case ProgressProgressing:
		ev.Progress = ts.stepFraction()
	}

	for _, fn := range e.progress {
		fn(ev)
	}
	ts.notifiedProgress = state
	ts.progressNotified = true
}

// stepFraction is how far the target is between its previous and its
// next transition time
func (ts *TargetState) stepFraction() float64 {
	span := ts.feedbackNext - ts.feedbackPrev
	if ts.feedbackNext == Forever || span <= 0 {
		return 0
	}
	f := float64(ts.Elapsed()-ts.feedbackPrev) / float64(span)
	return min(1, max(0, f))
}

// giveFeedback emits progress for ts after a sample or an exit
func (e *Engine) giveFeedback(ts *TargetState) {
	if ts.NextStateTime != ts.feedbackNext {
		ts.feedbackPrev = ts.feedbackNext
		ts.feedbackNext = ts.NextStateTime
	}

	if ts.State != ts.notifiedState {
		switch ts.State {
		case Enter:
			e.raiseProgress(ts, ProgressFixating)
		case Fixation:
			e.raiseProgress(ts, ProgressProgressing)
		case Dwell, DwellRepeat:
			e.raiseProgress(ts, ProgressComplete)
		default:
			e.raiseProgress(ts, ProgressIdle)
		}
		ts.notifiedState = ts.State
		return
	}

	if ts.State == Fixation {
		e.raiseProgress(ts, ProgressProgressing)
	}
}
