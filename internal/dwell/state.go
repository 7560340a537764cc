// Package dwell turns a stream of resolved gaze samples into per-target
// fixation and dwell events.
//
// Each attended target carries its own clock. Sample durations are booked
// against the target under the gaze and kept in a time-bounded history so
// that old attention decays. A target advances through a fixed ladder of
// states (PreEnter, Enter, Fixation, Dwell) whenever its accumulated time
// passes the next configured delay, and leaves the ladder again once it
// has not been looked at for its exit delay.
//
// The engine is not safe for concurrent use. The pointer package owns the
// goroutine that drives it.
package dwell

import (
	"fmt"
	"math"
	"time"

	"github.com/gosight/gosight/gaze/internal/target"
)

// PointerState is a step on the attention ladder. The order matters:
// advancing means moving to the next ordinal.
type PointerState int

const (
	Exit PointerState = iota
	PreEnter
	Enter
	Fixation
	Dwell
	DwellRepeat
)

func (s PointerState) String() string {
	switch s {
	case Exit:
		return "exit"
	case PreEnter:
		return "pre_enter"
	case Enter:
		return "enter"
	case Fixation:
		return "fixation"
	case Dwell:
		return "dwell"
	case DwellRepeat:
		return "dwell_repeat"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Forever is the frozen NextStateTime of a target that must not advance
const Forever = time.Duration(math.MaxInt64)

// addSat adds a non-negative delay without overflowing past Forever
func addSat(a, b time.Duration) time.Duration {
	if b < 0 {
		b = 0
	}
	if a >= Forever-b {
		return Forever
	}
	return a + b
}

// TargetState is the attention bookkeeping for one target
type TargetState struct {
	Target         *target.Target
	State          PointerState
	DetailedTime   time.Duration
	OverflowTime   time.Duration
	NextStateTime  time.Duration
	LastTimestamp  time.Duration
	RepeatCount    int
	MaxRepeatCount int

	samples int

	notifiedState    PointerState
	notifiedProgress ProgressState
	progressNotified bool
	feedbackPrev     time.Duration
	feedbackNext     time.Duration
}

// Elapsed is the total attention credited to the target
func (ts *TargetState) Elapsed() time.Duration {
	return ts.DetailedTime + ts.OverflowTime
}
