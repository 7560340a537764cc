package dwell

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/gaze/internal/sample"
	"github.com/gosight/gosight/gaze/internal/target"
	"github.com/gosight/gosight/gaze/internal/watchdog"
)

// Resolver finds the target under a point
type Resolver interface {
	Resolve(p sample.Point) *target.Target
}

// Activator performs a target's activation
type Activator interface {
	Activate(t *target.Target) bool
}

// Options are the engine's collaborators. Only Resolver is required.
type Options struct {
	Resolver  Resolver
	Registry  *target.Registry
	Activator Activator

	// Scheduler and Post drive the eyes-off watchdog. Post must run the
	// callback on the goroutine that owns the engine.
	Scheduler watchdog.Scheduler
	Post      func(func())
}

// Engine is the dwell/fixation state machine
type Engine struct {
	cfg       Config
	resolver  Resolver
	registry  *target.Registry
	activator Activator
	watchdog  *watchdog.Watchdog

	active  []*TargetState
	byID    map[target.ID]*TargetState
	history History
	fixated *TargetState

	lastTimestamp time.Duration
	hasLast       bool
	eyesOff       bool

	historyWindow     time.Duration
	historyGeneration uint64
	historyStale      bool

	stateChanged []func(StateChanged)
	invoked      []func(*Invoked)
	progress     []func(Progress)
}

// NewEngine creates an engine with cfg defaults
func NewEngine(cfg Config, opts Options) *Engine {
	e := &Engine{
		cfg:          cfg,
		resolver:     opts.Resolver,
		registry:     opts.Registry,
		activator:    opts.Activator,
		byID:         make(map[target.ID]*TargetState),
		historyStale: true,
	}
	if e.registry == nil {
		e.registry = target.NewRegistry(nil)
	}
	if opts.Scheduler != nil {
		e.watchdog = watchdog.New(opts.Scheduler, cfg.EyesOffDelay, opts.Post, e.EyesOff)
	}
	return e
}

// Config returns the active defaults
func (e *Engine) Config() Config {
	return e.cfg
}

// SetConfig replaces the defaults. The history window is recomputed on
// the next sample.
func (e *Engine) SetConfig(cfg Config) {
	e.cfg = cfg
	e.historyStale = true
	if e.watchdog != nil {
		e.watchdog.SetDelay(cfg.EyesOffDelay)
	}
}

// HistoryWindow is the current maximum age of history entries
func (e *Engine) HistoryWindow() time.Duration {
	e.refreshHistoryWindow()
	return e.historyWindow
}

// ProcessSample advances the state machine by one filtered sample
func (e *Engine) ProcessSample(s sample.Sample) {
	if !s.Valid() {
		log.Debug().Dur("timestamp", s.Timestamp).Msg("Dropping invalid gaze sample")
		return
	}
	e.refreshHistoryWindow()

	t := e.resolver.Resolve(s.Position)
	if t == nil {
		t = target.NonInvokable
	}
	ts := e.getOrCreate(t)

	e.record(ts, s.Timestamp)
	e.evict(s.Timestamp)

	// exits go first so that a stale target leaves before a fresh one enters
	e.checkIfExiting(s.Timestamp)

	e.advance(ts, s.Timestamp)
	e.giveFeedback(ts)

	e.eyesOff = false
	if e.watchdog != nil {
		e.watchdog.Kick()
	}
	e.lastTimestamp = s.Timestamp
	e.hasLast = true
}

// getOrCreate returns the state for t, creating it in PreEnter
func (e *Engine) getOrCreate(t *target.Target) *TargetState {
	if ts, ok := e.byID[t.ID]; ok {
		return ts
	}

	ts := &TargetState{
		Target:         t,
		State:          PreEnter,
		NextStateTime:  e.stateDelay(t, Enter),
		MaxRepeatCount: e.registry.MaxRepeatCount(t.ID, e.cfg.MaxRepeatCount),
		notifiedState:  PreEnter,
	}
	e.active = append(e.active, ts)
	e.byID[t.ID] = ts
	return ts
}

// record books the time since the previous sample against ts
func (e *Engine) record(ts *TargetState, now time.Duration) {
	var d time.Duration
	if e.hasLast {
		d = now - e.lastTimestamp
	}
	if d < 0 {
		d = 0
	}
	if e.cfg.MaxSingleSampleDuration > 0 && d > e.cfg.MaxSingleSampleDuration {
		d = e.cfg.MaxSingleSampleDuration
	}

	e.history.Push(HistoryEntry{Target: ts.Target.ID, Timestamp: now, Duration: d})
	ts.samples++
	ts.DetailedTime += d
	ts.LastTimestamp = now
}

// evict drops history older than the window. Time aged out of a target that
// is already past PreEnter moves to its overflow so it keeps counting.
func (e *Engine) evict(now time.Duration) {
	for {
		oldest, ok := e.history.Front()
		if !ok {
			return
		}
		tooOld := now-oldest.Timestamp > e.historyWindow
		tooMany := e.cfg.HistoryMaxEntries > 0 && e.history.Len() > e.cfg.HistoryMaxEntries
		if !tooOld && !tooMany {
			return
		}
		e.history.PopFront()

		ts, ok := e.byID[oldest.Target]
		if !ok {
			continue
		}
		ts.DetailedTime -= oldest.Duration
		ts.samples--
		if ts.State != PreEnter {
			ts.OverflowTime += oldest.Duration
			continue
		}
		if ts.samples == 0 {
			// never entered and no longer in the window
			e.remove(ts)
		}
	}
}

// CheckIfExiting exits the first attended target that has been idle for
// longer than its exit delay at now. At most one target exits per call.
func (e *Engine) CheckIfExiting(now time.Duration) bool {
	return e.checkIfExiting(now)
}

func (e *Engine) checkIfExiting(now time.Duration) bool {
	for _, ts := range e.active {
		if ts.State == PreEnter {
			continue
		}
		if now-ts.LastTimestamp <= e.stateDelay(ts.Target, Exit) {
			continue
		}

		ts.State = PreEnter
		if e.fixated == ts {
			e.fixated = nil
		}

		e.emit(ts, Exit, now)
		e.giveFeedback(ts)

		e.remove(ts)
		e.history.Purge(ts.Target.ID)

		log.Debug().
			Str("target", ts.Target.String()).
			Dur("elapsed", ts.Elapsed()).
			Msg("Target exited")
		return true
	}
	return false
}

// advance moves ts one step up the ladder once its elapsed time passes
// NextStateTime. Delays are added to NextStateTime rather than set, so any
// overshoot carries into the next step.
func (e *Engine) advance(ts *TargetState, now time.Duration) {
	if ts.Elapsed() <= ts.NextStateTime {
		return
	}

	next := ts.State + 1
	if next != DwellRepeat {
		ts.State = next
		ts.NextStateTime = addSat(ts.NextStateTime, e.stateDelay(ts.Target, next+1))
		if ts.State == Dwell {
			ts.NextStateTime = addSat(ts.NextStateTime, e.stateDelay(ts.Target, DwellRepeat))
		}
	} else {
		// DwellRepeat is never stored; the target stays in Dwell and fires again
		ts.NextStateTime = addSat(ts.NextStateTime, e.stateDelay(ts.Target, DwellRepeat))
	}

	if ts.State == Dwell {
		ts.RepeatCount++
		if ts.RepeatCount > ts.MaxRepeatCount {
			ts.NextStateTime = Forever
		}
	}

	if ts.State == Fixation {
		if ts.Target.IsInvokable() {
			e.fixated = ts
		}
		if e.cfg.SwitchEnabled {
			// dwell must be completed by the switch, not by gaze
			ts.NextStateTime = Forever
		}
	}

	e.emit(ts, ts.State, now)
}

// emit raises StateChanged for ts and runs the invoke path on Dwell.
// The non-invokable sentinel never produces events.
func (e *Engine) emit(ts *TargetState, state PointerState, now time.Duration) {
	if !ts.Target.IsInvokable() {
		return
	}

	e.raiseStateChanged(StateChanged{
		Target:      ts.Target,
		State:       state,
		Elapsed:     ts.Elapsed(),
		Timestamp:   now,
		RepeatCount: ts.RepeatCount,
	})

	if state == Dwell {
		e.invoke(ts)
	}
}

// invoke offers the veto and then activates ts
func (e *Engine) invoke(ts *TargetState) {
	ev := &Invoked{Target: ts.Target, RepeatCount: ts.RepeatCount}
	for _, fn := range e.invoked {
		fn(ev)
	}
	if ev.Handled {
		log.Debug().Str("target", ts.Target.String()).Msg("Invoke handled by listener")
		return
	}
	if e.activator != nil {
		e.activator.Activate(ts.Target)
	}
}

// EyesOff runs when no sample has arrived for the eyes-off delay. It
// exits a stale target as if a sample had arrived at the end of the idle
// period, and re-arms while stale targets remain.
func (e *Engine) EyesOff() {
	if !e.hasLast {
		return
	}

	deadline := addSat(e.lastTimestamp, e.cfg.EyesOffDelay)
	e.checkIfExiting(deadline)

	if !e.eyesOff {
		e.eyesOff = true
		e.raiseStateChanged(StateChanged{
			Target:    target.NonInvokable,
			State:     Enter,
			Elapsed:   e.cfg.EyesOffDelay,
			Timestamp: deadline,
			EyesOff:   true,
		})
	}

	if e.watchdog != nil && e.hasStale(deadline) {
		e.watchdog.Kick()
	}
}

func (e *Engine) hasStale(now time.Duration) bool {
	for _, ts := range e.active {
		if ts.State != PreEnter && now-ts.LastTimestamp > e.stateDelay(ts.Target, Exit) {
			return true
		}
	}
	return false
}

// Click activates the fixated target when switch input is enabled
func (e *Engine) Click() bool {
	if !e.cfg.SwitchEnabled || e.fixated == nil || !e.fixated.Target.IsInvokable() {
		return false
	}
	e.invoke(e.fixated)
	return true
}

// Fixated returns the currently fixated target, if any
func (e *Engine) Fixated() (*target.Target, bool) {
	if e.fixated == nil {
		return nil, false
	}
	return e.fixated.Target, true
}

// Reset forgets every target and the history without raising events
func (e *Engine) Reset() {
	e.active = nil
	e.byID = make(map[target.ID]*TargetState)
	e.history.Clear()
	e.fixated = nil
	e.hasLast = false
	e.lastTimestamp = 0
	e.eyesOff = false
	if e.watchdog != nil {
		e.watchdog.Stop()
	}
}

// Snapshot returns copies of the active target states in attention order
func (e *Engine) Snapshot() []TargetState {
	out := make([]TargetState, 0, len(e.active))
	for _, ts := range e.active {
		out = append(out, *ts)
	}
	return out
}

// History returns a copy of the queued history entries
func (e *Engine) History() []HistoryEntry {
	return e.history.Entries()
}

func (e *Engine) remove(ts *TargetState) {
	for i, a := range e.active {
		if a == ts {
			e.active = append(e.active[:i], e.active[i+1:]...)
			break
		}
	}
	delete(e.byID, ts.Target.ID)
}

// stateDelay is the time a target must accumulate to reach state
func (e *Engine) stateDelay(t *target.Target, state PointerState) time.Duration {
	switch state {
	case Enter:
		return e.registry.Delay(t.ID, target.DelayEnter, e.cfg.Enter)
	case Exit:
		return e.registry.Delay(t.ID, target.DelayExit, e.cfg.Exit)
	case Fixation:
		return e.registry.Delay(t.ID, target.DelayFixation, e.cfg.Fixation)
	case Dwell:
		return e.registry.Delay(t.ID, target.DelayDwell, e.cfg.Dwell)
	case DwellRepeat:
		return e.registry.Delay(t.ID, target.DelayDwellRepeat, e.cfg.DwellRepeat)
	}
	return 0
}

func (e *Engine) refreshHistoryWindow() {
	gen := e.registry.Generation()
	if !e.historyStale && gen == e.historyGeneration {
		return
	}
	e.historyWindow = 2 * e.registry.MaxDwellWindow(e.cfg.Dwell, e.cfg.DwellRepeat)
	e.historyGeneration = gen
	e.historyStale = false
}
