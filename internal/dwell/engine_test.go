package dwell

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/gosight/gaze/internal/sample"
	"github.com/gosight/gosight/gaze/internal/settings"
	"github.com/gosight/gosight/gaze/internal/target"
	"github.com/gosight/gosight/gaze/internal/watchdog"
)

const ms = time.Millisecond

var (
	targetA = &target.Target{ID: "a", Capability: target.CapabilityInvoke}
	targetB = &target.Target{ID: "b", Capability: target.CapabilityToggle}
	targetC = &target.Target{ID: "c", Capability: target.CapabilitySelect}
)

// hitMap resolves by the X coordinate
type hitMap map[float64]*target.Target

func (m hitMap) Resolve(p sample.Point) *target.Target {
	if t, ok := m[p.X]; ok {
		return t
	}
	return target.NonInvokable
}

var hits = hitMap{0: targetA, 1: targetB, 2: targetC}

func on(t *target.Target) sample.Point {
	for x, v := range hits {
		if v == t {
			return sample.Point{X: x}
		}
	}
	return sample.Point{X: -1}
}

type fakeActivator struct {
	activated []target.ID
}

func (f *fakeActivator) Activate(t *target.Target) bool {
	f.activated = append(f.activated, t.ID)
	return true
}

type recorder struct {
	states   []StateChanged
	progress []Progress
	invoked  []target.ID
}

func (r *recorder) count(id target.ID, state PointerState) int {
	n := 0
	for _, ev := range r.states {
		if !ev.EyesOff && ev.Target.ID == id && ev.State == state {
			n++
		}
	}
	return n
}

type harness struct {
	engine    *Engine
	manual    *watchdog.Manual
	activator *fakeActivator
	registry  *target.Registry
	events    *recorder
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Enter = 50 * ms
	cfg.Exit = 50 * ms
	cfg.Fixation = 350 * ms
	cfg.Dwell = 400 * ms
	cfg.DwellRepeat = 400 * ms
	cfg.EyesOffDelay = 250 * ms
	return cfg
}

func newHarness(cfg Config) *harness {
	h := &harness{
		manual:    watchdog.NewManual(),
		activator: &fakeActivator{},
		registry:  target.NewRegistry(nil),
		events:    &recorder{},
	}
	h.engine = NewEngine(cfg, Options{
		Resolver:  hits,
		Registry:  h.registry,
		Activator: h.activator,
		Scheduler: h.manual,
	})
	h.engine.OnStateChanged(func(ev StateChanged) { h.events.states = append(h.events.states, ev) })
	h.engine.OnProgress(func(p Progress) { h.events.progress = append(h.events.progress, p) })
	h.engine.OnInvoked(func(ev *Invoked) { h.events.invoked = append(h.events.invoked, ev.Target.ID) })
	return h
}

// feed sends n samples on t, step apart, starting at from. It returns the
// timestamp of the last sample.
func (h *harness) feed(t *target.Target, from time.Duration, n int, step time.Duration) time.Duration {
	ts := from
	for i := 0; i < n; i++ {
		ts = from + time.Duration(i)*step
		h.engine.ProcessSample(sample.Sample{Position: on(t), Timestamp: ts})
	}
	return ts
}

func (h *harness) state(id target.ID) (TargetState, bool) {
	for _, ts := range h.engine.Snapshot() {
		if ts.Target.ID == id {
			return ts, true
		}
	}
	return TargetState{}, false
}

func TestEngineReachesFixationAndDwell(t *testing.T) {
	h := newHarness(testConfig())

	// sample k arrives at 50*(k-1) ms and the first one books nothing
	stateAt := map[int]PointerState{}
	for k := 1; k <= 30; k++ {
		before := len(h.events.states)
		h.engine.ProcessSample(sample.Sample{Position: on(targetA), Timestamp: time.Duration(k-1) * 50 * ms})
		for _, ev := range h.events.states[before:] {
			stateAt[k] = ev.State
		}
	}

	assert.Equal(t, map[int]PointerState{3: Enter, 10: Fixation, 18: Dwell}, stateAt)
	assert.Equal(t, []target.ID{"a"}, h.events.invoked)
	assert.Equal(t, []target.ID{"a"}, h.activator.activated)

	ts, ok := h.state("a")
	require.True(t, ok)
	assert.Equal(t, Dwell, ts.State)
	assert.Equal(t, 1, ts.RepeatCount)
	assert.Equal(t, Forever, ts.NextStateTime)
	assert.Equal(t, 1450*ms, ts.Elapsed())

	fixated, ok := h.engine.Fixated()
	require.True(t, ok)
	assert.Same(t, targetA, fixated)
}

func TestEngineProgressFeedback(t *testing.T) {
	h := newHarness(testConfig())
	h.feed(targetA, 0, 18, 50*ms)

	require.Len(t, h.events.progress, 10)
	assert.Equal(t, ProgressFixating, h.events.progress[0].State)

	for i, p := range h.events.progress[1:9] {
		assert.Equal(t, ProgressProgressing, p.State)
		assert.InDelta(t, 0.125*float64(i+1), p.Progress, 1e-9)
	}

	last := h.events.progress[9]
	assert.Equal(t, ProgressComplete, last.State)
	assert.Equal(t, 1.0, last.Progress)
}

func TestEngineExitsAfterEyesOff(t *testing.T) {
	h := newHarness(testConfig())
	h.feed(targetA, 0, 18, 50*ms)
	require.Equal(t, 1, h.events.count("a", Dwell))
	require.NotEmpty(t, h.engine.History())

	h.manual.Advance(250 * ms)

	assert.Equal(t, 1, h.events.count("a", Exit))
	assert.Empty(t, h.engine.Snapshot())
	assert.Empty(t, h.engine.History())
	_, fixated := h.engine.Fixated()
	assert.False(t, fixated)

	last := h.events.states[len(h.events.states)-1]
	assert.True(t, last.EyesOff)
	assert.Same(t, target.NonInvokable, last.Target)
	assert.Equal(t, Enter, last.State)
	assert.Equal(t, 250*ms, last.Elapsed)

	idle := h.events.progress[len(h.events.progress)-1]
	assert.Equal(t, ProgressIdle, idle.State)

	// nothing left to exit, so the watchdog is not re-armed
	assert.Zero(t, h.manual.Pending())
	h.manual.Advance(time.Second)
	assert.Equal(t, 1, h.events.count("a", Exit))
}

func TestEngineEyesOffExitsOneTargetPerFiring(t *testing.T) {
	h := newHarness(testConfig())
	h.registry.Set("a", target.Overrides{Exit: 300 * ms})

	h.feed(targetA, 0, 4, 50*ms)
	h.feed(targetB, 200*ms, 4, 50*ms)
	_, ok := h.state("a")
	require.True(t, ok)
	require.Equal(t, 1, h.events.count("b", Enter))

	h.manual.Advance(250 * ms)
	assert.Equal(t, 1, h.events.count("a", Exit))
	assert.Zero(t, h.events.count("b", Exit))
	assert.Equal(t, 1, h.manual.Pending())

	h.manual.Advance(250 * ms)
	assert.Equal(t, 1, h.events.count("b", Exit))
	assert.Empty(t, h.engine.Snapshot())

	eyesOff := 0
	for _, ev := range h.events.states {
		if ev.EyesOff {
			eyesOff++
		}
	}
	assert.Equal(t, 1, eyesOff)
}

func TestEngineSwitchingTargetsExitsIndependently(t *testing.T) {
	h := newHarness(testConfig())
	last := h.feed(targetA, 0, 5, 50*ms)
	require.Equal(t, 1, h.events.count("a", Enter))

	h.engine.ProcessSample(sample.Sample{Position: on(targetB), Timestamp: last + 50*ms})
	assert.Zero(t, h.events.count("a", Exit))

	h.engine.ProcessSample(sample.Sample{Position: on(targetB), Timestamp: last + 100*ms})
	assert.Equal(t, 1, h.events.count("a", Exit))

	_, ok := h.state("a")
	assert.False(t, ok)
	_, ok = h.state("b")
	assert.True(t, ok)
	for _, e := range h.engine.History() {
		assert.Equal(t, target.ID("b"), e.Target)
	}
}

func TestEngineRepeatCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRepeatCount = 2
	h := newHarness(cfg)
	h.feed(targetA, 0, 200, 50*ms)

	var repeats []int
	for _, ev := range h.events.states {
		if ev.State == Dwell {
			repeats = append(repeats, ev.RepeatCount)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, repeats)
	assert.Len(t, h.activator.activated, 3)

	ts, _ := h.state("a")
	assert.Equal(t, Dwell, ts.State)
	assert.Equal(t, Forever, ts.NextStateTime)
}

func TestEngineRegistryOverrides(t *testing.T) {
	h := newHarness(testConfig())
	one := 1
	h.registry.Set("a", target.Overrides{Fixation: 100 * ms, MaxRepeatCount: &one})
	h.feed(targetA, 0, 100, 50*ms)

	assert.Equal(t, 1, h.events.count("a", Fixation))
	assert.Equal(t, 2, h.events.count("a", Dwell))
}

func TestEngineSwitchMode(t *testing.T) {
	cfg := testConfig()
	cfg.SwitchEnabled = true
	h := newHarness(cfg)

	assert.False(t, h.engine.Click())

	h.feed(targetA, 0, 60, 50*ms)
	assert.Equal(t, 1, h.events.count("a", Fixation))
	assert.Zero(t, h.events.count("a", Dwell))
	assert.Empty(t, h.activator.activated)

	ts, _ := h.state("a")
	assert.Equal(t, Forever, ts.NextStateTime)

	assert.True(t, h.engine.Click())
	assert.Equal(t, []target.ID{"a"}, h.activator.activated)
}

func TestEngineSwitchClickIgnoresEmptySpace(t *testing.T) {
	cfg := testConfig()
	cfg.SwitchEnabled = true
	h := newHarness(cfg)

	h.feed(target.NonInvokable, 0, 20, 50*ms)
	_, ok := h.engine.Fixated()
	assert.False(t, ok)

	assert.False(t, h.engine.Click())
	assert.Empty(t, h.events.invoked)
	assert.Empty(t, h.activator.activated)

	h.feed(targetA, time.Second, 12, 50*ms)
	fixated, ok := h.engine.Fixated()
	require.True(t, ok)
	assert.Equal(t, target.ID("a"), fixated.ID)
	assert.True(t, h.engine.Click())
	assert.Equal(t, []target.ID{"a"}, h.activator.activated)
}

func TestEngineClickNeedsSwitchMode(t *testing.T) {
	h := newHarness(testConfig())
	h.feed(targetA, 0, 12, 50*ms)
	_, ok := h.engine.Fixated()
	require.True(t, ok)

	assert.False(t, h.engine.Click())
	assert.Empty(t, h.activator.activated)
}

func TestEngineInvokeVeto(t *testing.T) {
	h := newHarness(testConfig())
	h.engine.OnInvoked(func(ev *Invoked) { ev.Handled = true })
	h.feed(targetA, 0, 18, 50*ms)

	assert.Equal(t, 1, h.events.count("a", Dwell))
	assert.Equal(t, []target.ID{"a"}, h.events.invoked)
	assert.Empty(t, h.activator.activated)
}

func TestEngineClampsSampleDuration(t *testing.T) {
	h := newHarness(testConfig())
	h.engine.ProcessSample(sample.Sample{Position: on(targetA), Timestamp: 0})
	h.engine.ProcessSample(sample.Sample{Position: on(targetA), Timestamp: 10 * time.Second})

	ts, ok := h.state("a")
	require.True(t, ok)
	assert.Equal(t, 100*ms, ts.DetailedTime)

	// a timestamp going backwards books nothing
	h.engine.ProcessSample(sample.Sample{Position: on(targetA), Timestamp: 9 * time.Second})
	ts, _ = h.state("a")
	assert.Equal(t, 100*ms, ts.DetailedTime)
}

func TestEngineDropsInvalidSamples(t *testing.T) {
	h := newHarness(testConfig())
	h.engine.ProcessSample(sample.Sample{Position: on(targetA), Timestamp: -1})
	assert.Empty(t, h.engine.Snapshot())
	assert.Zero(t, h.manual.Pending())
}

func TestEngineForgetsGlancesThatAgeOut(t *testing.T) {
	h := newHarness(testConfig())
	h.feed(targetA, 0, 2, 10*ms)
	_, ok := h.state("a")
	require.True(t, ok)

	h.feed(targetB, 60*ms, 20, 50*ms)

	_, ok = h.state("a")
	assert.False(t, ok)
	assert.Zero(t, h.events.count("a", Exit))
	assert.Zero(t, h.events.count("a", Enter))
}

func TestEngineNonInvokableIsSilent(t *testing.T) {
	h := newHarness(testConfig())
	for i := 0; i < 40; i++ {
		h.engine.ProcessSample(sample.Sample{Position: sample.Point{X: -1}, Timestamp: time.Duration(i) * 50 * ms})
	}
	assert.Empty(t, h.events.states)
	assert.Empty(t, h.events.progress)
	assert.Empty(t, h.activator.activated)
}

func TestEngineReset(t *testing.T) {
	h := newHarness(testConfig())
	h.feed(targetA, 0, 12, 50*ms)
	events := len(h.events.states)

	h.engine.Reset()
	assert.Empty(t, h.engine.Snapshot())
	assert.Empty(t, h.engine.History())
	assert.Zero(t, h.manual.Pending())
	assert.Len(t, h.events.states, events)

	// the first sample after a reset books nothing
	h.engine.ProcessSample(sample.Sample{Position: on(targetA), Timestamp: 5 * time.Second})
	ts, _ := h.state("a")
	assert.Zero(t, ts.DetailedTime)
}

func TestEngineHistoryWindowFollowsConfig(t *testing.T) {
	h := newHarness(testConfig())
	assert.Equal(t, 800*ms, h.engine.HistoryWindow())

	h.registry.Set("a", target.Overrides{DwellRepeat: time.Second})
	assert.Equal(t, 2*time.Second, h.engine.HistoryWindow())

	cfg := h.engine.Config()
	cfg.Dwell = 3 * time.Second
	h.engine.SetConfig(cfg)
	assert.Equal(t, 6*time.Second, h.engine.HistoryWindow())
}

func TestConfigWithSettings(t *testing.T) {
	cfg := DefaultConfig().WithSettings(settings.Bag{
		settings.KeyFixationDelay:       200,
		settings.KeyMaxDwellRepeatCount: 3,
		settings.KeyIsSwitchEnabled:     true,
		settings.KeyGazeIdleTime:        "500",
	})
	assert.Equal(t, 200*ms, cfg.Fixation)
	assert.Equal(t, 3, cfg.MaxRepeatCount)
	assert.True(t, cfg.SwitchEnabled)
	assert.Equal(t, 500*ms, cfg.EyesOffDelay)
	assert.Equal(t, 400*ms, cfg.Dwell)
}

// step is one generated sample: which target and how long after the last
func runSteps(cfg Config, idx []int, gaps []int64, check func(e *Engine, exits int) bool) bool {
	e := NewEngine(cfg, Options{Resolver: hits})
	exits := 0
	e.OnStateChanged(func(ev StateChanged) {
		if ev.State == Exit {
			exits++
		}
	})

	var ts time.Duration
	targets := []*target.Target{targetA, targetB, targetC}
	for i := 0; i < len(idx) && i < len(gaps); i++ {
		ts += time.Duration(gaps[i]) * ms
		exits = 0
		e.ProcessSample(sample.Sample{Position: on(targets[idx[i]]), Timestamp: ts})
		if !check(e, exits) {
			return false
		}
	}
	return true
}

func TestEngineProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	cfg := testConfig()
	cfg.MaxRepeatCount = 2

	properties.Property("detailed time equals the history booked against a target", prop.ForAll(
		func(idx []int, gaps []int64) bool {
			return runSteps(cfg, idx, gaps, func(e *Engine, _ int) bool {
				for _, ts := range e.Snapshot() {
					if ts.DetailedTime != e.history.Sum(ts.Target.ID) {
						return false
					}
				}
				return true
			})
		},
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.SliceOf(gen.Int64Range(0, 120)),
	))

	properties.Property("state never rests in DwellRepeat", prop.ForAll(
		func(idx []int, gaps []int64) bool {
			return runSteps(cfg, idx, gaps, func(e *Engine, _ int) bool {
				for _, ts := range e.Snapshot() {
					if ts.State == DwellRepeat {
						return false
					}
				}
				return true
			})
		},
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.SliceOf(gen.Int64Range(0, 120)),
	))

	properties.Property("at most one exit per sample", prop.ForAll(
		func(idx []int, gaps []int64) bool {
			return runSteps(cfg, idx, gaps, func(_ *Engine, exits int) bool {
				return exits <= 1
			})
		},
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.SliceOf(gen.Int64Range(0, 300)),
	))

	properties.Property("state only moves forward without an exit", prop.ForAll(
		func(idx []int, gaps []int64) bool {
			prev := map[target.ID]PointerState{}
			return runSteps(cfg, idx, gaps, func(e *Engine, _ int) bool {
				cur := map[target.ID]PointerState{}
				for _, ts := range e.Snapshot() {
					cur[ts.Target.ID] = ts.State
					if p, ok := prev[ts.Target.ID]; ok && ts.State < p {
						return false
					}
				}
				prev = cur
				return true
			})
		},
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.SliceOf(gen.Int64Range(0, 120)),
	))

	properties.Property("elapsed time of a held target never decreases", prop.ForAll(
		func(gaps []int64) bool {
			idx := make([]int, len(gaps))
			var last time.Duration
			return runSteps(cfg, idx, gaps, func(e *Engine, _ int) bool {
				snap := e.Snapshot()
				if len(snap) != 1 {
					return false
				}
				elapsed := snap[0].Elapsed()
				if elapsed < last {
					return false
				}
				last = elapsed
				return true
			})
		},
		gen.SliceOf(gen.Int64Range(0, 120)),
	))

	properties.TestingRun(t)
}
