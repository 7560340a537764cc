// Package pointer is the composition root of the gaze pipeline. It owns the
// goroutine that runs the filter and the dwell engine, counts the roots that
// keep the pipeline live and manages the device subscription.
package pointer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/gaze/internal/dwell"
	"github.com/gosight/gosight/gaze/internal/filter"
	"github.com/gosight/gosight/gaze/internal/sample"
	"github.com/gosight/gosight/gaze/internal/settings"
	"github.com/gosight/gosight/gaze/internal/target"
	"github.com/gosight/gosight/gaze/internal/watchdog"
)

// Options configure a Pointer
type Options struct {
	// Executor serializes all pipeline work. Defaults to a new Loop.
	Executor Executor
	// Scheduler drives the eyes-off watchdog. Defaults to real timers.
	Scheduler watchdog.Scheduler

	Device     Device
	Tree       target.Tree
	Activation target.Activation
	Activator  dwell.Activator

	FilterKind      string
	Settings        settings.Bag
	Dwell           dwell.Config
	DefaultMode     target.Mode
	AlwaysActivated bool
}

// Pointer feeds device samples through the filter into the dwell engine
type Pointer struct {
	exec     Executor
	device   Device
	filter   filter.Filter
	registry *target.Registry
	resolver *target.Resolver
	engine   *dwell.Engine

	// epoch changes whenever the pipeline is torn down; samples queued
	// under an older epoch are dropped
	epoch atomic.Uint64
	live  atomic.Bool

	roots        map[string]int
	devices      map[string]struct{}
	availability []func(bool)
	cursor       Cursor
}

// New builds a pointer. Settings in opts.Settings are applied on top of
// opts.Dwell.
func New(opts Options) (*Pointer, error) {
	f, err := filter.New(opts.FilterKind, opts.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter: %w", err)
	}

	exec := opts.Executor
	if exec == nil {
		exec = NewLoop(0)
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = watchdog.RealScheduler{}
	}

	p := &Pointer{
		exec:     exec,
		device:   opts.Device,
		filter:   f,
		registry: target.NewRegistry(nil),
		roots:    make(map[string]int),
		devices:  make(map[string]struct{}),
		cursor:   defaultCursor(),
	}
	if opts.Tree != nil {
		p.registry.SetParentFunc(opts.Tree.Parent)
	}

	p.resolver = target.NewResolver(opts.Tree, p.registry, opts.Activation, opts.DefaultMode)
	p.resolver.AlwaysActivated = opts.Settings.Bool(settings.KeyIsAlwaysActivated, opts.AlwaysActivated)

	p.engine = dwell.NewEngine(opts.Dwell.WithSettings(opts.Settings), dwell.Options{
		Resolver:  p.resolver,
		Registry:  p.registry,
		Activator: opts.Activator,
		Scheduler: sched,
		Post:      exec.Post,
	})
	p.cursor.apply(opts.Settings)

	return p, nil
}

// Run drives the pointer's loop until ctx is cancelled. It returns at once
// with ctx's error when the executor has no loop of its own.
func (p *Pointer) Run(ctx context.Context) error {
	if l, ok := p.exec.(*Loop); ok {
		return l.Run(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

// OnStateChanged registers fn for engine state changes. Observers run on
// the pointer's loop and must be registered before Run.
func (p *Pointer) OnStateChanged(fn func(dwell.StateChanged)) {
	p.engine.OnStateChanged(fn)
}

// OnInvoked registers a pre-activation observer that may veto
func (p *Pointer) OnInvoked(fn func(*dwell.Invoked)) {
	p.engine.OnInvoked(fn)
}

// OnProgress registers fn for dwell progress feedback
func (p *Pointer) OnProgress(fn func(dwell.Progress)) {
	p.engine.OnProgress(fn)
}

// AddRoot registers interest in gaze input and returns the root ID. An
// empty id gets a generated one. The first root starts the device.
func (p *Pointer) AddRoot(id string) string {
	if id == "" {
		id = uuid.New().String()
	}
	p.exec.Post(func() {
		p.roots[id]++
		if len(p.roots) == 1 && p.roots[id] == 1 {
			p.start()
		}
	})
	return id
}

// RemoveRoot drops one reference to id. Removing the last root stops the
// device and discards everything in flight. Unknown IDs are ignored.
func (p *Pointer) RemoveRoot(id string) {
	p.exec.Post(func() {
		n, ok := p.roots[id]
		if !ok {
			return
		}
		if n > 1 {
			p.roots[id] = n - 1
			return
		}
		delete(p.roots, id)
		if len(p.roots) == 0 {
			p.stop()
		}
	})
}

// Roots returns the number of registered roots
func (p *Pointer) Roots(ctx context.Context) (int, error) {
	return call(ctx, p.exec, func() int { return len(p.roots) })
}

func (p *Pointer) start() {
	p.live.Store(true)
	p.cursor.GazeEntered = true
	log.Info().Msg("Gaze input started")

	if p.device == nil {
		return
	}
	if err := p.device.Subscribe(p.Submit); err != nil {
		log.Error().Err(err).Msg("Failed to subscribe to gaze device")
	}
}

func (p *Pointer) stop() {
	p.live.Store(false)
	p.epoch.Add(1)

	if p.device != nil {
		if err := p.device.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("Failed to unsubscribe from gaze device")
		}
	}

	p.engine.Reset()
	p.filter.Reset()
	p.cursor.GazeEntered = false
	log.Info().Msg("Gaze input stopped")
}

// Submit hands a raw sample to the pipeline. It is safe to call from any
// goroutine. Invalid samples and samples arriving with no root are dropped.
func (p *Pointer) Submit(s sample.Sample) {
	p.Offer(s)
}

// Offer is Submit reporting whether the sample was queued. It returns
// false for invalid samples and while no root is registered.
func (p *Pointer) Offer(s sample.Sample) bool {
	if !s.Valid() {
		log.Debug().Dur("timestamp", s.Timestamp).Msg("Dropping invalid gaze sample")
		return false
	}
	if !p.live.Load() {
		return false
	}

	epoch := p.epoch.Load()
	p.exec.Post(func() {
		if epoch != p.epoch.Load() || len(p.roots) == 0 {
			return
		}
		p.process(s)
	})
	return true
}

func (p *Pointer) process(s sample.Sample) {
	filtered := p.filter.Update(s)
	p.cursor.Position = filtered.Position
	p.engine.ProcessSample(filtered)
}

// Click confirms activation of the fixated target in switch mode
func (p *Pointer) Click(ctx context.Context) (bool, error) {
	return call(ctx, p.exec, p.engine.Click)
}

// Snapshot returns the attended targets
func (p *Pointer) Snapshot(ctx context.Context) ([]dwell.TargetState, error) {
	return call(ctx, p.exec, p.engine.Snapshot)
}

// Cursor returns the gaze cursor state
func (p *Pointer) Cursor(ctx context.Context) (Cursor, error) {
	return call(ctx, p.exec, func() Cursor { return p.cursor })
}

// ApplySettings re-tunes the filter, the engine and the cursor
func (p *Pointer) ApplySettings(bag settings.Bag) {
	p.exec.Post(func() {
		if t, ok := p.filter.(interface{ LoadSettings(settings.Bag) }); ok {
			t.LoadSettings(bag)
		}
		p.engine.SetConfig(p.engine.Config().WithSettings(bag))
		p.resolver.AlwaysActivated = bag.Bool(settings.KeyIsAlwaysActivated, p.resolver.AlwaysActivated)
		p.cursor.apply(bag)
		log.Info().Int("keys", len(bag)).Msg("Applied gaze settings")
	})
}

// SetLayout swaps the hit-test tree and the per-element overrides
func (p *Pointer) SetLayout(tree target.Tree, overrides map[target.ID]target.Overrides) {
	p.exec.Post(func() {
		p.resolver.SetTree(tree)
		p.registry.SetParentFunc(tree.Parent)
		p.registry.Replace(overrides)
		log.Info().Int("overrides", len(overrides)).Msg("Layout replaced")
	})
}
