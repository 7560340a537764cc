package target

import (
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/gaze/internal/sample"
)

// Activation reports whether the host window is currently activated
type Activation interface {
	IsActivated() bool
}

// AlwaysActive is an Activation that is always true
type AlwaysActive struct{}

// IsActivated returns true
func (AlwaysActive) IsActivated() bool { return true }

// Resolver maps screen points to targets
type Resolver struct {
	tree        Tree
	registry    *Registry
	activation  Activation
	defaultMode Mode

	// AlwaysActivated resolves targets even when the window is inactive
	AlwaysActivated bool
}

// NewResolver creates a resolver. A nil activation is treated as always active.
func NewResolver(tree Tree, registry *Registry, activation Activation, defaultMode Mode) *Resolver {
	if activation == nil {
		activation = AlwaysActive{}
	}
	if defaultMode == ModeInherited {
		defaultMode = ModeEnabled
	}
	return &Resolver{
		tree:        tree,
		registry:    registry,
		activation:  activation,
		defaultMode: defaultMode,
	}
}

// SetTree swaps the hit-test collaborator
func (r *Resolver) SetTree(tree Tree) {
	r.tree = tree
}

// Resolve returns the interactive target under p, or NonInvokable.
// It has no side effects.
func (r *Resolver) Resolve(p sample.Point) *Target {
	if r.tree == nil {
		return NonInvokable
	}
	if !r.AlwaysActivated && !r.activation.IsActivated() {
		return NonInvokable
	}

	hits := r.tree.ElementsAt(p)
	if len(hits) == 0 {
		return NonInvokable
	}

	id, capability, ok := r.findInvokable(hits[0])
	if !ok {
		return NonInvokable
	}

	mode := r.defaultMode
	if r.registry != nil {
		mode = r.registry.Mode(id, r.defaultMode)
	}
	if mode != ModeEnabled {
		return NonInvokable
	}

	return &Target{ID: id, Capability: capability}
}

// findInvokable walks from id up the logical parents until an element
// reports a capability
func (r *Resolver) findInvokable(id ID) (ID, Capability, bool) {
	seen := make(map[ID]struct{})
	for {
		if _, loop := seen[id]; loop {
			log.Warn().Str("element", string(id)).Msg("Parent chain contains a cycle")
			return "", CapabilityNone, false
		}
		seen[id] = struct{}{}

		if c := r.tree.Capability(id); c != CapabilityNone {
			if !r.tree.Enabled(id) {
				return "", CapabilityNone, false
			}
			return id, c, true
		}

		parent, ok := r.tree.Parent(id)
		if !ok {
			return "", CapabilityNone, false
		}
		id = parent
	}
}
