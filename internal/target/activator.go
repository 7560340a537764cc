package target

import (
	"github.com/rs/zerolog/log"
)

// ActivateFunc performs the activation for one capability
type ActivateFunc func(id ID) error

// Activator dispatches activation to the handler registered for a target's
// capability
type Activator struct {
	handlers map[Capability]ActivateFunc
}

// NewActivator creates an activator with no handlers
func NewActivator() *Activator {
	return &Activator{handlers: make(map[Capability]ActivateFunc)}
}

// Handle registers fn for capability c
func (a *Activator) Handle(c Capability, fn ActivateFunc) {
	a.handlers[c] = fn
}

// HandleAll registers fn for every activatable capability
func (a *Activator) HandleAll(fn func(id ID, c Capability) error) {
	for c := range capabilityNames {
		if c == CapabilityNone {
			continue
		}
		c := c
		a.handlers[c] = func(id ID) error { return fn(id, c) }
	}
}

// Activate runs the handler for t. Targets without a registered handler
// are skipped.
func (a *Activator) Activate(t *Target) bool {
	if !t.IsInvokable() {
		return false
	}

	fn, ok := a.handlers[t.Capability]
	if !ok {
		log.Warn().
			Str("element", string(t.ID)).
			Stringer("capability", t.Capability).
			Msg("No activation handler for capability")
		return false
	}

	if err := fn(t.ID); err != nil {
		log.Error().
			Err(err).
			Str("element", string(t.ID)).
			Stringer("capability", t.Capability).
			Msg("Failed to activate target")
		return false
	}
	return true
}
