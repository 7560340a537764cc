// Package target resolves gaze positions to interactive UI elements.
//
// The host UI tree is never owned here. Elements are addressed by opaque
// IDs and every question about them (what is under a point, who is the
// parent, can it be activated) goes through the Tree collaborator.
package target

import (
	"fmt"
	"strings"

	"github.com/gosight/gosight/gaze/internal/sample"
)

// ID is an opaque handle to a UI element
type ID string

// Capability is the way an element is activated
type Capability int

const (
	CapabilityNone Capability = iota
	CapabilityInvoke
	CapabilityToggle
	CapabilitySelect
	CapabilityExpandCollapse
	CapabilityTextFocus
	CapabilityTabSelect
)

var capabilityNames = map[Capability]string{
	CapabilityNone:           "none",
	CapabilityInvoke:         "invoke",
	CapabilityToggle:         "toggle",
	CapabilitySelect:         "select",
	CapabilityExpandCollapse: "expand_collapse",
	CapabilityTextFocus:      "text_focus",
	CapabilityTabSelect:      "tab_select",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

// ParseCapability maps a capability name back to its value
func ParseCapability(s string) (Capability, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range capabilityNames {
		if name == s {
			return c, nil
		}
	}
	if s == "" {
		return CapabilityNone, nil
	}
	return CapabilityNone, fmt.Errorf("unknown capability %q", s)
}

// Mode controls whether gaze interaction is enabled for an element
type Mode int

const (
	ModeInherited Mode = iota
	ModeEnabled
	ModeDisabled
)

func (m Mode) String() string {
	switch m {
	case ModeEnabled:
		return "enabled"
	case ModeDisabled:
		return "disabled"
	default:
		return "inherited"
	}
}

// ParseMode maps "inherited", "enabled" or "disabled" to a Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inherited":
		return ModeInherited, nil
	case "enabled":
		return ModeEnabled, nil
	case "disabled":
		return ModeDisabled, nil
	}
	return ModeInherited, fmt.Errorf("unknown interaction mode %q", s)
}

// Tree is the host UI collaborator
type Tree interface {
	// ElementsAt returns the elements under p, topmost first
	ElementsAt(p sample.Point) []ID
	// Parent returns the logical parent of id
	Parent(id ID) (ID, bool)
	// Capability reports how id can be activated, CapabilityNone if it cannot
	Capability(id ID) Capability
	// Enabled reports whether the element currently accepts input
	Enabled(id ID) bool
}

// Target is a resolved interaction target
type Target struct {
	ID         ID
	Capability Capability
}

// NonInvokable stands for "not looking at anything interactive". It is a
// single shared instance and compares by pointer.
var NonInvokable = &Target{}

// IsInvokable reports whether t can be activated
func (t *Target) IsInvokable() bool {
	return t != nil && t != NonInvokable && t.Capability != CapabilityNone
}

func (t *Target) String() string {
	if t == nil || t == NonInvokable {
		return "<non-invokable>"
	}
	return string(t.ID)
}
