package target

import "time"

// DelayKind selects one of the per-element delays
type DelayKind int

const (
	DelayEnter DelayKind = iota
	DelayExit
	DelayFixation
	DelayDwell
	DelayDwellRepeat
)

// Overrides are per-element settings. Zero values mean "not set here" and
// defer to the parent chain.
type Overrides struct {
	Mode           Mode
	Enter          time.Duration
	Exit           time.Duration
	Fixation       time.Duration
	Dwell          time.Duration
	DwellRepeat    time.Duration
	MaxRepeatCount *int
}

func (o Overrides) delay(kind DelayKind) time.Duration {
	switch kind {
	case DelayEnter:
		return o.Enter
	case DelayExit:
		return o.Exit
	case DelayFixation:
		return o.Fixation
	case DelayDwell:
		return o.Dwell
	case DelayDwellRepeat:
		return o.DwellRepeat
	}
	return 0
}

// ParentFunc returns the logical parent of an element
type ParentFunc func(id ID) (ID, bool)

// Registry maps element IDs to overrides and answers inherited lookups
// by walking the parent chain.
type Registry struct {
	parent     ParentFunc
	overrides  map[ID]Overrides
	generation uint64
}

// NewRegistry creates an empty registry using parent for ancestor walks
func NewRegistry(parent ParentFunc) *Registry {
	return &Registry{
		parent:    parent,
		overrides: make(map[ID]Overrides),
	}
}

// SetParentFunc swaps the ancestor lookup, e.g. after a layout reload
func (r *Registry) SetParentFunc(parent ParentFunc) {
	r.parent = parent
	r.generation++
}

// Set stores overrides for id
func (r *Registry) Set(id ID, o Overrides) {
	r.overrides[id] = o
	r.generation++
}

// Delete removes overrides for id
func (r *Registry) Delete(id ID) {
	delete(r.overrides, id)
	r.generation++
}

// Replace drops all overrides and installs all
func (r *Registry) Replace(all map[ID]Overrides) {
	r.overrides = make(map[ID]Overrides, len(all))
	for id, o := range all {
		r.overrides[id] = o
	}
	r.generation++
}

// Generation changes on every mutation
func (r *Registry) Generation() uint64 {
	return r.generation
}

// walk visits id and its ancestors until visit returns true
func (r *Registry) walk(id ID, visit func(o Overrides) bool) {
	seen := make(map[ID]struct{})
	for {
		if _, loop := seen[id]; loop {
			return
		}
		seen[id] = struct{}{}

		if o, ok := r.overrides[id]; ok && visit(o) {
			return
		}
		if r.parent == nil {
			return
		}
		parent, ok := r.parent(id)
		if !ok {
			return
		}
		id = parent
	}
}

// Mode returns the first non-inherited mode on the chain from id, or def
func (r *Registry) Mode(id ID, def Mode) Mode {
	mode := ModeInherited
	r.walk(id, func(o Overrides) bool {
		if o.Mode != ModeInherited {
			mode = o.Mode
			return true
		}
		return false
	})
	if mode == ModeInherited {
		return def
	}
	return mode
}

// Delay returns the nearest configured delay of kind for id, or def
func (r *Registry) Delay(id ID, kind DelayKind, def time.Duration) time.Duration {
	d := def
	r.walk(id, func(o Overrides) bool {
		if v := o.delay(kind); v > 0 {
			d = v
			return true
		}
		return false
	})
	return d
}

// MaxRepeatCount returns the nearest configured repeat cap for id, or def
func (r *Registry) MaxRepeatCount(id ID, def int) int {
	n := def
	r.walk(id, func(o Overrides) bool {
		if o.MaxRepeatCount != nil {
			n = *o.MaxRepeatCount
			return true
		}
		return false
	})
	return n
}

// MaxDwellWindow is the largest Dwell or DwellRepeat delay across the
// defaults and every override.
func (r *Registry) MaxDwellWindow(defDwell, defRepeat time.Duration) time.Duration {
	m := max(defDwell, defRepeat)
	for _, o := range r.overrides {
		m = max(m, o.Dwell, o.DwellRepeat)
	}
	return m
}
