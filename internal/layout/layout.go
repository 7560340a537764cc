// Package layout describes a host UI as a YAML element tree. It stands in
// for the UI framework when the processor runs as a daemon: hit testing,
// logical parents, capabilities and per-element dwell overrides all come
// from the file.
package layout

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gosight/gosight/gaze/internal/sample"
	"github.com/gosight/gosight/gaze/internal/target"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid layout")

// Bounds is an axis-aligned rectangle in window coordinates
type Bounds struct {
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// Contains reports whether p lies inside b
func (b Bounds) Contains(p sample.Point) bool {
	return p.X >= b.X && p.X < b.X+b.Width && p.Y >= b.Y && p.Y < b.Y+b.Height
}

// Delays are per-element overrides in milliseconds. Zero means inherit.
type Delays struct {
	Enter       int `yaml:"enter" json:"enter,omitempty"`
	Exit        int `yaml:"exit" json:"exit,omitempty"`
	Fixation    int `yaml:"fixation" json:"fixation,omitempty"`
	Dwell       int `yaml:"dwell" json:"dwell,omitempty"`
	DwellRepeat int `yaml:"dwell_repeat" json:"dwell_repeat,omitempty"`
}

// Element is one node of the tree
type Element struct {
	ID             string `yaml:"id" json:"id"`
	Parent         string `yaml:"parent" json:"parent,omitempty"`
	Bounds         Bounds `yaml:"bounds" json:"bounds"`
	Z              int    `yaml:"z" json:"z,omitempty"`
	Capability     string `yaml:"capability" json:"capability,omitempty"`
	Enabled        *bool  `yaml:"enabled" json:"enabled,omitempty"`
	Interaction    string `yaml:"interaction" json:"interaction,omitempty"`
	Delays         Delays `yaml:"delays" json:"delays,omitempty"`
	MaxRepeatCount *int   `yaml:"max_repeat_count" json:"max_repeat_count,omitempty"`
}

// Document is the file format
type Document struct {
	Elements []Element `yaml:"elements" json:"elements"`
}

type node struct {
	Element
	order      int
	depth      int
	capability target.Capability
	mode       target.Mode
}

// Layout is a validated element tree. It implements target.Tree.
type Layout struct {
	nodes map[target.ID]*node
	// hit test order: higher z first, then deeper, then later declared
	order []*node
}

// Load reads and parses a layout file
func Load(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML layout
func Parse(data []byte) (*Layout, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}
	return New(doc)
}

// New validates doc and builds its tree
func New(doc Document) (*Layout, error) {
	l := &Layout{nodes: make(map[target.ID]*node, len(doc.Elements))}

	for i, e := range doc.Elements {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: element %d has no id", ErrInvalid, i)
		}
		id := target.ID(e.ID)
		if _, dup := l.nodes[id]; dup {
			return nil, fmt.Errorf("%w: duplicate element %q", ErrInvalid, e.ID)
		}
		if e.Bounds.Width < 0 || e.Bounds.Height < 0 {
			return nil, fmt.Errorf("%w: element %q has negative size", ErrInvalid, e.ID)
		}
		if e.MaxRepeatCount != nil && *e.MaxRepeatCount < 0 {
			return nil, fmt.Errorf("%w: element %q has negative max_repeat_count", ErrInvalid, e.ID)
		}
		if e.Delays.Enter < 0 || e.Delays.Exit < 0 || e.Delays.Fixation < 0 || e.Delays.Dwell < 0 || e.Delays.DwellRepeat < 0 {
			return nil, fmt.Errorf("%w: element %q has a negative delay", ErrInvalid, e.ID)
		}

		c, err := target.ParseCapability(e.Capability)
		if err != nil {
			return nil, fmt.Errorf("%w: element %q: %v", ErrInvalid, e.ID, err)
		}
		m, err := target.ParseMode(e.Interaction)
		if err != nil {
			return nil, fmt.Errorf("%w: element %q: %v", ErrInvalid, e.ID, err)
		}

		l.nodes[id] = &node{Element: e, order: i, capability: c, mode: m}
	}

	for _, n := range l.nodes {
		if n.Parent == "" {
			continue
		}
		if _, ok := l.nodes[target.ID(n.Parent)]; !ok {
			return nil, fmt.Errorf("%w: element %q has unknown parent %q", ErrInvalid, n.ID, n.Parent)
		}
	}

	for id, n := range l.nodes {
		depth, err := l.depth(id)
		if err != nil {
			return nil, err
		}
		n.depth = depth
		l.order = append(l.order, n)
	}

	sort.Slice(l.order, func(i, j int) bool {
		a, b := l.order[i], l.order[j]
		if a.Z != b.Z {
			return a.Z > b.Z
		}
		if a.depth != b.depth {
			return a.depth > b.depth
		}
		return a.order > b.order
	})

	return l, nil
}

func (l *Layout) depth(id target.ID) (int, error) {
	depth := 0
	seen := map[target.ID]struct{}{}
	for {
		if _, loop := seen[id]; loop {
			return 0, fmt.Errorf("%w: parent cycle through %q", ErrInvalid, id)
		}
		seen[id] = struct{}{}

		n := l.nodes[id]
		if n.Parent == "" {
			return depth, nil
		}
		id = target.ID(n.Parent)
		depth++
	}
}

// Len returns the number of elements
func (l *Layout) Len() int {
	return len(l.nodes)
}

// ElementsAt returns the elements containing p, topmost first
func (l *Layout) ElementsAt(p sample.Point) []target.ID {
	var hits []target.ID
	for _, n := range l.order {
		if n.Bounds.Contains(p) {
			hits = append(hits, target.ID(n.ID))
		}
	}
	return hits
}

// Parent returns id's logical parent
func (l *Layout) Parent(id target.ID) (target.ID, bool) {
	n, ok := l.nodes[id]
	if !ok || n.Parent == "" {
		return "", false
	}
	return target.ID(n.Parent), true
}

// Capability returns how id is activated
func (l *Layout) Capability(id target.ID) target.Capability {
	n, ok := l.nodes[id]
	if !ok {
		return target.CapabilityNone
	}
	return n.capability
}

// Enabled reports whether id accepts input. Elements are enabled unless
// the file says otherwise.
func (l *Layout) Enabled(id target.ID) bool {
	n, ok := l.nodes[id]
	if !ok {
		return false
	}
	return n.Enabled == nil || *n.Enabled
}

// Overrides returns the per-element settings for the target registry
func (l *Layout) Overrides() map[target.ID]target.Overrides {
	out := make(map[target.ID]target.Overrides)
	for id, n := range l.nodes {
		o := target.Overrides{
			Mode:           n.mode,
			Enter:          ms(n.Delays.Enter),
			Exit:           ms(n.Delays.Exit),
			Fixation:       ms(n.Delays.Fixation),
			Dwell:          ms(n.Delays.Dwell),
			DwellRepeat:    ms(n.Delays.DwellRepeat),
			MaxRepeatCount: n.MaxRepeatCount,
		}
		if o == (target.Overrides{}) {
			continue
		}
		out[id] = o
	}
	return out
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
