// Package filter smooths raw gaze samples before hit testing.
package filter

import (
	"fmt"

	"github.com/gosight/gosight/gaze/internal/sample"
	"github.com/gosight/gosight/gaze/internal/settings"
)

// Filter transforms a raw sample into a smoothed one. Implementations are
// stateful and expect monotonic timestamps.
type Filter interface {
	Update(s sample.Sample) sample.Sample
	Reset()
}

// Kinds accepted by New
const (
	KindNull    = "null"
	KindOneEuro = "one_euro"
)

// Null passes samples through unchanged
type Null struct{}

// Update returns s
func (Null) Update(s sample.Sample) sample.Sample { return s }

// Reset is a no-op
func (Null) Reset() {}

// New builds the filter named by kind, tuned from bag
func New(kind string, bag settings.Bag) (Filter, error) {
	switch kind {
	case "", KindNull:
		return Null{}, nil
	case KindOneEuro:
		f := NewOneEuro()
		f.LoadSettings(bag)
		return f, nil
	}
	return nil, fmt.Errorf("unknown filter kind %q", kind)
}
