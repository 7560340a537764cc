package filter

import (
	"math"
	"time"

	"github.com/gosight/gosight/gaze/internal/sample"
	"github.com/gosight/gosight/gaze/internal/settings"
)

// Default One-Euro tuning
const (
	DefaultBeta           = 5.0
	DefaultCutoff         = 0.1
	DefaultVelocityCutoff = 1.0
)

// ticksPerSecond counts 100ns ticks
const ticksPerSecond = 1e7

// lowpass is a per-axis exponential smoother: out = a*in + (1-a)*prev
type lowpass struct {
	prev sample.Point
}

func (l *lowpass) update(in, alpha sample.Point) sample.Point {
	l.prev = sample.Point{
		X: alpha.X*in.X + (1-alpha.X)*l.prev.X,
		Y: alpha.Y*in.Y + (1-alpha.Y)*l.prev.Y,
	}
	return l.prev
}

// OneEuro is an adaptive low-pass filter. Slow movement is smoothed hard to
// remove jitter; fast movement raises the cutoff to reduce lag.
//
// Reducing Beta increases stability at the cost of lag. Increasing Cutoff
// increases responsiveness at the cost of jitter.
type OneEuro struct {
	Beta           float64
	Cutoff         float64
	VelocityCutoff float64

	initialized   bool
	lastTimestamp time.Duration
	position      lowpass
	velocity      lowpass
}

// NewOneEuro creates a filter with default tuning
func NewOneEuro() *OneEuro {
	return &OneEuro{
		Beta:           DefaultBeta,
		Cutoff:         DefaultCutoff,
		VelocityCutoff: DefaultVelocityCutoff,
	}
}

// LoadSettings overrides tuning from the settings bag
func (f *OneEuro) LoadSettings(bag settings.Bag) {
	f.Beta = bag.Float(settings.KeyFilterBeta, f.Beta)
	f.Cutoff = bag.Float(settings.KeyFilterCutoff, f.Cutoff)
	f.VelocityCutoff = bag.Float(settings.KeyFilterVelocityCutoff, f.VelocityCutoff)
}

// Update filters one sample. The first sample seeds the filter and is
// returned unchanged.
//
// The sampling rate comes from the raw gap between timestamps; long gaps
// are not clamped here.
func (f *OneEuro) Update(s sample.Sample) sample.Sample {
	if !f.initialized {
		f.initialized = true
		f.lastTimestamp = s.Timestamp
		f.position = lowpass{prev: s.Position}
		f.velocity = lowpass{}
		return s
	}

	ticks := float64((s.Timestamp - f.lastTimestamp) / 100)
	rate := ticksPerSecond / math.Max(1, ticks)

	current := s.Position
	delta := sample.Point{
		X: (current.X - f.position.prev.X) * rate,
		Y: (current.Y - f.position.prev.Y) * rate,
	}

	va := alpha(rate, f.VelocityCutoff)
	filteredDelta := f.velocity.update(delta, sample.Point{X: va, Y: va})

	cutoff := sample.Point{
		X: f.Cutoff + f.Beta*math.Abs(filteredDelta.X),
		Y: f.Cutoff + f.Beta*math.Abs(filteredDelta.Y),
	}

	filtered := f.position.update(current, sample.Point{
		X: alpha(rate, cutoff.X),
		Y: alpha(rate, cutoff.Y),
	})

	f.lastTimestamp = s.Timestamp
	return sample.Sample{Position: filtered, Timestamp: s.Timestamp}
}

// Reset forgets all state; the next sample seeds the filter again
func (f *OneEuro) Reset() {
	f.initialized = false
	f.lastTimestamp = 0
	f.position = lowpass{}
	f.velocity = lowpass{}
}

func alpha(rate, cutoff float64) float64 {
	te := 1.0 / rate
	tau := 1.0 / (2 * math.Pi * cutoff)
	return te / (te + tau)
}
