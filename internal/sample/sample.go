package sample

import (
	"math"
	"time"
)

// Point is a position in host window coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sample is a single gaze reading. Timestamp is measured from an arbitrary
// device epoch and must be monotonic within a stream.
type Sample struct {
	Position  Point
	Timestamp time.Duration
}

// Valid reports whether the sample can be fed to the pipeline.
// Out-of-range device values are treated as absent.
func (s Sample) Valid() bool {
	if s.Timestamp < 0 {
		return false
	}
	return finite(s.Position.X) && finite(s.Position.Y)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
