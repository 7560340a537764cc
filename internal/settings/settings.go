// Package settings holds the key-value settings bag that tunes the filter,
// the dwell delays and the cursor.
package settings

import (
	"strconv"
	"strings"
	"time"
)

// Recognized keys. Delays are expressed in milliseconds.
const (
	KeyFilterBeta           = "OneEuroFilter.Beta"
	KeyFilterCutoff         = "OneEuroFilter.Cutoff"
	KeyFilterVelocityCutoff = "OneEuroFilter.VelocityCutoff"

	KeyThresholdDelay          = "GazeInput.ThresholdDelay"
	KeyExitDelay               = "GazeInput.ExitDelay"
	KeyFixationDelay           = "GazeInput.FixationDelay"
	KeyDwellDelay              = "GazeInput.DwellDelay"
	KeyDwellRepeatDelay        = "GazeInput.DwellRepeatDelay"
	KeyMaxDwellRepeatCount     = "GazeInput.MaxDwellRepeatCount"
	KeyGazeIdleTime            = "GazeInput.GazeIdleTime"
	KeyMaxSingleSampleDuration = "GazeInput.MaxSingleSampleDuration"
	KeyIsSwitchEnabled         = "GazeInput.IsSwitchEnabled"
	KeyIsAlwaysActivated       = "GazeInput.IsAlwaysActivated"

	KeyCursorRadius     = "GazeCursor.CursorRadius"
	KeyCursorVisibility = "GazeCursor.CursorVisibility"
)

// Bag is a read-only view over loaded settings. Values may be numbers,
// booleans or their string forms; anything unparseable falls back to the
// caller's default.
type Bag map[string]any

// Merge returns a new bag with other's values layered over b.
func (b Bag) Merge(other Bag) Bag {
	out := make(Bag, len(b)+len(other))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Float returns the value for key as float64
func (b Bag) Float(key string, def float64) float64 {
	v, ok := b[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		return f
	}
	return def
}

// Int returns the value for key truncated to an int
func (b Bag) Int(key string, def int) int {
	if _, ok := b[key]; !ok {
		return def
	}
	return int(b.Float(key, float64(def)))
}

// Bool returns the value for key as a bool
func (b Bag) Bool(key string, def bool) bool {
	v, ok := b[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return parsed
	case int, int64, float64:
		return b.Float(key, 0) != 0
	}
	return def
}

// Duration reads a millisecond value for key
func (b Bag) Duration(key string, def time.Duration) time.Duration {
	if _, ok := b[key]; !ok {
		return def
	}
	ms := b.Float(key, float64(def)/float64(time.Millisecond))
	if ms < 0 {
		return def
	}
	return time.Duration(ms * float64(time.Millisecond))
}
