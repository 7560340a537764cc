package dwell

import (
	"time"

	"github.com/gosight/gosight/gaze/internal/settings"
)

// Config holds the global defaults. Per-element overrides in the target
// registry take precedence over the delays here.
type Config struct {
	// Delays per state
	Enter       time.Duration // Threshold before a glance counts as Enter
	Exit        time.Duration // Idle time before an attended target exits
	Fixation    time.Duration // Enter -> Fixation
	Dwell       time.Duration // Fixation -> Dwell
	DwellRepeat time.Duration // Period between repeated Dwell firings

	MaxRepeatCount int // Repeated Dwell firings allowed after the first

	// Stream handling
	EyesOffDelay            time.Duration // Silence before the eyes-off check
	MaxSingleSampleDuration time.Duration // Cap on one sample's credited time
	HistoryMaxEntries       int           // Hard cap on queued history entries

	// Switch input confirms activation instead of dwell completion
	SwitchEnabled bool
}

// DefaultConfig returns the stock delays
func DefaultConfig() Config {
	return Config{
		Enter:       50 * time.Millisecond,
		Exit:        50 * time.Millisecond,
		Fixation:    350 * time.Millisecond,
		Dwell:       400 * time.Millisecond,
		DwellRepeat: 400 * time.Millisecond,

		MaxRepeatCount: 0,

		EyesOffDelay:            250 * time.Millisecond,
		MaxSingleSampleDuration: 100 * time.Millisecond,
		HistoryMaxEntries:       4096,
	}
}

// WithSettings returns cfg with any values present in bag applied
func (cfg Config) WithSettings(bag settings.Bag) Config {
	cfg.Enter = bag.Duration(settings.KeyThresholdDelay, cfg.Enter)
	cfg.Exit = bag.Duration(settings.KeyExitDelay, cfg.Exit)
	cfg.Fixation = bag.Duration(settings.KeyFixationDelay, cfg.Fixation)
	cfg.Dwell = bag.Duration(settings.KeyDwellDelay, cfg.Dwell)
	cfg.DwellRepeat = bag.Duration(settings.KeyDwellRepeatDelay, cfg.DwellRepeat)
	cfg.MaxRepeatCount = bag.Int(settings.KeyMaxDwellRepeatCount, cfg.MaxRepeatCount)
	cfg.EyesOffDelay = bag.Duration(settings.KeyGazeIdleTime, cfg.EyesOffDelay)
	cfg.MaxSingleSampleDuration = bag.Duration(settings.KeyMaxSingleSampleDuration, cfg.MaxSingleSampleDuration)
	cfg.SwitchEnabled = bag.Bool(settings.KeyIsSwitchEnabled, cfg.SwitchEnabled)
	return cfg
}
