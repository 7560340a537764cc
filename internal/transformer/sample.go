package transformer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gosight/gosight/gaze/internal/sample"
)

var (
	// ErrMissingField is returned when a required field is absent
	ErrMissingField = errors.New("missing field")
	// ErrOutOfRange is returned for values the tracker could not have meant
	ErrOutOfRange = errors.New("value out of range")
	// ErrNotTracked is returned when the tracker flagged the sample as lost
	ErrNotTracked = errors.New("sample not tracked")
)

// RawSample represents the sample structure published by tracker bridges
type RawSample struct {
	DeviceID    string  `json:"device_id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	TimestampUs int64   `json:"timestamp_us"`
	Tracked     *bool   `json:"tracked,omitempty"`
}

// TransformSample transforms a raw message from Kafka or HTTP to a Sample.
// Coordinates may be top level or nested under "position".
func TransformSample(raw map[string]interface{}) (sample.Sample, string, error) {
	var s sample.Sample

	if v, ok := raw["tracked"].(bool); ok && !v {
		return s, "", ErrNotTracked
	}

	pos := raw
	if v, ok := raw["position"].(map[string]interface{}); ok {
		pos = v
	}

	x, ok := getFloat64(pos, "x")
	if !ok {
		return s, "", fmt.Errorf("%w: x", ErrMissingField)
	}
	y, ok := getFloat64(pos, "y")
	if !ok {
		return s, "", fmt.Errorf("%w: y", ErrMissingField)
	}
	ts, ok := getFloat64(raw, "timestamp_us")
	if !ok {
		return s, "", fmt.Errorf("%w: timestamp_us", ErrMissingField)
	}

	s, err := build(x, y, ts)
	if err != nil {
		return s, "", err
	}
	return s, getString(raw, "device_id"), nil
}

// Sample validates r the same way TransformSample validates a raw map
func (r RawSample) Sample() (sample.Sample, error) {
	if r.Tracked != nil && !*r.Tracked {
		return sample.Sample{}, ErrNotTracked
	}
	return build(r.X, r.Y, float64(r.TimestampUs))
}

func build(x, y, ts float64) (sample.Sample, error) {
	var s sample.Sample

	if !finite(x) || !finite(y) {
		return s, fmt.Errorf("%w: position (%v, %v)", ErrOutOfRange, x, y)
	}
	// the timestamp must survive conversion to nanoseconds
	if !finite(ts) || ts < 0 || ts >= math.MaxInt64/1000 {
		return s, fmt.Errorf("%w: timestamp_us %v", ErrOutOfRange, ts)
	}

	s.Position = sample.Point{X: x, Y: y}
	s.Timestamp = time.Duration(int64(ts)) * time.Microsecond
	return s, nil
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getFloat64(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
