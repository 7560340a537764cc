package transformer

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/gosight/gaze/internal/sample"
)

func decode(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	return raw
}

func TestTransformSample(t *testing.T) {
	s, device, err := TransformSample(decode(t, `{"device_id":"tracker-1","x":640.5,"y":360,"timestamp_us":1500000}`))
	require.NoError(t, err)
	assert.Equal(t, "tracker-1", device)
	assert.Equal(t, sample.Point{X: 640.5, Y: 360}, s.Position)
	assert.Equal(t, 1500*time.Millisecond, s.Timestamp)
}

func TestTransformSampleNestedPosition(t *testing.T) {
	s, device, err := TransformSample(decode(t, `{"position":{"x":1,"y":2},"timestamp_us":10}`))
	require.NoError(t, err)
	assert.Empty(t, device)
	assert.Equal(t, sample.Point{X: 1, Y: 2}, s.Position)
	assert.Equal(t, 10*time.Microsecond, s.Timestamp)
}

func TestTransformSampleRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]interface{}
		want error
	}{
		{"missing x", map[string]interface{}{"y": 1.0, "timestamp_us": 1.0}, ErrMissingField},
		{"missing y", map[string]interface{}{"x": 1.0, "timestamp_us": 1.0}, ErrMissingField},
		{"missing timestamp", map[string]interface{}{"x": 1.0, "y": 1.0}, ErrMissingField},
		{"string coordinate", map[string]interface{}{"x": "1", "y": 1.0, "timestamp_us": 1.0}, ErrMissingField},
		{"nan", map[string]interface{}{"x": math.NaN(), "y": 1.0, "timestamp_us": 1.0}, ErrOutOfRange},
		{"inf", map[string]interface{}{"x": 1.0, "y": math.Inf(-1), "timestamp_us": 1.0}, ErrOutOfRange},
		{"negative timestamp", map[string]interface{}{"x": 1.0, "y": 1.0, "timestamp_us": -1.0}, ErrOutOfRange},
		{"huge timestamp", map[string]interface{}{"x": 1.0, "y": 1.0, "timestamp_us": 1e300}, ErrOutOfRange},
		{"untracked", map[string]interface{}{"x": 1.0, "y": 1.0, "timestamp_us": 1.0, "tracked": false}, ErrNotTracked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := TransformSample(tt.raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRawSample(t *testing.T) {
	s, err := RawSample{X: 3, Y: 4, TimestampUs: 2000}.Sample()
	require.NoError(t, err)
	assert.Equal(t, sample.Point{X: 3, Y: 4}, s.Position)
	assert.Equal(t, 2*time.Millisecond, s.Timestamp)

	lost := false
	tests := []struct {
		name string
		raw  RawSample
		want error
	}{
		{"negative timestamp", RawSample{TimestampUs: -1}, ErrOutOfRange},
		{"overflowing timestamp", RawSample{TimestampUs: math.MaxInt64 / 100}, ErrOutOfRange},
		{"max int timestamp", RawSample{TimestampUs: math.MaxInt64}, ErrOutOfRange},
		{"nan", RawSample{X: math.NaN()}, ErrOutOfRange},
		{"untracked", RawSample{Tracked: &lost}, ErrNotTracked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.raw.Sample()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
