package pointer

import (
	"github.com/gosight/gosight/gaze/internal/sample"
	"github.com/gosight/gosight/gaze/internal/settings"
)

// Cursor is what a host needs to draw the gaze cursor. Drawing is left to
// the host.
type Cursor struct {
	Radius      int          `json:"radius"`
	Visible     bool         `json:"visible"`
	GazeEntered bool         `json:"gaze_entered"`
	Position    sample.Point `json:"position"`
}

func defaultCursor() Cursor {
	return Cursor{Radius: 6, Visible: true}
}

func (c *Cursor) apply(bag settings.Bag) {
	c.Radius = bag.Int(settings.KeyCursorRadius, c.Radius)
	c.Visible = bag.Bool(settings.KeyCursorVisibility, c.Visible)
}
