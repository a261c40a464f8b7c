// Package collision decides, frame by frame, whether the tracked target sits
// inside the collision box and reports the edge on which it enters.
package collision

import "image"

// State is the tracker's collision state.
type State int

const (
	// Clear means the target is outside the box (or absent).
	Clear State = iota
	// Colliding means the target was inside the box on the last update.
	Colliding
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Clear:
		return "clear"
	case Colliding:
		return "colliding"
	default:
		return "unknown"
	}
}

// Detection is the per-frame detector output: a target centroid in frame
// pixel coordinates, or nothing.
type Detection struct {
	Point image.Point
	Found bool
}

// At returns a Detection with a centroid at (x, y).
func At(x, y int) Detection {
	return Detection{Point: image.Pt(x, y), Found: true}
}

// None returns the absent Detection.
func None() Detection {
	return Detection{}
}

// Centroid returns the detected point. An absent detection yields (0,0),
// which lies outside any box of positive size centred in a non-trivial
// frame, so "no target" resolves to Clear without a special case.
func (d Detection) Centroid() image.Point {
	if !d.Found {
		return image.Point{}
	}
	return d.Point
}

// Box is the collision rectangle, centred on the frame centre and shifted
// by the offsets. All values are pixels.
type Box struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	OffsetX int `json:"offset_x"`
	OffsetY int `json:"offset_y"`
}

// Bounds computes the box corners for a frame of the given size.
// Corners are truncated toward zero the same way for every edge.
func (b Box) Bounds(frame image.Point) image.Rectangle {
	cx := float64(frame.X) / 2
	cy := float64(frame.Y) / 2
	halfW := float64(b.Width) / 2
	halfH := float64(b.Height) / 2

	return image.Rectangle{
		Min: image.Point{
			X: int(cx - halfW + float64(b.OffsetX)),
			Y: int(cy - halfH + float64(b.OffsetY)),
		},
		Max: image.Point{
			X: int(cx + halfW + float64(b.OffsetX)),
			Y: int(cy + halfH + float64(b.OffsetY)),
		},
	}
}

// Contains reports whether p lies strictly inside r. Points on an edge are
// outside.
func Contains(r image.Rectangle, p image.Point) bool {
	return r.Min.X < p.X && p.X < r.Max.X &&
		r.Min.Y < p.Y && p.Y < r.Max.Y
}

// Tracker converts detections into an edge-triggered collision signal.
// It is not safe for concurrent use; the frame loop owns it.
type Tracker struct {
	state State
}

// NewTracker returns a tracker in the Clear state.
func NewTracker() *Tracker {
	return &Tracker{state: Clear}
}

// Update evaluates one frame. colliding reports whether the centroid is
// inside the box; justEntered is true only on the Clear to Colliding edge.
// Bounds are recomputed on every call.
func (t *Tracker) Update(det Detection, box Box, frameSize image.Point) (colliding, justEntered bool) {
	colliding = Contains(box.Bounds(frameSize), det.Centroid())

	if colliding {
		if t.state == Clear {
			t.state = Colliding
			return true, true
		}
		return true, false
	}

	t.state = Clear
	return false, false
}

// State returns the current collision state.
func (t *Tracker) State() State {
	return t.state
}

// Reset puts the tracker back into Clear.
func (t *Tracker) Reset() {
	t.state = Clear
}
