// Package detector locates the colour target in a frame.
package detector

import (
	"errors"

	"github.com/ayusman/yelkiran/internal/collision"
	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned for nil or empty frames.
var ErrEmptyFrame = errors.New("frame is empty")

// ErrDegenerateTarget is returned when the largest contour has zero area,
// so no centroid can be computed. Callers skip the frame.
var ErrDegenerateTarget = errors.New("target contour has zero area")

// Detector defines the interface for target detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the target centroid, or
	// collision.None() when no target is visible.
	Detect(frame *gocv.Mat) (collision.Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// HSVRange is an inclusive hue/saturation/value threshold. OpenCV scales
// hue to 0-180 and saturation/value to 0-255.
type HSVRange struct {
	Lower [3]int
	Upper [3]int
}

// DefaultRange accepts every pixel.
func DefaultRange() HSVRange {
	return HSVRange{
		Lower: [3]int{0, 0, 0},
		Upper: [3]int{180, 255, 255},
	}
}
