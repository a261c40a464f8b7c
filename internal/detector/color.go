package detector

import (
	"image/color"
	"sync"

	"github.com/ayusman/yelkiran/internal/collision"
	"gocv.io/x/gocv"
)

// ColorDetector thresholds the frame in HSV space and returns the centroid
// of the largest matching contour.
type ColorDetector struct {
	mu    sync.RWMutex
	lower gocv.Scalar
	upper gocv.Scalar
}

// NewColorDetector creates a detector for the given HSV range.
func NewColorDetector(r HSVRange) *ColorDetector {
	d := &ColorDetector{}
	d.SetRange(r)
	return d
}

// SetRange replaces the threshold. It is safe to call between frames.
func (d *ColorDetector) SetRange(r HSVRange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lower = gocv.NewScalar(float64(r.Lower[0]), float64(r.Lower[1]), float64(r.Lower[2]), 0)
	d.upper = gocv.NewScalar(float64(r.Upper[0]), float64(r.Upper[1]), float64(r.Upper[2]), 0)
}

// Detect analyzes a BGR frame.
//
// Algorithm:
// 1. Convert frame to HSV
// 2. Threshold with the configured range into a binary mask
// 3. Find external and nested contours of the mask
// 4. Pick the contour with the largest area
// 5. Fill it into a blank mask and take the centroid from its moments
func (d *ColorDetector) Detect(frame *gocv.Mat) (collision.Detection, error) {
	if frame == nil || frame.Empty() {
		return collision.None(), ErrEmptyFrame
	}

	d.mu.RLock()
	lower, upper := d.lower, d.upper
	d.mu.RUnlock()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(*frame, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, lower, upper, &mask)

	contours := gocv.FindContours(mask, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return collision.None(), nil
	}

	largest, largestArea := 0, -1.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > largestArea {
			largest, largestArea = i, area
		}
	}

	filled := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), mask.Rows(), mask.Cols(), gocv.MatTypeCV8U)
	defer filled.Close()
	gocv.DrawContours(&filled, contours, largest, color.RGBA{R: 255, G: 255, B: 255}, -1)

	m := gocv.Moments(filled, true)
	if m["m00"] == 0 {
		return collision.None(), ErrDegenerateTarget
	}

	return collision.At(int(m["m10"]/m["m00"]), int(m["m01"]/m["m00"])), nil
}

// Close is a no-op; the detector holds no native resources between calls.
func (d *ColorDetector) Close() error {
	return nil
}
