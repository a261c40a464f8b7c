package app

import (
	"image"
	"image/color"

	"github.com/ayusman/yelkiran/internal/collision"
	"gocv.io/x/gocv"
)

var (
	boxIdle      = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	boxColliding = color.RGBA{G: 255, A: 255}
	crosshair    = color.RGBA{R: 255, A: 255}
)

const crosshairSize = 10

// drawOverlay marks the collision box and, when found, the target centroid.
func drawOverlay(frame *gocv.Mat, det collision.Detection, bounds image.Rectangle, colliding bool) {
	c := boxIdle
	if colliding {
		c = boxColliding
	}
	gocv.Rectangle(frame, bounds, c, 2)

	if !det.Found {
		return
	}
	pt := det.Point
	gocv.Line(frame, image.Pt(pt.X-crosshairSize, pt.Y), image.Pt(pt.X+crosshairSize, pt.Y), crosshair, 2)
	gocv.Line(frame, image.Pt(pt.X, pt.Y-crosshairSize), image.Pt(pt.X, pt.Y+crosshairSize), crosshair, 2)
	gocv.Circle(frame, pt, 3, crosshair, -1)
}
