// Package testdata builds synthetic frames for tests: a dark background
// with an optional coloured target disc.
package testdata

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Frame sizes used across tests.
var (
	VGA   = image.Pt(640, 480)
	HD720 = image.Pt(1280, 720)
)

// Red is the default target colour. Its HSV value is (0, 255, 255).
var Red = color.RGBA{R: 255, A: 255}

// Green is a non-target colour for negative cases.
var Green = color.RGBA{G: 255, A: 255}

// Blank returns a black BGR frame of the given size.
func Blank(size image.Point) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), size.Y, size.X, gocv.MatTypeCV8UC3)
}

// TargetFrame returns a black frame with a filled disc of colour c centred
// at center.
func TargetFrame(size, center image.Point, radius int, c color.RGBA) gocv.Mat {
	frame := Blank(size)
	gocv.Circle(&frame, center, radius, c, -1)
	return frame
}

// Sequence returns one target frame per centre. A false entry in present
// produces a blank frame at that position.
func Sequence(size image.Point, centers []image.Point, present []bool, radius int) []*gocv.Mat {
	frames := make([]*gocv.Mat, len(centers))
	for i, c := range centers {
		var m gocv.Mat
		if present != nil && !present[i] {
			m = Blank(size)
		} else {
			m = TargetFrame(size, c, radius, Red)
		}
		frames[i] = &m
	}
	return frames
}

// CloseAll releases every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}
