package link

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Encoder defaults.
const (
	DefaultJPEGQuality     = 30
	DefaultMaxDatagramSize = 65000

	maxShrinks = 4
)

// ErrFrameTooLarge is returned when a frame cannot be made to fit one
// datagram.
var ErrFrameTooLarge = errors.New("encoded frame exceeds datagram size")

// Encoder turns a frame into one datagram payload.
type Encoder interface {
	Encode(frame *gocv.Mat) ([]byte, error)
}

// JPEGEncoder encodes at a fixed quality and halves the frame until the
// result fits MaxSize.
type JPEGEncoder struct {
	Quality int
	MaxSize int
}

// NewJPEGEncoder returns an encoder with the given quality and size bound.
func NewJPEGEncoder(quality, maxSize int) *JPEGEncoder {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxDatagramSize
	}
	return &JPEGEncoder{Quality: quality, MaxSize: maxSize}
}

// Encode returns the JPEG bytes of frame.
func (e *JPEGEncoder) Encode(frame *gocv.Mat) ([]byte, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("encode: empty frame")
	}

	var scaled []gocv.Mat
	defer func() {
		for i := range scaled {
			scaled[i].Close()
		}
	}()

	src := *frame
	params := []int{gocv.IMWriteJpegQuality, e.Quality}
	for attempt := 0; ; attempt++ {
		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, src, params)
		if err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}
		data := buf.GetBytes()
		buf.Close()

		if len(data) <= e.MaxSize {
			return data, nil
		}
		if attempt == maxShrinks || src.Cols() < 2 || src.Rows() < 2 {
			return nil, fmt.Errorf("%w: %d bytes at %dx%d", ErrFrameTooLarge, len(data), src.Cols(), src.Rows())
		}

		half := gocv.NewMat()
		gocv.Resize(src, &half, image.Point{}, 0.5, 0.5, gocv.InterpolationArea)
		scaled = append(scaled, half)
		src = half
	}
}
