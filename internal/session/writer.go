package session

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"
)

// Output file naming. Sequence 0 is "video.avi", then "video_1.avi", ...
const (
	baseName  = "video"
	extension = ".avi"
)

// DefaultCodec is the FourCC used when none is configured.
const DefaultCodec = "XVID"

// FrameWriter persists frames to one output artifact.
type FrameWriter interface {
	Write(frame *gocv.Mat) error
	Close() error
}

// WriterFactory creates the artifact at path.
type WriterFactory func(path string, fps int, size image.Point) (FrameWriter, error)

// PathFor returns the output path for sequence number seq.
func PathFor(dir string, seq int) string {
	if seq == 0 {
		return filepath.Join(dir, baseName+extension)
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", baseName, seq, extension))
}

// NextPath returns the first output path in dir that does not exist,
// probing sequence numbers upward from 0. Stat errors other than
// not-exist are returned.
func NextPath(dir string) (string, int, error) {
	for seq := 0; ; seq++ {
		path := PathFor(dir, seq)
		_, err := os.Stat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return path, seq, nil
		case err != nil:
			return "", 0, fmt.Errorf("probe %s: %w", path, err)
		}
	}
}

// videoWriter adapts gocv.VideoWriter to FrameWriter.
type videoWriter struct {
	vw *gocv.VideoWriter
}

// NewVideoWriter returns a factory that writes colour video with the given
// FourCC codec.
func NewVideoWriter(codec string) WriterFactory {
	if codec == "" {
		codec = DefaultCodec
	}
	return func(path string, fps int, size image.Point) (FrameWriter, error) {
		vw, err := gocv.VideoWriterFile(path, codec, float64(fps), size.X, size.Y, true)
		if err != nil {
			return nil, fmt.Errorf("open video writer %s: %w", path, err)
		}
		if !vw.IsOpened() {
			vw.Close()
			return nil, fmt.Errorf("open video writer %s: codec %s unavailable", path, codec)
		}
		return &videoWriter{vw: vw}, nil
	}
}

func (w *videoWriter) Write(frame *gocv.Mat) error {
	return w.vw.Write(*frame)
}

func (w *videoWriter) Close() error {
	return w.vw.Close()
}
