package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Preview defaults.
const (
	DefaultPreviewInterval = 66 * time.Millisecond // ~15 FPS
	DefaultPreviewQuality  = 70
)

// PreviewHub serves the processed frames as MJPEG. The frame loop publishes
// into it; frames are only encoded while someone is watching.
type PreviewHub struct {
	interval time.Duration
	quality  int
	log      zerolog.Logger

	mu      sync.Mutex
	clients int
	last    time.Time
	latest  []byte
	notify  chan struct{}
}

// NewPreviewHub creates a hub that forwards at most one frame per interval.
func NewPreviewHub(interval time.Duration, log zerolog.Logger) *PreviewHub {
	if interval <= 0 {
		interval = DefaultPreviewInterval
	}
	return &PreviewHub{
		interval: interval,
		quality:  DefaultPreviewQuality,
		log:      log,
		notify:   make(chan struct{}),
	}
}

// Clients returns the number of connected viewers.
func (h *PreviewHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

// Publish encodes frame for the viewers. It returns false when the frame was
// skipped.
func (h *PreviewHub) Publish(frame *gocv.Mat) bool {
	h.mu.Lock()
	now := time.Now()
	if h.clients == 0 || now.Sub(h.last) < h.interval {
		h.mu.Unlock()
		return false
	}
	h.last = now
	h.mu.Unlock()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{gocv.IMWriteJpegQuality, h.quality})
	if err != nil {
		h.log.Debug().Err(err).Msg("preview encode failed")
		return false
	}
	data := buf.GetBytes()
	buf.Close()

	h.publishJPEG(data)
	return true
}

// publishJPEG stores data as the latest frame and wakes the viewers.
func (h *PreviewHub) publishJPEG(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = data
	close(h.notify)
	h.notify = make(chan struct{})
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *PreviewHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	h.mu.Lock()
	h.clients++
	next := h.notify
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.clients--
		h.mu.Unlock()
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-next:
		}

		h.mu.Lock()
		data := h.latest
		next = h.notify
		h.mu.Unlock()

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data))
		if _, err := w.Write(data); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
