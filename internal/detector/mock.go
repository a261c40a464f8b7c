package detector

import (
	"sync"

	"github.com/ayusman/yelkiran/internal/collision"
	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu       sync.Mutex
	result   collision.Detection
	sequence []collision.Detection
	err      error
	calls    int
}

// NewMockDetector creates a new MockDetector that reports no target.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetResult sets the detection returned by every call once any sequence is
// exhausted.
func (m *MockDetector) SetResult(det collision.Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = det
}

// SetSequence queues detections returned one per call before falling back
// to the fixed result.
func (m *MockDetector) SetSequence(dets []collision.Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = append([]collision.Detection(nil), dets...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured detection or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (collision.Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return collision.None(), m.err
	}
	if len(m.sequence) > 0 {
		det := m.sequence[0]
		m.sequence = m.sequence[1:]
		return det, nil
	}
	return m.result, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}
