package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"studyhub-quiz-service/internal/domain"
)

// Frame is one captured image from the monitoring feed.
type Frame []byte

// FrameSource supplies the most recent frame from an attached feed.
// A nil frame with a nil error means no frame has arrived yet.
type FrameSource interface {
	Frame(ctx context.Context) (Frame, error)
}

// FaceDetector classifies a frame by the number of faces it contains.
// Implementations are black boxes; tests swap in deterministic stubs.
type FaceDetector interface {
	CountFaces(ctx context.Context, frame Frame) (int, error)
}

const (
	advisoryNoFace    = "No face detected! Please stay in front of the camera."
	advisoryMultiple  = "Multiple faces detected! Only one person should be present."
	advisoryDetectErr = "Face detection error."
)

// FaceMonitor polls a frame source on a fixed cadence and keeps only the
// latest classification. It is an advisory channel: its reports are shown to
// the test-taker and never feed the violation counter.
type FaceMonitor struct {
	source   FrameSource
	detector FaceDetector
	interval time.Duration
	onReport func(domain.FaceReport)
	now      func() time.Time

	busy     atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}

	mu     sync.Mutex
	latest domain.FaceReport
}

// NewFaceMonitor builds a monitor polling every interval (default 1.2s).
// onReport may be nil; when set it receives every classification change.
func NewFaceMonitor(source FrameSource, detector FaceDetector, interval time.Duration, onReport func(domain.FaceReport)) *FaceMonitor {
	if interval <= 0 {
		interval = 1200 * time.Millisecond
	}
	return &FaceMonitor{
		source:   source,
		detector: detector,
		interval: interval,
		onReport: onReport,
		now:      time.Now,
		stop:     make(chan struct{}),
		latest:   domain.FaceReport{Status: domain.FacePending},
	}
}

// Start launches the polling loop. Classification is the only slow operation
// in the loop; if a round has not returned by the next tick, that tick is
// dropped so at most one classification is outstanding at a time.
func (m *FaceMonitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !m.busy.CompareAndSwap(false, true) {
					continue
				}
				go func() {
					defer m.busy.Store(false)
					m.classifyOnce(ctx)
				}()
			}
		}
	}()
}

func (m *FaceMonitor) classifyOnce(ctx context.Context) {
	frame, err := m.source.Frame(ctx)
	if err != nil || frame == nil {
		// feed not ready; keep the previous report
		return
	}

	report := domain.FaceReport{At: m.now()}
	count, err := m.detector.CountFaces(ctx, frame)
	switch {
	case err != nil:
		report.Status = domain.FaceError
		report.Advisory = advisoryDetectErr
	case count == 1:
		report.Status = domain.FaceNominal
	case count == 0:
		report.Status = domain.FaceNone
		report.Advisory = advisoryNoFace
	default:
		report.Status = domain.FaceMultiple
		report.Advisory = advisoryMultiple
	}

	m.mu.Lock()
	changed := m.latest.Status != report.Status
	m.latest = report
	m.mu.Unlock()

	if changed && m.onReport != nil {
		m.onReport(report)
	}
}

// Latest returns the most recent classification.
func (m *FaceMonitor) Latest() domain.FaceReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// Stop halts polling. Safe to call more than once.
func (m *FaceMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}
