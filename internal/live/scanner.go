package live

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/ironsheep/omr-scan-mcp/internal/geometry"
	"github.com/ironsheep/omr-scan-mcp/internal/omr"
)

// ErrBusy is returned by Step while another sample is being processed.
var ErrBusy = errors.New("previous sample still in progress")

// ScannerConfig tunes the live scanner.
type ScannerConfig struct {
	// Interval is the sampling period.
	Interval time.Duration

	// PreviewWidth is the width frames are downsampled to before detection.
	PreviewWidth int

	Gate GateConfig
}

// DefaultScannerConfig returns the live settings for a layout expecting count anchors.
func DefaultScannerConfig(count int) ScannerConfig {
	return ScannerConfig{
		Interval:     200 * time.Millisecond,
		PreviewWidth: 480,
		Gate:         DefaultGateConfig(count),
	}
}

// Sample describes one processed frame.
type Sample struct {
	State    State `json:"state"`
	Stable   int   `json:"stable"`
	Required int   `json:"required"`
	Features int   `json:"features"`

	// Displacement is the largest anchor movement since the previous
	// sample, in preview pixels; nil when there was nothing to compare.
	Displacement *float64 `json:"displacement,omitempty"`

	// Scan is set once the gate has triggered and the full-resolution
	// pass succeeded.
	Scan *omr.Scan `json:"scan,omitempty"`
}

// Scanner feeds frames through a Gate and scans the frame that triggers it.
type Scanner struct {
	session *omr.Session
	gate    *Gate
	cfg     ScannerConfig
	logger  *slog.Logger

	busy    atomic.Bool
	samples atomic.Uint64
	skipped atomic.Uint64
}

// NewScanner returns a scanner for session.
func NewScanner(session *omr.Session, cfg ScannerConfig) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 200 * time.Millisecond
	}
	logger := session.Logger().With("component", "live")
	return &Scanner{
		session: session,
		gate:    NewGate(cfg.Gate, logger),
		cfg:     cfg,
		logger:  logger,
	}
}

// Gate returns the scanner's stability gate.
func (sc *Scanner) Gate() *Gate { return sc.gate }

// Stats returns how many samples were processed and how many were dropped
// because the previous one had not finished.
func (sc *Scanner) Stats() (samples, skipped uint64) {
	return sc.samples.Load(), sc.skipped.Load()
}

// Reset clears the gate so a new sheet can be captured.
func (sc *Scanner) Reset() {
	for !sc.busy.CompareAndSwap(false, true) {
		time.Sleep(time.Millisecond)
	}
	defer sc.busy.Store(false)
	sc.gate.Reset()
}

// Step processes one frame: it samples the gate and, if that triggers,
// scans the same frame at full resolution. A failed scan resets the gate.
func (sc *Scanner) Step(frame image.Image) (*Sample, error) {
	if !sc.busy.CompareAndSwap(false, true) {
		sc.skipped.Add(1)
		return nil, ErrBusy
	}
	defer sc.busy.Store(false)

	s := sc.sample(frame)
	if s.State != StateTriggered {
		return s, nil
	}
	scan, err := sc.capture(frame)
	if err != nil {
		s.State = sc.gate.State()
		return s, err
	}
	s.Scan = scan
	return s, nil
}

// Run polls src every Interval until a sheet has been read. When ctx is
// cancelled it closes src, resets the gate and returns an error wrapping
// omr.ErrCaptureAborted. Frame errors are logged and count as samples
// without a sheet.
func (sc *Scanner) Run(ctx context.Context, src FrameSource) (*omr.Scan, error) {
	ticker := time.NewTicker(sc.cfg.Interval)
	defer ticker.Stop()

	sc.logger.Info("live capture started", "interval", sc.cfg.Interval, "preview_width", sc.cfg.PreviewWidth)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			if err := src.Close(); err != nil {
				sc.logger.Warn("failed to close frame source", "error", err)
			}
			sc.Reset()
			sc.logger.Info("live capture stopped")
			return nil, fmt.Errorf("%w: %v", omr.ErrCaptureAborted, ctx.Err())

		case <-ticker.C:
			if !sc.busy.CompareAndSwap(false, true) {
				sc.skipped.Add(1)
				continue
			}

			frame, err := src.Frame()
			var s *Sample
			if err != nil {
				sc.logger.Debug("frame unavailable", "error", err)
				sc.gate.Observe(nil)
			} else {
				s = sc.sample(frame)
			}
			if s == nil || s.State != StateTriggered {
				sc.busy.Store(false)
				continue
			}

			ticker.Stop()
			scan, err := sc.capture(frame)
			sc.busy.Store(false)
			if err == nil {
				return scan, nil
			}
			ticker.Reset(sc.cfg.Interval)
		}
	}
}

// sample runs detection on a downsampled frame and feeds the gate. The
// caller holds the busy flag.
func (sc *Scanner) sample(frame image.Image) *Sample {
	sc.samples.Add(1)
	l := sc.session.Layout()

	preview := sc.session.PrepareFrame(frame, sc.cfg.PreviewWidth)
	det, err := sc.session.DetectFeatures(preview)

	var anchors []geometry.Point
	found := 0
	if det != nil {
		found = len(det.Features)
	}
	if err == nil {
		anchors = Anchors(det.Features, l.Kind)
	}

	state := sc.gate.Observe(anchors)
	s := &Sample{
		State:    state,
		Stable:   sc.gate.StableCount(),
		Required: sc.cfg.Gate.RequiredStableFrames,
		Features: found,
	}
	if d := sc.gate.LastDisplacement(); !math.IsNaN(d) && !math.IsInf(d, 0) {
		s.Displacement = &d
	}
	return s
}

// capture scans frame at full resolution after a trigger. On failure the
// gate is reset so sampling can resume.
func (sc *Scanner) capture(frame image.Image) (*omr.Scan, error) {
	sc.logger.Info("sheet stable, capturing")
	scan, err := sc.session.Scan(frame)
	if err != nil {
		sc.logger.Warn("capture failed, resuming", "error", err)
		sc.gate.Reset()
		return nil, fmt.Errorf("capture: %w", err)
	}
	return scan, nil
}
