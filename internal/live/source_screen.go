package live

import (
	"image"
	"sync/atomic"

	"github.com/vova616/screenshot"
)

// ScreenSource grabs a region of the screen, for example a phone mirrored
// to the desktop or a webcam preview window. An empty Region captures the
// whole screen.
type ScreenSource struct {
	Region image.Rectangle

	closed atomic.Bool
}

func (s *ScreenSource) Frame() (image.Image, error) {
	if s.closed.Load() {
		return nil, ErrSourceClosed
	}
	if s.Region.Empty() {
		img, err := screenshot.CaptureScreen()
		if err != nil {
			return nil, err
		}
		return img, nil
	}
	img, err := screenshot.CaptureRect(s.Region)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (s *ScreenSource) Close() error {
	s.closed.Store(true)
	return nil
}
