package live

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// ErrSourceClosed is returned by Frame after Close.
var ErrSourceClosed = errors.New("frame source closed")

// FrameSource supplies camera frames.
type FrameSource interface {
	Frame() (image.Image, error)
	Close() error
}

// StaticSource replays a fixed list of frames, repeating the last one.
type StaticSource struct {
	mu     sync.Mutex
	frames []image.Image
	next   int
	closed bool
}

// NewStaticSource returns a source replaying frames in order.
func NewStaticSource(frames ...image.Image) *StaticSource {
	return &StaticSource{frames: frames}
}

func (s *StaticSource) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	if len(s.frames) == 0 {
		return nil, errors.New("no frames")
	}
	img := s.frames[s.next]
	if s.next < len(s.frames)-1 {
		s.next++
	}
	return img, nil
}

func (s *StaticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *StaticSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// DirSource reads the newest image in a directory, for cameras and phone
// apps that drop captures into a folder. Frames are rotated by their EXIF
// orientation.
type DirSource struct {
	dir string

	mu      sync.Mutex
	closed  bool
	path    string
	modTime time.Time
	cached  image.Image
}

// NewDirSource watches dir, which must exist.
func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("frame directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("frame directory: %s is not a directory", dir)
	}
	return &DirSource{dir: dir}, nil
}

var frameExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

func (s *DirSource) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}
	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = filepath.Join(s.dir, e.Name()), info.ModTime()
		}
	}
	if newest == "" {
		return nil, fmt.Errorf("no frames in %s", s.dir)
	}

	if newest == s.path && newestMod.Equal(s.modTime) && s.cached != nil {
		return s.cached, nil
	}
	img, err := imaging.Open(newest, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	s.path, s.modTime, s.cached = newest, newestMod, img
	return img, nil
}

func (s *DirSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cached = nil
	return nil
}
