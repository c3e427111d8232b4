package omr

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/omr-scan-mcp/internal/detection"
	"github.com/ironsheep/omr-scan-mcp/internal/imaging"
	"github.com/ironsheep/omr-scan-mcp/internal/layout"
)

// KeyStore persists the active answer key between runs.
type KeyStore interface {
	// Load returns the stored key, or an empty map when nothing is stored.
	Load() (AnswerMap, error)
	Save(AnswerMap) error
	Clear() error
}

// Frame is an input image prepared for detection.
type Frame struct {
	// Gray is the grayscale working frame.
	Gray *image.Gray

	// Scale maps original pixel coordinates onto Gray.
	Scale float64
}

// Scan is the result of reading one sheet.
type Scan struct {
	Answers  AnswerMap           `json:"answers"`
	Readings []Reading           `json:"readings"`
	Features []detection.Feature `json:"features"`
	Sheets   []*Rectified        `json:"sheets"`

	// WorkingScale is the factor applied to the input before detection.
	WorkingScale float64       `json:"working_scale"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}

// Graded is a scanned sheet with its score.
type Graded struct {
	Scan  *Scan       `json:"scan"`
	Score ScoreResult `json:"score"`
}

// Session owns the state of one scanning workflow: the layout, the image
// backend and the active answer key. Scans on one session run one at a time.
type Session struct {
	id      string
	layout  layout.Layout
	backend imaging.Backend
	store   KeyStore
	logger  *slog.Logger

	mu  sync.Mutex
	key AnswerMap
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithKeyStore persists the answer key through ks. The stored key, if any,
// becomes the session's active key.
func WithKeyStore(ks KeyStore) Option {
	return func(s *Session) { s.store = ks }
}

// NewSession validates l and returns a session using backend b.
func NewSession(l layout.Layout, b imaging.Backend, opts ...Option) (*Session, error) {
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout %s: %w", l.Name, err)
	}
	if b == nil {
		b = imaging.NewNative()
	}
	s := &Session{
		id:      uuid.NewString(),
		layout:  l,
		backend: b,
		key:     make(AnswerMap),
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.logger = s.logger.With("session_id", s.id, "layout", l.Name)

	if s.store != nil {
		key, err := s.store.Load()
		if err != nil {
			return nil, fmt.Errorf("load answer key: %w", err)
		}
		if err := key.Validate(l.Questions(), l.Options); err != nil {
			s.logger.Warn("ignoring stored answer key", "error", err)
		} else {
			s.key = key
		}
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Layout returns a copy of the session's layout.
func (s *Session) Layout() layout.Layout { return s.layout }

// Backend returns the session's image backend.
func (s *Session) Backend() imaging.Backend { return s.backend }

// Logger returns the session's logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// PrepareFrame resizes img to width (0 uses the layout's working width) and
// converts it to grayscale.
func (s *Session) PrepareFrame(img image.Image, width int) *Frame {
	if width == 0 {
		width = s.layout.Detection.WorkingWidth
	}
	resized, scale := imaging.ResizeToWidth(img, width)
	return &Frame{Gray: imaging.ToGray(resized), Scale: scale}
}

// DetectFeatures runs the reference-feature detector on a prepared frame.
func (s *Session) DetectFeatures(f *Frame) (*detection.Result, error) {
	return detection.Detect(s.backend, f.Gray, s.layout.Detection)
}

// Scan detects, rectifies and decodes one sheet. No answers are returned
// unless every stage succeeds.
func (s *Session) Scan(img image.Image) (*Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scan(img)
}

func (s *Session) scan(img image.Image) (*Scan, error) {
	start := time.Now()
	frame := s.PrepareFrame(img, 0)
	det, sheets, err := s.rectify(frame)
	if err != nil {
		return nil, err
	}

	res := &Scan{
		Answers:      make(AnswerMap),
		Features:     det.Features,
		Sheets:       sheets,
		WorkingScale: frame.Scale,
	}
	switch s.layout.Kind {
	case layout.KindFiducial:
		res.Answers, res.Readings = DecodeSheet(s.backend, sheets[0].Binary, s.layout)
	case layout.KindTable:
		for i, t := range sheets {
			answers, readings := DecodeTable(s.backend, t.Binary, i, s.layout)
			for q, o := range answers {
				res.Answers[q] = o
			}
			res.Readings = append(res.Readings, readings...)
		}
	}

	res.Elapsed = time.Since(start)
	s.logger.Info("sheet decoded",
		"answered", len(res.Answers),
		"questions", s.layout.Questions(),
		"elapsed", res.Elapsed)
	return res, nil
}

// Rectify detects the reference features of img and flattens the sheet
// without decoding it.
func (s *Session) Rectify(img image.Image) (*detection.Result, []*Rectified, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rectify(s.PrepareFrame(img, 0))
}

func (s *Session) rectify(frame *Frame) (*detection.Result, []*Rectified, error) {
	det, err := s.DetectFeatures(frame)
	if err != nil {
		var ce *detection.CountError
		if errors.As(err, &ce) {
			s.logger.Info("sheet not found", "expected", ce.Expected, "found", ce.Found)
		}
		return det, nil, fmt.Errorf("detect: %w", err)
	}

	var sheets []*Rectified
	switch s.layout.Kind {
	case layout.KindFiducial:
		var sheet *Rectified
		sheet, err = RectifySheet(s.backend, frame.Gray, det.Features, s.layout)
		sheets = []*Rectified{sheet}
	case layout.KindTable:
		sheets, err = RectifyTables(s.backend, frame.Gray, det.Features, s.layout)
	default:
		err = fmt.Errorf("%w: %s", ErrWrongLayout, s.layout.Kind)
	}
	if err != nil {
		return det, nil, fmt.Errorf("rectify: %w", err)
	}
	return det, sheets, nil
}

// ScanKey reads a filled-in key sheet and makes it the active key.
func (s *Session) ScanKey(img image.Image) (*Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.scan(img)
	if err != nil {
		return nil, err
	}
	if len(res.Answers) == 0 {
		return res, fmt.Errorf("key sheet: %w", ErrEmptyKey)
	}
	if err := s.setKey(res.Answers); err != nil {
		return nil, err
	}
	return res, nil
}

// Grade scans a student sheet and scores it against the active key. An empty
// key still produces a zero score.
func (s *Session) Grade(img image.Image) (*Graded, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.scan(img)
	if err != nil {
		return nil, err
	}
	score := Grade(s.key, res.Answers)
	if err := score.Err(); err != nil {
		s.logger.Warn("graded without an answer key")
	} else {
		s.logger.Info("sheet graded", "correct", score.Correct, "total", score.Total, "percentage", score.Percentage)
	}
	return &Graded{Scan: res, Score: score}, nil
}

// Key returns a copy of the active answer key.
func (s *Session) Key() AnswerMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key.Clone()
}

// SetKey validates key against the layout and makes it the active key.
func (s *Session) SetKey(key AnswerMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setKey(key)
}

func (s *Session) setKey(key AnswerMap) error {
	if err := key.Validate(s.layout.Questions(), s.layout.Options); err != nil {
		return fmt.Errorf("invalid answer key: %w", err)
	}
	if s.store != nil {
		if err := s.store.Save(key); err != nil {
			return fmt.Errorf("save answer key: %w", err)
		}
	}
	s.key = key.Clone()
	s.logger.Info("answer key set", "entries", len(key))
	return nil
}

// ClearKey drops the active key and its stored copy.
func (s *Session) ClearKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		if err := s.store.Clear(); err != nil {
			return fmt.Errorf("clear answer key: %w", err)
		}
	}
	s.key = make(AnswerMap)
	return nil
}

// Calibrate rectifies a printed fiducial sheet and measures where its
// bubbles actually are.
func (s *Session) Calibrate(img image.Image) (*Calibration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.layout.Kind != layout.KindFiducial {
		return nil, fmt.Errorf("calibrate: %w: %s", ErrWrongLayout, s.layout.Kind)
	}
	_, sheets, err := s.rectify(s.PrepareFrame(img, 0))
	if err != nil {
		return nil, err
	}
	return Calibrate(s.backend, sheets[0].Binary, s.layout)
}

// Overlay draws the scan's decisions over its rectified images. With a
// score, marks are coloured by verdict and the key's answer is shown where
// the student missed it. Table sheets are placed side by side.
func Overlay(scan *Scan, key AnswerMap, score *ScoreResult) *image.RGBA {
	canvas, offsets := composeSheets(scan.Sheets)

	var notes []imaging.Annotation
	for _, rd := range scan.Readings {
		off := offsets[rd.Sheet]
		if rd.Option == Unanswered {
			for _, r := range rd.Regions {
				notes = append(notes, imaging.Annotation{Rect: r.Add(off), Kind: imaging.MarkSampled})
			}
		} else {
			kind := imaging.MarkDetected
			if score != nil {
				switch score.Verdicts[rd.Question] {
				case VerdictCorrect:
					kind = imaging.MarkCorrect
				case VerdictIncorrect:
					kind = imaging.MarkIncorrect
				}
			}
			notes = append(notes, imaging.Annotation{
				Rect:  rd.Regions[rd.Option].Add(off),
				Kind:  kind,
				Label: OptionLetter(rd.Option),
			})
		}

		if score == nil {
			continue
		}
		if want, ok := key[rd.Question]; ok && want != rd.Option && want < len(rd.Regions) {
			notes = append(notes, imaging.Annotation{
				Rect:  rd.Regions[want].Add(off),
				Kind:  imaging.MarkExpected,
				Label: OptionLetter(want),
			})
		}
	}
	return imaging.Annotate(canvas, notes, nil)
}

// composeSheets lays rectified images out left to right with a small gap and
// returns each image's offset.
func composeSheets(sheets []*Rectified) (*image.Gray, []image.Point) {
	const gap = 10
	w, h := 0, 0
	for i, s := range sheets {
		if i > 0 {
			w += gap
		}
		w += s.Width
		if s.Height > h {
			h = s.Height
		}
	}
	canvas := blankCanvas(max(w, 1), max(h, 1))
	offsets := make([]image.Point, len(sheets))
	x := 0
	for i, s := range sheets {
		offsets[i] = image.Pt(x, 0)
		draw.Draw(canvas, image.Rect(x, 0, x+s.Width, s.Height), s.Gray, image.Point{}, draw.Src)
		x += s.Width + gap
	}
	return canvas, offsets
}
