// Package layout holds the physical description of the supported answer
// sheets and every tunable threshold the scanner uses to read them.
//
// A Layout is a plain value: callers copy it, adjust fields and pass it on.
// Nothing in the scanning pipeline keeps package-level mutable state.
package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/ironsheep/omr-scan-mcp/internal/geometry"
)

// Kind selects how a sheet is located and addressed.
type Kind string

const (
	// KindFiducial sheets carry four solid corner squares on an A4 page.
	KindFiducial Kind = "fiducial"

	// KindTable sheets print one bordered answer table per column.
	KindTable Kind = "table"
)

// Binarization selects the thresholding method.
type Binarization string

const (
	// BinarizeAdaptive compares pixels with a Gaussian-weighted local mean.
	BinarizeAdaptive Binarization = "adaptive"

	// BinarizeAdaptiveMean compares pixels with the plain mean of the
	// window, so marks narrower than the window stay solid.
	BinarizeAdaptiveMean Binarization = "adaptive-mean"

	BinarizeOtsu Binarization = "otsu"
)

// Layout describes one answer-sheet design.
type Layout struct {
	Name          string `json:"name"`
	Kind          Kind   `json:"kind"`
	Options       int    `json:"options"`
	Columns       int    `json:"columns"`
	RowsPerColumn int    `json:"rows_per_column"`

	Detection DetectionProfile `json:"detection"`
	Decode    DecodeProfile    `json:"decode"`
	Page      PageGeometry     `json:"page"`
	Table     TableGeometry    `json:"table"`
}

// DetectionProfile tunes the reference-feature detector.
type DetectionProfile struct {
	ExpectedCount int `json:"expected_count"`

	// WorkingWidth resizes frames to this width before detection; 0 keeps
	// the native resolution.
	WorkingWidth int `json:"working_width"`

	ThresholdBlockSize int     `json:"threshold_block_size"`
	ThresholdC         float64 `json:"threshold_c"`

	// Area bounds as fractions of the frame area. MaxAreaRatio 0 disables
	// the upper bound.
	MinAreaRatio float64 `json:"min_area_ratio"`
	MaxAreaRatio float64 `json:"max_area_ratio"`

	// EpsilonRatio scales the contour perimeter into the Douglas-Peucker tolerance.
	EpsilonRatio float64 `json:"epsilon_ratio"`

	AspectRatio     float64 `json:"aspect_ratio"`
	AspectTolerance float64 `json:"aspect_tolerance"`

	// MinSolidity 0 disables the solidity check.
	MinSolidity float64 `json:"min_solidity"`

	// DuplicateDistance collapses candidates whose centres are closer than
	// this many pixels, such as the inner and outer border of one square.
	DuplicateDistance float64 `json:"duplicate_distance"`
}

// DecodeProfile tunes binarization of the rectified sheet and the mark decision.
type DecodeProfile struct {
	Binarization Binarization `json:"binarization"`
	BlockSize    int          `json:"block_size"`
	C            float64      `json:"c"`

	// BlockSizeMM sets the adaptive window of fiducial sheets in
	// millimetres; it overrides BlockSize when positive.
	BlockSizeMM float64 `json:"block_size_mm,omitempty"`

	// FillThreshold is the ink pixel count a bubble must exceed to count as
	// marked. When zero, FillRatio times the sampled area is used instead.
	FillThreshold int     `json:"fill_threshold"`
	FillRatio     float64 `json:"fill_ratio"`
}

// PageGeometry places the fiducials and bubbles of a KindFiducial sheet, in
// millimetres on the printed page.
type PageGeometry struct {
	WidthMM  float64 `json:"width_mm"`
	HeightMM float64 `json:"height_mm"`

	// Anchors are the fiducial centres in TL, TR, BL, BR order.
	Anchors [4]MM `json:"anchors"`

	// ScaleFactor is the canonical resolution in pixels per millimetre.
	ScaleFactor float64 `json:"scale_factor"`

	ColStartMM            float64 `json:"col_start_mm"`
	RowStartMM            float64 `json:"row_start_mm"`
	ColPitchMM            float64 `json:"col_pitch_mm"`
	RowPitchMM            float64 `json:"row_pitch_mm"`
	BubblePitchMM         float64 `json:"bubble_pitch_mm"`
	FirstBubbleOffsetMM   float64 `json:"first_bubble_offset_mm"`
	VerticalAlignOffsetMM float64 `json:"vertical_align_offset_mm"`

	// SampleRadiusMM is half the side of the square sampled around each
	// bubble centre.
	SampleRadiusMM float64 `json:"sample_radius_mm"`

	// Printing only: fiducial side and bubble outline radius.
	MarkerSizeMM   float64 `json:"marker_size_mm"`
	BubbleRadiusMM float64 `json:"bubble_radius_mm"`
}

// MM is a point on the printed page in millimetres.
type MM struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TableGeometry addresses the cells of one rectified answer table.
type TableGeometry struct {
	Rows       int `json:"rows"`
	Cols       int `json:"cols"`
	HeaderRows int `json:"header_rows"`
	LabelCols  int `json:"label_cols"`
	MarginPx   int `json:"margin_px"`

	// Printing only: cell size in pixels of the reference rendering.
	CellWidthPx  int `json:"cell_width_px"`
	CellHeightPx int `json:"cell_height_px"`
}

// Questions returns the number of questions the layout holds.
func (l Layout) Questions() int {
	return l.Columns * l.RowsPerColumn
}

// CanonicalSize returns the pixel size of the rectified page of a fiducial layout.
func (l Layout) CanonicalSize() (w, h int) {
	s := l.Page.ScaleFactor
	return int(l.Page.WidthMM*s + 0.5), int(l.Page.HeightMM*s + 0.5)
}

// CanonicalAnchors returns the fiducial centres in canonical pixels, TL, TR, BL, BR.
func (l Layout) CanonicalAnchors() geometry.Quad {
	var q geometry.Quad
	for i, a := range l.Page.Anchors {
		q[i] = geometry.Pt(a.X*l.Page.ScaleFactor, a.Y*l.Page.ScaleFactor)
	}
	return q
}

// BubbleCenter returns the canonical pixel centre of an option bubble.
// column, row and option are zero-based.
func (l Layout) BubbleCenter(column, row, option int) geometry.Point {
	p := l.Page
	x := p.ColStartMM + float64(column)*p.ColPitchMM + p.FirstBubbleOffsetMM + float64(option)*p.BubblePitchMM
	y := p.RowStartMM + float64(row)*p.RowPitchMM + p.VerticalAlignOffsetMM
	return geometry.Pt(x*p.ScaleFactor, y*p.ScaleFactor)
}

// DecodeBlockSize returns the adaptive window for the rectified sheet in
// canonical pixels. On fiducial sheets a positive BlockSizeMM is scaled by
// the page resolution and rounded up to an odd size.
func (l Layout) DecodeBlockSize() int {
	if l.Kind != KindFiducial || l.Decode.BlockSizeMM <= 0 {
		return l.Decode.BlockSize
	}
	n := int(math.Round(l.Decode.BlockSizeMM * l.Page.ScaleFactor))
	if n%2 == 0 {
		n++
	}
	return max(n, 3)
}

// QuestionNumber maps a zero-based column and row to a 1-based question number.
func (l Layout) QuestionNumber(column, row int) int {
	return column*l.RowsPerColumn + row + 1
}

// Fiducial returns the A4 four-marker layout: 45 questions in three columns of
// fifteen, options A-E, read at 10 px/mm.
func Fiducial() Layout {
	const width, height = 210.0, 297.0
	return Layout{
		Name:          "fiducial-a4",
		Kind:          KindFiducial,
		Options:       5,
		Columns:       3,
		RowsPerColumn: 15,
		Detection: DetectionProfile{
			ExpectedCount:      4,
			ThresholdBlockSize: 11,
			ThresholdC:         2,
			MinAreaRatio:       0.0005,
			MaxAreaRatio:       0.05,
			EpsilonRatio:       0.04,
			AspectRatio:        1.0,
			AspectTolerance:    0.3,
			MinSolidity:        0.9,
			DuplicateDistance:  8,
		},
		Decode: DecodeProfile{
			Binarization: BinarizeAdaptiveMean,
			BlockSizeMM:  8,
			C:            3,
			FillRatio:    0.35,
		},
		Page: PageGeometry{
			WidthMM:  width,
			HeightMM: height,
			Anchors: [4]MM{
				{X: 22.5, Y: 22.5},
				{X: width - 22.5, Y: 22.5},
				{X: 22.5, Y: height - 22.5},
				{X: width - 22.5, Y: height - 22.5},
			},
			ScaleFactor:           10,
			ColStartMM:            20,
			RowStartMM:            110,
			ColPitchMM:            (width - 40) / 3,
			RowPitchMM:            9,
			BubblePitchMM:         8,
			FirstBubbleOffsetMM:   25,
			VerticalAlignOffsetMM: 3,
			SampleRadiusMM:        2,
			MarkerSizeMM:          10,
			BubbleRadiusMM:        2.6,
		},
	}
}

// Table returns the three-table layout: each table has a header row and a
// number column around fifteen rows of options A-E.
func Table() Layout {
	return Layout{
		Name:          "table-3x15",
		Kind:          KindTable,
		Options:       5,
		Columns:       3,
		RowsPerColumn: 15,
		Detection: DetectionProfile{
			ExpectedCount:      3,
			WorkingWidth:       1000,
			ThresholdBlockSize: 11,
			ThresholdC:         2,
			MinAreaRatio:       0.01,
			EpsilonRatio:       0.02,
			AspectRatio:        0.42,
			AspectTolerance:    0.2,
			DuplicateDistance:  8,
		},
		Decode: DecodeProfile{
			Binarization:  BinarizeAdaptiveMean,
			BlockSize:     31,
			C:             3,
			FillThreshold: 30,
		},
		Table: TableGeometry{
			Rows:         16,
			Cols:         6,
			HeaderRows:   1,
			LabelCols:    1,
			MarginPx:     5,
			CellWidthPx:  28,
			CellHeightPx: 25,
		},
	}
}

var builtin = map[string]func() Layout{
	"fiducial-a4": Fiducial,
	"table-3x15":  Table,
}

// ByName returns a built-in layout.
func ByName(name string) (Layout, error) {
	ctor, ok := builtin[name]
	if !ok {
		return Layout{}, fmt.Errorf("unknown layout %q (known: %v)", name, Names())
	}
	return ctor(), nil
}

// Names lists the built-in layouts.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the layout can be used for scanning.
func (l Layout) Validate() error {
	var errs []error
	if l.Options < 2 {
		errs = append(errs, fmt.Errorf("options must be at least 2, got %d", l.Options))
	}
	if l.Columns < 1 || l.RowsPerColumn < 1 {
		errs = append(errs, fmt.Errorf("columns and rows_per_column must be positive"))
	}
	d := l.Detection
	if d.ExpectedCount < 1 {
		errs = append(errs, fmt.Errorf("detection.expected_count must be positive"))
	}
	if d.ThresholdBlockSize < 3 || d.ThresholdBlockSize%2 == 0 {
		errs = append(errs, fmt.Errorf("detection.threshold_block_size must be odd and >= 3, got %d", d.ThresholdBlockSize))
	}
	if d.MinAreaRatio <= 0 || (d.MaxAreaRatio != 0 && d.MaxAreaRatio <= d.MinAreaRatio) {
		errs = append(errs, fmt.Errorf("detection area ratios out of order"))
	}
	if d.EpsilonRatio <= 0 {
		errs = append(errs, fmt.Errorf("detection.epsilon_ratio must be positive"))
	}
	if d.AspectRatio <= 0 || d.AspectTolerance < 0 {
		errs = append(errs, fmt.Errorf("detection aspect window is invalid"))
	}
	if l.Decode.FillThreshold <= 0 && l.Decode.FillRatio <= 0 {
		errs = append(errs, fmt.Errorf("decode needs fill_threshold or fill_ratio"))
	}
	switch l.Decode.Binarization {
	case BinarizeOtsu:
	case BinarizeAdaptive, BinarizeAdaptiveMean:
		if n := l.DecodeBlockSize(); n < 3 || n%2 == 0 {
			errs = append(errs, fmt.Errorf("decode.block_size must be odd and >= 3, got %d", n))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown decode binarization %q", l.Decode.Binarization))
	}

	switch l.Kind {
	case KindFiducial:
		if d.ExpectedCount != 4 {
			errs = append(errs, fmt.Errorf("fiducial layouts need 4 markers, got %d", d.ExpectedCount))
		}
		p := l.Page
		if p.ScaleFactor <= 0 || p.WidthMM <= 0 || p.HeightMM <= 0 {
			errs = append(errs, fmt.Errorf("page size and scale must be positive"))
		}
		if p.RowPitchMM <= 0 || p.BubblePitchMM <= 0 || p.SampleRadiusMM <= 0 {
			errs = append(errs, fmt.Errorf("page pitches and sample radius must be positive"))
		}
	case KindTable:
		if d.ExpectedCount != l.Columns {
			errs = append(errs, fmt.Errorf("table layouts need one table per column: expected_count %d, columns %d", d.ExpectedCount, l.Columns))
		}
		t := l.Table
		if t.Rows-t.HeaderRows != l.RowsPerColumn || t.Cols-t.LabelCols != l.Options {
			errs = append(errs, fmt.Errorf("table grid %dx%d does not fit %d rows of %d options", t.Rows, t.Cols, l.RowsPerColumn, l.Options))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown layout kind %q", l.Kind))
	}
	return errors.Join(errs...)
}

// Load reads a layout from a JSON file. Fields missing from the file keep the
// values of the built-in layout named by the file's "name" (or base when the
// name is unknown).
func Load(path string, base Layout) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to read layout: %w", err)
	}

	var head struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Layout{}, fmt.Errorf("failed to parse layout: %w", err)
	}
	l := base
	if b, err := ByName(head.Name); err == nil {
		l = b
	}
	if err := json.Unmarshal(data, &l); err != nil {
		return Layout{}, fmt.Errorf("failed to parse layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, fmt.Errorf("invalid layout %s: %w", path, err)
	}
	return l, nil
}

// Save writes the layout as indented JSON.
func (l Layout) Save(path string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
