package omr

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/ironsheep/omr-scan-mcp/internal/geometry"
	"github.com/ironsheep/omr-scan-mcp/internal/imaging"
	"github.com/ironsheep/omr-scan-mcp/internal/layout"
)

// ErrCalibration is returned when the reference bubbles cannot be located.
var ErrCalibration = errors.New("calibration failed")

// Bubble-like blobs on a canonical sheet: side length window in millimetres
// and the accepted width/height ratio.
const (
	calMinSideMM = 2.5
	calMaxSideMM = 8.0
	calMinAspect = 0.8
	calMaxAspect = 1.2
)

// CalibrationPoint pairs a bubble's layout position with the blob found nearest to it.
type CalibrationPoint struct {
	Name     string         `json:"name"`
	Expected geometry.Point `json:"expected"`
	Found    geometry.Point `json:"found"`
	ErrorMM  float64        `json:"error_mm"`
}

// Calibration reports how a printed sheet deviates from its layout and the
// page geometry that would match it.
type Calibration struct {
	Blobs     int                 `json:"blobs"`
	Points    []CalibrationPoint  `json:"points"`
	Current   layout.PageGeometry `json:"current"`
	Suggested layout.PageGeometry `json:"suggested"`
}

// Calibrate locates bubble outlines on a rectified, binarized fiducial sheet
// and derives corrected bubble pitch and offsets from the positions of four
// reference bubbles: option A of the first question, the last option of the
// first question, option A of the first question in the last column and
// option A of the last question in the first column.
func Calibrate(b imaging.Backend, bin *image.Gray, l layout.Layout) (*Calibration, error) {
	if l.Kind != layout.KindFiducial {
		return nil, fmt.Errorf("calibrate: %w: %s", ErrWrongLayout, l.Kind)
	}
	s := l.Page.ScaleFactor
	contours, err := b.FindContours(bin)
	if err != nil {
		return nil, fmt.Errorf("calibrate: find contours: %w", err)
	}
	blobs := bubbleCenters(contours, s)

	type ref struct {
		name             string
		col, row, option int
	}
	refs := []ref{
		{"first", 0, 0, 0},
		{"first-last-option", 0, 0, l.Options - 1},
		{"last-column", l.Columns - 1, 0, 0},
		{"last-row", 0, l.RowsPerColumn - 1, 0},
	}
	// A blob further than half a bubble pitch from its target belongs to a
	// neighbour, so it cannot calibrate this one.
	maxDist := l.Page.BubblePitchMM * s / 2

	cal := &Calibration{Blobs: len(blobs), Current: l.Page}
	found := make([]geometry.Point, len(refs))
	for i, r := range refs {
		want := l.BubbleCenter(r.col, r.row, r.option)
		got, d, ok := nearest(blobs, want)
		if !ok || d > maxDist {
			return cal, fmt.Errorf("%w: no bubble near %s (%.0f,%.0f)", ErrCalibration, r.name, want.X, want.Y)
		}
		found[i] = got
		cal.Points = append(cal.Points, CalibrationPoint{
			Name:     r.name,
			Expected: want,
			Found:    got,
			ErrorMM:  d / s,
		})
	}

	p := l.Page
	first := found[0]
	p.FirstBubbleOffsetMM = first.X/s - p.ColStartMM
	p.VerticalAlignOffsetMM = first.Y/s - p.RowStartMM
	if l.Options > 1 {
		p.BubblePitchMM = (found[1].X - first.X) / s / float64(l.Options-1)
	}
	if l.Columns > 1 {
		p.ColPitchMM = (found[2].X - first.X) / s / float64(l.Columns-1)
	}
	if l.RowsPerColumn > 1 {
		p.RowPitchMM = (found[3].Y - first.Y) / s / float64(l.RowsPerColumn-1)
	}
	cal.Suggested = p
	return cal, nil
}

// bubbleCenters returns the bounding-box centres of contours sized and
// shaped like a bubble at scale pixels per millimetre.
func bubbleCenters(contours [][]geometry.Point, scale float64) []geometry.Point {
	minSide, maxSide := calMinSideMM*scale, calMaxSideMM*scale
	centers := make([]geometry.Point, 0, len(contours))
	for _, c := range contours {
		r := geometry.BoundingRect(c)
		size := r.Size()
		if size.X <= minSide || size.X >= maxSide || size.Y <= minSide || size.Y >= maxSide {
			continue
		}
		if a := size.X / size.Y; a <= calMinAspect || a >= calMaxAspect {
			continue
		}
		centers = append(centers, r.Center())
	}
	return centers
}

func nearest(pts []geometry.Point, target geometry.Point) (geometry.Point, float64, bool) {
	best, bestDist := geometry.Point{}, math.Inf(1)
	for _, p := range pts {
		if d := p.Sub(target).Norm(); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best, bestDist, !math.IsInf(bestDist, 1)
}
