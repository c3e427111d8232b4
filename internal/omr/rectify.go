package omr

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/ironsheep/omr-scan-mcp/internal/detection"
	"github.com/ironsheep/omr-scan-mcp/internal/geometry"
	"github.com/ironsheep/omr-scan-mcp/internal/imaging"
	"github.com/ironsheep/omr-scan-mcp/internal/layout"
)

// Rectified is one sheet region warped to canonical coordinates.
type Rectified struct {
	// Source holds the working-frame corners in slot order.
	Source geometry.Quad `json:"source"`

	// Target holds the canonical positions of the same slots.
	Target geometry.Quad `json:"target"`

	// Transform maps working-frame points to canonical points.
	Transform geometry.Homography `json:"transform"`

	// Width and Height are the canonical image size.
	Width  int `json:"width"`
	Height int `json:"height"`

	Gray   *image.Gray `json:"-"`
	Binary *image.Gray `json:"-"`
}

func decodeThreshold(l layout.Layout) imaging.ThresholdParams {
	return imaging.ThresholdParams{
		Adaptive:  l.Decode.Binarization != layout.BinarizeOtsu,
		Mean:      l.Decode.Binarization == layout.BinarizeAdaptiveMean,
		BlockSize: l.DecodeBlockSize(),
		C:         l.Decode.C,
	}
}

// RectifySheet flattens a fiducial sheet. The four feature centres are
// ordered top-left, top-right, bottom-left, bottom-right and mapped onto the
// layout's anchor positions at its canonical scale.
func RectifySheet(b imaging.Backend, gray *image.Gray, features []detection.Feature, l layout.Layout) (*Rectified, error) {
	if l.Kind != layout.KindFiducial {
		return nil, fmt.Errorf("rectify sheet: %w: %s", ErrWrongLayout, l.Kind)
	}
	if len(features) != 4 {
		return nil, &detection.CountError{Expected: 4, Found: len(features)}
	}

	src, err := geometry.OrderCorners(detection.Points(features))
	if err != nil {
		return nil, err
	}
	w, h := l.CanonicalSize()
	return warp(b, gray, src, l.CanonicalAnchors(), image.Pt(w, h), l)
}

// RectifyTables flattens each answer table of a table sheet, left to right.
// A table's outline corners are ordered top-left, top-right, bottom-right,
// bottom-left and mapped onto a rectangle the size of its bounding box.
func RectifyTables(b imaging.Backend, gray *image.Gray, features []detection.Feature, l layout.Layout) ([]*Rectified, error) {
	if l.Kind != layout.KindTable {
		return nil, fmt.Errorf("rectify tables: %w: %s", ErrWrongLayout, l.Kind)
	}
	if len(features) != l.Detection.ExpectedCount {
		return nil, &detection.CountError{Expected: l.Detection.ExpectedCount, Found: len(features)}
	}

	tables := make([]detection.Feature, len(features))
	copy(tables, features)
	sort.SliceStable(tables, func(i, j int) bool { return tables[i].Center.X < tables[j].Center.X })

	out := make([]*Rectified, 0, len(tables))
	for i, t := range tables {
		src, err := geometry.OrderClockwise(t.Corners)
		if err != nil {
			return nil, fmt.Errorf("table %d: %w", i+1, err)
		}
		size := t.Bounds.Size()
		w, h := int(math.Round(size.X)), int(math.Round(size.Y))
		dst := geometry.Quad{
			geometry.Pt(0, 0),
			geometry.Pt(float64(w), 0),
			geometry.Pt(float64(w), float64(h)),
			geometry.Pt(0, float64(h)),
		}
		r, err := warp(b, gray, src, dst, image.Pt(w, h), l)
		if err != nil {
			return nil, fmt.Errorf("table %d: %w", i+1, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func warp(b imaging.Backend, gray *image.Gray, src, dst geometry.Quad, size image.Point, l layout.Layout) (*Rectified, error) {
	h, err := geometry.EstimateHomography(src, dst)
	if err != nil {
		return nil, err
	}
	canonical, err := b.Warp(gray, h, size)
	if err != nil {
		return nil, fmt.Errorf("warp: %w", err)
	}
	bin, err := b.Binarize(canonical, decodeThreshold(l))
	if err != nil {
		return nil, fmt.Errorf("binarize: %w", err)
	}
	return &Rectified{
		Source:    src,
		Target:    dst,
		Transform: h,
		Width:     size.X,
		Height:    size.Y,
		Gray:      canonical,
		Binary:    bin,
	}, nil
}
