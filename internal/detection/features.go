package detection

import (
	"fmt"
	"image"
	"sort"

	"github.com/ironsheep/omr-scan-mcp/internal/geometry"
	"github.com/ironsheep/omr-scan-mcp/internal/imaging"
	"github.com/ironsheep/omr-scan-mcp/internal/layout"
)

// Feature is one accepted reference feature.
type Feature struct {
	// Center is the area centroid of the traced outline.
	Center geometry.Point `json:"center"`

	// Corners are the four vertices of the simplified outline, in tracing order.
	Corners []geometry.Point `json:"corners"`

	// Bounds is the axis-aligned bounding rectangle of the outline.
	Bounds geometry.Rect `json:"bounds"`

	// Area is the area enclosed by the traced outline in square pixels.
	Area float64 `json:"area"`

	// AspectRatio is the bounding rectangle's width divided by its height.
	AspectRatio float64 `json:"aspect_ratio"`

	// Solidity is Area divided by the area of the convex hull.
	Solidity float64 `json:"solidity"`
}

// Rejection reasons reported in Result.Rejected.
const (
	RejectArea      = "area"
	RejectVertices  = "vertices"
	RejectAspect    = "aspect"
	RejectSolidity  = "solidity"
	RejectCentroid  = "centroid"
	RejectDuplicate = "duplicate"
)

// Result is the outcome of filtering one frame's contours.
type Result struct {
	// Features are the accepted features sorted left to right.
	Features []Feature `json:"features"`

	// Contours is the number of contours examined.
	Contours int `json:"contours"`

	// Rejected counts discarded contours by the first test they failed.
	Rejected map[string]int `json:"rejected"`
}

// CountError reports a frame whose number of accepted features differs from
// the layout's expectation. The frame cannot be rectified.
type CountError struct {
	Expected int
	Found    int
}

func (e *CountError) Error() string {
	return fmt.Sprintf("found %d of %d markers", e.Found, e.Expected)
}

// Points returns the centre of each feature, in the order of features.
func Points(features []Feature) []geometry.Point {
	pts := make([]geometry.Point, len(features))
	for i, f := range features {
		pts[i] = f.Center
	}
	return pts
}

// Detect binarizes a grayscale working frame with b, extracts its contours and
// filters them with DetectReferenceFeatures.
func Detect(b imaging.Backend, gray *image.Gray, p layout.DetectionProfile) (*Result, error) {
	bin, err := b.Binarize(gray, imaging.ThresholdParams{
		Adaptive:  true,
		BlockSize: p.ThresholdBlockSize,
		C:         p.ThresholdC,
	})
	if err != nil {
		return nil, fmt.Errorf("binarize: %w", err)
	}
	contours, err := b.FindContours(bin)
	if err != nil {
		return nil, fmt.Errorf("find contours: %w", err)
	}
	return DetectReferenceFeatures(b, contours, gray.Rect, p)
}

// DetectReferenceFeatures keeps the contours that look like reference
// features of the profile and checks their count. On a count mismatch the
// partial result is returned together with a *CountError so callers can
// report what was seen. Polygon work runs on b.
func DetectReferenceFeatures(b imaging.Backend, contours [][]geometry.Point, frame image.Rectangle, p layout.DetectionProfile) (*Result, error) {
	frameArea := float64(frame.Dx() * frame.Dy())
	minArea := p.MinAreaRatio * frameArea
	maxArea := p.MaxAreaRatio * frameArea

	res := &Result{
		Features: make([]Feature, 0, p.ExpectedCount),
		Contours: len(contours),
		Rejected: make(map[string]int),
	}

	candidates := make([]Feature, 0)
	for _, c := range contours {
		f, reason := evaluate(b, c, minArea, maxArea, p)
		if reason != "" {
			res.Rejected[reason]++
			continue
		}
		candidates = append(candidates, f)
	}

	res.Features = dedupe(candidates, p.DuplicateDistance, res.Rejected)
	sort.Slice(res.Features, func(i, j int) bool {
		ci, cj := res.Features[i].Center, res.Features[j].Center
		if ci.X != cj.X {
			return ci.X < cj.X
		}
		return ci.Y < cj.Y
	})

	if len(res.Features) != p.ExpectedCount {
		return res, &CountError{Expected: p.ExpectedCount, Found: len(res.Features)}
	}
	return res, nil
}

// evaluate applies the filter chain to one contour. It returns the reason
// for the first failed test, or "" with the populated feature.
func evaluate(b imaging.Backend, contour []geometry.Point, minArea, maxArea float64, p layout.DetectionProfile) (Feature, string) {
	area := geometry.Area(contour)
	if area <= minArea || (maxArea > 0 && area >= maxArea) {
		return Feature{}, RejectArea
	}

	approx := b.ApproxPolygon(contour, p.EpsilonRatio*geometry.Perimeter(contour, true))
	if len(approx) != 4 {
		return Feature{}, RejectVertices
	}

	bounds := geometry.BoundingRect(contour)
	aspect := geometry.AspectRatio(bounds)
	if aspect < p.AspectRatio-p.AspectTolerance || aspect > p.AspectRatio+p.AspectTolerance {
		return Feature{}, RejectAspect
	}

	var solidity float64
	if hullArea := geometry.Area(b.ConvexHull(contour)); hullArea > 0 {
		solidity = area / hullArea
	}
	if p.MinSolidity > 0 && solidity < p.MinSolidity {
		return Feature{}, RejectSolidity
	}

	center, ok := b.Centroid(contour)
	if !ok {
		return Feature{}, RejectCentroid
	}

	return Feature{
		Center:      center,
		Corners:     approx,
		Bounds:      bounds,
		Area:        area,
		AspectRatio: aspect,
		Solidity:    solidity,
	}, ""
}

// dedupe keeps the largest of any group of candidates whose centres lie
// within dist of each other.
func dedupe(candidates []Feature, dist float64, rejected map[string]int) []Feature {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Area > candidates[j].Area
	})

	kept := make([]Feature, 0, len(candidates))
	for _, c := range candidates {
		duplicate := false
		for _, k := range kept {
			if c.Center.Sub(k.Center).Norm() < dist {
				duplicate = true
				break
			}
		}
		if duplicate {
			rejected[RejectDuplicate]++
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
