//go:build gocv

package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/ironsheep/omr-scan-mcp/internal/geometry"
)

func init() {
	backends["gocv"] = func() (Backend, error) { return NewGoCV(), nil }
}

// GoCV implements Backend with OpenCV. Every Mat it allocates is closed
// before the call returns.
type GoCV struct{}

// NewGoCV returns the OpenCV backend.
func NewGoCV() *GoCV {
	return &GoCV{}
}

func (*GoCV) Name() string { return "gocv" }

func (*GoCV) Binarize(gray *image.Gray, p ThresholdParams) (*image.Gray, error) {
	src, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return nil, fmt.Errorf("gocv: %w", err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	if p.Adaptive {
		method := gocv.AdaptiveThresholdGaussian
		if p.Mean {
			method = gocv.AdaptiveThresholdMean
		}
		gocv.AdaptiveThreshold(src, &dst, 255, method, gocv.ThresholdBinaryInv, p.BlockSize, float32(p.C))
	} else {
		gocv.Threshold(src, &dst, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)
	}
	return matToGray(dst)
}

func (*GoCV) FindContours(bin *image.Gray) ([][]geometry.Point, error) {
	src, err := gocv.ImageGrayToMatGray(bin)
	if err != nil {
		return nil, fmt.Errorf("gocv: %w", err)
	}
	defer src.Close()

	pv := gocv.FindContours(src, gocv.RetrievalList, gocv.ChainApproxSimple)
	defer pv.Close()

	raw := pv.ToPoints()
	out := make([][]geometry.Point, 0, len(raw))
	for _, c := range raw {
		poly := make([]geometry.Point, len(c))
		for i, p := range c {
			poly[i] = geometry.Pt(float64(p.X), float64(p.Y))
		}
		out = append(out, poly)
	}
	return out, nil
}

func (*GoCV) Warp(gray *image.Gray, h geometry.Homography, size image.Point) (*image.Gray, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid warp size %v", size)
	}
	src, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return nil, fmt.Errorf("gocv: %w", err)
	}
	defer src.Close()

	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for i, v := range h {
		m.SetDoubleAt(i/3, i%3, v)
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.WarpPerspectiveWithParams(src, &dst, m, size, gocv.InterpolationLinear, gocv.BorderConstant,
		color.RGBA{R: PaperFill, G: PaperFill, B: PaperFill, A: 255})
	return matToGray(dst)
}

func (*GoCV) ApproxPolygon(contour []geometry.Point, epsilon float64) []geometry.Point {
	pv := toPointVector(contour)
	defer pv.Close()

	approx := gocv.ApproxPolyDP(pv, epsilon, true)
	defer approx.Close()
	return fromImagePoints(approx.ToPoints())
}

func (*GoCV) ConvexHull(pts []geometry.Point) []geometry.Point {
	if len(pts) < 3 {
		return append([]geometry.Point(nil), pts...)
	}
	pv := toPointVector(pts)
	defer pv.Close()

	hull := gocv.NewMat()
	defer hull.Close()
	gocv.ConvexHull(pv, &hull, true, true)

	out := make([]geometry.Point, hull.Rows())
	for i := range out {
		v := hull.GetVeciAt(i, 0)
		out[i] = geometry.Pt(float64(v[0]), float64(v[1]))
	}
	return out
}

// Centroid fills the contour into a mask covering its bounding box and
// takes the image moments of the mask.
func (*GoCV) Centroid(contour []geometry.Point) (geometry.Point, bool) {
	if len(contour) < 3 {
		return geometry.Point{}, false
	}
	box := roundedBounds(contour)
	pts := make([]image.Point, len(contour))
	for i, p := range contour {
		pts[i] = image.Pt(int(math.Round(p.X)), int(math.Round(p.Y))).Sub(box.Min)
	}

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), box.Dy(), box.Dx(), gocv.MatTypeCV8U)
	defer mask.Close()
	pvs := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pvs.Close()
	gocv.FillPoly(&mask, pvs, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	m := gocv.Moments(mask, true)
	if m["m00"] == 0 {
		return geometry.Point{}, false
	}
	return geometry.Pt(m["m10"]/m["m00"]+float64(box.Min.X), m["m01"]/m["m00"]+float64(box.Min.Y)), true
}

// CountNonZero copies the clipped region out of bin and counts it with
// OpenCV; a failed conversion falls back to the native count.
func (*GoCV) CountNonZero(bin *image.Gray, r image.Rectangle) int {
	r = r.Intersect(bin.Rect)
	if r.Empty() {
		return 0
	}
	roi := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		copy(roi.Pix[y*roi.Stride:(y+1)*roi.Stride], bin.Pix[bin.PixOffset(r.Min.X, r.Min.Y+y):])
	}

	m, err := gocv.ImageGrayToMatGray(roi)
	if err != nil {
		return CountNonZero(bin, r)
	}
	defer m.Close()
	return gocv.CountNonZero(m)
}

func toPointVector(poly []geometry.Point) gocv.PointVector {
	pts := make([]image.Point, len(poly))
	for i, p := range poly {
		pts[i] = image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
	}
	return gocv.NewPointVectorFromPoints(pts)
}

func fromImagePoints(pts []image.Point) []geometry.Point {
	out := make([]geometry.Point, len(pts))
	for i, p := range pts {
		out[i] = geometry.Pt(float64(p.X), float64(p.Y))
	}
	return out
}

// roundedBounds returns the pixel rectangle covering poly, one pixel larger
// on every side.
func roundedBounds(poly []geometry.Point) image.Rectangle {
	b := geometry.BoundingRect(poly)
	return image.Rect(
		int(math.Floor(b.X.Lo))-1, int(math.Floor(b.Y.Lo))-1,
		int(math.Ceil(b.X.Hi))+2, int(math.Ceil(b.Y.Hi))+2,
	)
}

func matToGray(m gocv.Mat) (*image.Gray, error) {
	img, err := m.ToImage()
	if err != nil {
		return nil, fmt.Errorf("gocv: %w", err)
	}
	return ToGray(img), nil
}
