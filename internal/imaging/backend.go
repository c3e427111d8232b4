package imaging

import (
	"fmt"
	"image"

	"github.com/ironsheep/omr-scan-mcp/internal/geometry"
)

// Backend supplies the raster primitives the scanner needs from an image
// library. Implementations must not retain the images passed to them.
type Backend interface {
	// Name identifies the backend in logs and tool output.
	Name() string

	// Binarize returns an ink=255 binary image of gray.
	Binarize(gray *image.Gray, p ThresholdParams) (*image.Gray, error)

	// FindContours returns the boundary polygon of each ink region.
	FindContours(bin *image.Gray) ([][]geometry.Point, error)

	// Warp resamples gray so that source point p lands at h(p) in an
	// image of the given size.
	Warp(gray *image.Gray, h geometry.Homography, size image.Point) (*image.Gray, error)

	// ApproxPolygon simplifies a closed contour to within epsilon pixels.
	ApproxPolygon(contour []geometry.Point, epsilon float64) []geometry.Point

	// ConvexHull returns the hull vertices of pts.
	ConvexHull(pts []geometry.Point) []geometry.Point

	// Centroid returns the centre of mass of the region a contour encloses;
	// ok is false for contours without area.
	Centroid(contour []geometry.Point) (c geometry.Point, ok bool)

	// CountNonZero counts the ink pixels of bin inside r, clipped to bin.
	CountNonZero(bin *image.Gray, r image.Rectangle) int
}

// Native implements Backend in pure Go.
type Native struct{}

// NewNative returns the pure-Go backend.
func NewNative() *Native {
	return &Native{}
}

func (*Native) Name() string { return "native" }

func (*Native) Binarize(gray *image.Gray, p ThresholdParams) (*image.Gray, error) {
	if p.Adaptive && (p.BlockSize < 3 || p.BlockSize%2 == 0) {
		return nil, fmt.Errorf("block size must be odd and >= 3, got %d", p.BlockSize)
	}
	return Binarize(gray, p), nil
}

func (*Native) FindContours(bin *image.Gray) ([][]geometry.Point, error) {
	return FindContours(bin), nil
}

func (*Native) Warp(gray *image.Gray, h geometry.Homography, size image.Point) (*image.Gray, error) {
	return WarpPerspective(gray, h, size)
}

func (*Native) ApproxPolygon(contour []geometry.Point, epsilon float64) []geometry.Point {
	return geometry.ApproxPolygon(contour, epsilon)
}

func (*Native) ConvexHull(pts []geometry.Point) []geometry.Point {
	return geometry.ConvexHull(pts)
}

func (*Native) Centroid(contour []geometry.Point) (geometry.Point, bool) {
	return geometry.Centroid(contour)
}

func (*Native) CountNonZero(bin *image.Gray, r image.Rectangle) int {
	return CountNonZero(bin, r)
}

var backends = map[string]func() (Backend, error){
	"native": func() (Backend, error) { return NewNative(), nil },
}

// NewBackend returns the backend registered under name. "" selects native.
func NewBackend(name string) (Backend, error) {
	if name == "" {
		name = "native"
	}
	ctor, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("image backend %q is not available in this build", name)
	}
	return ctor()
}
