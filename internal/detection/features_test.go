package detection

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ironsheep/omr-scan-mcp/internal/geometry"
	"github.com/ironsheep/omr-scan-mcp/internal/imaging"
	"github.com/ironsheep/omr-scan-mcp/internal/layout"
)

// rectContour returns a densely sampled closed outline of the rectangle
// (x, y, w, h), the way a tracer would report it.
func rectContour(x, y, w, h float64) []geometry.Point {
	var pts []geometry.Point
	for i := 0.0; i < w; i++ {
		pts = append(pts, geometry.Pt(x+i, y))
	}
	for i := 0.0; i < h; i++ {
		pts = append(pts, geometry.Pt(x+w, y+i))
	}
	for i := w; i > 0; i-- {
		pts = append(pts, geometry.Pt(x+i, y+h))
	}
	for i := h; i > 0; i-- {
		pts = append(pts, geometry.Pt(x, y+i))
	}
	return pts
}

var frame = image.Rect(0, 0, 1000, 1000)

func TestDetectReferenceFeatures_FourMarkers(t *testing.T) {
	p := layout.Fiducial().Detection
	contours := [][]geometry.Point{
		rectContour(100, 100, 40, 40),
		rectContour(800, 110, 40, 40),
		rectContour(90, 850, 40, 40),
		rectContour(820, 840, 40, 40),
		rectContour(500, 500, 5, 5), // too small
	}

	res, err := DetectReferenceFeatures(imaging.NewNative(), contours, frame, p)
	if err != nil {
		t.Fatalf("DetectReferenceFeatures() error: %v", err)
	}
	if len(res.Features) != 4 {
		t.Fatalf("got %d features, want 4", len(res.Features))
	}
	if res.Rejected[RejectArea] != 1 {
		t.Errorf("Rejected[area] = %d, want 1", res.Rejected[RejectArea])
	}

	f := res.Features[0]
	if math.Abs(f.Center.X-110) > 1e-6 || math.Abs(f.Center.Y-870) > 1e-6 {
		t.Errorf("leftmost feature centre = %v, want (110,870)", f.Center)
	}
	if len(f.Corners) != 4 {
		t.Errorf("corners = %d, want 4", len(f.Corners))
	}
	if f.Solidity < 0.99 {
		t.Errorf("solidity = %f, want ~1", f.Solidity)
	}
}

func TestDetectReferenceFeatures_RejectsElongatedQuad(t *testing.T) {
	p := layout.Fiducial().Detection

	// A 1:3 rectangle clears the area and solidity tests but not the aspect window.
	contours := [][]geometry.Point{rectContour(300, 300, 30, 90)}
	res, err := DetectReferenceFeatures(imaging.NewNative(), contours, frame, p)

	var ce *CountError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *CountError", err)
	}
	if ce.Expected != 4 || ce.Found != 0 {
		t.Errorf("CountError = %+v, want 0 of 4", ce)
	}
	if res.Rejected[RejectAspect] != 1 {
		t.Errorf("Rejected = %v, want one aspect rejection", res.Rejected)
	}
}

func TestDetectReferenceFeatures_RejectsNonQuads(t *testing.T) {
	p := layout.Fiducial().Detection

	// Densely sampled circle: simplifies to more than 4 vertices.
	var circle []geometry.Point
	for i := 0; i < 200; i++ {
		a := 2 * math.Pi * float64(i) / 200
		circle = append(circle, geometry.Pt(500+25*math.Cos(a), 500+25*math.Sin(a)))
	}
	triangle := []geometry.Point{geometry.Pt(100, 100), geometry.Pt(160, 100), geometry.Pt(130, 150)}

	res, _ := DetectReferenceFeatures(imaging.NewNative(), [][]geometry.Point{circle, triangle}, frame, p)
	if res.Rejected[RejectVertices] != 2 {
		t.Errorf("Rejected = %v, want two vertex rejections", res.Rejected)
	}
}

func TestDetectReferenceFeatures_RejectsLowSolidity(t *testing.T) {
	p := layout.Fiducial().Detection

	// 40x40 square with a 30x6 notch in its top edge. The notch is shallower
	// than the simplification tolerance, so the outline still reduces to four
	// vertices, but the raw contour fills only 1420/1600 of its hull.
	notched := []geometry.Point{
		geometry.Pt(100, 100), geometry.Pt(105, 100), geometry.Pt(105, 106),
		geometry.Pt(135, 106), geometry.Pt(135, 100), geometry.Pt(140, 100),
		geometry.Pt(140, 140), geometry.Pt(100, 140),
	}
	if got := len(geometry.ApproxPolygon(notched, p.EpsilonRatio*geometry.Perimeter(notched, true))); got != 4 {
		t.Fatalf("notched square simplifies to %d vertices, want 4", got)
	}
	if s := geometry.Solidity(notched); s >= p.MinSolidity {
		t.Fatalf("solidity = %f, want below %f", s, p.MinSolidity)
	}

	res, _ := DetectReferenceFeatures(imaging.NewNative(), [][]geometry.Point{notched}, frame, p)
	if res.Rejected[RejectSolidity] != 1 {
		t.Errorf("Rejected = %v, want one solidity rejection", res.Rejected)
	}
}

func TestDetectReferenceFeatures_CountMismatch(t *testing.T) {
	p := layout.Fiducial().Detection
	contours := [][]geometry.Point{
		rectContour(100, 100, 40, 40),
		rectContour(800, 100, 40, 40),
	}

	_, err := DetectReferenceFeatures(imaging.NewNative(), contours, frame, p)
	var ce *CountError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *CountError", err)
	}
	if err.Error() != "found 2 of 4 markers" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestDetectReferenceFeatures_CollapsesDuplicates(t *testing.T) {
	p := layout.Fiducial().Detection
	contours := [][]geometry.Point{
		rectContour(100, 100, 40, 40),
		rectContour(104, 104, 32, 32), // inner border of the same square
		rectContour(800, 100, 40, 40),
		rectContour(100, 800, 40, 40),
		rectContour(800, 800, 40, 40),
	}

	res, err := DetectReferenceFeatures(imaging.NewNative(), contours, frame, p)
	if err != nil {
		t.Fatalf("DetectReferenceFeatures() error: %v", err)
	}
	if res.Rejected[RejectDuplicate] != 1 {
		t.Errorf("Rejected = %v, want one duplicate", res.Rejected)
	}
	for _, f := range res.Features {
		if f.Area < 1500 {
			t.Errorf("kept the smaller duplicate: area %f", f.Area)
		}
	}
}

func TestDetectReferenceFeatures_TableProfile(t *testing.T) {
	p := layout.Table().Detection
	tables := [][]geometry.Point{
		rectContour(572, 80, 168, 400),
		rectContour(60, 80, 168, 400),
		rectContour(316, 80, 168, 400),
		rectContour(20, 20, 760, 520), // page-sized frame: aspect far from 0.42
	}

	res, err := DetectReferenceFeatures(imaging.NewNative(), tables, image.Rect(0, 0, 800, 560), p)
	if err != nil {
		t.Fatalf("DetectReferenceFeatures() error: %v", err)
	}
	xs := []float64{res.Features[0].Center.X, res.Features[1].Center.X, res.Features[2].Center.X}
	if !(xs[0] < xs[1] && xs[1] < xs[2]) {
		t.Errorf("tables not sorted left to right: %v", xs)
	}
}

func TestDetect_SyntheticFrame(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 600, 800))
	for i := range img.Pix {
		img.Pix[i] = 235
	}
	square := func(cx, cy, half int) {
		for y := cy - half; y <= cy+half; y++ {
			for x := cx - half; x <= cx+half; x++ {
				img.SetGray(x, y, color.Gray{Y: 15})
			}
		}
	}
	square(60, 60, 15)
	square(540, 70, 15)
	square(55, 740, 15)
	square(545, 735, 15)
	// A long bar that must not be mistaken for a marker.
	for y := 390; y < 400; y++ {
		for x := 100; x < 500; x++ {
			img.SetGray(x, y, color.Gray{Y: 15})
		}
	}

	res, err := Detect(imaging.NewNative(), img, layout.Fiducial().Detection)
	if err != nil {
		t.Fatalf("Detect() error: %v (rejected %v)", err, res.Rejected)
	}

	q, err := geometry.OrderCorners(Points(res.Features))
	if err != nil {
		t.Fatal(err)
	}
	want := geometry.Quad{geometry.Pt(60, 60), geometry.Pt(540, 70), geometry.Pt(55, 740), geometry.Pt(545, 735)}
	for i := range q {
		if q[i].Sub(want[i]).Norm() > 1 {
			t.Errorf("corner %d = %v, want %v", i, q[i], want[i])
		}
	}
}
