package geometry

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// Point is a sub-pixel image coordinate.
type Point = r2.Point

// Rect is an axis-aligned bounding rectangle.
type Rect = r2.Rect

// Pt is shorthand for constructing a Point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Area returns the absolute area enclosed by a closed polygon (shoelace formula).
func Area(poly []Point) float64 {
	return math.Abs(signedArea(poly))
}

func signedArea(poly []Point) float64 {
	n := len(poly)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += poly[i].Cross(poly[j])
	}
	return sum / 2
}

// Perimeter returns the length of the polyline through poly. When closed is
// true the segment from the last vertex back to the first is included.
func Perimeter(poly []Point, closed bool) float64 {
	if len(poly) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(poly); i++ {
		total += poly[i].Sub(poly[i-1]).Norm()
	}
	if closed {
		total += poly[0].Sub(poly[len(poly)-1]).Norm()
	}
	return total
}

// Centroid returns the area centroid of a closed polygon computed from its
// first-order moments. ok is false for polygons with zero area; callers should
// reject those rather than fall back to a vertex average.
func Centroid(poly []Point) (c Point, ok bool) {
	n := len(poly)
	a := signedArea(poly)
	if n < 3 || math.Abs(a) < 1e-9 {
		return Point{}, false
	}
	var cx, cy float64
	for i := 0; i < n; i++ {
		p, q := poly[i], poly[(i+1)%n]
		f := p.Cross(q)
		cx += (p.X + q.X) * f
		cy += (p.Y + q.Y) * f
	}
	return Point{X: cx / (6 * a), Y: cy / (6 * a)}, true
}

// BoundingRect returns the smallest axis-aligned rectangle containing poly.
func BoundingRect(poly []Point) Rect {
	return r2.RectFromPoints(poly...)
}

// AspectRatio returns width/height of a rectangle, or 0 when the height is zero.
func AspectRatio(r Rect) float64 {
	size := r.Size()
	if size.Y <= 0 {
		return 0
	}
	return size.X / size.Y
}

// ConvexHull returns the convex hull of pts in counter-clockwise order (in a
// y-down frame this reads clockwise on screen), using Andrew's monotone chain.
// Colinear points on the hull boundary are dropped.
func ConvexHull(pts []Point) []Point {
	if len(pts) < 3 {
		out := make([]Point, len(pts))
		copy(out, pts)
		return out
	}

	sorted := make([]Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	turn := func(o, a, b Point) float64 {
		return a.Sub(o).Cross(b.Sub(o))
	}

	hull := make([]Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// Solidity is the ratio of a polygon's area to the area of its convex hull.
// A filled square scores close to 1; notched or concave blobs score lower.
func Solidity(poly []Point) float64 {
	hullArea := Area(ConvexHull(poly))
	if hullArea <= 0 {
		return 0
	}
	return Area(poly) / hullArea
}

// ApproxPolygon simplifies a closed contour with the Douglas-Peucker
// algorithm. Vertices farther than epsilon from the simplified outline are
// kept. The contour is split at its two most distant vertices so the result
// does not depend on where tracing started.
func ApproxPolygon(contour []Point, epsilon float64) []Point {
	n := len(contour)
	if n < 3 {
		out := make([]Point, n)
		copy(out, contour)
		return out
	}

	// Anchor on the vertex farthest from the first point, then the vertex
	// farthest from that anchor.
	a := farthestFrom(contour, contour[0])
	b := farthestFrom(contour, contour[a])
	if a == b {
		return []Point{contour[a]}
	}
	if a > b {
		a, b = b, a
	}

	first := contour[a : b+1]
	second := make([]Point, 0, n-(b-a)+1)
	second = append(second, contour[b:]...)
	second = append(second, contour[:a+1]...)

	left := douglasPeucker(first, epsilon)
	right := douglasPeucker(second, epsilon)

	// Both chains share their end points; drop the duplicates.
	out := make([]Point, 0, len(left)+len(right)-2)
	out = append(out, left[:len(left)-1]...)
	out = append(out, right[:len(right)-1]...)
	return out
}

func farthestFrom(pts []Point, p Point) int {
	best, bestDist := 0, -1.0
	for i, q := range pts {
		if d := q.Sub(p).Norm(); d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// douglasPeucker simplifies an open polyline, always keeping both end points.
func douglasPeucker(pts []Point, epsilon float64) []Point {
	if len(pts) < 3 {
		out := make([]Point, len(pts))
		copy(out, pts)
		return out
	}

	keep := make([]bool, len(pts))
	keep[0], keep[len(pts)-1] = true, true

	type span struct{ lo, hi int }
	stack := []span{{0, len(pts) - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx, dmax := -1, epsilon
		for i := s.lo + 1; i < s.hi; i++ {
			if d := segmentDistance(pts[i], pts[s.lo], pts[s.hi]); d > dmax {
				idx, dmax = i, d
			}
		}
		if idx >= 0 {
			keep[idx] = true
			stack = append(stack, span{s.lo, idx}, span{idx, s.hi})
		}
	}

	out := make([]Point, 0, len(pts))
	for i, k := range keep {
		if k {
			out = append(out, pts[i])
		}
	}
	return out
}

// segmentDistance returns the distance from p to the segment ab.
func segmentDistance(p, a, b Point) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return p.Sub(a).Norm()
	}
	t := p.Sub(a).Dot(ab) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Sub(a.Add(ab.Mul(t))).Norm()
}

// MaxDisplacement returns the largest pointwise distance between two equally
// sized point lists, or +Inf if their lengths differ.
func MaxDisplacement(prev, cur []Point) float64 {
	if len(prev) != len(cur) {
		return math.Inf(1)
	}
	var worst float64
	for i := range prev {
		if d := cur[i].Sub(prev[i]).Norm(); d > worst {
			worst = d
		}
	}
	return worst
}
