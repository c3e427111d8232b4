package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerate is returned when four points cannot define a perspective
// transform: some three of them are (nearly) colinear or the linear system is
// close to singular.
var ErrDegenerate = errors.New("degenerate geometry")

const (
	// minTriangleRatio is the smallest triangle area, relative to the squared
	// extent of the quad, that still counts as non-colinear.
	minTriangleRatio = 1e-4

	// maxCondition bounds the condition number of the normalized DLT system.
	maxCondition = 1e8
)

// Homography is a 3x3 projective transform stored row-major.
type Homography [9]float64

// Identity returns the identity transform.
func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Apply maps p through the transform. ok is false if p maps to infinity.
func (h Homography) Apply(p Point) (Point, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return Point{}, false
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// Inverse returns the transform mapping destination points back to source points.
func (h Homography) Inverse() (Homography, error) {
	m := mat.NewDense(3, 3, h[:])
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	return fromDense(&inv)
}

// EstimateHomography computes the transform taking src[i] to dst[i] for all
// four slots. Both quads must use the same slot order.
func EstimateHomography(src, dst Quad) (Homography, error) {
	if err := checkQuad(src); err != nil {
		return Homography{}, fmt.Errorf("source quad: %w", err)
	}
	if err := checkQuad(dst); err != nil {
		return Homography{}, fmt.Errorf("destination quad: %w", err)
	}

	ns, ts := normalize(src)
	nd, td := normalize(dst)

	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}

	var lu mat.LU
	lu.Factorize(a)
	if c := lu.Cond(); math.IsInf(c, 1) || c > maxCondition {
		return Homography{}, fmt.Errorf("%w: condition number %.3g", ErrDegenerate, c)
	}
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, b); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	hn := mat.NewDense(3, 3, []float64{
		x.AtVec(0), x.AtVec(1), x.AtVec(2),
		x.AtVec(3), x.AtVec(4), x.AtVec(5),
		x.AtVec(6), x.AtVec(7), 1,
	})

	// H = Td^-1 * Hn * Ts
	var tdInv mat.Dense
	if err := tdInv.Inverse(td); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	var tmp, full mat.Dense
	tmp.Mul(hn, ts)
	full.Mul(&tdInv, &tmp)
	return fromDense(&full)
}

func fromDense(m *mat.Dense) (Homography, error) {
	scale := m.At(2, 2)
	if math.Abs(scale) < 1e-12 {
		return Homography{}, fmt.Errorf("%w: projective scale is zero", ErrDegenerate)
	}
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = m.At(r, c) / scale
		}
	}
	return h, nil
}

// normalize translates the quad's centroid to the origin and scales it so the
// mean distance from the origin is sqrt(2). It returns the moved points and
// the 3x3 transform that produced them.
func normalize(q Quad) (Quad, *mat.Dense) {
	var c Point
	for _, p := range q {
		c = c.Add(p)
	}
	c = c.Mul(0.25)

	var mean float64
	for _, p := range q {
		mean += p.Sub(c).Norm()
	}
	mean /= 4
	s := math.Sqrt2 / mean

	var out Quad
	for i, p := range q {
		out[i] = p.Sub(c).Mul(s)
	}
	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * c.X,
		0, s, -s * c.Y,
		0, 0, 1,
	})
	return out, t
}

// checkQuad rejects quads where any three corners are nearly colinear.
func checkQuad(q Quad) error {
	var extent float64
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			extent = math.Max(extent, q[i].Sub(q[j]).Norm())
		}
	}
	if extent == 0 {
		return fmt.Errorf("%w: all corners coincide", ErrDegenerate)
	}

	limit := minTriangleRatio * extent * extent
	triples := [4][3]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}}
	for _, t := range triples {
		a, b, c := q[t[0]], q[t[1]], q[t[2]]
		if math.Abs(b.Sub(a).Cross(c.Sub(a)))/2 < limit {
			return fmt.Errorf("%w: corners %d, %d, %d are colinear", ErrDegenerate, t[0], t[1], t[2])
		}
	}
	return nil
}
