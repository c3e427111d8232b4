package geometry

import (
	"fmt"
	"sort"
)

// Quad holds four corner points in a fixed slot order. Which role each slot
// plays depends on the ordering function that produced it.
type Quad [4]Point

// Points returns the quad as a slice in slot order.
func (q Quad) Points() []Point {
	return []Point{q[0], q[1], q[2], q[3]}
}

// OrderCorners assigns four points to the slots top-left, top-right,
// bottom-left, bottom-right. The two points with the smallest y form the top
// pair; within each pair the smaller x is the left corner. Ties are broken on
// the other axis so any permutation of the same input yields the same result.
func OrderCorners(pts []Point) (Quad, error) {
	if len(pts) != 4 {
		return Quad{}, fmt.Errorf("ordering needs 4 points, got %d", len(pts))
	}
	s := make([]Point, 4)
	copy(s, pts)
	sort.Slice(s, func(i, j int) bool { return lessYX(s[i], s[j]) })

	top := []Point{s[0], s[1]}
	bottom := []Point{s[2], s[3]}
	sort.Slice(top, func(i, j int) bool { return lessXY(top[i], top[j]) })
	sort.Slice(bottom, func(i, j int) bool { return lessXY(bottom[i], bottom[j]) })

	return Quad{top[0], top[1], bottom[0], bottom[1]}, nil
}

// OrderClockwise assigns four points to the slots top-left, top-right,
// bottom-right, bottom-left, walking the outline clockwise on screen.
func OrderClockwise(pts []Point) (Quad, error) {
	q, err := OrderCorners(pts)
	if err != nil {
		return Quad{}, err
	}
	return Quad{q[0], q[1], q[3], q[2]}, nil
}

// SortLeftToRight returns a copy of pts ordered by x, then y.
func SortLeftToRight(pts []Point) []Point {
	s := make([]Point, len(pts))
	copy(s, pts)
	sort.Slice(s, func(i, j int) bool { return lessXY(s[i], s[j]) })
	return s
}

func lessYX(a, b Point) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}

func lessXY(a, b Point) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}
