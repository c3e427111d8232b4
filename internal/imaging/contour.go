package imaging

import (
	"image"

	"github.com/ironsheep/omr-scan-mcp/internal/geometry"
)

// MinComponentPixels is the smallest connected ink region FindContours traces.
// Smaller specks are scanner noise.
const MinComponentPixels = 4

// Moore neighbourhood in clockwise screen order starting east.
var (
	mooreDX = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	mooreDY = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
)

// FindContours returns the outer boundary of every 8-connected ink region of
// a binary image, as pixel-centre polygons. Runs of boundary pixels in one
// direction are collapsed to their end points.
//
// Every region is traced, including regions nested inside another region's
// hole, so a marker printed inside a page border is still found. Holes
// themselves are not traced.
func FindContours(bin *image.Gray) [][]geometry.Point {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	labels := make([]int32, w*h)
	ink := func(x, y int) bool {
		return bin.Pix[y*bin.Stride+x] != 0
	}

	contours := make([][]geometry.Point, 0)
	var next int32
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if labels[y*w+x] != 0 || !ink(x, y) {
				continue
			}
			next++
			if n := floodLabel(labels, ink, w, h, x, y, next); n < MinComponentPixels {
				continue
			}
			// (x, y) is the first pixel of the region in raster order, so
			// its west neighbour is outside the region.
			contours = append(contours, traceBoundary(labels, w, h, next, image.Pt(x, y)))
		}
	}
	return contours
}

// floodLabel marks the 8-connected region containing (startX, startY) with
// label and returns its pixel count. It uses an explicit stack so large
// regions cannot overflow the goroutine stack.
func floodLabel(labels []int32, ink func(x, y int) bool, w, h, startX, startY int, label int32) int {
	stack := []image.Point{{X: startX, Y: startY}}
	labels[startY*w+startX] = label
	count := 0

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++

		for i := 0; i < 8; i++ {
			nx, ny := p.X+mooreDX[i], p.Y+mooreDY[i]
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			idx := ny*w + nx
			if labels[idx] != 0 || !ink(nx, ny) {
				continue
			}
			labels[idx] = label
			stack = append(stack, image.Point{X: nx, Y: ny})
		}
	}
	return count
}

// traceBoundary walks the outer boundary of a labelled region with
// Moore-neighbour tracing, starting at its top-left pixel. Tracing stops when
// the walk is about to repeat its first step.
func traceBoundary(labels []int32, w, h int, label int32, start image.Point) []geometry.Point {
	in := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && labels[y*w+x] == label
	}

	pts := []image.Point{start}
	lastDir := -1
	add := func(p image.Point, dir int) {
		// Extend a straight run instead of adding a new vertex.
		if dir == lastDir && len(pts) >= 2 {
			pts[len(pts)-1] = p
		} else {
			pts = append(pts, p)
		}
		lastDir = dir
	}

	cur := start
	back := 4 // west of start
	var firstStep image.Point
	maxSteps := 4*w*h + 8

	for step := 0; step < maxSteps; step++ {
		found := -1
		for k := 1; k <= 8; k++ {
			i := (back + k) % 8
			if in(cur.X+mooreDX[i], cur.Y+mooreDY[i]) {
				found = i
				break
			}
		}
		if found < 0 {
			break // isolated pixel
		}
		nextPt := image.Pt(cur.X+mooreDX[found], cur.Y+mooreDY[found])
		if step == 0 {
			firstStep = nextPt
		} else if cur == start && nextPt == firstStep {
			break
		}

		// The neighbour examined just before the hit is background; seen
		// from the new pixel it lies in direction back.
		prev := (found + 7) % 8
		bx, by := cur.X+mooreDX[prev], cur.Y+mooreDY[prev]
		back = directionTo(nextPt, bx, by)
		cur = nextPt
		add(cur, found)
	}

	if len(pts) > 1 && pts[len(pts)-1] == start {
		pts = pts[:len(pts)-1]
	}

	out := make([]geometry.Point, len(pts))
	for i, p := range pts {
		out[i] = geometry.Pt(float64(p.X), float64(p.Y))
	}
	return out
}

// directionTo returns the Moore index of the neighbour (x, y) of p.
func directionTo(p image.Point, x, y int) int {
	dx, dy := x-p.X, y-p.Y
	for i := 0; i < 8; i++ {
		if mooreDX[i] == dx && mooreDY[i] == dy {
			return i
		}
	}
	return 4
}
