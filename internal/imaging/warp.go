package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/parallel"

	"github.com/ironsheep/omr-scan-mcp/internal/geometry"
)

// PaperFill is the value written where a warped pixel falls outside the source.
const PaperFill = 255

// WarpPerspective resamples gray into a size.X by size.Y image such that the
// source point p lands at h(p). Each output pixel is mapped back through the
// inverse transform and sampled bilinearly; samples outside the source read
// as paper so the border never looks like ink.
func WarpPerspective(gray *image.Gray, h geometry.Homography, size image.Point) (*image.Gray, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid warp size %v", size)
	}
	inv, err := h.Inverse()
	if err != nil {
		return nil, err
	}

	sw, sh := gray.Rect.Dx(), gray.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, size.X, size.Y))

	at := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= sw || y >= sh {
			return PaperFill
		}
		return float64(gray.Pix[y*gray.Stride+x])
	}

	parallel.Line(size.Y, func(start, end int) {
		for y := start; y < end; y++ {
			row := out.Pix[y*out.Stride : y*out.Stride+size.X]
			for x := 0; x < size.X; x++ {
				p, ok := inv.Apply(geometry.Pt(float64(x), float64(y)))
				if !ok {
					row[x] = PaperFill
					continue
				}
				x0, y0 := math.Floor(p.X), math.Floor(p.Y)
				fx, fy := p.X-x0, p.Y-y0
				ix, iy := int(x0), int(y0)

				top := at(ix, iy)*(1-fx) + at(ix+1, iy)*fx
				bottom := at(ix, iy+1)*(1-fx) + at(ix+1, iy+1)*fx
				v := top*(1-fy) + bottom*fy
				row[x] = uint8(math.Max(0, math.Min(255, v+0.5)))
			}
		}
	})
	return out, nil
}
