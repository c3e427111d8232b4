package imaging

import (
	"image"

	"github.com/disintegration/imaging"
)

// CountNonZero returns the number of ink pixels of bin inside r. The
// rectangle is clipped to the image first, so regions hanging over an edge
// count only their visible part.
func CountNonZero(bin *image.Gray, r image.Rectangle) int {
	r = r.Intersect(bin.Rect)
	count := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := (y-bin.Rect.Min.Y)*bin.Stride - bin.Rect.Min.X
		for _, v := range bin.Pix[off+r.Min.X : off+r.Max.X] {
			if v != 0 {
				count++
			}
		}
	}
	return count
}

// ResizeToWidth scales img to the given width, keeping its aspect ratio, and
// returns the result with the factor that maps original coordinates onto it.
// A width of 0, or the image's own width, returns img unchanged with factor 1.
func ResizeToWidth(img image.Image, width int) (image.Image, float64) {
	w := img.Bounds().Dx()
	if width <= 0 || w == 0 || width == w {
		return img, 1
	}
	resized := imaging.Resize(img, width, 0, imaging.Linear)
	return resized, float64(width) / float64(w)
}
