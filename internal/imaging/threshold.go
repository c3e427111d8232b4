package imaging

import (
	"image"
	"image/draw"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/histogram"
	"github.com/anthonynsimon/bild/parallel"
)

// ThresholdParams selects how a grayscale image is binarized.
type ThresholdParams struct {
	// Adaptive compares each pixel with a Gaussian-weighted local mean over
	// a BlockSize window; otherwise a global Otsu level is used.
	Adaptive  bool
	BlockSize int
	C         float64

	// Mean replaces the Gaussian weighting with a plain box mean over the
	// whole BlockSize window. Only used when Adaptive is set.
	Mean bool
}

// ToGray converts any image to 8-bit grayscale with a zero origin.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	g := effect.Grayscale(img)
	out := image.NewGray(image.Rect(0, 0, g.Rect.Dx(), g.Rect.Dy()))
	draw.Draw(out, out.Rect, g, g.Rect.Min, draw.Src)
	return out
}

// AdaptiveThreshold marks a pixel as ink when it is at least c levels darker
// than the Gaussian-weighted mean of its blockSize neighbourhood. Uniform
// regions, dark or light, come out as paper; only local contrast survives,
// which makes the result insensitive to uneven lighting.
func AdaptiveThreshold(gray *image.Gray, blockSize int, c float64) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	// Pix rows are relative to each image's own Rect.Min.
	mean := blur.Gaussian(gray, float64(blockSize)/2)
	for y := 0; y < h; y++ {
		src := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		row := mean.Pix[y*mean.Stride : y*mean.Stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := 0; x < w; x++ {
			if float64(src[x]) <= float64(row[x*4])-c {
				dst[x] = 255
			}
		}
	}
	return out
}

// AdaptiveMeanThreshold marks a pixel as ink when it is at least c levels
// darker than the unweighted mean of the blockSize square around it. Windows
// are clipped at the image border. A filled region stays ink throughout as
// long as the window is wider than the region.
func AdaptiveMeanThreshold(gray *image.Gray, blockSize int, c float64) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	// Summed-area table with a zero row and column in front.
	stride := w + 1
	sat := make([]uint64, stride*(h+1))
	for y := 0; y < h; y++ {
		var row uint64
		src := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for x, v := range src {
			row += uint64(v)
			sat[(y+1)*stride+x+1] = sat[y*stride+x+1] + row
		}
	}

	r := blockSize / 2
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			y0, y1 := max(y-r, 0), min(y+r+1, h)
			src := gray.Pix[y*gray.Stride : y*gray.Stride+w]
			dst := out.Pix[y*out.Stride : y*out.Stride+w]
			for x := 0; x < w; x++ {
				x0, x1 := max(x-r, 0), min(x+r+1, w)
				sum := sat[y1*stride+x1] - sat[y0*stride+x1] - sat[y1*stride+x0] + sat[y0*stride+x0]
				mean := float64(sum) / float64((x1-x0)*(y1-y0))
				if float64(src[x]) <= mean-c {
					dst[x] = 255
				}
			}
		}
	})
	return out
}

// OtsuLevel returns the global threshold that best separates the gray
// histogram into two classes (Otsu's method). Pixels at or below the level
// belong to the dark class.
func OtsuLevel(gray *image.Gray) uint8 {
	bins := histogram.NewRGBAHistogram(gray).R.Bins

	var total, sum float64
	for i, n := range bins {
		total += float64(n)
		sum += float64(i) * float64(n)
	}
	if total == 0 {
		return 127
	}

	var sumB, wB, best float64
	level := 0
	for t := 0; t < len(bins); t++ {
		wB += float64(bins[t])
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(bins[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			level = t
		}
	}
	return uint8(level)
}

// OtsuThreshold marks every pixel at or below the Otsu level as ink.
func OtsuThreshold(gray *image.Gray) *image.Gray {
	return GlobalThreshold(gray, OtsuLevel(gray))
}

// GlobalThreshold marks every pixel at or below level as ink.
func GlobalThreshold(gray *image.Gray, level uint8) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, v := range src {
			if v <= level {
				dst[x] = 255
			}
		}
	}
	return out
}

// Binarize applies p to gray and returns an ink=255 binary image.
func Binarize(gray *image.Gray, p ThresholdParams) *image.Gray {
	switch {
	case p.Adaptive && p.Mean:
		return AdaptiveMeanThreshold(gray, p.BlockSize, p.C)
	case p.Adaptive:
		return AdaptiveThreshold(gray, p.BlockSize, p.C)
	}
	return OtsuThreshold(gray)
}
