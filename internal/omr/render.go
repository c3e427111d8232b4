package omr

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/ironsheep/omr-scan-mcp/internal/imaging"
	"github.com/ironsheep/omr-scan-mcp/internal/layout"
)

const (
	paper = 255
	ink   = 0

	// tableGap separates rendered tables from each other and the page edge.
	tableGap = 60
)

// RenderSheet draws a printable sheet for l with the given answers filled
// in. A nil or empty map renders a blank sheet. Fiducial sheets are drawn at
// the layout's canonical scale; table sheets at their reference cell size.
func RenderSheet(l layout.Layout, answers AnswerMap) (*image.Gray, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if err := answers.Validate(l.Questions(), l.Options); err != nil {
		return nil, err
	}
	switch l.Kind {
	case layout.KindFiducial:
		return renderFiducial(l, answers), nil
	case layout.KindTable:
		return renderTables(l, answers), nil
	}
	return nil, fmt.Errorf("render: %w: %s", ErrWrongLayout, l.Kind)
}

func blankCanvas(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = paper
	}
	return img
}

func fillBox(img *image.Gray, r image.Rectangle) {
	r = r.Intersect(img.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := img.Pix[y*img.Stride:]
		for x := r.Min.X; x < r.Max.X; x++ {
			row[x] = ink
		}
	}
}

// drawCircle inks every pixel whose distance from (cx, cy) lies in [inner, outer].
func drawCircle(img *image.Gray, cx, cy, inner, outer float64) {
	r := image.Rect(int(cx-outer)-1, int(cy-outer)-1, int(cx+outer)+2, int(cy+outer)+2).Intersect(img.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			if d >= inner && d <= outer {
				img.Pix[y*img.Stride+x] = ink
			}
		}
	}
}

func renderFiducial(l layout.Layout, answers AnswerMap) *image.Gray {
	w, h := l.CanonicalSize()
	img := blankCanvas(w, h)
	s := l.Page.ScaleFactor

	half := int(math.Round(l.Page.MarkerSizeMM * s / 2))
	for _, a := range l.CanonicalAnchors() {
		cx, cy := int(math.Round(a.X)), int(math.Round(a.Y))
		fillBox(img, image.Rect(cx-half, cy-half, cx+half+1, cy+half+1))
	}

	ringR := l.Page.BubbleRadiusMM * s
	stroke := math.Max(1, 0.25*s)
	dotR := 0.85 * ringR
	black := color.Gray{Y: ink}

	for col := 0; col < l.Columns; col++ {
		for row := 0; row < l.RowsPerColumn; row++ {
			q := l.QuestionNumber(col, row)
			first := l.BubbleCenter(col, row, 0)
			label := strconv.Itoa(q)
			imaging.DrawText(img, int(first.X-l.Page.BubblePitchMM*s), int(first.Y+5), label, black)

			for opt := 0; opt < l.Options; opt++ {
				c := l.BubbleCenter(col, row, opt)
				drawCircle(img, c.X, c.Y, ringR-stroke/2, ringR+stroke/2)
				if got, ok := answers[q]; ok && got == opt {
					drawCircle(img, c.X, c.Y, 0, dotR)
				}
			}
		}
	}
	return img
}

// TableCanvasSize returns the size of a rendered table sheet and the pixel
// size of one table.
func TableCanvasSize(l layout.Layout) (canvas, table image.Point) {
	g := l.Table
	table = image.Pt(g.Cols*g.CellWidthPx, g.Rows*g.CellHeightPx)
	canvas = image.Pt(l.Columns*table.X+(l.Columns+1)*tableGap, table.Y+2*tableGap)
	return canvas, table
}

func renderTables(l layout.Layout, answers AnswerMap) *image.Gray {
	g := l.Table
	canvas, size := TableCanvasSize(l)
	img := blankCanvas(canvas.X, canvas.Y)
	black := color.Gray{Y: ink}
	cw, ch := g.CellWidthPx, g.CellHeightPx

	for t := 0; t < l.Columns; t++ {
		x0 := tableGap + t*(size.X+tableGap)
		y0 := tableGap

		// Grid lines two pixels wide, centred on each cell boundary.
		for c := 0; c <= g.Cols; c++ {
			x := x0 + c*cw
			fillBox(img, image.Rect(x-1, y0-1, x+1, y0+size.Y+1))
		}
		for r := 0; r <= g.Rows; r++ {
			y := y0 + r*ch
			fillBox(img, image.Rect(x0-1, y-1, x0+size.X+1, y+1))
		}

		for opt := 0; opt < l.Options; opt++ {
			x := x0 + (g.LabelCols+opt)*cw + cw/2 - 3
			imaging.DrawText(img, x, y0+ch-7, OptionLetter(opt), black)
		}

		insetX, insetY := cw/4, ch/4
		for row := 0; row < l.RowsPerColumn; row++ {
			q := l.QuestionNumber(t, row)
			y := y0 + (g.HeaderRows+row)*ch
			imaging.DrawText(img, x0+4, y+ch-7, strconv.Itoa(q), black)

			if opt, ok := answers[q]; ok {
				x := x0 + (g.LabelCols+opt)*cw
				fillBox(img, image.Rect(x+insetX, y+insetY, x+cw-insetX, y+ch-insetY))
			}
		}
	}
	return img
}
