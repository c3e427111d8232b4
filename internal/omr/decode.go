package omr

import (
	"image"
	"math"

	"github.com/ironsheep/omr-scan-mcp/internal/imaging"
	"github.com/ironsheep/omr-scan-mcp/internal/layout"
)

// Reading records how one question was decided.
type Reading struct {
	Question int `json:"question"`

	// Option is the chosen option index, or Unanswered.
	Option int `json:"option"`

	// Counts holds the ink pixel count sampled for each option.
	Counts []int `json:"counts"`

	// Threshold is the count an option had to exceed.
	Threshold int `json:"threshold"`

	// Sheet is the index of the rectified image the question was read from.
	Sheet int `json:"sheet"`

	// Regions are the sampled rectangles in that image's coordinates.
	Regions []image.Rectangle `json:"-"`
}

// decide picks the option with the most ink and accepts it only when that
// count exceeds threshold. On equal counts the lowest option index wins.
func decide(counts []int, threshold int) int {
	if len(counts) == 0 {
		return Unanswered
	}
	best := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[best] {
			best = i
		}
	}
	if counts[best] > threshold {
		return best
	}
	return Unanswered
}

func fillThreshold(d layout.DecodeProfile, area int) int {
	if d.FillThreshold > 0 {
		return d.FillThreshold
	}
	return int(math.Ceil(d.FillRatio * float64(area)))
}

// DecodeSheet reads every question of a rectified fiducial sheet. Each option
// is sampled in a square of side 2*SampleRadiusMM centred on its bubble and
// counted with b.
func DecodeSheet(b imaging.Backend, bin *image.Gray, l layout.Layout) (AnswerMap, []Reading) {
	answers := make(AnswerMap)
	readings := make([]Reading, 0, l.Questions())
	r := l.Page.SampleRadiusMM * l.Page.ScaleFactor

	for col := 0; col < l.Columns; col++ {
		for row := 0; row < l.RowsPerColumn; row++ {
			rd := Reading{
				Question: l.QuestionNumber(col, row),
				Counts:   make([]int, l.Options),
				Regions:  make([]image.Rectangle, l.Options),
			}
			for opt := 0; opt < l.Options; opt++ {
				c := l.BubbleCenter(col, row, opt)
				roi := image.Rect(
					int(math.Round(c.X-r)), int(math.Round(c.Y-r)),
					int(math.Round(c.X+r)), int(math.Round(c.Y+r)),
				)
				rd.Regions[opt] = roi
				rd.Counts[opt] = b.CountNonZero(bin, roi)
				if opt == 0 {
					rd.Threshold = fillThreshold(l.Decode, roi.Dx()*roi.Dy())
				}
			}
			rd.Option = decide(rd.Counts, rd.Threshold)
			if rd.Option != Unanswered {
				answers[rd.Question] = rd.Option
			}
			readings = append(readings, rd)
		}
	}
	return answers, readings
}

// DecodeTable reads one rectified answer table. Cell pitch is the table's
// pixel size divided by the grid's row and column counts; header rows and
// label columns are skipped and every sampled cell is inset by MarginPx.
// table is the zero-based position of the table from the left.
func DecodeTable(b imaging.Backend, bin *image.Gray, table int, l layout.Layout) (AnswerMap, []Reading) {
	g := l.Table
	w, h := float64(bin.Rect.Dx()), float64(bin.Rect.Dy())
	cellW, cellH := w/float64(g.Cols), h/float64(g.Rows)
	m := g.MarginPx

	answers := make(AnswerMap)
	readings := make([]Reading, 0, l.RowsPerColumn)
	for row := g.HeaderRows; row < g.Rows; row++ {
		rd := Reading{
			Question: l.QuestionNumber(table, row-g.HeaderRows),
			Counts:   make([]int, l.Options),
			Sheet:    table,
			Regions:  make([]image.Rectangle, l.Options),
		}
		for opt := 0; opt < l.Options; opt++ {
			col := g.LabelCols + opt
			x0 := int(math.Floor(float64(col)*cellW)) + m
			y0 := int(math.Floor(float64(row)*cellH)) + m
			x1 := int(math.Floor(float64(col+1)*cellW)) - m
			y1 := int(math.Floor(float64(row+1)*cellH)) - m
			if x1 <= x0 || y1 <= y0 {
				// Cell thinner than both margins: nothing to sample.
				continue
			}
			roi := image.Rect(x0, y0, x1, y1)
			rd.Regions[opt] = roi
			rd.Counts[opt] = b.CountNonZero(bin, roi)
		}
		rd.Threshold = fillThreshold(l.Decode, rd.Regions[0].Dx()*rd.Regions[0].Dy())
		rd.Option = decide(rd.Counts, rd.Threshold)
		if rd.Option != Unanswered {
			answers[rd.Question] = rd.Option
		}
		readings = append(readings, rd)
	}
	return answers, readings
}
