package omr

import (
	"image"
	"image/draw"
	"testing"

	"github.com/ironsheep/omr-scan-mcp/internal/geometry"
	"github.com/ironsheep/omr-scan-mcp/internal/imaging"
	"github.com/ironsheep/omr-scan-mcp/internal/layout"
)

// smallFiducial is the fiducial layout read at 4 px/mm, which keeps test
// images under a megapixel.
func smallFiducial() layout.Layout {
	l := layout.Fiducial()
	l.Page.ScaleFactor = 4
	return l
}

func renderSheet(t *testing.T, l layout.Layout, answers AnswerMap) *image.Gray {
	t.Helper()
	img, err := RenderSheet(l, answers)
	if err != nil {
		t.Fatalf("RenderSheet() error: %v", err)
	}
	return img
}

// photograph projects sheet into a size image so that its corners land on
// tl, tr, bl and br, simulating a handheld shot.
func photograph(t *testing.T, sheet *image.Gray, size image.Point, tl, tr, bl, br geometry.Point) *image.Gray {
	t.Helper()
	w, h := float64(sheet.Rect.Dx()-1), float64(sheet.Rect.Dy()-1)
	src := geometry.Quad{geometry.Pt(0, 0), geometry.Pt(w, 0), geometry.Pt(0, h), geometry.Pt(w, h)}
	hom, err := geometry.EstimateHomography(src, geometry.Quad{tl, tr, bl, br})
	if err != nil {
		t.Fatalf("EstimateHomography() error: %v", err)
	}
	out, err := imaging.WarpPerspective(sheet, hom, size)
	if err != nil {
		t.Fatalf("WarpPerspective() error: %v", err)
	}
	return out
}

// crop copies r out of img into a zero-origin image.
func crop(img *image.Gray, r image.Rectangle) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Rect, img, r.Min, draw.Src)
	return out
}

func sampleAnswers(l layout.Layout) AnswerMap {
	m := make(AnswerMap)
	for q := 1; q <= l.Questions(); q++ {
		switch q % 7 {
		case 3:
			// left blank
		default:
			m[q] = (q * 3) % l.Options
		}
	}
	return m
}

func assertAnswers(t *testing.T, got, want AnswerMap) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("decoded %d answers, want %d\n got: %v\nwant: %v", len(got), len(want), got, want)
	}
	for q, o := range want {
		if g, ok := got[q]; !ok {
			t.Errorf("question %d: unanswered, want %s", q, OptionLetter(o))
		} else if g != o {
			t.Errorf("question %d: got %s, want %s", q, OptionLetter(g), OptionLetter(o))
		}
	}
}
