package layout

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinLayoutsValidate(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			l, err := ByName(name)
			if err != nil {
				t.Fatalf("ByName(%q) error: %v", name, err)
			}
			if err := l.Validate(); err != nil {
				t.Errorf("Validate() error: %v", err)
			}
			if l.Questions() != 45 {
				t.Errorf("Questions() = %d, want 45", l.Questions())
			}
		})
	}

	if _, err := ByName("nope"); err == nil {
		t.Error("ByName(nope) should fail")
	}
}

func TestFiducialGeometry(t *testing.T) {
	l := Fiducial()

	w, h := l.CanonicalSize()
	if w != 2100 || h != 2970 {
		t.Errorf("CanonicalSize() = %dx%d, want 2100x2970", w, h)
	}

	a := l.CanonicalAnchors()
	if a[0].X != 225 || a[0].Y != 225 || a[3].X != 1875 || a[3].Y != 2745 {
		t.Errorf("CanonicalAnchors() = %v", a)
	}

	// Q1 option A sits at (20+25, 110+3) mm.
	c := l.BubbleCenter(0, 0, 0)
	if math.Abs(c.X-450) > 1e-9 || math.Abs(c.Y-1130) > 1e-9 {
		t.Errorf("BubbleCenter(0,0,0) = %v, want (450,1130)", c)
	}

	// Q45 option E: last column, last row.
	c = l.BubbleCenter(2, 14, 4)
	wantX := (20 + 2*(170.0/3) + 25 + 32) * 10
	wantY := (110 + 14*9 + 3.0) * 10
	if math.Abs(c.X-wantX) > 1e-9 || math.Abs(c.Y-wantY) > 1e-9 {
		t.Errorf("BubbleCenter(2,14,4) = %v, want (%f,%f)", c, wantX, wantY)
	}

	if q := l.QuestionNumber(2, 14); q != 45 {
		t.Errorf("QuestionNumber(2,14) = %d, want 45", q)
	}
	if q := l.QuestionNumber(1, 0); q != 16 {
		t.Errorf("QuestionNumber(1,0) = %d, want 16", q)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Layout)
	}{
		{"even block size", func(l *Layout) { l.Detection.ThresholdBlockSize = 10 }},
		{"even decode block", func(l *Layout) { l.Decode.BlockSizeMM = 0; l.Decode.BlockSize = 10 }},
		{"unknown binarization", func(l *Layout) { l.Decode.Binarization = "sauvola" }},
		{"no fill rule", func(l *Layout) { l.Decode.FillRatio = 0; l.Decode.FillThreshold = 0 }},
		{"three fiducials", func(l *Layout) { l.Detection.ExpectedCount = 3 }},
		{"area window inverted", func(l *Layout) { l.Detection.MaxAreaRatio = 0.0001 }},
		{"unknown kind", func(l *Layout) { l.Kind = "hexagon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Fiducial()
			tt.mutate(&l)
			if err := l.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}

	tbl := Table()
	tbl.Table.Cols = 5
	if err := tbl.Validate(); err == nil {
		t.Error("Validate() should reject a table grid without room for 5 options")
	}
}

func TestLoadOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layout.json")
	data := `{"name":"table-3x15","decode":{"binarization":"otsu","fill_threshold":55}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := Load(path, Fiducial())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if l.Kind != KindTable {
		t.Errorf("Kind = %s, want table", l.Kind)
	}
	if l.Decode.FillThreshold != 55 {
		t.Errorf("FillThreshold = %d, want 55", l.Decode.FillThreshold)
	}
	if l.Table.Rows != 16 {
		t.Errorf("Table.Rows = %d, want 16 from the built-in", l.Table.Rows)
	}

	out := filepath.Join(dir, "saved.json")
	if err := l.Save(out); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	again, err := Load(out, Fiducial())
	if err != nil {
		t.Fatalf("Load(saved) error: %v", err)
	}
	if again.Decode.FillThreshold != 55 || again.Name != l.Name {
		t.Errorf("saved layout lost fields: %+v", again.Decode)
	}
}

func TestDecodeBlockSize(t *testing.T) {
	tests := []struct {
		name string
		l    func() Layout
		want int
	}{
		{"fiducial at 10 px/mm", Fiducial, 81},
		{"fiducial at 4 px/mm", func() Layout { l := Fiducial(); l.Page.ScaleFactor = 4; return l }, 33},
		{"fiducial in pixels", func() Layout { l := Fiducial(); l.Decode.BlockSizeMM = 0; l.Decode.BlockSize = 15; return l }, 15},
		{"table", Table, 31},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.l().DecodeBlockSize(); got != tt.want {
				t.Errorf("DecodeBlockSize() = %d, want %d", got, tt.want)
			}
		})
	}
}
