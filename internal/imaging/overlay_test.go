package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"testing"
)

func TestAnnotate(t *testing.T) {
	base := createGrayImage(100, 60, 255)
	notes := []Annotation{
		{Rect: image.Rect(10, 10, 30, 30), Kind: MarkCorrect, Label: "A"},
		{Rect: image.Rect(50, 10, 70, 30), Kind: MarkSampled},
		{Rect: image.Rect(90, 50, 130, 90), Kind: MarkIncorrect},
	}

	out := Annotate(base, notes, nil)
	if out.Rect != base.Rect {
		t.Fatalf("Annotate() size = %v, want %v", out.Rect, base.Rect)
	}

	// Outline pixels take the kind's colour; correct is green.
	c := out.RGBAAt(10, 20)
	if c.G <= c.R || c.G <= c.B {
		t.Errorf("correct outline colour = %v, want green-dominant", c)
	}
	// The interior is tinted, not replaced.
	in := out.RGBAAt(20, 20)
	if in.R == 255 && in.G == 255 && in.B == 255 {
		t.Error("interior of a filled mark should be tinted")
	}
	// Sampled boxes are only outlined.
	if in := out.RGBAAt(60, 20); in.R != 255 || in.G != 255 || in.B != 255 {
		t.Errorf("interior of a sampled box = %v, want untouched white", in)
	}
	// Boxes overhanging the edge are clipped, not dropped.
	if c := out.RGBAAt(90, 55); c.R <= c.G {
		t.Errorf("clipped incorrect outline = %v, want red-dominant", c)
	}
}

func TestEncodePNG(t *testing.T) {
	enc, err := EncodePNG(createGrayImage(8, 4, 0))
	if err != nil {
		t.Fatalf("EncodePNG() error: %v", err)
	}
	if enc.Width != 8 || enc.Height != 4 || enc.MimeType != "image/png" {
		t.Errorf("EncodePNG() = %+v", enc)
	}
	raw, err := base64.StdEncoding.DecodeString(enc.ImageBase64)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("encoded PNG does not decode: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Errorf("decoded size = %v", img.Bounds())
	}
}
