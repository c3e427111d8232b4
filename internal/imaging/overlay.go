package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MarkKind selects the colour an annotation is drawn in.
type MarkKind int

const (
	// MarkDetected is a bubble read as filled, with no grading context.
	MarkDetected MarkKind = iota
	// MarkCorrect is a filled bubble matching the key.
	MarkCorrect
	// MarkIncorrect is a filled bubble that does not match the key.
	MarkIncorrect
	// MarkExpected is the key's answer where the student chose differently or not at all.
	MarkExpected
	// MarkSampled outlines a sampled region that was read as empty.
	MarkSampled
)

// Palette maps each MarkKind to a display colour.
type Palette map[MarkKind]colorful.Color

// DefaultPalette returns the colours used when none are supplied.
func DefaultPalette() Palette {
	mustHex := func(s string) colorful.Color {
		c, err := colorful.Hex(s)
		if err != nil {
			panic(err)
		}
		return c
	}
	return Palette{
		MarkDetected:  mustHex("#1e90ff"),
		MarkCorrect:   mustHex("#2ecc71"),
		MarkIncorrect: mustHex("#e74c3c"),
		MarkExpected:  mustHex("#f39c12"),
		MarkSampled:   mustHex("#95a5a6"),
	}
}

// Annotation is one box drawn over a rectified sheet.
type Annotation struct {
	Rect  image.Rectangle
	Kind  MarkKind
	Label string
}

// tint is how strongly a box's interior is blended toward its colour.
const tint = 0.35

// Annotate draws boxes and labels over a copy of base. Filled kinds get a
// translucent tint blended in Lab space so pencil marks stay visible;
// MarkSampled boxes are outlined only.
func Annotate(base image.Image, notes []Annotation, pal Palette) *image.RGBA {
	if pal == nil {
		pal = DefaultPalette()
	}
	b := base.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Rect, base, b.Min, draw.Src)

	for _, n := range notes {
		c, ok := pal[n.Kind]
		if !ok {
			c = pal[MarkDetected]
		}
		r := n.Rect.Intersect(out.Rect)
		if r.Empty() {
			continue
		}
		if n.Kind != MarkSampled {
			fillTinted(out, r, c)
		}
		strokeRect(out, r, c)
		if n.Label != "" {
			DrawText(out, r.Max.X+2, r.Max.Y-1, n.Label, c)
		}
	}
	return out
}

func fillTinted(img *image.RGBA, r image.Rectangle, c colorful.Color) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			px, ok := colorful.MakeColor(img.RGBAAt(x, y))
			if !ok {
				continue
			}
			img.Set(x, y, px.BlendLab(c, tint).Clamped())
		}
	}
}

func strokeRect(img *image.RGBA, r image.Rectangle, c colorful.Color) {
	col := color.RGBAModel.Convert(c).(color.RGBA)
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetRGBA(x, r.Min.Y, col)
		img.SetRGBA(x, r.Max.Y-1, col)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetRGBA(r.Min.X, y, col)
		img.SetRGBA(r.Max.X-1, y, col)
	}
}

// DrawText writes text in the 7x13 basic font with its baseline at (x, y).
func DrawText(img draw.Image, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// EncodedImage is a PNG returned inline to MCP clients.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG encodes img as a base64 PNG.
func EncodePNG(img image.Image) (*EncodedImage, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	b := img.Bounds()
	return &EncodedImage{
		Width:       b.Dx(),
		Height:      b.Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
