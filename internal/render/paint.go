// Package render draws watch face frames: paints, typefaces, text metrics and
// a raster canvas.
package render

import (
	"fmt"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Typeface is a parsed scalable font.
type Typeface struct {
	Name string
	font *opentype.Font
}

// ParseTypeface parses TrueType or OpenType data.
func ParseTypeface(name string, data []byte) (*Typeface, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse typeface %s: %w", name, err)
	}
	return &Typeface{Name: name, font: f}, nil
}

// LoadTypefaces returns the watch face's normal (Go Medium) and light (Go
// Regular) typefaces.
func LoadTypefaces() (normal, light *Typeface, err error) {
	normal, err = ParseTypeface("go-medium", gomedium.TTF)
	if err != nil {
		return nil, nil, err
	}
	light, err = ParseTypeface("go-regular", goregular.TTF)
	if err != nil {
		return nil, nil, err
	}
	return normal, light, nil
}

// Bounds is a text bounding box relative to the drawing origin on the
// baseline. Top is negative above the baseline.
type Bounds struct {
	Left, Top, Right, Bottom float64
}

func (b Bounds) Width() float64  { return b.Right - b.Left }
func (b Bounds) Height() float64 { return b.Bottom - b.Top }

// TextMeasurer reports the advance width of a string.
type TextMeasurer interface {
	MeasureText(text string) float64
}

// Paint holds style for drawing. A nil Typeface falls back to a fixed 7x13
// bitmap face that ignores TextSize. Not safe for concurrent use.
type Paint struct {
	Color       color.Color
	Typeface    *Typeface
	TextSize    float64
	AntiAlias   bool
	StrokeWidth float64

	face    font.Face
	faceKey faceKey
	faceErr error
	hasFace bool
}

type faceKey struct {
	tf   *Typeface
	size float64
}

// NewTextPaint returns an anti-aliased text paint.
func NewTextPaint(c color.Color, tf *Typeface, size float64) *Paint {
	return &Paint{Color: c, Typeface: tf, TextSize: size, AntiAlias: true}
}

// Face returns the font face for the current typeface and size.
func (p *Paint) Face() (font.Face, error) {
	key := faceKey{p.Typeface, p.TextSize}
	if p.hasFace && p.faceKey == key {
		return p.face, p.faceErr
	}
	p.faceKey, p.hasFace = key, true
	if p.Typeface == nil || p.TextSize <= 0 {
		p.face, p.faceErr = basicfont.Face7x13, nil
		return p.face, nil
	}
	p.face, p.faceErr = opentype.NewFace(p.Typeface.font, &opentype.FaceOptions{
		Size:    p.TextSize,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if p.faceErr != nil {
		p.faceErr = fmt.Errorf("face %s@%.1f: %w", p.Typeface.Name, p.TextSize, p.faceErr)
	}
	return p.face, p.faceErr
}

// MeasureText returns the advance width of text in pixels, or 0 if the face
// cannot be built.
func (p *Paint) MeasureText(text string) float64 {
	face, err := p.Face()
	if err != nil {
		return 0
	}
	return fromFixed(font.MeasureString(face, text))
}

// TextBounds returns the ink bounds of text.
func (p *Paint) TextBounds(text string) Bounds {
	face, err := p.Face()
	if err != nil {
		return Bounds{}
	}
	b, _ := font.BoundString(face, text)
	return Bounds{
		Left:   fromFixed(b.Min.X),
		Top:    fromFixed(b.Min.Y),
		Right:  fromFixed(b.Max.X),
		Bottom: fromFixed(b.Max.Y),
	}
}

// XToDrawTextCentered returns the left x that centers text on centerX.
func XToDrawTextCentered(text string, centerX float64, m TextMeasurer) float64 {
	return centerX - m.MeasureText(text)/2
}

func fromFixed(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(v * 64)
}
