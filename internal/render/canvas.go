package render

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Canvas is a drawing target. Text y is the baseline.
type Canvas interface {
	Width() int
	Height() int
	DrawColor(c color.Color)
	DrawRect(x, y, w, h float64, p *Paint)
	DrawText(text string, x, y float64, p *Paint)
	DrawLine(x0, y0, x1, y1 float64, p *Paint)
	DrawImage(img image.Image, x, y float64)
}

// ImageCanvas rasterizes into an RGBA image.
type ImageCanvas struct {
	dc *gg.Context
}

var _ Canvas = (*ImageCanvas)(nil)

// NewImageCanvas allocates a w x h canvas.
func NewImageCanvas(w, h int) *ImageCanvas {
	return &ImageCanvas{dc: gg.NewContext(w, h)}
}

func (c *ImageCanvas) Width() int  { return c.dc.Width() }
func (c *ImageCanvas) Height() int { return c.dc.Height() }

func (c *ImageCanvas) DrawColor(col color.Color) {
	c.dc.SetColor(col)
	c.dc.Clear()
}

func (c *ImageCanvas) DrawRect(x, y, w, h float64, p *Paint) {
	c.dc.SetColor(p.Color)
	c.dc.DrawRectangle(x, y, w, h)
	c.dc.Fill()
}

func (c *ImageCanvas) DrawLine(x0, y0, x1, y1 float64, p *Paint) {
	width := p.StrokeWidth
	if width <= 0 {
		width = 1
	}
	c.dc.SetColor(p.Color)
	c.dc.SetLineWidth(width)
	c.dc.DrawLine(x0, y0, x1, y1)
	c.dc.Stroke()
}

func (c *ImageCanvas) DrawImage(img image.Image, x, y float64) {
	if img == nil {
		return
	}
	c.dc.DrawImage(img, int(x), int(y))
}

// DrawText draws text with its baseline at y. Without anti-aliasing, glyph
// coverage is thresholded so every pixel is either fully on or off.
func (c *ImageCanvas) DrawText(text string, x, y float64, p *Paint) {
	face, err := p.Face()
	if err != nil {
		return
	}
	if p.AntiAlias {
		c.dc.SetFontFace(face)
		c.dc.SetColor(p.Color)
		c.dc.DrawString(text, x, y)
		return
	}

	dst, ok := c.dc.Image().(*image.RGBA)
	if !ok {
		return
	}
	mask := image.NewAlpha(dst.Bounds())
	d := font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.Point26_6{X: toFixed(x), Y: toFixed(y)},
	}
	d.DrawString(text)
	for i, a := range mask.Pix {
		if a >= 0x80 {
			mask.Pix[i] = 0xFF
		} else {
			mask.Pix[i] = 0
		}
	}
	draw.DrawMask(dst, dst.Bounds(), image.NewUniform(p.Color), image.Point{}, mask, dst.Bounds().Min, draw.Over)
}

// Image returns the backing image.
func (c *ImageCanvas) Image() image.Image {
	return c.dc.Image()
}

// EncodePNG writes the current frame as PNG.
func (c *ImageCanvas) EncodePNG(w io.Writer) error {
	return png.Encode(w, c.dc.Image())
}
