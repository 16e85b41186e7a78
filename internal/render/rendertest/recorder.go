// Package rendertest records canvas calls for layout assertions.
package rendertest

import (
	"image"
	"image/color"

	"github.com/kjstillabower/sunshine-wear/internal/render"
)

// Op is one recorded draw call.
type Op struct {
	Kind   string // color, rect, text, line, image
	Text   string
	X, Y   float64
	X1, Y1 float64
	Color  color.Color
	Paint  render.Paint
	Image  image.Image
}

// Canvas records draw calls without rasterizing.
type Canvas struct {
	W, H int
	Ops  []Op
}

var _ render.Canvas = (*Canvas)(nil)

func NewCanvas(w, h int) *Canvas { return &Canvas{W: w, H: h} }

func (c *Canvas) Width() int  { return c.W }
func (c *Canvas) Height() int { return c.H }

func (c *Canvas) DrawColor(col color.Color) {
	c.Ops = append(c.Ops, Op{Kind: "color", Color: col})
}

func (c *Canvas) DrawRect(x, y, w, h float64, p *render.Paint) {
	c.Ops = append(c.Ops, Op{Kind: "rect", X: x, Y: y, X1: x + w, Y1: y + h, Color: p.Color, Paint: snapshot(p)})
}

func (c *Canvas) DrawText(text string, x, y float64, p *render.Paint) {
	c.Ops = append(c.Ops, Op{Kind: "text", Text: text, X: x, Y: y, Color: p.Color, Paint: snapshot(p)})
}

func (c *Canvas) DrawLine(x0, y0, x1, y1 float64, p *render.Paint) {
	c.Ops = append(c.Ops, Op{Kind: "line", X: x0, Y: y0, X1: x1, Y1: y1, Color: p.Color, Paint: snapshot(p)})
}

func (c *Canvas) DrawImage(img image.Image, x, y float64) {
	c.Ops = append(c.Ops, Op{Kind: "image", X: x, Y: y, Image: img})
}

// Texts returns the recorded text ops in order.
func (c *Canvas) Texts() []Op {
	return c.kind("text")
}

// Find returns the first op of kind, and for text ops the first with text.
func (c *Canvas) Find(kind, text string) (Op, bool) {
	for _, op := range c.Ops {
		if op.Kind == kind && (kind != "text" || text == "" || op.Text == text) {
			return op, true
		}
	}
	return Op{}, false
}

// Count returns the number of ops of kind.
func (c *Canvas) Count(kind string) int {
	return len(c.kind(kind))
}

func (c *Canvas) kind(kind string) []Op {
	var out []Op
	for _, op := range c.Ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

func snapshot(p *render.Paint) render.Paint {
	return render.Paint{
		Color:       p.Color,
		Typeface:    p.Typeface,
		TextSize:    p.TextSize,
		AntiAlias:   p.AntiAlias,
		StrokeWidth: p.StrokeWidth,
	}
}
