package icons

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/fogleman/gg"
)

// Size is the edge length of every icon image, in pixels.
const Size = 48

var (
	sun   = color.RGBA{0xFF, 0xC1, 0x07, 0xFF}
	cloud = color.RGBA{0xEC, 0xEF, 0xF1, 0xFF}
	dark  = color.RGBA{0x90, 0xA4, 0xAE, 0xFF}
	drop  = color.RGBA{0x4F, 0xC3, 0xF7, 0xFF}
	flake = color.White
	bolt  = color.RGBA{0xFF, 0xEB, 0x3B, 0xFF}
	mist  = color.RGBA{0xB0, 0xBE, 0xC5, 0xFF}
)

var (
	artMu    sync.Mutex
	artCache = map[Resource]image.Image{}
)

// Image returns the icon for r, or nil for None and unknown resources.
// Images are drawn once and shared; callers must not modify them.
func Image(r Resource) image.Image {
	if _, ok := names[r]; !ok || r == None {
		return nil
	}
	artMu.Lock()
	defer artMu.Unlock()
	if img, ok := artCache[r]; ok {
		return img
	}
	img := draw(r)
	artCache[r] = img
	return img
}

func draw(r Resource) image.Image {
	dc := gg.NewContext(Size, Size)
	switch r {
	case Clear:
		drawSun(dc, 24, 24, 10)
	case LightClouds:
		drawSun(dc, 30, 16, 8)
		drawCloud(dc, 20, 30, cloud)
	case Cloudy:
		drawCloud(dc, 28, 20, dark)
		drawCloud(dc, 22, 28, cloud)
	case LightRain:
		drawCloud(dc, 24, 20, cloud)
		drawDrops(dc, []float64{18, 30}, 32)
	case Rain:
		drawCloud(dc, 24, 20, dark)
		drawDrops(dc, []float64{14, 22, 30, 38}, 32)
	case Snow:
		drawCloud(dc, 24, 20, cloud)
		for _, x := range []float64{16, 24, 32} {
			dc.SetColor(flake)
			dc.DrawCircle(x, 38, 2.5)
			dc.Fill()
		}
	case Storm:
		drawCloud(dc, 24, 18, dark)
		dc.SetColor(bolt)
		dc.MoveTo(26, 26)
		dc.LineTo(18, 38)
		dc.LineTo(24, 38)
		dc.LineTo(20, 46)
		dc.LineTo(32, 33)
		dc.LineTo(26, 33)
		dc.ClosePath()
		dc.Fill()
	case Fog:
		dc.SetColor(mist)
		dc.SetLineWidth(3)
		dc.SetLineCapRound()
		for i, y := range []float64{16, 24, 32} {
			off := float64(i%2) * 4
			dc.DrawLine(8+off, y, 40-off, y)
			dc.Stroke()
		}
	}
	return dc.Image()
}

func drawSun(dc *gg.Context, x, y, radius float64) {
	dc.SetColor(sun)
	dc.DrawCircle(x, y, radius)
	dc.Fill()
	dc.SetLineWidth(2)
	for i := 0; i < 8; i++ {
		a := float64(i) * math.Pi / 4
		dc.DrawLine(x+math.Cos(a)*(radius+3), y+math.Sin(a)*(radius+3),
			x+math.Cos(a)*(radius+7), y+math.Sin(a)*(radius+7))
		dc.Stroke()
	}
}

func drawCloud(dc *gg.Context, x, y float64, c color.Color) {
	dc.SetColor(c)
	dc.DrawCircle(x-8, y+2, 7)
	dc.DrawCircle(x, y-3, 9)
	dc.DrawCircle(x+9, y+2, 7)
	dc.DrawRoundedRectangle(x-15, y+1, 31, 8, 4)
	dc.Fill()
}

func drawDrops(dc *gg.Context, xs []float64, y float64) {
	dc.SetColor(drop)
	dc.SetLineWidth(2)
	dc.SetLineCapRound()
	for _, x := range xs {
		dc.DrawLine(x, y, x-3, y+8)
		dc.Stroke()
	}
}
