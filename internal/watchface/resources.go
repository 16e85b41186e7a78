package watchface

import (
	"image/color"

	"github.com/kjstillabower/sunshine-wear/internal/render"
)

// Resources are the face's dimensions, colors and typefaces. Sizes are in
// pixels at the surface's density.
type Resources struct {
	Background  color.Color
	DigitalText color.Color
	DarkText    color.Color

	TextSizeSquare float64
	TextSizeRound  float64
	TempTextSize   float64
	DateTextSize   float64
	XMargin        float64

	MarginRatioSquare float64
	MarginRatioRound  float64

	Normal *render.Typeface
	Light  *render.Typeface
}

// DefaultResources returns the stock look with the given typefaces. nil
// typefaces fall back to a fixed bitmap face.
func DefaultResources(normal, light *render.Typeface) Resources {
	return Resources{
		Background:        color.RGBA{0x03, 0xA9, 0xF4, 0xFF},
		DigitalText:       color.White,
		DarkText:          color.RGBA{0xB3, 0xE5, 0xFC, 0xFF},
		TextSizeSquare:    40,
		TextSizeRound:     45,
		TempTextSize:      24,
		DateTextSize:      16,
		XMargin:           10,
		MarginRatioSquare: 0.02,
		MarginRatioRound:  0.06,
		Normal:            normal,
		Light:             light,
	}
}
