package watchface

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"github.com/kjstillabower/sunshine-wear/internal/icons"
	"github.com/kjstillabower/sunshine-wear/internal/models"
	"github.com/kjstillabower/sunshine-wear/internal/render"
)

// Text layouts.
const (
	TimeFormat = "%02d:%02d"
	DateLayout = "Mon, Jan 02 2006"

	// timeTemplate fixes the clock's x so digits do not shift each minute.
	timeTemplate = "00:00"

	// burnInShift is how far, in pixels, the ambient clock wanders on
	// burn-in sensitive screens.
	burnInShift = 2.0
)

// layout holds the paints and geometry. Positions use integer fractions of
// the surface size, matching how the face was first designed on devices.
type layout struct {
	res           Resources
	width, height int
	marginRatio   float64

	background *render.Paint
	timeText   *render.Paint
	date       *render.Paint
	high       *render.Paint
	low        *render.Paint

	xOffset      float64
	xOffsetValid bool
}

func newLayout(res Resources) *layout {
	return &layout{
		res:         res,
		marginRatio: res.MarginRatioRound,
		background:  &render.Paint{Color: res.Background},
		timeText:    render.NewTextPaint(res.DigitalText, res.Normal, res.TextSizeRound),
		date:        render.NewTextPaint(res.DarkText, res.Light, res.DateTextSize),
		high:        render.NewTextPaint(res.DarkText, res.Normal, res.TempTextSize),
		low:         render.NewTextPaint(res.DarkText, res.Light, res.TempTextSize),
	}
}

func (l *layout) resize(width, height int) {
	l.width, l.height = width, height
	l.xOffsetValid = false
}

func (l *layout) applyShape(round bool) {
	if round {
		l.timeText.TextSize = l.res.TextSizeRound
		l.marginRatio = l.res.MarginRatioRound
	} else {
		l.timeText.TextSize = l.res.TextSizeSquare
		l.marginRatio = l.res.MarginRatioSquare
	}
	l.xOffsetValid = false
}

func (l *layout) setAntiAlias(on bool) {
	l.timeText.AntiAlias = on
}

func (l *layout) timeX() float64 {
	if !l.xOffsetValid {
		l.xOffset = render.XToDrawTextCentered(timeTemplate, float64(l.width/2), l.timeText)
		l.xOffsetValid = true
	}
	return l.xOffset
}

func (l *layout) draw(c render.Canvas, now time.Time, ambient, burnIn bool, st models.WatchDisplayState) {
	if l.width == 0 || l.height == 0 {
		l.resize(c.Width(), c.Height())
	}
	w, h := l.width, l.height

	if ambient {
		c.DrawColor(color.Black)
	} else {
		c.DrawRect(0, 0, float64(c.Width()), float64(c.Height()), l.background)
	}

	yMargin := float64(h) * l.marginRatio

	clock := fmt.Sprintf(TimeFormat, now.Hour(), now.Minute())
	x, y := l.timeX(), float64(h*2/5)-yMargin
	if ambient && burnIn {
		dx, dy := burnInOffset(now)
		x, y = x+dx, y+dy
	}
	c.DrawText(clock, x, y, l.timeText)

	if ambient {
		return
	}

	centerX := float64(w / 2)
	date := now.Format(DateLayout)
	c.DrawText(date, render.XToDrawTextCentered(date, centerX, l.date), float64(h*3/5)-yMargin, l.date)

	// Rule across the middle fifth at three fifths down.
	startX := float64(w * 2 / 5)
	lineY := float64(h * 3 / 5)
	c.DrawLine(startX, lineY, startX+float64(w/5), lineY, l.timeText)

	textHeight := l.high.TextBounds(st.HighTemp).Height()
	tempY := math.Round(lineY) + yMargin + textHeight
	c.DrawText(st.HighTemp, render.XToDrawTextCentered(st.HighTemp, centerX, l.high), tempY, l.high)

	lowX := render.XToDrawTextCentered(st.LowTemp, float64(w*3/4), l.low) + l.res.XMargin
	c.DrawText(st.LowTemp, lowX, tempY, l.low)

	if st.IconResource > 0 {
		img := icons.Image(icons.Resource(st.IconResource))
		if img == nil {
			return
		}
		b := img.Bounds()
		iw, ih := float64(b.Dx()), float64(b.Dy())
		x := float64(w/4) - iw/2 - l.res.XMargin
		y := tempY - textHeight/2 - ih/2
		c.DrawImage(img, x, y)
	}
}

// burnInOffset moves the clock around a 3x3 pixel grid, one step per minute,
// so no pixel stays lit for the whole ambient period.
func burnInOffset(now time.Time) (dx, dy float64) {
	m := now.Minute()
	return float64(m%3-1) * burnInShift, float64((m/3)%3-1) * burnInShift
}
