package watchface

import (
	"time"

	"github.com/kjstillabower/sunshine-wear/internal/observability"
	"github.com/kjstillabower/sunshine-wear/internal/render"
)

// Draw renders one frame. Ambient frames show only the time on black, nudged
// each minute when the screen needs burn-in protection.
func (e *Engine) Draw(c render.Canvas) {
	start := time.Now()
	mode := "interactive"
	if e.ambient {
		mode = "ambient"
	}
	e.layout.draw(c, e.Now(), e.ambient, e.burnIn, e.display)
	observability.WatchFramesRenderedTotal.WithLabelValues(mode).Inc()
	observability.WatchFrameRenderSeconds.Observe(time.Since(start).Seconds())
}
