package watchface

import (
	"context"

	"github.com/kjstillabower/sunshine-wear/internal/models"
)

// ZoneSetter changes the device time zone by IANA name.
type ZoneSetter interface {
	SetName(name string) error
}

// Status is a snapshot of the engine for diagnostics.
type Status struct {
	State     string                   `json:"state"`
	Display   models.WatchDisplayState `json:"display"`
	Connected bool                     `json:"connected"`
}

// Controller drives host events from other goroutines by running them on
// the engine's looper.
type Controller struct {
	engine *Engine
	zones  ZoneSetter
}

func NewController(e *Engine, zones ZoneSetter) *Controller {
	return &Controller{engine: e, zones: zones}
}

func (c *Controller) run(ctx context.Context, fn func()) error {
	return c.engine.looper.Sync(ctx, fn)
}

func (c *Controller) SetVisible(ctx context.Context, visible bool) error {
	return c.run(ctx, func() { c.engine.VisibilityChanged(visible) })
}

func (c *Controller) SetAmbient(ctx context.Context, ambient bool) error {
	return c.run(ctx, func() { c.engine.AmbientModeChanged(ambient) })
}

func (c *Controller) TimeTick(ctx context.Context) error {
	return c.run(ctx, c.engine.TimeTick)
}

// SetTimeZone applies name; the engine hears about it through its TimeZones.
func (c *Controller) SetTimeZone(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.zones.SetName(name)
}

func (c *Controller) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.run(ctx, func() {
		st.State = c.engine.State().String()
		st.Display = c.engine.Display()
		st.Connected = c.engine.client != nil && c.engine.client.IsConnected()
	})
	return st, err
}
