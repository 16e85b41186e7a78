// Package watchface is the digital watch face: it keeps the last forecast
// received from the phone, persists it, and draws time, date and weather.
//
// Every Engine method, including the data layer callbacks, must run on the
// engine's looper.
package watchface

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/datalayer"
	"github.com/kjstillabower/sunshine-wear/internal/icons"
	"github.com/kjstillabower/sunshine-wear/internal/looper"
	"github.com/kjstillabower/sunshine-wear/internal/models"
	"github.com/kjstillabower/sunshine-wear/internal/observability"
	"github.com/kjstillabower/sunshine-wear/internal/settings"
	"github.com/kjstillabower/sunshine-wear/internal/wearproto"
)

// Preference keys for the persisted display state.
const (
	PrefLowTemp      = "pref_low_temp"
	PrefHighTemp     = "pref_high_temp"
	PrefIconResource = "pref_icon_resource"
)

// InteractiveUpdateRate is the tick period while interactive.
const InteractiveUpdateRate = time.Second

const msgUpdateTime = 0

// State is the engine's display mode.
type State int

const (
	Hidden State = iota
	Active
	Ambient
)

func (s State) String() string {
	switch s {
	case Hidden:
		return "hidden"
	case Active:
		return "active"
	case Ambient:
		return "ambient"
	default:
		return "unknown"
	}
}

// Host is the surface the engine draws on.
type Host interface {
	// Invalidate requests a redraw. It must not draw synchronously.
	Invalidate()
}

// TimeZones reports the device time zone and its changes.
type TimeZones interface {
	Current() *time.Location
	// Register calls fn on every change until the returned func is called.
	Register(fn func(*time.Location)) (unregister func())
}

// Dialer builds the engine's data layer client.
type Dialer func(callbacks datalayer.ConnectionCallbacks) datalayer.Client

// Options configure an Engine.
type Options struct {
	Looper    *looper.Looper
	Host      Host
	Dial      Dialer
	Settings  *settings.Preferences
	TimeZones TimeZones
	Resources Resources
	Stamper   *wearproto.Stamper
	Logger    *zap.Logger
}

// Engine implements the watch face state machine.
type Engine struct {
	looper    *looper.Looper
	clock     looper.Clock
	host      Host
	dial      Dialer
	prefs     *settings.Preferences
	timeZones TimeZones
	stamper   *wearproto.Stamper
	logger    *zap.Logger

	handler *looper.Handler
	client  datalayer.Client

	visible       bool
	ambient       bool
	lowBitAmbient bool
	burnIn        bool
	unregisterTZ  func()
	loc           *time.Location

	display models.WatchDisplayState
	layout  *layout
}

var (
	_ datalayer.ConnectionCallbacks = (*Engine)(nil)
	_ datalayer.DataListener        = (*Engine)(nil)
)

// NewEngine validates opts. Call Create before anything else.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Looper == nil || opts.Host == nil || opts.Dial == nil || opts.Settings == nil {
		return nil, fmt.Errorf("watchface: looper, host, dial and settings are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TimeZones == nil {
		opts.TimeZones = fixedZone{time.Local}
	}
	clock := opts.Looper.Clock()
	if opts.Stamper == nil {
		opts.Stamper = wearproto.NewStamper(clock.Now)
	}
	e := &Engine{
		looper:    opts.Looper,
		clock:     clock,
		host:      opts.Host,
		dial:      opts.Dial,
		prefs:     opts.Settings,
		timeZones: opts.TimeZones,
		stamper:   opts.Stamper,
		logger:    opts.Logger,
		loc:       opts.TimeZones.Current(),
		display:   models.WatchDisplayState{IconResource: int(icons.None)},
		layout:    newLayout(opts.Resources),
	}
	e.handler = looper.NewHandler(opts.Looper, e.handleMessage)
	return e, nil
}

// Create restores the persisted display state, builds the data client, asks
// the phone for a fresh forecast and starts following time zone changes.
// The update request is held by the client until it connects.
func (e *Engine) Create() {
	e.display = e.loadState()
	e.client = e.dial(e)
	e.requestUpdate()
	e.registerTimeZone()
	e.logger.Info("watch face created",
		zap.String("low", e.display.LowTemp),
		zap.String("high", e.display.HighTemp),
		zap.Int("icon", e.display.IconResource))
}

// Destroy cancels the tick, stops following the time zone, disconnects and
// persists the display state.
func (e *Engine) Destroy(ctx context.Context) error {
	e.handler.Close()
	e.unregisterTimeZone()
	if e.client != nil {
		e.client.RemoveListener(e)
		e.client.Disconnect()
	}
	err := e.prefs.Edit().
		PutString(PrefLowTemp, e.display.LowTemp).
		PutString(PrefHighTemp, e.display.HighTemp).
		PutInt(PrefIconResource, e.display.IconResource).
		Commit(ctx)
	if err != nil {
		e.logger.Error("persist display state failed", zap.Error(err))
		return err
	}
	e.logger.Info("watch face destroyed")
	return nil
}

func (e *Engine) loadState() models.WatchDisplayState {
	s := models.WatchDisplayState{IconResource: int(icons.None)}
	var err error
	if s.LowTemp, err = e.prefs.GetString(PrefLowTemp, ""); err != nil {
		e.logger.Warn("stored low temp unreadable", zap.Error(err))
	}
	if s.HighTemp, err = e.prefs.GetString(PrefHighTemp, ""); err != nil {
		e.logger.Warn("stored high temp unreadable", zap.Error(err))
	}
	if s.IconResource, err = e.prefs.GetInt(PrefIconResource, int(icons.None)); err != nil {
		e.logger.Warn("stored icon unreadable", zap.Error(err))
	}
	return s
}

func (e *Engine) requestUpdate() {
	stamp := e.stamper.Next()
	e.logger.Debug("asking phone for forecast update", zap.Int64("stamp", stamp))
	e.client.PutDataItem(wearproto.UpdatePath, wearproto.UpdateRequest(stamp), func(res datalayer.PutResult) {
		if res.Err != nil {
			e.logger.Warn("update request failed", zap.Error(res.Err))
		}
	})
}

// SurfaceChanged records new surface dimensions.
func (e *Engine) SurfaceChanged(width, height int) {
	e.layout.resize(width, height)
}

// ApplyWindowInsets picks round or square text size and margins.
func (e *Engine) ApplyWindowInsets(round bool) {
	e.layout.applyShape(round)
}

// PropertiesChanged records display capabilities.
func (e *Engine) PropertiesChanged(lowBitAmbient, burnInProtection bool) {
	e.lowBitAmbient = lowBitAmbient
	e.burnIn = burnInProtection
}

// TimeTick is the host's once-a-minute tick, delivered in every mode.
func (e *Engine) TimeTick() {
	e.invalidate()
}

// AmbientModeChanged switches between interactive and ambient rendering.
func (e *Engine) AmbientModeChanged(ambient bool) {
	if e.ambient != ambient {
		e.ambient = ambient
		if e.lowBitAmbient {
			e.layout.setAntiAlias(!ambient)
		}
		e.invalidate()
	}
	e.updateTimer()
}

// VisibilityChanged starts or stops following the clock. Becoming visible
// (re)connects the data client; hiding leaves the session connected.
func (e *Engine) VisibilityChanged(visible bool) {
	e.visible = visible
	if visible {
		e.registerTimeZone()
		if e.client != nil {
			e.client.Connect()
		}
		e.loc = e.timeZones.Current()
	} else {
		e.unregisterTimeZone()
	}
	e.updateTimer()
}

func (e *Engine) registerTimeZone() {
	if e.unregisterTZ != nil {
		return
	}
	e.unregisterTZ = e.timeZones.Register(func(loc *time.Location) {
		e.looper.Post(func() {
			e.loc = loc
			e.invalidate()
		})
	})
}

func (e *Engine) unregisterTimeZone() {
	if e.unregisterTZ == nil {
		return
	}
	e.unregisterTZ()
	e.unregisterTZ = nil
}

// updateTimer always clears the pending tick before deciding whether to
// schedule another.
func (e *Engine) updateTimer() {
	e.handler.RemoveMessages(msgUpdateTime)
	if e.shouldTimerBeRunning() {
		e.handler.SendEmptyMessage(msgUpdateTime)
	}
}

func (e *Engine) shouldTimerBeRunning() bool {
	return e.visible && !e.ambient
}

func (e *Engine) handleMessage(code int) {
	if code != msgUpdateTime {
		return
	}
	observability.WatchTicksTotal.Inc()
	e.invalidate()
	if e.shouldTimerBeRunning() {
		e.handler.SendEmptyMessageDelayed(msgUpdateTime, NextTickDelay(e.clock.Now()))
	}
}

// NextTickDelay returns the time until the next whole second.
func NextTickDelay(now time.Time) time.Duration {
	rate := InteractiveUpdateRate.Milliseconds()
	ms := now.UnixMilli()
	return time.Duration(rate-ms%rate) * time.Millisecond
}

// OnConnected starts receiving data events.
func (e *Engine) OnConnected() {
	e.logger.Debug("data layer connected")
	e.client.AddListener(e)
}

func (e *Engine) OnSuspended(cause datalayer.SuspendCause) {
	e.logger.Info("data layer suspended", zap.Stringer("cause", cause))
}

func (e *Engine) OnFailed(err error) {
	e.logger.Warn("data layer connection failed", zap.Error(err))
}

// OnDataChanged replaces the display state for each changed forecast item
// and requests one redraw per item.
func (e *Engine) OnDataChanged(events []datalayer.DataEvent) {
	for _, ev := range events {
		if ev.Type != datalayer.EventChanged || ev.Item.Path != wearproto.ForecastPath {
			continue
		}
		rec := wearproto.DecodeForecast(ev.Item.Data)
		e.display = models.WatchDisplayState{
			LowTemp:      rec.LowTemp,
			HighTemp:     rec.HighTemp,
			IconResource: int(icons.ForWeatherCondition(rec.ConditionCode)),
		}
		observability.WatchRecordsReceivedTotal.Inc()
		e.logger.Debug("forecast received",
			zap.String("low", rec.LowTemp),
			zap.String("high", rec.HighTemp),
			zap.Int("condition", rec.ConditionCode),
			zap.Int("icon", e.display.IconResource))
		e.invalidate()
	}
}

func (e *Engine) invalidate() {
	e.host.Invalidate()
}

// State returns the current display mode.
func (e *Engine) State() State {
	switch {
	case !e.visible:
		return Hidden
	case e.ambient:
		return Ambient
	default:
		return Active
	}
}

// Display returns the state that is drawn and persisted.
func (e *Engine) Display() models.WatchDisplayState {
	return e.display
}

// Now returns the engine's current time in the device time zone.
func (e *Engine) Now() time.Time {
	return e.clock.Now().In(e.loc)
}

type fixedZone struct{ loc *time.Location }

func (z fixedZone) Current() *time.Location              { return z.loc }
func (z fixedZone) Register(func(*time.Location)) func() { return func() {} }
