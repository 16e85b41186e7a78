package watchface

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/sunshine-wear/internal/datalayer"
	"github.com/kjstillabower/sunshine-wear/internal/icons"
	"github.com/kjstillabower/sunshine-wear/internal/looper"
	"github.com/kjstillabower/sunshine-wear/internal/looper/loopertest"
	"github.com/kjstillabower/sunshine-wear/internal/models"
	"github.com/kjstillabower/sunshine-wear/internal/settings"
	"github.com/kjstillabower/sunshine-wear/internal/wearproto"
)

type countingHost struct{ n int }

func (h *countingHost) Invalidate() { h.n++ }

type fakeZones struct {
	loc *time.Location
	fn  func(*time.Location)
}

func (z *fakeZones) Current() *time.Location { return z.loc }

func (z *fakeZones) Register(fn func(*time.Location)) func() {
	z.fn = fn
	return func() { z.fn = nil }
}

type harness struct {
	t       *testing.T
	clock   *loopertest.FakeClock
	looper  *looper.Looper
	hub     *datalayer.Hub
	backend *settings.MemoryBackend
	host    *countingHost
	zones   *fakeZones
	engine  *Engine
}

// start is 10:15:30.250 UTC, so the first aligned tick is 750ms away.
var start = time.Date(2026, 3, 14, 10, 15, 30, 250*int(time.Millisecond), time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		clock:   loopertest.NewFakeClock(start),
		hub:     datalayer.NewHub(nil),
		backend: settings.NewMemoryBackend(),
		host:    &countingHost{},
		zones:   &fakeZones{loc: time.UTC},
	}
	h.looper = looper.New(h.clock)
	h.engine = h.newEngine()
	return h
}

func (h *harness) newEngine() *Engine {
	h.t.Helper()
	prefs, err := settings.Open(context.Background(), h.backend, "watch", nil)
	if err != nil {
		h.t.Fatalf("settings.Open() error = %v", err)
	}
	e, err := NewEngine(Options{
		Looper: h.looper,
		Host:   h.host,
		Dial: func(cb datalayer.ConnectionCallbacks) datalayer.Client {
			return datalayer.NewLocalClient(h.hub, "watch", h.looper.Dispatch, cb, nil)
		},
		Settings:  prefs,
		TimeZones: h.zones,
		Resources: DefaultResources(nil, nil),
	})
	if err != nil {
		h.t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func (h *harness) drain() { h.looper.Drain() }

func forecastEvent(id int, low, high string) datalayer.DataEvent {
	rec := models.SyncRecord{ForecastSnapshot: models.ForecastSnapshot{ConditionCode: id, LowTemp: low, HighTemp: high}}
	return datalayer.DataEvent{
		Type: datalayer.EventChanged,
		Item: datalayer.DataItem{Node: "phone", Path: wearproto.ForecastPath, Data: wearproto.EncodeForecast(rec)},
	}
}

func TestEngine_CreateRequestsUpdateOnConnect(t *testing.T) {
	h := newHarness(t)
	h.engine.Create()
	h.drain()

	if got := h.hub.Items(wearproto.UpdatePath); len(got) != 0 {
		t.Fatalf("update request sent before connect: %+v", got)
	}
	if h.zones.fn == nil {
		t.Error("Create did not register the time zone listener")
	}

	h.engine.VisibilityChanged(true)
	h.drain()
	items := h.hub.Items(wearproto.UpdatePath)
	if len(items) != 1 || items[0].Node != "watch" {
		t.Fatalf("update items = %+v, want one from watch", items)
	}
	if stamp := items[0].Data.GetLong(wearproto.KeyUpdate, 0); stamp != start.UnixMilli() {
		t.Errorf("UPDATE_KEY = %d, want %d", stamp, start.UnixMilli())
	}
}

func TestEngine_StateMachine(t *testing.T) {
	h := newHarness(t)
	h.engine.Create()
	if got := h.engine.State(); got != Hidden {
		t.Errorf("State() after Create = %v, want hidden", got)
	}
	h.engine.VisibilityChanged(true)
	if got := h.engine.State(); got != Active {
		t.Errorf("State() visible = %v, want active", got)
	}
	h.engine.AmbientModeChanged(true)
	if got := h.engine.State(); got != Ambient {
		t.Errorf("State() ambient = %v, want ambient", got)
	}
	h.engine.VisibilityChanged(false)
	if got := h.engine.State(); got != Hidden {
		t.Errorf("State() hidden = %v, want hidden", got)
	}
	if h.zones.fn != nil {
		t.Error("time zone listener still registered while hidden")
	}
}

func TestEngine_TickAlignedToSecond(t *testing.T) {
	h := newHarness(t)
	h.engine.Create()
	h.engine.VisibilityChanged(true)
	before := h.host.n
	h.drain() // immediate tick

	if h.host.n != before+1 {
		t.Errorf("invalidations after first tick = %d, want %d", h.host.n, before+1)
	}
	deadline, ok := h.clock.NextDeadline()
	if !ok {
		t.Fatal("no tick scheduled while active")
	}
	if want := start.Add(750 * time.Millisecond); !deadline.Equal(want) {
		t.Errorf("next tick at %v, want %v", deadline, want)
	}

	h.clock.Set(deadline)
	h.drain()
	if h.host.n != before+2 {
		t.Errorf("invalidations after second tick = %d, want %d", h.host.n, before+2)
	}
	next, _ := h.clock.NextDeadline()
	if want := deadline.Add(time.Second); !next.Equal(want) {
		t.Errorf("following tick at %v, want %v", next, want)
	}
	if h.clock.Pending() != 1 {
		t.Errorf("pending timers = %d, want exactly 1", h.clock.Pending())
	}
}

func TestEngine_NoTickWhenAmbientOrHidden(t *testing.T) {
	tests := []struct {
		name    string
		visible bool
		ambient bool
	}{
		{"ambient", true, true},
		{"hidden", false, false},
		{"hidden ambient", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.engine.Create()
			h.engine.VisibilityChanged(true)
			h.drain()
			h.engine.AmbientModeChanged(tt.ambient)
			h.engine.VisibilityChanged(tt.visible)
			h.drain()

			if n := h.clock.Pending(); n != 0 {
				t.Errorf("pending timers = %d, want 0", n)
			}
			if h.engine.handler.HasMessages(msgUpdateTime) {
				t.Error("tick message pending")
			}
		})
	}
}

func TestEngine_TimeTickInvalidatesInAmbient(t *testing.T) {
	h := newHarness(t)
	h.engine.Create()
	h.engine.VisibilityChanged(true)
	h.engine.AmbientModeChanged(true)
	h.drain()
	before := h.host.n
	h.engine.TimeTick()
	if h.host.n != before+1 {
		t.Errorf("TimeTick invalidations = %d, want 1", h.host.n-before)
	}
}

func TestEngine_OnDataChanged(t *testing.T) {
	h := newHarness(t)
	h.engine.Create()
	before := h.host.n

	h.engine.OnDataChanged([]datalayer.DataEvent{forecastEvent(800, "10°", "20°")})

	want := models.WatchDisplayState{LowTemp: "10°", HighTemp: "20°", IconResource: int(icons.ForWeatherCondition(800))}
	if got := h.engine.Display(); got != want {
		t.Errorf("Display() = %+v, want %+v", got, want)
	}
	if h.host.n-before != 1 {
		t.Errorf("invalidations = %d, want 1", h.host.n-before)
	}

	// One redraw per forecast event; other paths and deletions are ignored.
	before = h.host.n
	h.engine.OnDataChanged([]datalayer.DataEvent{
		forecastEvent(500, "5°", "9°"),
		{Type: datalayer.EventChanged, Item: datalayer.DataItem{Path: wearproto.UpdatePath, Data: datalayer.DataMap{}}},
		{Type: datalayer.EventDeleted, Item: datalayer.DataItem{Path: wearproto.ForecastPath, Data: datalayer.DataMap{}}},
		forecastEvent(600, "-2°", "1°"),
	})
	if h.host.n-before != 2 {
		t.Errorf("invalidations = %d, want 2", h.host.n-before)
	}
	if got := h.engine.Display().IconResource; got != int(icons.Snow) {
		t.Errorf("IconResource = %d, want last event's snow", got)
	}
}

func TestEngine_MissingFieldsUseDefaults(t *testing.T) {
	h := newHarness(t)
	h.engine.Create()
	h.engine.OnDataChanged([]datalayer.DataEvent{{
		Type: datalayer.EventChanged,
		Item: datalayer.DataItem{Path: wearproto.ForecastPath, Data: datalayer.DataMap{}},
	}})
	want := models.WatchDisplayState{IconResource: int(icons.None)}
	if got := h.engine.Display(); got != want {
		t.Errorf("Display() = %+v, want %+v", got, want)
	}
}

func TestEngine_StatePersistsAcrossRestart(t *testing.T) {
	h := newHarness(t)
	h.engine.Create()
	if got := h.engine.Display(); got.IconResource != -1 || got.LowTemp != "" || got.HighTemp != "" {
		t.Errorf("initial Display() = %+v, want defaults", got)
	}
	h.engine.OnDataChanged([]datalayer.DataEvent{forecastEvent(211, "12°", "18°")})
	want := h.engine.Display()
	if err := h.engine.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}

	restarted := h.newEngine()
	restarted.Create()
	if got := restarted.Display(); got != want {
		t.Errorf("Display() after restart = %+v, want %+v", got, want)
	}
}

func TestEngine_DestroyCancelsTick(t *testing.T) {
	h := newHarness(t)
	h.engine.Create()
	h.engine.VisibilityChanged(true)
	h.drain()
	if h.clock.Pending() == 0 {
		t.Fatal("expected a scheduled tick")
	}
	if err := h.engine.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if h.clock.Pending() != 0 {
		t.Errorf("pending timers after Destroy = %d, want 0", h.clock.Pending())
	}
	before := h.host.n
	h.clock.Advance(5 * time.Second)
	h.drain()
	if h.host.n != before {
		t.Error("tick delivered after Destroy")
	}
	if h.zones.fn != nil {
		t.Error("time zone listener still registered after Destroy")
	}
}

func TestEngine_ReceivesForecastFromPhone(t *testing.T) {
	h := newHarness(t)
	h.engine.Create()
	h.engine.VisibilityChanged(true)
	h.drain() // OnConnected adds the engine as listener

	phone := datalayer.NewLocalClient(h.hub, "phone", h.looper.Dispatch, nil, nil)
	phone.Connect()
	rec := models.SyncRecord{ForecastSnapshot: models.ForecastSnapshot{ConditionCode: 741, LowTemp: "3°", HighTemp: "8°"}, ForceUpdate: 42}
	phone.PutDataItem(wearproto.ForecastPath, wearproto.EncodeForecast(rec), nil)
	h.drain()

	want := models.WatchDisplayState{LowTemp: "3°", HighTemp: "8°", IconResource: int(icons.Fog)}
	if got := h.engine.Display(); got != want {
		t.Errorf("Display() = %+v, want %+v", got, want)
	}
}

func TestEngine_TimeZoneChange(t *testing.T) {
	h := newHarness(t)
	h.engine.Create()
	h.engine.VisibilityChanged(true)
	h.drain()

	tokyo := time.FixedZone("JST", 9*3600)
	before := h.host.n
	h.zones.fn(tokyo)
	h.drain()
	if got := h.engine.Now().Hour(); got != 19 {
		t.Errorf("Now().Hour() = %d, want 19", got)
	}
	if h.host.n == before {
		t.Error("time zone change did not invalidate")
	}
}

func TestNextTickDelay(t *testing.T) {
	tests := []struct {
		ms   int64
		want time.Duration
	}{
		{1_700_000_000_000, time.Second},
		{1_700_000_000_001, 999 * time.Millisecond},
		{1_700_000_000_999, time.Millisecond},
		{1_700_000_000_250, 750 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := NextTickDelay(time.UnixMilli(tt.ms)); got != tt.want {
			t.Errorf("NextTickDelay(%d) = %v, want %v", tt.ms, got, tt.want)
		}
		fire := tt.ms + NextTickDelay(time.UnixMilli(tt.ms)).Milliseconds()
		if fire%1000 != 0 {
			t.Errorf("tick from %d fires at %d, not on a second", tt.ms, fire)
		}
	}
}
