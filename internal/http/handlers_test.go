package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sunshine-wear/internal/datalayer"
	"github.com/kjstillabower/sunshine-wear/internal/lifecycle"
	"github.com/kjstillabower/sunshine-wear/internal/traffic"
	"github.com/kjstillabower/sunshine-wear/internal/wearproto"
)

type mockPublisher struct {
	mu     sync.Mutex
	forces []bool
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forces = append(m.forces, force)
	return m.err
}

func newTestHandler(t *testing.T, pub Publisher, cfg HealthConfig) (*Handler, *datalayer.Hub) {
	t.Helper()
	traffic.Reset()
	lifecycle.SetShuttingDown(false)
	t.Cleanup(func() {
		traffic.Reset()
		lifecycle.SetShuttingDown(false)
	})
	hub := datalayer.NewHub(nil)
	return NewHandler(hub, pub, NewHealth(cfg, nil), zap.NewNop(), nil, 20*time.Millisecond), hub
}

func newTestRouter(h *Handler, testing bool) http.Handler {
	return NewHubRouter(h, zap.NewNop(), nil, time.Second, testing)
}

func TestHandler_PostItem(t *testing.T) {
	h, hub := newTestHandler(t, nil, HealthConfig{})
	router := newTestRouter(h, false)
	body := `{"node":"watch","path":"/Weather/Update","data":{"UPDATE_KEY":1700000000000}}`

	for i, wantChanged := range []bool{true, false} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/v1/items", strings.NewReader(body)))
		if w.Code != http.StatusOK {
			t.Fatalf("put %d: status = %d, want 200; body %s", i, w.Code, w.Body)
		}
		var resp datalayer.PutResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Changed != wantChanged {
			t.Errorf("put %d: changed = %v, want %v", i, resp.Changed, wantChanged)
		}
		if resp.Item.URI() != "wear://watch/Weather/Update" {
			t.Errorf("put %d: uri = %q", i, resp.Item.URI())
		}
	}
	items := hub.Items(wearproto.UpdatePath)
	if len(items) != 1 || items[0].Data.GetLong(wearproto.KeyUpdate, 0) != 1700000000000 {
		t.Errorf("hub items = %+v", items)
	}
}

func TestHandler_PostItem_BadRequests(t *testing.T) {
	h, _ := newTestHandler(t, nil, HealthConfig{})
	router := newTestRouter(h, false)
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"node":`, "INVALID_BODY"},
		{"relative path", `{"node":"watch","path":"Weather","data":{}}`, "INVALID_ITEM"},
		{"empty node", `{"node":"","path":"/Weather/Update","data":{}}`, "INVALID_ITEM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/v1/items", strings.NewReader(tt.body))
			req.Header.Set("X-Correlation-ID", "corr-1")
			router.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			var resp struct {
				Error map[string]string `json:"error"`
			}
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Error["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Error["code"], tt.wantCode)
			}
			if resp.Error["requestId"] != "corr-1" {
				t.Errorf("requestId = %q, want corr-1", resp.Error["requestId"])
			}
		})
	}
}

func TestHandler_GetItems(t *testing.T) {
	h, hub := newTestHandler(t, nil, HealthConfig{})
	router := newTestRouter(h, false)
	if _, _, err := hub.Put("phone", wearproto.ForecastPath, datalayer.DataMap{wearproto.KeyWeatherID: 800}); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/items?path=/Weather/Forecast", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Items []datalayer.DataItem `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Node != "phone" {
		t.Errorf("items = %+v", resp.Items)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/items?path=", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty path status = %d, want 400", w.Code)
	}
}

func TestHandler_DeleteItem(t *testing.T) {
	h, hub := newTestHandler(t, nil, HealthConfig{})
	router := newTestRouter(h, false)
	if _, _, err := hub.Put("phone", wearproto.ForecastPath, datalayer.DataMap{wearproto.KeyWeatherID: 800}); err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	var got []datalayer.DataEvent
	cancel := hub.Subscribe("watch", func(ev []datalayer.DataEvent) {
		mu.Lock()
		got = append(got, ev...)
		mu.Unlock()
	})
	defer cancel()

	tests := []struct {
		name     string
		query    string
		wantCode int
	}{
		{"existing item", "node=phone&path=/Weather/Forecast", http.StatusOK},
		{"already deleted", "node=phone&path=/Weather/Forecast", http.StatusNotFound},
		{"missing node", "path=/Weather/Forecast", http.StatusBadRequest},
		{"relative path", "node=phone&path=Weather", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("DELETE", "/v1/items?"+tt.query, nil))
		if w.Code != tt.wantCode {
			t.Errorf("%s: status = %d, want %d; body %s", tt.name, w.Code, tt.wantCode, w.Body)
		}
	}

	if items := hub.Items(wearproto.ForecastPath); len(items) != 0 {
		t.Errorf("hub still holds %+v", items)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Type != datalayer.EventDeleted || got[0].Item.URI() != "wear://phone/Weather/Forecast" {
		t.Errorf("watch events = %+v, want one deletion", got)
	}
}

func TestHandler_PostSync(t *testing.T) {
	tests := []struct {
		name     string
		pub      *mockPublisher
		wantCode int
	}{
		{"success", &mockPublisher{}, http.StatusAccepted},
		{"publish error", &mockPublisher{err: errors.New("db locked")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, tt.pub, HealthConfig{})
			w := httptest.NewRecorder()
			newTestRouter(h, false).ServeHTTP(w, httptest.NewRequest("POST", "/v1/sync", nil))
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if len(tt.pub.forces) != 1 || !tt.pub.forces[0] {
				t.Errorf("publishes = %v, want one forced", tt.pub.forces)
			}
		})
	}

	h, _ := newTestHandler(t, nil, HealthConfig{})
	w := httptest.NewRecorder()
	newTestRouter(h, false).ServeHTTP(w, httptest.NewRequest("POST", "/v1/sync", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("nil publisher status = %d, want 503", w.Code)
	}
}

func TestHandler_StreamEvents(t *testing.T) {
	h, hub := newTestHandler(t, nil, HealthConfig{})
	srv := httptest.NewServer(newTestRouter(h, false))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/v1/events?node=watch", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	if !sc.Scan() || sc.Text() != ": connected" {
		t.Fatalf("preamble = %q", sc.Text())
	}

	// Own writes are not echoed back.
	if _, _, err := hub.Put("watch", wearproto.UpdatePath, datalayer.DataMap{wearproto.KeyUpdate: int64(1)}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := hub.Put("phone", wearproto.ForecastPath, datalayer.DataMap{wearproto.KeyTempHigh: "20°"}); err != nil {
		t.Fatal(err)
	}

	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var events []datalayer.DataEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &events); err != nil {
			t.Fatalf("decode events: %v", err)
		}
		if len(events) != 1 || events[0].Item.Path != wearproto.ForecastPath || events[0].Item.Node != "phone" {
			t.Fatalf("events = %+v, want the phone forecast", events)
		}
		if events[0].Item.Data.GetString(wearproto.KeyTempHigh, "") != "20°" {
			t.Errorf("high = %v", events[0].Item.Data)
		}
		return
	}
	t.Fatalf("stream ended without the forecast event: %v", sc.Err())
}

func TestHandler_StreamEvents_InvalidNode(t *testing.T) {
	h, _ := newTestHandler(t, nil, HealthConfig{})
	w := httptest.NewRecorder()
	newTestRouter(h, false).ServeHTTP(w, httptest.NewRequest("GET", "/v1/events", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

type connWatcher struct {
	connected chan struct{}
	events    chan []datalayer.DataEvent
}

func (c *connWatcher) OnConnected()                           { close(c.connected) }
func (c *connWatcher) OnSuspended(datalayer.SuspendCause)     {}
func (c *connWatcher) OnFailed(error)                         {}
func (c *connWatcher) OnDataChanged(ev []datalayer.DataEvent) { c.events <- ev }

func TestRemoteClient_AgainstHubRouter(t *testing.T) {
	h, hub := newTestHandler(t, nil, HealthConfig{})
	srv := httptest.NewServer(newTestRouter(h, false))
	defer srv.Close()

	inline := func(fn func()) bool { fn(); return true }
	cw := &connWatcher{connected: make(chan struct{}), events: make(chan []datalayer.DataEvent, 4)}
	watch := datalayer.NewRemoteClient(srv.URL, "watch", 2*time.Second, inline, cw, nil)
	watch.AddListener(cw)

	putDone := make(chan datalayer.PutResult, 1)
	watch.PutDataItem(wearproto.UpdatePath, wearproto.UpdateRequest(42), func(r datalayer.PutResult) { putDone <- r })
	watch.Connect()
	defer watch.Disconnect()

	select {
	case <-cw.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("remote client never connected")
	}
	select {
	case r := <-putDone:
		if r.Err != nil || !r.Changed {
			t.Fatalf("held put result = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("held put never flushed")
	}

	phone := datalayer.NewLocalClient(hub, "phone", inline, nil, nil)
	phone.Connect()
	phone.PutDataItem(wearproto.ForecastPath, datalayer.DataMap{wearproto.KeyWeatherID: 800}, nil)

	select {
	case ev := <-cw.events:
		if len(ev) != 1 || ev[0].Item.Data.GetInt(wearproto.KeyWeatherID, 0) != 800 {
			t.Errorf("events = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("forecast never reached the remote client")
	}
}

func TestHealth_Priority(t *testing.T) {
	failing := func(context.Context) error { return errors.New("down") }
	ok := func(context.Context) error { return nil }
	tests := []struct {
		name       string
		setup      func()
		cfg        HealthConfig
		wantStatus string
		wantCode   int
	}{
		{"healthy", func() {}, HealthConfig{Checks: map[string]func(context.Context) error{"forecastStore": ok}}, "healthy", 200},
		{"check failed", func() {}, HealthConfig{Checks: map[string]func(context.Context) error{"settings": failing}}, "degraded", 503},
		{"error rate", func() {
			traffic.RecordSuccessN(5)
			traffic.RecordErrorN(5)
		}, HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 10}, "degraded", 503},
		{"overloaded beats degraded", func() {
			for i := 0; i < 20; i++ {
				traffic.RecordDenied()
			}
		}, HealthConfig{RateLimitRPS: 1, OverloadWindow: 10 * time.Second, OverloadThresholdPct: 50, Checks: map[string]func(context.Context) error{"x": failing}}, "overloaded", 503},
		{"shutting down beats all", func() {
			lifecycle.SetShuttingDown(true)
			traffic.RecordErrorN(10)
		}, HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 1}, "shutting-down", 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, nil, tt.cfg)
			tt.setup()
			w := httptest.NewRecorder()
			newTestRouter(h, false).ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			var resp map[string]any
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", resp["status"], tt.wantStatus)
			}
		})
	}
}

func TestHealth_LogsTransitions(t *testing.T) {
	traffic.Reset()
	lifecycle.SetShuttingDown(false)
	defer lifecycle.SetShuttingDown(false)
	core, logs := observer.New(zap.InfoLevel)
	health := NewHealth(HealthConfig{}, zap.New(core))

	health.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
	lifecycle.SetShuttingDown(true)
	health.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["current_status"]; got != "shutting-down" {
		t.Errorf("current_status = %v", got)
	}
}

func TestHandler_TestEndpoints(t *testing.T) {
	h, _ := newTestHandler(t, nil, HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50})
	h.rateLimiter = rate.NewLimiter(rate.Limit(1), 2)
	router := newTestRouter(h, true)

	post := func(path, body string) map[string]any {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", path, strings.NewReader(body)))
		var resp map[string]any
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		return resp
	}

	if resp := post("/test/load", `{"count":5}`); resp["message"] != "Recorded 2 accepted, 3 denied" {
		t.Errorf("load message = %v", resp["message"])
	}
	if resp := post("/test/error", `{"count":4}`); resp["state"] != "degraded" {
		t.Errorf("state after errors = %v, want degraded", resp["state"])
	}
	if resp := post("/test/shutdown", ``); resp["state"] != "shutting-down" {
		t.Errorf("state after shutdown = %v", resp["state"])
	}
	if resp := post("/test/reset", ``); resp["state"] != "healthy" {
		t.Errorf("state after reset = %v", resp["state"])
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/test/bogus", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown action status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	newTestRouter(h, false).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("/test outside testing mode = %d, want 404", w.Code)
	}
}
