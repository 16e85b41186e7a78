package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sunshine-wear/internal/observability"
	"github.com/kjstillabower/sunshine-wear/internal/traffic"
)

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var seen string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationID(r.Context())
		observability.LoggerFrom(r.Context(), nil).Info("inside")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))

	header := w.Header().Get("X-Correlation-ID")
	if header == "" || header != seen {
		t.Errorf("header = %q, context = %q; want equal and non-empty", header, seen)
	}
	entries := logs.FilterMessage("inside").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != header {
		t.Errorf("request logger missing correlation_id: %+v", entries)
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want abc-123", got)
	}
}

func TestMiddleware_RateLimit(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.Use(RateLimitMiddleware(rate.NewLimiter(rate.Limit(0.001), 1)))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	var resp struct {
		Error map[string]string `json:"error"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error["code"] != "RATE_LIMITED" || resp.Error["requestId"] == "" {
		t.Errorf("error body = %+v", resp.Error)
	}
	if n := traffic.DenialCount(time.Minute); n != 1 {
		t.Errorf("DenialCount = %d, want 1", n)
	}
}

func TestMiddleware_RateLimitDisabled(t *testing.T) {
	h := RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	}
}

func TestMiddleware_Timeout(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := TimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !ok || time.Until(deadline) > 50*time.Millisecond {
		t.Errorf("deadline = %v (set %v), want within 50ms", deadline, ok)
	}
}

func TestMiddleware_MetricsRouteAndInFlight(t *testing.T) {
	var during int64
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/host/{action}", func(w http.ResponseWriter, r *http.Request) {
		during = InFlightCount()
		if got := getRoute(r); got != "/host/{action}" {
			t.Errorf("getRoute() = %q, want template", got)
		}
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/host/show", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d", w.Code)
	}
	if during < 1 {
		t.Errorf("in-flight during request = %d, want >= 1", during)
	}
	if InFlightCount() != 0 {
		t.Errorf("in-flight after request = %d, want 0", InFlightCount())
	}
	if err := WaitForInFlight(context.Background(), time.Millisecond); err != nil {
		t.Errorf("WaitForInFlight() error = %v", err)
	}
}

func TestStatusRecorder_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, statusCode: http.StatusOK}
	var _ http.Flusher = sr
	sr.Flush()
	if !rec.Flushed {
		t.Error("Flush was not forwarded")
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := map[int]string{200: "2xx", 404: "4xx", 503: "5xx"}
	for code, want := range tests {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %q, want %q", code, got, want)
		}
	}
}
