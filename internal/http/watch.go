package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/observability"
	"github.com/kjstillabower/sunshine-wear/internal/surface"
	"github.com/kjstillabower/sunshine-wear/internal/validation"
	"github.com/kjstillabower/sunshine-wear/internal/watchface"
)

// FrameSource returns the last rendered frame.
type FrameSource interface {
	Frame() surface.Frame
}

// WatchController delivers host events to the watch face.
type WatchController interface {
	SetVisible(ctx context.Context, visible bool) error
	SetAmbient(ctx context.Context, ambient bool) error
	TimeTick(ctx context.Context) error
	SetTimeZone(ctx context.Context, name string) error
	Status(ctx context.Context) (watchface.Status, error)
}

// WatchHandler serves the watch's debug API.
type WatchHandler struct {
	frames FrameSource
	ctl    WatchController
	health *Health
	logger *zap.Logger
}

func NewWatchHandler(frames FrameSource, ctl WatchController, health *Health, logger *zap.Logger) *WatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchHandler{frames: frames, ctl: ctl, health: health, logger: logger}
}

// GetFrame handles GET /frame.png.
func (h *WatchHandler) GetFrame(w http.ResponseWriter, r *http.Request) {
	f := h.frames.Frame()
	if f.Seq == 0 {
		writeError(w, r, http.StatusServiceUnavailable, "NO_FRAME", "no frame rendered yet")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(f.Seq, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.PNG)
}

// GetStatus handles GET /status.
func (h *WatchHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctl.Status(r.Context())
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PostHostAction handles POST /host/{action}: show, hide, ambient,
// interactive, tick and timezone?name=.
func (h *WatchHandler) PostHostAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	ctx := r.Context()
	var err error
	switch action {
	case "show":
		err = h.ctl.SetVisible(ctx, true)
	case "hide":
		err = h.ctl.SetVisible(ctx, false)
	case "ambient":
		err = h.ctl.SetAmbient(ctx, true)
	case "interactive":
		err = h.ctl.SetAmbient(ctx, false)
	case "tick":
		err = h.ctl.TimeTick(ctx)
	case "timezone":
		name, verr := validation.TimeZoneName(r.URL.Query().Get("name"))
		if verr != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_TIMEZONE", verr.Error())
			return
		}
		if err = h.ctl.SetTimeZone(ctx, name); err != nil && ctx.Err() == nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_TIMEZONE", err.Error())
			return
		}
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown host action: "+action)
		return
	}
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		observability.LoggerFrom(ctx, h.logger).Warn("host action failed", zap.String("action", action), zap.Error(err))
		writeError(w, r, status, "ENGINE_UNAVAILABLE", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "action": action})
}

// GetHealth handles GET /health.
func (h *WatchHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.health.ServeHTTP(w, r)
}
