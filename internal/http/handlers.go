package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sunshine-wear/internal/datalayer"
	"github.com/kjstillabower/sunshine-wear/internal/lifecycle"
	"github.com/kjstillabower/sunshine-wear/internal/observability"
	"github.com/kjstillabower/sunshine-wear/internal/traffic"
)

// maxPutBody bounds a POST /v1/items body.
const maxPutBody = 64 << 10

// Publisher pushes today's forecast to watches.
type Publisher interface {
	Publish(ctx context.Context, force bool) error
}

// Handler serves the phone's data layer hub.
type Handler struct {
	hub         *datalayer.Hub
	publisher   Publisher
	health      *Health
	logger      *zap.Logger
	rateLimiter *rate.Limiter
	heartbeat   time.Duration
	prefs       PrefsStore
}

// NewHandler returns a Handler. heartbeat is the event stream ping interval.
func NewHandler(
	hub *datalayer.Hub,
	publisher Publisher,
	health *Health,
	logger *zap.Logger,
	rateLimiter *rate.Limiter,
	heartbeat time.Duration,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Handler{
		hub:         hub,
		publisher:   publisher,
		health:      health,
		logger:      logger,
		rateLimiter: rateLimiter,
		heartbeat:   heartbeat,
	}
}

// PostItem handles POST /v1/items.
func (h *Handler) PostItem(w http.ResponseWriter, r *http.Request) {
	var req datalayer.PutRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxPutBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be a JSON put request")
		return
	}
	if req.Data == nil {
		req.Data = datalayer.NewDataMap()
	}

	item, changed, err := h.hub.Put(req.Node, req.Path, req.Data)
	if err != nil {
		if errors.Is(err, datalayer.ErrInvalidPath) || errors.Is(err, datalayer.ErrInvalidNode) {
			writeError(w, r, http.StatusBadRequest, "INVALID_ITEM", err.Error())
			return
		}
		traffic.RecordError()
		observability.LoggerFrom(r.Context(), h.logger).Warn("hub put failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "PUT_FAILED", "unable to store item")
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, datalayer.PutResponse{Item: item, Changed: changed})
}

// GetItems handles GET /v1/items?path=.
func (h *Handler) GetItems(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := datalayer.ValidatePath(path); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PATH", err.Error())
		return
	}
	items := h.hub.Items(path)
	if items == nil {
		items = []datalayer.DataItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// DeleteItem handles DELETE /v1/items?node=&path=. Other nodes receive a
// deletion event.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	node, path := q.Get("node"), q.Get("path")
	if err := datalayer.ValidateNode(node); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ITEM", err.Error())
		return
	}
	if err := datalayer.ValidatePath(path); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ITEM", err.Error())
		return
	}
	if !h.hub.Delete(node, path) {
		writeError(w, r, http.StatusNotFound, "ITEM_NOT_FOUND", "no item at "+path+" for node "+node)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// PostSync handles POST /v1/sync: publish today's forecast with force.
func (h *Handler) PostSync(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		writeError(w, r, http.StatusServiceUnavailable, "SYNC_UNAVAILABLE", "no publisher configured")
		return
	}
	if err := h.publisher.Publish(r.Context(), true); err != nil {
		traffic.RecordError()
		observability.LoggerFrom(r.Context(), h.logger).Warn("on-demand publish failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "PUBLISH_FAILED", "unable to publish forecast")
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.health.ServeHTTP(w, r)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response with code, message and the request's
// correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// GetTestStatus handles GET /test. Returns the traffic counters health reads.
func (h *Handler) GetTestStatus(w http.ResponseWriter, r *http.Request) {
	cfg := h.health.config()
	window := cfg.DegradedWindow
	if window <= 0 {
		window = 60 * time.Second
	}
	errs, _ := traffic.ErrorRate(window)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_requests_in_window":  traffic.RequestCount(window),
		"denied_requests_in_window": traffic.DenialCount(window),
		"errors_in_window":          errs,
		"window_length":             window.String(),
		"config": map[string]interface{}{
			"rate_limit_rps":          cfg.RateLimitRPS,
			"overload_threshold":      cfg.overloadThreshold(),
			"overload_window_seconds": cfg.OverloadWindow.Seconds(),
			"degraded_error_pct":      cfg.DegradedErrorPct,
		},
	})
}

// PostTestAction handles POST /test/{action} for load, error, reset and shutdown.
func (h *Handler) PostTestAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	var body struct {
		Count int `json:"count"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch action {
	case "load":
		if body.Count <= 0 {
			body.Count = 10
		}
		accepted, denied := 0, 0
		for i := 0; i < body.Count; i++ {
			if h.rateLimiter != nil && !h.rateLimiter.Allow() {
				traffic.RecordDenied()
				observability.RateLimitDeniedTotal.Inc()
				denied++
				continue
			}
			traffic.RecordSuccess()
			accepted++
		}
		writeTestResult(w, r, h, action, "Recorded "+strconv.Itoa(accepted)+" accepted, "+strconv.Itoa(denied)+" denied")
	case "error":
		if body.Count <= 0 {
			body.Count = 1
		}
		traffic.RecordErrorN(body.Count)
		writeTestResult(w, r, h, action, "Recorded "+strconv.Itoa(body.Count)+" errors")
	case "reset":
		traffic.Reset()
		lifecycle.SetShuttingDown(false)
		writeTestResult(w, r, h, action, "All simulated state cleared")
	case "shutdown":
		lifecycle.SetShuttingDown(true)
		writeTestResult(w, r, h, action, "Shutting-down flag set")
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown test action: "+action)
	}
}

func writeTestResult(w http.ResponseWriter, r *http.Request, h *Handler, action, msg string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"action":  action,
		"message": msg,
		"state":   h.health.Compute(r.Context()).Status,
	})
}
