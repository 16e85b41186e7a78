package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/datalayer"
	"github.com/kjstillabower/sunshine-wear/internal/observability"
)

// eventBuffer is how many undelivered batches a slow stream may hold before
// it is closed.
const eventBuffer = 64

// StreamEvents handles GET /v1/events?node=. Each hub delivery for other
// nodes becomes one "data" event carrying a JSON array of DataEvent. A client
// that falls eventBuffer batches behind is disconnected.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	node := r.URL.Query().Get("node")
	if err := datalayer.ValidateNode(node); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_NODE", err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "response does not support streaming")
		return
	}
	logger := observability.LoggerFrom(r.Context(), h.logger).With(zap.String("node", node))

	batches := make(chan []datalayer.DataEvent, eventBuffer)
	overflow := make(chan struct{})
	var once sync.Once
	unsubscribe := h.hub.Subscribe(node, func(events []datalayer.DataEvent) {
		select {
		case batches <- events:
		default:
			once.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()
	logger.Info("event stream opened")

	ping := time.NewTicker(h.heartbeat)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			logger.Info("event stream closed by client")
			return
		case <-overflow:
			logger.Warn("event stream too slow, closing")
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case events := <-batches:
			payload, err := json.Marshal(events)
			if err != nil {
				logger.Error("encode events failed", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: data\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
