package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sunshine-wear/internal/observability"
)

// NewHubRouter wires the phone API. The event stream is outside the timeout
// middleware because it is long-lived.
func NewHubRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration, testingMode bool) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(RateLimitMiddleware(limiter))
	v1.HandleFunc("/events", h.StreamEvents).Methods("GET")

	api := v1.NewRoute().Subrouter()
	api.Use(TimeoutMiddleware(requestTimeout))
	api.HandleFunc("/items", h.PostItem).Methods("POST")
	api.HandleFunc("/items", h.GetItems).Methods("GET")
	api.HandleFunc("/items", h.DeleteItem).Methods("DELETE")
	api.HandleFunc("/sync", h.PostSync).Methods("POST")
	api.HandleFunc("/prefs", h.GetPrefs).Methods("GET")
	api.HandleFunc("/prefs", h.PutPrefs).Methods("PUT")

	if testingMode {
		logger.Warn("Testing mode enabled; /test endpoint exposed")
		router.HandleFunc("/test", h.GetTestStatus).Methods("GET")
		router.HandleFunc("/test/{action}", h.PostTestAction).Methods("POST")
	}
	return router
}

// NewWatchRouter wires the watch debug API.
func NewWatchRouter(h *WatchHandler, logger *zap.Logger, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	router.HandleFunc("/frame.png", h.GetFrame).Methods("GET")

	host := router.NewRoute().Subrouter()
	host.Use(TimeoutMiddleware(requestTimeout))
	host.HandleFunc("/status", h.GetStatus).Methods("GET")
	host.HandleFunc("/host/{action}", h.PostHostAction).Methods("POST")
	return router
}
