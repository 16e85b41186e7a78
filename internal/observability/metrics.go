package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/sunshine-wear/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (hub down) or spikes (a chatty watch).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Event streams are long-lived and excluded.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight, including open event streams.
	HTTPRequestsInFlight prometheus.Gauge

	// Forecast API call rate by outcome. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Forecast API latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts for the forecast API. High retries = unstable upstream.
	WeatherAPIRetriesTotal prometheus.Counter

	// Forecast API failures by client.CategorizeError label.
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Circuit breaker state per component (0 closed, 1 open, 2 half-open).
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions. Watch for: flapping.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Data item writes accepted by the hub, by path and result (changed, unchanged, error).
	DataItemsPutTotal *prometheus.CounterVec

	// Data events fanned out to subscribers.
	DataEventsDeliveredTotal *prometheus.CounterVec

	// Current hub subscribers (one per connected node session).
	DataLayerSubscribers prometheus.Gauge

	// Publish attempts by result (sent, no_data, query_error).
	ForecastPublishTotal *prometheus.CounterVec

	// Asynchronous publish outcomes (success, unchanged, failure). Failures are never retried.
	ForecastDeliveryTotal *prometheus.CounterVec

	// Update requests received from watches.
	UpdateRequestsTotal prometheus.Counter

	// Forecast ingest runs by result (success, fetch_error, store_error).
	ForecastSyncTotal *prometheus.CounterVec

	// Forecast ingest duration.
	ForecastSyncDurationSeconds prometheus.Histogram

	// Forecast records applied by the watch face.
	WatchRecordsReceivedTotal prometheus.Counter

	// Frames rendered by mode (interactive, ambient).
	WatchFramesRenderedTotal *prometheus.CounterVec

	// Frame render latency.
	WatchFrameRenderSeconds prometheus.Histogram

	// Interactive tick messages handled.
	WatchTicksTotal prometheus.Counter

	// Durable settings operations by op (load, commit) and result.
	SettingsOperationsTotal *prometheus.CounterVec

	// Rate limit denials on the hub API.
	RateLimitDeniedTotal prometheus.Counter

	// trackedPaths is the allow-list of data item paths used as metric labels.
	trackedPathsMu sync.RWMutex
	trackedPaths   map[string]struct{}

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of forecast API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Forecast API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for forecast API calls",
		},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Forecast API failures by category",
		},
		[]string{"category"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	DataItemsPutTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataItemsPutTotal",
			Help: "Data item writes handled by the hub",
		},
		[]string{"path", "result"},
	)
	DataEventsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataEventsDeliveredTotal",
			Help: "Data change events delivered to subscribers",
		},
		[]string{"path"},
	)
	DataLayerSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataLayerSubscribers",
			Help: "Node sessions currently subscribed to the hub",
		},
	)
	ForecastPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastPublishTotal",
			Help: "Forecast publish attempts by result",
		},
		[]string{"result", "force"},
	)
	ForecastDeliveryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastDeliveryTotal",
			Help: "Asynchronous forecast put outcomes",
		},
		[]string{"status"},
	)
	UpdateRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "updateRequestsTotal",
			Help: "Forecast update requests received from watches",
		},
	)
	ForecastSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastSyncTotal",
			Help: "Forecast ingest runs by result",
		},
		[]string{"result"},
	)
	ForecastSyncDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forecastSyncDurationSeconds",
			Help:    "Forecast ingest duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	WatchRecordsReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "watchRecordsReceivedTotal",
			Help: "Forecast records applied by the watch face",
		},
	)
	WatchFramesRenderedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchFramesRenderedTotal",
			Help: "Watch face frames rendered by mode",
		},
		[]string{"mode"},
	)
	WatchFrameRenderSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "watchFrameRenderSeconds",
			Help:    "Watch face frame render latency in seconds",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1},
		},
	)
	WatchTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "watchTicksTotal",
			Help: "Interactive tick messages handled by the watch face",
		},
	)
	SettingsOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settingsOperationsTotal",
			Help: "Durable settings operations by op and result",
		},
		[]string{"op", "result"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal, WeatherAPIErrorsTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		DataItemsPutTotal, DataEventsDeliveredTotal, DataLayerSubscribers,
		ForecastPublishTotal, ForecastDeliveryTotal, UpdateRequestsTotal,
		ForecastSyncTotal, ForecastSyncDurationSeconds,
		WatchRecordsReceivedTotal, WatchFramesRenderedTotal, WatchFrameRenderSeconds, WatchTicksTotal,
		SettingsOperationsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited hub path.
// Call from main after config load with the overload window.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// SetTrackedPaths sets the allow-list for path labels. Other paths are labelled "other".
func SetTrackedPaths(paths []string) {
	trackedPathsMu.Lock()
	defer trackedPathsMu.Unlock()
	trackedPaths = make(map[string]struct{}, len(paths))
	for _, p := range paths {
		trackedPaths[strings.TrimSpace(p)] = struct{}{}
	}
}

// PathLabel returns path if it is tracked, otherwise "other".
func PathLabel(path string) string {
	trackedPathsMu.RLock()
	_, ok := trackedPaths[path] // nil map read is safe in Go
	trackedPathsMu.RUnlock()
	if ok {
		return path
	}
	return "other"
}

// CircuitBreakerStateValue maps a circuit breaker state ordinal to the gauge value.
func CircuitBreakerStateValue(state int) float64 {
	return float64(state)
}

// SetCircuitBreakerStateGauge records the current state for component.
func SetCircuitBreakerStateGauge(component string, value float64) {
	CircuitBreakerState.WithLabelValues(component).Set(value)
}

// RecordCircuitBreakerTransition counts a state change for component.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
