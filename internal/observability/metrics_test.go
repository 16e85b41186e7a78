package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that label dimensions match usage across the
// datalayer, wearsync, watchface, client and http packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/v1/items", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/v1/items").Observe(0.01)
	WeatherAPICallsTotal.WithLabelValues("success").Inc()
	WeatherAPIDuration.WithLabelValues("success").Observe(0.1)
	WeatherAPIErrorsTotal.WithLabelValues("timeout").Inc()
	DataItemsPutTotal.WithLabelValues("/Weather/Forecast", "changed").Inc()
	DataEventsDeliveredTotal.WithLabelValues("/Weather/Forecast").Inc()
	ForecastPublishTotal.WithLabelValues("sent", "true").Inc()
	ForecastDeliveryTotal.WithLabelValues("success").Inc()
	ForecastSyncTotal.WithLabelValues("success").Inc()
	WatchFramesRenderedTotal.WithLabelValues("ambient").Inc()
	SettingsOperationsTotal.WithLabelValues("commit", "success").Inc()
	SetCircuitBreakerStateGauge("weather_api", CircuitBreakerStateValue(1))
	RecordCircuitBreakerTransition("weather_api", "closed", "open")
}

// TestPathLabel verifies that only tracked paths become metric labels.
func TestPathLabel(t *testing.T) {
	SetTrackedPaths([]string{"/Weather/Forecast", "/Weather/Update"})
	defer SetTrackedPaths(nil)

	if got := PathLabel("/Weather/Forecast"); got != "/Weather/Forecast" {
		t.Errorf("PathLabel(tracked) = %q, want path", got)
	}
	if got := PathLabel("/random/123"); got != "other" {
		t.Errorf("PathLabel(untracked) = %q, want other", got)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
