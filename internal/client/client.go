// Package client fetches daily forecasts from OpenWeatherMap's 5 day / 3 hour
// endpoint.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sunshine-wear/internal/circuitbreaker"
	"github.com/kjstillabower/sunshine-wear/internal/models"
	"github.com/kjstillabower/sunshine-wear/internal/observability"
)

// ForecastClient returns one row per local calendar day for a location.
type ForecastClient interface {
	GetDailyForecast(ctx context.Context, location string) ([]models.ForecastRow, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrEmptyForecast    = errors.New("empty forecast list")
)

const dayLayout = "2006-01-02"

type OpenWeatherClient struct {
	apiKey         string
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
	limiter        *rate.Limiter
	logger         *zap.Logger
	dayZone        *time.Location
}

// Option configures an OpenWeatherClient.
type Option func(*OpenWeatherClient)

// WithCircuitBreaker wraps each upstream attempt in cb.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *OpenWeatherClient) { c.breaker = cb }
}

// WithRateLimiter makes each attempt wait for a token from lim.
func WithRateLimiter(lim *rate.Limiter) Option {
	return func(c *OpenWeatherClient) { c.limiter = lim }
}

// WithDayZone sets the zone whose calendar days key the returned rows. It
// must be the zone the rows are later looked up in. Defaults to time.Local.
func WithDayZone(loc *time.Location) Option {
	return func(c *OpenWeatherClient) { c.dayZone = loc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *OpenWeatherClient) { c.logger = logger }
}

func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration, opts ...Option) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, apiURL, timeout, 3, 100*time.Millisecond, 2*time.Second, opts...)
}

func NewOpenWeatherClientWithRetry(apiKey, apiURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration, opts ...Option) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}

	c := &OpenWeatherClient{
		apiKey:         apiKey,
		apiURL:         apiURL,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
		logger:  zap.NewNop(),
		dayZone: time.Local,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dayZone == nil {
		c.dayZone = time.Local
	}
	return c, nil
}

type forecastEntry struct {
	Dt   int64 `json:"dt"`
	Main struct {
		TempMin  float64 `json:"temp_min"`
		TempMax  float64 `json:"temp_max"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
}

type forecastResponse struct {
	List []forecastEntry `json:"list"`
	City struct {
		Name     string `json:"name"`
		Timezone int    `json:"timezone"` // seconds east of UTC
	} `json:"city"`
}

// GetDailyForecast fetches the 3-hourly forecast and folds it into days,
// retrying timeouts, 429s and 5xx with exponential backoff and jitter.
func (c *OpenWeatherClient) GetDailyForecast(ctx context.Context, location string) ([]models.ForecastRow, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		rows, err := c.attempt(ctx, location)
		if err == nil {
			return rows, nil
		}
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()

		lastErr = err
		if !c.isRetryable(err) {
			return nil, err
		}
		c.logger.Debug("forecast fetch failed, retrying",
			zap.String("location", location), zap.Int("attempt", attempt+1), zap.Error(err))
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) attempt(ctx context.Context, location string) ([]models.ForecastRow, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("client rate limit: %w", err)
		}
	}
	if c.breaker == nil {
		return c.callAPI(ctx, location)
	}
	var rows []models.ForecastRow
	var callErr error
	err := c.breaker.Call(ctx, func() error {
		rows, callErr = c.callAPI(ctx, location)
		// Bad input is not an upstream fault.
		if errors.Is(callErr, ErrLocationNotFound) {
			return nil
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return rows, callErr
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, location string) ([]models.ForecastRow, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, location, 0)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var apiResp forecastResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(apiResp.List) == 0 {
		return nil, fmt.Errorf("parse response: %w", ErrEmptyForecast)
	}

	return aggregateDaily(apiResp, location, c.dayZone), nil
}

// isRetryable retries throttling, 5xx and deadline failures. A caller's
// cancellation and an open circuit are final.
func (c *OpenWeatherClient) isRetryable(err error) bool {
	switch CategorizeError(err) {
	case ErrorCategoryRateLimited, ErrorCategoryUpstream5xx:
		return true
	case ErrorCategoryTimeout:
		return !errors.Is(err, context.Canceled)
	}
	return false
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, location string, count int) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", location)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	if count > 0 {
		params.Set("cnt", fmt.Sprint(count))
	}
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenWeatherClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: invalid API key", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

// aggregateDaily groups entries by calendar day in zone, the phone's zone,
// so rows are keyed the same way the publisher looks up today. Each day takes
// the min of temp_min and the max of temp_max; the condition, humidity,
// pressure and wind come from the entry nearest noon in zone.
func aggregateDaily(resp forecastResponse, location string, zone *time.Location) []models.ForecastRow {
	type acc struct {
		row      models.ForecastRow
		noonDist int
	}
	days := map[string]*acc{}
	for _, e := range resp.List {
		local := time.Unix(e.Dt, 0).In(zone)
		day := local.Format(dayLayout)
		dist := local.Hour()*60 + local.Minute() - 12*60
		if dist < 0 {
			dist = -dist
		}

		a, ok := days[day]
		if !ok {
			a = &acc{
				row:      models.ForecastRow{Location: location, Day: day, MinTemp: e.Main.TempMin, MaxTemp: e.Main.TempMax},
				noonDist: math.MaxInt,
			}
			days[day] = a
		}
		a.row.MinTemp = math.Min(a.row.MinTemp, e.Main.TempMin)
		a.row.MaxTemp = math.Max(a.row.MaxTemp, e.Main.TempMax)
		if dist < a.noonDist {
			a.noonDist = dist
			a.row.Humidity = e.Main.Humidity
			a.row.Pressure = e.Main.Pressure
			a.row.WindSpeed = e.Wind.Speed
			a.row.Degrees = e.Wind.Deg
			if len(e.Weather) > 0 {
				a.row.WeatherID = e.Weather[0].ID
				a.row.ShortDesc = e.Weather[0].Main
			}
		}
	}

	out := make([]models.ForecastRow, 0, len(days))
	for _, a := range days {
		out = append(out, a.row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey makes a one-entry request for a known city.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "London", 1)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
