package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/sunshine-wear/internal/prefs"
	"github.com/kjstillabower/sunshine-wear/internal/validation"
)

// Config holds phone and watch configuration loaded from .env, YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string // phone hub API
	WatchPort  string // watch debug API

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int
	UpstreamRPS    float64

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerOpenTimeout      time.Duration

	IngestEnabled  bool
	IngestInterval time.Duration

	Location string
	Units    prefs.Units

	ForecastDriver string // "sqlite" or "mysql"
	ForecastDSN    string

	SettingsBackend string // "memory", "file" or "memcached"
	SettingsDir     string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	HubURL         string
	PhoneNode      string
	WatchNode      string
	WatchWidth     int
	WatchHeight    int
	WatchRound     bool
	LowBitAmbient  bool
	BurnIn         bool
	FramePath      string
	TimeZone       string
	HubPutTimeout  time.Duration
	HeartbeatEvery time.Duration

	ShutdownTimeout time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int

	TrackedPaths []string
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port      string `yaml:"port"`
		WatchPort string `yaml:"watch_port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RetryMaxAttempts        int     `yaml:"retry_max_attempts"`
		RetryBaseDelay          string  `yaml:"retry_base_delay"`
		RetryMaxDelay           string  `yaml:"retry_max_delay"`
		RateLimitRPS            int     `yaml:"rate_limit_rps"`
		RateLimitBurst          int     `yaml:"rate_limit_burst"`
		UpstreamRPS             float64 `yaml:"upstream_rps"`
		BreakerFailureThreshold int     `yaml:"breaker_failure_threshold"`
		BreakerSuccessThreshold int     `yaml:"breaker_success_threshold"`
		BreakerOpenTimeout      string  `yaml:"breaker_open_timeout"`
	} `yaml:"reliability"`

	Ingest struct {
		Enabled  *bool  `yaml:"enabled"`
		Interval string `yaml:"interval"`
	} `yaml:"ingest"`

	User struct {
		Location string `yaml:"location"`
		Units    string `yaml:"units"`
	} `yaml:"user"`

	Forecast struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"forecast"`

	Settings struct {
		Backend   string `yaml:"backend"`
		Dir       string `yaml:"dir"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"settings"`

	Watch struct {
		HubURL        string `yaml:"hub_url"`
		PhoneNode     string `yaml:"phone_node"`
		Node          string `yaml:"node"`
		Width         int    `yaml:"width"`
		Height        int    `yaml:"height"`
		Round         *bool  `yaml:"round"`
		LowBitAmbient bool   `yaml:"low_bit_ambient"`
		BurnIn        bool   `yaml:"burn_in_protection"`
		FramePath     string `yaml:"frame_path"`
		TimeZone      string `yaml:"time_zone"`
		PutTimeout    string `yaml:"put_timeout"`
		Heartbeat     string `yaml:"heartbeat"`
	} `yaml:"watch"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Metrics struct {
		TrackedPaths []string `yaml:"tracked_paths"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads .env (optional), config/{ENV_NAME}.yaml (default dev),
// config/secrets.yaml, then env overrides. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = orDefault(fc.Server.Port, "8080")
	cfg.WatchPort = orDefault(fc.Server.WatchPort, "8081")

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	if cfg.WeatherAPIKey == "" {
		key, err := loadAPIKeyFromSecrets(cwd)
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}
	cfg.WeatherAPIURL = orDefault(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/forecast")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.RetryAttempts = positiveOr(fc.Reliability.RetryMaxAttempts, 3)
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 100)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 250)
	cfg.UpstreamRPS = fc.Reliability.UpstreamRPS
	if cfg.UpstreamRPS <= 0 {
		cfg.UpstreamRPS = 1
	}
	cfg.BreakerFailureThreshold = positiveOr(fc.Reliability.BreakerFailureThreshold, 5)
	cfg.BreakerSuccessThreshold = positiveOr(fc.Reliability.BreakerSuccessThreshold, 2)
	cfg.BreakerOpenTimeout = parseDuration(fc.Reliability.BreakerOpenTimeout, 30*time.Second)

	cfg.IngestEnabled = fc.Ingest.Enabled != nil && *fc.Ingest.Enabled
	if v, ok := os.LookupEnv("INGEST_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("INGEST_ENABLED: %w", err)
		}
		cfg.IngestEnabled = b
	}
	cfg.IngestInterval = parseDuration(fc.Ingest.Interval, 3*time.Hour)

	cfg.Location = envOr("USER_LOCATION", fc.User.Location, "94043")
	units, err := prefs.ParseUnits(envOr("USER_UNITS", fc.User.Units, string(prefs.Metric)))
	if err != nil {
		return nil, fmt.Errorf("user.units: %w", err)
	}
	cfg.Units = units

	cfg.ForecastDriver = strings.ToLower(envOr("FORECAST_DB_DRIVER", fc.Forecast.Driver, "sqlite"))
	cfg.ForecastDSN = envOr("FORECAST_DB_DSN", fc.Forecast.DSN, "file:sunshine.db?_pragma=busy_timeout(5000)")

	cfg.SettingsBackend = strings.ToLower(envOr("SETTINGS_BACKEND", fc.Settings.Backend, "file"))
	cfg.SettingsDir = orDefault(fc.Settings.Dir, "data/settings")
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Settings.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Settings.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Settings.Memcached.MaxIdleConns, 2)

	cfg.HubURL = envOr("HUB_URL", fc.Watch.HubURL, "http://localhost:"+cfg.ServerPort)
	cfg.PhoneNode = orDefault(fc.Watch.PhoneNode, "phone")
	cfg.WatchNode = envOr("WATCH_NODE", fc.Watch.Node, "watch")
	cfg.WatchWidth = positiveOr(fc.Watch.Width, 320)
	cfg.WatchHeight = positiveOr(fc.Watch.Height, 320)
	cfg.WatchRound = fc.Watch.Round == nil || *fc.Watch.Round
	cfg.LowBitAmbient = fc.Watch.LowBitAmbient
	cfg.BurnIn = fc.Watch.BurnIn
	cfg.FramePath = strings.TrimSpace(fc.Watch.FramePath)
	cfg.TimeZone = envOr("WATCH_TIME_ZONE", fc.Watch.TimeZone, "")
	cfg.HubPutTimeout = parseDuration(fc.Watch.PutTimeout, 5*time.Second)
	cfg.HeartbeatEvery = parseDuration(fc.Watch.Heartbeat, 15*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = positiveOr(fc.Lifecycle.OverloadThresholdPct, 80)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = positiveOr(fc.Lifecycle.DegradedErrorPct, 5)
	cfg.TrackedPaths = fc.Metrics.TrackedPaths

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAPIKeyFromSecrets(cwd string) (string, error) {
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return sec.WeatherAPIKey, nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

// envOr prefers the env var, then the file value, then def.
func envOr(key, fileVal, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return orDefault(fileVal, def)
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks cross-field constraints. RequestTimeout is raised above
// WeatherAPITimeout when needed.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("WEATHER_API_TIMEOUT must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	if cfg.IngestEnabled && cfg.WeatherAPIKey == "" {
		return fmt.Errorf("WEATHER_API_KEY required when ingest is enabled (set env or config/secrets.yaml weather_api_key)")
	}
	switch cfg.ForecastDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("forecast.driver must be sqlite or mysql, got %q", cfg.ForecastDriver)
	}
	switch cfg.SettingsBackend {
	case "memory", "file", "memcached":
	default:
		return fmt.Errorf("settings.backend must be memory, file or memcached, got %q", cfg.SettingsBackend)
	}
	loc, err := validation.Location(cfg.Location)
	if err != nil {
		return fmt.Errorf("user.location: %w", err)
	}
	cfg.Location = loc
	if cfg.TimeZone != "" {
		if _, err := validation.TimeZoneName(cfg.TimeZone); err != nil {
			return fmt.Errorf("watch.time_zone: %w", err)
		}
	}
	if cfg.PhoneNode == cfg.WatchNode {
		return fmt.Errorf("watch.node and watch.phone_node must differ, both %q", cfg.WatchNode)
	}
	return nil
}
