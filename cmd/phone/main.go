package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sunshine-wear/internal/circuitbreaker"
	"github.com/kjstillabower/sunshine-wear/internal/client"
	"github.com/kjstillabower/sunshine-wear/internal/config"
	"github.com/kjstillabower/sunshine-wear/internal/datalayer"
	"github.com/kjstillabower/sunshine-wear/internal/forecast"
	httphandler "github.com/kjstillabower/sunshine-wear/internal/http"
	"github.com/kjstillabower/sunshine-wear/internal/ingest"
	"github.com/kjstillabower/sunshine-wear/internal/lifecycle"
	"github.com/kjstillabower/sunshine-wear/internal/looper"
	"github.com/kjstillabower/sunshine-wear/internal/observability"
	"github.com/kjstillabower/sunshine-wear/internal/prefs"
	"github.com/kjstillabower/sunshine-wear/internal/settings"
	"github.com/kjstillabower/sunshine-wear/internal/wearproto"
	"github.com/kjstillabower/sunshine-wear/internal/wearsync"
)

func main() {
	logger, err := observability.NewLogger("phone")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := lifecycle.WatchSignals(context.Background(), logger)
	defer stop()

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)
	observability.SetTrackedPaths(append(wearproto.Paths(), cfg.TrackedPaths...))

	openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := forecast.Open(openCtx, cfg.ForecastDriver, cfg.ForecastDSN)
	openCancel()
	if err != nil {
		logger.Fatal("forecast store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()
	logger.Info("forecast store opened", zap.String("driver", store.Driver()))

	checks := map[string]func(context.Context) error{"forecastStore": store.Ping}

	backend, err := settings.NewBackend(cfg.SettingsBackend, settings.BackendOptions{
		Dir:                   cfg.SettingsDir,
		MemcachedAddrs:        cfg.MemcachedAddrs,
		MemcachedTimeout:      cfg.MemcachedTimeout,
		MemcachedMaxIdleConns: cfg.MemcachedMaxIdleConns,
	})
	if err != nil {
		logger.Fatal("settings backend", zap.Error(err))
	}
	mc, _ := backend.(*settings.MemcachedBackend)
	if mc != nil {
		checks["memcached"] = mc.Ping
	}
	phonePrefs, err := settings.Open(ctx, backend, "phone", logger)
	if err != nil {
		logger.Fatal("phone settings", zap.Error(err))
	}
	userPrefs := prefs.NewStored(phonePrefs, prefs.User{Location: cfg.Location, Units: cfg.Units}, logger)
	logger.Info("settings backend ready", zap.String("backend", cfg.SettingsBackend))

	hub := datalayer.NewHub(logger)
	l := looper.New(looper.RealClock())
	go func() { _ = l.Run(ctx) }()

	// Rows are keyed, looked up and pruned on the phone's calendar.
	dayZone := time.Local
	now := func() time.Time { return time.Now().In(dayZone) }
	stamper := wearproto.NewStamper(time.Now)
	svc := wearsync.NewService(ctx,
		func(cb datalayer.ConnectionCallbacks) datalayer.Client {
			return datalayer.NewLocalClient(hub, cfg.PhoneNode, l.Dispatch, cb, logger)
		},
		func(c datalayer.Client) *wearsync.Publisher {
			return wearsync.NewPublisher(store, c, userPrefs, stamper, now, logger)
		},
		logger,
	)
	svc.Start()
	defer svc.Stop()

	if cfg.IngestEnabled {
		startIngest(ctx, cfg, store, svc.Publisher(), userPrefs, dayZone, now, logger)
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	health := httphandler.NewHealth(httphandler.HealthConfig{
		Service:              "phone",
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		Checks:               checks,
	}, logger)
	handler := httphandler.NewHandler(hub, svc.Publisher(), health, logger, limiter, cfg.HeartbeatEvery).WithPrefs(userPrefs)
	router := httphandler.NewHubRouter(handler, logger, limiter, cfg.RequestTimeout, cfg.TestingMode)

	// No WriteTimeout: /v1/events streams for the life of a watch session.
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
	}
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if mc != nil {
		if err := mc.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// startIngest builds the upstream client and runs an initial sync followed by
// periodic ones until ctx ends.
func startIngest(ctx context.Context, cfg *config.Config, store *forecast.SQLStore, pub ingest.Publisher, src prefs.Source, dayZone *time.Location, now func() time.Time, logger *zap.Logger) {
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerOpenTimeout,
		Component:        "weather_api",
		OnStateChange: func(component string, from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String())
			observability.SetCircuitBreakerStateGauge(component, observability.CircuitBreakerStateValue(int(to)))
		},
	})
	observability.SetCircuitBreakerStateGauge("weather_api", 0)

	opts := []client.Option{client.WithCircuitBreaker(cb), client.WithLogger(logger), client.WithDayZone(dayZone)}
	if cfg.UpstreamRPS > 0 {
		opts = append(opts, client.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.UpstreamRPS), 1)))
	}
	weatherClient, err := client.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
		opts...,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	syncer := ingest.NewSyncer(weatherClient, store, pub, src, now, logger)
	logger.Info("forecast ingest enabled", zap.Duration("interval", cfg.IngestInterval))
	go func() {
		if err := syncer.SyncPeriodic(ctx, cfg.IngestInterval); err != nil && err != context.Canceled {
			logger.Error("periodic forecast sync stopped", zap.Error(err))
		}
	}()
}
