package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/config"
	"github.com/kjstillabower/sunshine-wear/internal/datalayer"
	httphandler "github.com/kjstillabower/sunshine-wear/internal/http"
	"github.com/kjstillabower/sunshine-wear/internal/lifecycle"
	"github.com/kjstillabower/sunshine-wear/internal/looper"
	"github.com/kjstillabower/sunshine-wear/internal/observability"
	"github.com/kjstillabower/sunshine-wear/internal/render"
	"github.com/kjstillabower/sunshine-wear/internal/settings"
	"github.com/kjstillabower/sunshine-wear/internal/surface"
	"github.com/kjstillabower/sunshine-wear/internal/watchface"
)

func main() {
	logger, err := observability.NewLogger("watchface")
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

	backend, err := settings.NewBackend(cfg.SettingsBackend, settings.BackendOptions{
		Dir:                   cfg.SettingsDir,
		MemcachedAddrs:        cfg.MemcachedAddrs,
		MemcachedTimeout:      cfg.MemcachedTimeout,
		MemcachedMaxIdleConns: cfg.MemcachedMaxIdleConns,
	})
	if err != nil {
		logger.Fatal("settings backend", zap.Error(err))
	}
	checks := map[string]func(context.Context) error{}
	mc, _ := backend.(*settings.MemcachedBackend)
	if mc != nil {
		checks["memcached"] = mc.Ping
	}
	watchPrefs, err := settings.Open(ctx, backend, "watch", logger)
	if err != nil {
		logger.Fatal("watch settings", zap.Error(err))
	}

	loc := time.Local
	if cfg.TimeZone != "" {
		if loc, err = time.LoadLocation(cfg.TimeZone); err != nil {
			logger.Fatal("time zone", zap.String("name", cfg.TimeZone), zap.Error(err))
		}
	}
	zones := surface.NewZones(loc)

	normal, light, err := render.LoadTypefaces()
	if err != nil {
		logger.Fatal("typefaces", zap.Error(err))
	}

	// The looper outlives the signal context so Destroy can still run on it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	l := looper.New(looper.RealClock())
	go func() { _ = l.Run(loopCtx) }()

	surf := surface.NewHeadless(l, cfg.WatchWidth, cfg.WatchHeight, cfg.WatchRound, cfg.FramePath, logger)
	engine, err := watchface.NewEngine(watchface.Options{
		Looper: l,
		Host:   surf,
		Dial: func(cb datalayer.ConnectionCallbacks) datalayer.Client {
			return datalayer.NewRemoteClient(cfg.HubURL, cfg.WatchNode, cfg.HubPutTimeout, l.Dispatch, cb, logger)
		},
		Settings:  watchPrefs,
		TimeZones: zones,
		Resources: watchface.DefaultResources(normal, light),
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("watch face", zap.Error(err))
	}
	surf.Attach(engine)

	err = l.Sync(ctx, func() {
		engine.Create()
		engine.SurfaceChanged(surf.Size())
		engine.ApplyWindowInsets(surf.Round())
		engine.PropertiesChanged(cfg.LowBitAmbient, cfg.BurnIn)
		engine.VisibilityChanged(true)
	})
	if err != nil {
		logger.Fatal("watch face start", zap.Error(err))
	}
	logger.Info("watch face running", zap.String("hub", cfg.HubURL), zap.String("node", cfg.WatchNode))

	health := httphandler.NewHealth(httphandler.HealthConfig{
		Service:              "watchface",
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		Checks:               checks,
	}, logger)
	ctl := watchface.NewController(engine, zones)
	router := httphandler.NewWatchRouter(httphandler.NewWatchHandler(surf, ctl, health, logger), logger, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:              ":" + cfg.WatchPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
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
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	var destroyErr error
	if err := l.Sync(shutdownCtx, func() { destroyErr = engine.Destroy(shutdownCtx) }); err != nil {
		logger.Error("watch face destroy", zap.Error(err))
	} else if destroyErr != nil {
		logger.Error("watch face destroy", zap.Error(destroyErr))
	}
	stopLoop()

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
