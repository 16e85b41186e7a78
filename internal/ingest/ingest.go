// Package ingest refreshes the forecast store from the upstream API and
// pushes the result to connected watches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/client"
	"github.com/kjstillabower/sunshine-wear/internal/forecast"
	"github.com/kjstillabower/sunshine-wear/internal/models"
	"github.com/kjstillabower/sunshine-wear/internal/observability"
	"github.com/kjstillabower/sunshine-wear/internal/prefs"
)

// Store is the write side of the forecast store.
type Store interface {
	Upsert(ctx context.Context, rows []models.ForecastRow) error
}

// Pruner is implemented by stores that can drop past days.
type Pruner interface {
	DeleteBefore(ctx context.Context, day string) (int64, error)
}

// Publisher pushes today's forecast to watches.
type Publisher interface {
	Publish(ctx context.Context, force bool) error
}

var ErrNoRows = errors.New("upstream returned no forecast days")

// Syncer runs fetch, store and publish for the preferred location.
type Syncer struct {
	client    client.ForecastClient
	store     Store
	publisher Publisher
	prefs     prefs.Source
	now       func() time.Time
	logger    *zap.Logger
	group     *group
}

// NewSyncer returns a Syncer. now defaults to time.Now.
func NewSyncer(c client.ForecastClient, store Store, pub Publisher, src prefs.Source, now func() time.Time, logger *zap.Logger) *Syncer {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{client: c, store: store, publisher: pub, prefs: src, now: now, logger: logger, group: newGroup()}
}

// SyncOnce fetches the forecast, upserts it, prunes past days and publishes
// without force so watches only hear about real changes. Concurrent calls for
// the same location share one run.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	location := s.prefs.Current().Location
	return s.group.Do(ctx, location, func() error {
		return s.sync(ctx, location)
	})
}

func (s *Syncer) sync(ctx context.Context, location string) error {
	start := time.Now()
	defer func() {
		observability.ForecastSyncDurationSeconds.Observe(time.Since(start).Seconds())
	}()
	logger := s.logger.With(zap.String("location", location))

	rows, err := s.client.GetDailyForecast(ctx, location)
	if err != nil {
		observability.ForecastSyncTotal.WithLabelValues("fetch_error").Inc()
		logger.Warn("forecast fetch failed", zap.String("category", string(client.CategorizeError(err))), zap.Error(err))
		return fmt.Errorf("fetch forecast for %s: %w", location, err)
	}
	if len(rows) == 0 {
		observability.ForecastSyncTotal.WithLabelValues("empty").Inc()
		logger.Warn("forecast fetch returned no days")
		return ErrNoRows
	}
	if err := s.store.Upsert(ctx, rows); err != nil {
		observability.ForecastSyncTotal.WithLabelValues("store_error").Inc()
		logger.Error("forecast store failed", zap.Error(err))
		return fmt.Errorf("store forecast: %w", err)
	}

	if p, ok := s.store.(Pruner); ok {
		cutoff := forecast.DayKey(s.now().AddDate(0, 0, -1))
		if n, err := p.DeleteBefore(ctx, cutoff); err != nil {
			logger.Warn("prune old forecast failed", zap.Error(err))
		} else if n > 0 {
			logger.Debug("pruned old forecast days", zap.Int64("rows", n), zap.String("before", cutoff))
		}
	}

	if err := s.publisher.Publish(ctx, false); err != nil {
		observability.ForecastSyncTotal.WithLabelValues("publish_error").Inc()
		return fmt.Errorf("publish forecast: %w", err)
	}
	observability.ForecastSyncTotal.WithLabelValues("success").Inc()
	logger.Info("forecast synced", zap.Int("days", len(rows)), zap.Duration("duration", time.Since(start)))
	return nil
}

// SyncPeriodic runs SyncOnce now and then every interval until ctx is done.
// Failures are logged and the next run proceeds on schedule.
func (s *Syncer) SyncPeriodic(ctx context.Context, interval time.Duration) error {
	if err := s.SyncOnce(ctx); err != nil {
		s.logger.Warn("initial forecast sync failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				s.logger.Warn("periodic forecast sync failed", zap.Error(err))
			}
		}
	}
}
