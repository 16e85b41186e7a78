// Package wearsync pushes today's forecast from the phone to paired watches
// and answers their update requests.
package wearsync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/datalayer"
	"github.com/kjstillabower/sunshine-wear/internal/forecast"
	"github.com/kjstillabower/sunshine-wear/internal/models"
	"github.com/kjstillabower/sunshine-wear/internal/observability"
	"github.com/kjstillabower/sunshine-wear/internal/prefs"
	"github.com/kjstillabower/sunshine-wear/internal/wearproto"
)

// Publisher reads today's row for the preferred location and writes it to
// the forecast data item.
type Publisher struct {
	store   forecast.Reader
	client  datalayer.Client
	prefs   prefs.Source
	stamper *wearproto.Stamper
	now     func() time.Time
	logger  *zap.Logger
}

// NewPublisher returns a Publisher. now defaults to time.Now; stamper defaults
// to one on the same clock.
func NewPublisher(store forecast.Reader, client datalayer.Client, src prefs.Source, stamper *wearproto.Stamper, now func() time.Time, logger *zap.Logger) *Publisher {
	if now == nil {
		now = time.Now
	}
	if stamper == nil {
		stamper = wearproto.NewStamper(now)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{store: store, client: client, prefs: src, stamper: stamper, now: now, logger: logger}
}

// Publish sends today's forecast. With force, the record carries a fresh
// stamp so watches receive it even when the forecast is unchanged. A missing
// row is not an error: nothing is sent. The put result is only logged.
func (p *Publisher) Publish(ctx context.Context, force bool) error {
	forceLabel := strconv.FormatBool(force)
	user := p.prefs.Current()

	row, ok, err := p.store.Today(ctx, user.Location, p.now())
	if err != nil {
		observability.ForecastPublishTotal.WithLabelValues("query_error", forceLabel).Inc()
		p.logger.Error("forecast query failed", zap.String("location", user.Location), zap.Error(err))
		return fmt.Errorf("query forecast: %w", err)
	}
	if !ok {
		observability.ForecastPublishTotal.WithLabelValues("no_data", forceLabel).Inc()
		p.logger.Debug("no forecast for today, nothing to publish", zap.String("location", user.Location))
		return nil
	}

	rec := Record(row, user.Units)
	if force {
		rec.ForceUpdate = p.stamper.Next()
	}

	logger := p.logger.With(
		zap.Int("condition", rec.ConditionCode),
		zap.String("high", rec.HighTemp),
		zap.String("low", rec.LowTemp),
		zap.Int64("force", rec.ForceUpdate),
	)
	p.client.PutDataItem(wearproto.ForecastPath, wearproto.EncodeForecast(rec), func(res datalayer.PutResult) {
		switch {
		case res.Err != nil:
			observability.ForecastDeliveryTotal.WithLabelValues("failure").Inc()
			logger.Warn("forecast put failed", zap.Error(res.Err))
		case !res.Changed:
			observability.ForecastDeliveryTotal.WithLabelValues("unchanged").Inc()
			logger.Debug("forecast unchanged")
		default:
			observability.ForecastDeliveryTotal.WithLabelValues("success").Inc()
			logger.Info("forecast published", zap.String("uri", res.Item.URI()))
		}
	})
	observability.ForecastPublishTotal.WithLabelValues("sent", forceLabel).Inc()
	return nil
}

// Record converts a stored row to the display record for units.
func Record(row models.ForecastRow, units prefs.Units) models.SyncRecord {
	return models.SyncRecord{
		ForecastSnapshot: models.ForecastSnapshot{
			ConditionCode: row.WeatherID,
			HighTemp:      prefs.FormatTemperature(row.MaxTemp, units),
			LowTemp:       prefs.FormatTemperature(row.MinTemp, units),
		},
	}
}
