// Package wearproto defines the data item paths and keys shared by the phone
// and the watch face, and the codec for forecast records.
package wearproto

import (
	"sync"
	"time"

	"github.com/kjstillabower/sunshine-wear/internal/datalayer"
	"github.com/kjstillabower/sunshine-wear/internal/models"
)

// Data item paths.
const (
	ForecastPath = "/Weather/Forecast"
	UpdatePath   = "/Weather/Update"
)

// Forecast record keys.
const (
	KeyWeatherID   = "WEATHER_ID"
	KeyTempLow     = "WEATHER_TEMP_LOW"
	KeyTempHigh    = "WEATHER_TEMP_HIGH"
	KeyForceUpdate = "WEATHER_FORCE_UPDATE"
	KeyUpdate      = "UPDATE_KEY"
)

// Paths lists every path the protocol uses, for metric label allow-lists.
func Paths() []string {
	return []string{ForecastPath, UpdatePath}
}

// EncodeForecast builds the data map for a forecast record. The force field is
// only present when ForceUpdate is non-zero.
func EncodeForecast(rec models.SyncRecord) datalayer.DataMap {
	m := datalayer.NewDataMap()
	m.PutInt(KeyWeatherID, rec.ConditionCode)
	m.PutString(KeyTempLow, rec.LowTemp)
	m.PutString(KeyTempHigh, rec.HighTemp)
	if rec.ForceUpdate != 0 {
		m.PutLong(KeyForceUpdate, rec.ForceUpdate)
	}
	return m
}

// DecodeForecast reads a forecast record. Missing temperatures decode as "" and
// a missing condition as 0.
func DecodeForecast(m datalayer.DataMap) models.SyncRecord {
	return models.SyncRecord{
		ForecastSnapshot: models.ForecastSnapshot{
			ConditionCode: m.GetInt(KeyWeatherID, 0),
			LowTemp:       m.GetString(KeyTempLow, ""),
			HighTemp:      m.GetString(KeyTempHigh, ""),
		},
		ForceUpdate: m.GetLong(KeyForceUpdate, 0),
	}
}

// UpdateRequest builds the watch's request for a fresh forecast.
func UpdateRequest(stamp int64) datalayer.DataMap {
	m := datalayer.NewDataMap()
	m.PutLong(KeyUpdate, stamp)
	return m
}

// Stamper issues millisecond stamps that strictly increase, even when the wall
// clock stalls or steps backwards.
type Stamper struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewStamper returns a Stamper reading now, or time.Now when now is nil.
func NewStamper(now func() time.Time) *Stamper {
	if now == nil {
		now = time.Now
	}
	return &Stamper{now: now}
}

// Next returns max(now in ms, previous+1).
func (s *Stamper) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.now().UnixMilli()
	if ms <= s.last {
		ms = s.last + 1
	}
	s.last = ms
	return ms
}
