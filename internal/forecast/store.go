// Package forecast stores daily forecast rows per location in SQL.
package forecast

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/kjstillabower/sunshine-wear/internal/models"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// DayLayout is the stored day key format.
const DayLayout = "2006-01-02"

var ErrUnknownDriver = errors.New("unknown forecast store driver")

const schema = `CREATE TABLE IF NOT EXISTS weather (
	location_setting VARCHAR(128) NOT NULL,
	day CHAR(10) NOT NULL,
	weather_id INTEGER NOT NULL,
	short_desc VARCHAR(64) NOT NULL DEFAULT '',
	min_temp REAL NOT NULL,
	max_temp REAL NOT NULL,
	humidity REAL NOT NULL DEFAULT 0,
	pressure REAL NOT NULL DEFAULT 0,
	wind REAL NOT NULL DEFAULT 0,
	degrees REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (location_setting, day)
)`

const columns = `location_setting, day, weather_id, short_desc, min_temp, max_temp, humidity, pressure, wind, degrees`

// Reader is the read side used by the publisher.
type Reader interface {
	Today(ctx context.Context, location string, now time.Time) (models.ForecastRow, bool, error)
}

// SQLStore is a forecast table behind database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
}

var _ Reader = (*SQLStore)(nil)

// Open connects and creates the table if needed. For sqlite, dsn is a file
// path or ":memory:".
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
	case DriverMySQL:
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return nil, fmt.Errorf("mysql dsn: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// Each new connection to ":memory:" is a separate empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLStore{db: db, driver: driver}, nil
}

// DayKey returns the stored key for the calendar day of t in t's location.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// Today returns the row for location on now's calendar day. ok is false when
// there is none.
func (s *SQLStore) Today(ctx context.Context, location string, now time.Time) (models.ForecastRow, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM weather WHERE location_setting = ? AND day = ?`,
		location, DayKey(now))
	var r models.ForecastRow
	err := row.Scan(&r.Location, &r.Day, &r.WeatherID, &r.ShortDesc, &r.MinTemp, &r.MaxTemp,
		&r.Humidity, &r.Pressure, &r.WindSpeed, &r.Degrees)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ForecastRow{}, false, nil
	}
	if err != nil {
		return models.ForecastRow{}, false, fmt.Errorf("query today: %w", err)
	}
	return r, true, nil
}

// Upsert inserts or replaces rows in one transaction.
func (s *SQLStore) Upsert(ctx context.Context, rows []models.ForecastRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `REPLACE INTO weather (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Location, r.Day, r.WeatherID, r.ShortDesc, r.MinTemp, r.MaxTemp,
			r.Humidity, r.Pressure, r.WindSpeed, r.Degrees); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", r.Location, r.Day, err)
		}
	}
	return tx.Commit()
}

// DeleteBefore removes days earlier than day for every location.
func (s *SQLStore) DeleteBefore(ctx context.Context, day string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM weather WHERE day < ?`, day)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping checks the database. Used for health checks.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the driver name the store was opened with.
func (s *SQLStore) Driver() string {
	return s.driver
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
