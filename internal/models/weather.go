package models

// ForecastRow is one stored day of forecast for a location. Temperatures are Celsius.
type ForecastRow struct {
	Location  string  `json:"location"`
	Day       string  `json:"day"` // YYYY-MM-DD in the location's local calendar
	WeatherID int     `json:"weatherId"`
	ShortDesc string  `json:"shortDesc"`
	MinTemp   float64 `json:"minTemp"`
	MaxTemp   float64 `json:"maxTemp"`
	Humidity  float64 `json:"humidity"`
	Pressure  float64 `json:"pressure"`
	WindSpeed float64 `json:"windSpeed"`
	Degrees   float64 `json:"degrees"`
}

// ForecastSnapshot is the latest known forecast for today, with temperatures
// already formatted for display.
type ForecastSnapshot struct {
	ConditionCode int    `json:"conditionCode"`
	HighTemp      string `json:"highTemp"`
	LowTemp       string `json:"lowTemp"`
}

// SyncRecord is what travels on the data layer. ForceUpdate is zero when absent;
// a non-zero stamp makes an otherwise unchanged payload differ so it is redelivered.
type SyncRecord struct {
	ForecastSnapshot
	ForceUpdate int64 `json:"forceUpdate,omitempty"`
}

// WatchDisplayState is what the watch face renders and persists between restarts.
type WatchDisplayState struct {
	LowTemp      string `json:"lowTemp"`
	HighTemp     string `json:"highTemp"`
	IconResource int    `json:"iconResource"`
}
